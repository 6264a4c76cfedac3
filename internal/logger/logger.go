// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logger builds the zap logger used across rcsbridge from the
// numeric debug level given on the command line.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug level bounds
const (
	MinDebug = 0
	MaxDebug = 5

	// TraceDebug additionally logs every raw bus message
	TraceDebug = 5
)

// Level converts a debug level into a zap level.
// 0 errors only, 1 warnings, 2 info, 3 and above debug.
func Level(debug int) zapcore.Level {
	switch {
	case debug <= 0:
		return zapcore.ErrorLevel
	case debug == 1:
		return zapcore.WarnLevel
	case debug == 2:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ValidDebug reports whether debug is an accepted debug level
func ValidDebug(debug int) bool {
	return debug >= MinDebug && debug <= MaxDebug
}

// newConsoleCore builds a console encoder core writing to w
func newConsoleCore(w io.Writer, level zapcore.Level) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	return zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zap.NewAtomicLevelAt(level))
}

// New returns a sugared logger for debug writing to w
func New(w io.Writer, debug int) *zap.SugaredLogger {
	return zap.New(newConsoleCore(w, Level(debug))).Sugar()
}

// Open returns a logger writing to path, or to stderr when path is empty.
// The returned close function flushes and closes the log file.
func Open(path string, debug int) (*zap.SugaredLogger, func() error, error) {
	if path == "" {
		log := New(os.Stderr, debug)
		return log, func() error { _ = log.Sync(); return nil }, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	log := New(f, debug)
	return log, func() error {
		_ = log.Sync()
		return f.Close()
	}, nil
}
