// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/rcsbridge/internal/metrics"
	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// errLinkDown is returned by writes while the link is reconnecting
var errLinkDown = errors.New("link is down")

// lineSink receives decoded status lines. Returning false stops the reader.
type lineSink func(line string, err error) bool

// linkManager owns the thermostat connection, feeds received lines to a
// sink and reconnects with exponential backoff when the link drops
type linkManager struct {
	open    func() (Connection, error)
	info    string
	sink    lineSink
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	conn Connection

	minBackoff time.Duration
	maxBackoff time.Duration
}

func newLinkManager(open func() (Connection, error), info string, sink lineSink, log *zap.SugaredLogger, m *metrics.Metrics) *linkManager {
	return &linkManager{
		open:       open,
		info:       info,
		sink:       sink,
		log:        log,
		metrics:    m,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

func (lm *linkManager) getConn() Connection {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.conn
}

func (lm *linkManager) setConn(conn Connection) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.conn = conn
}

// Connect opens the initial connection
func (lm *linkManager) Connect() error {
	conn, err := lm.open()
	if err != nil {
		return err
	}
	lm.setConn(conn)
	return nil
}

// Write sends p on the current connection
func (lm *linkManager) Write(p []byte) (int, error) {
	conn := lm.getConn()
	if conn == nil {
		return 0, errLinkDown
	}
	return conn.Write(p)
}

// Flush discards unread input on the current connection
func (lm *linkManager) Flush() error {
	conn := lm.getConn()
	if conn == nil {
		return errLinkDown
	}
	return conn.Flush()
}

// Close closes the current connection
func (lm *linkManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.conn == nil {
		return nil
	}
	err := lm.conn.Close()
	lm.conn = nil
	return err
}

// Run reads from the link until ctx is cancelled or the sink stops
// accepting lines. Connect must have succeeded first.
func (lm *linkManager) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = lm.Close() })
	defer stop()

	for {
		if !lm.readFromConnection(ctx) {
			return
		}

		lm.log.Warnw("link lost", "link", lm.info)
		if !lm.reconnect(ctx) {
			return
		}
		lm.metrics.LinkReconnects.Inc()
		lm.log.Infow("link restored", "link", lm.info)
	}
}

// readFromConnection decodes lines until the connection fails.
// Returns true if the connection was lost, false if the reader should stop.
func (lm *linkManager) readFromConnection(ctx context.Context) bool {
	conn := lm.getConn()
	if conn == nil {
		return ctx.Err() == nil
	}

	decoder := rcs.NewLineDecoder()
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		lines, decodeErr := decoder.Decode(buf[:n])
		if decodeErr != nil && !lm.sink("", decodeErr) {
			return false
		}
		for _, line := range lines {
			if !lm.sink(line, nil) {
				return false
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			lm.log.Debugw("link read failed", "error", err, "discarded", decoder.Pending())
			return true
		}
	}
}

// reconnect attempts to reopen the link with exponential backoff.
// Returns false if ctx was cancelled first.
func (lm *linkManager) reconnect(ctx context.Context) bool {
	_ = lm.Close()

	backoff := lm.minBackoff
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := lm.open()
		if err == nil {
			if err := conn.Flush(); err != nil {
				lm.log.Debugw("failed to flush link input", "error", err)
			}
			lm.setConn(conn)
			if ctx.Err() != nil {
				_ = lm.Close()
				return false
			}
			return true
		}
		lm.log.Debugw("reconnect failed", "link", lm.info, "error", err, "retry_in", backoff)

		backoff *= 2
		if backoff > lm.maxBackoff {
			backoff = lm.maxBackoff
		}
	}
}
