// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/Thermoquad/rcsbridge/internal/bridge"
	"github.com/Thermoquad/rcsbridge/pkg/bus"
	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// testViper returns a viper instance with the root command defaults
func testViper(t *testing.T, overrides map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		t.Fatalf("BindPFlags() error: %v", err)
	}
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestLoadOptions_Defaults(t *testing.T) {
	o, err := loadOptions(testViper(t, map[string]any{"instance": "test"}))
	if err != nil {
		t.Fatalf("loadOptions() error: %v", err)
	}

	if o.address != rcs.DefaultAddress {
		t.Errorf("address = %d, want %d", o.address, rcs.DefaultAddress)
	}
	if o.link.baud != rcs.DefaultBaudRate {
		t.Errorf("baud = %d, want %d", o.link.baud, rcs.DefaultBaudRate)
	}
	if o.link.port != defaultPort() {
		t.Errorf("port = %q, want %q", o.link.port, defaultPort())
	}
	if o.subjectPrefix != bus.DefaultSubjectPrefix {
		t.Errorf("subject prefix = %q", o.subjectPrefix)
	}
	if o.codec.Name() != "json" {
		t.Errorf("codec = %q, want json", o.codec.Name())
	}
	if o.diffMode != bridge.DiffPositional {
		t.Errorf("diff mode = %v, want positional", o.diffMode)
	}
	if got := o.identity().String(); got != "rcs-rc65.test" {
		t.Errorf("identity = %q, want rcs-rc65.test", got)
	}
}

func TestLoadOptions_Overrides(t *testing.T) {
	o, err := loadOptions(testViper(t, map[string]any{
		"address":     12,
		"codec":       "cbor",
		"diff-by-key": true,
		"queue-size":  0,
		"instance":    "attic",
	}))
	if err != nil {
		t.Fatalf("loadOptions() error: %v", err)
	}
	if o.address != 12 || o.codec.Name() != "cbor" || o.diffMode != bridge.DiffByKey || o.queueSize != 0 {
		t.Errorf("options = %+v", o)
	}
}

func TestLoadOptions_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr error
	}{
		{name: "address too high", set: map[string]any{"address": 256}, wantErr: rcs.ErrInvalidAddress},
		{name: "negative address", set: map[string]any{"address": -1}, wantErr: rcs.ErrInvalidAddress},
		{name: "debug too high", set: map[string]any{"debug": 6}, wantErr: errInvalidDebug},
		{name: "zero baud", set: map[string]any{"baud": 0}, wantErr: errInvalidBaud},
		{name: "negative poll timeout", set: map[string]any{"poll-timeout": -1}, wantErr: errInvalidSetting},
		{name: "negative queue size", set: map[string]any{"queue-size": -1}, wantErr: errInvalidSetting},
		{name: "empty instance", set: map[string]any{"instance": ""}, wantErr: errInvalidSetting},
		{name: "unknown codec", set: map[string]any{"codec": "xml"}, wantErr: bus.ErrUnknownCodec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := map[string]any{"instance": "test"}
			for k, v := range tt.set {
				set[k] = v
			}
			_, err := loadOptions(testViper(t, set))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("loadOptions() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcsbridge.yaml")
	content := "address: 7\ncom-port: /dev/ttyUSB3\ncodec: cbor\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v := testViper(t, map[string]any{"instance": "test"})
	if err := readConfigFile(v, path); err != nil {
		t.Fatalf("readConfigFile() error: %v", err)
	}
	o, err := loadOptions(v)
	if err != nil {
		t.Fatalf("loadOptions() error: %v", err)
	}
	if o.address != 7 || o.link.port != "/dev/ttyUSB3" || o.codec.Name() != "cbor" {
		t.Errorf("options from file = %+v", o)
	}

	if err := readConfigFile(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("readConfigFile() with a missing explicit file succeeded")
	}
}

func TestRootCommand_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "invalid address", args: []string{"--address", "300"}},
		{name: "invalid debug", args: []string{"-d", "9"}},
		{name: "unknown flag", args: []string{"--frobnicate"}},
		{name: "stray argument", args: []string{"extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			rootCmd.SetOut(io.Discard)
			rootCmd.SetErr(io.Discard)
			t.Cleanup(func() {
				rootCmd.SetArgs(nil)
				_ = rootCmd.PersistentFlags().Set("address", "1")
				_ = rootCmd.PersistentFlags().Set("debug", "0")
			})

			if err := Execute(); err == nil {
				t.Errorf("Execute(%v) succeeded", tt.args)
			}
		})
	}
}
