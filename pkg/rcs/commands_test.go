// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcs

import (
	"errors"
	"strings"
	"testing"
)

func TestNewModeCommand(t *testing.T) {
	tests := []struct {
		name    string
		address int
		mode    string
		want    string
		wantErr error
	}{
		{name: "off", address: 1, mode: "off", want: "A=1 M=O"},
		{name: "heat", address: 1, mode: "heat", want: "A=1 M=H"},
		{name: "cool", address: 1, mode: "cool", want: "A=1 M=C"},
		{name: "auto", address: 7, mode: "auto", want: "A=7 M=A"},
		{name: "mixed case", address: 1, mode: "Cool", want: "A=1 M=C"},
		{name: "unknown mode", address: 1, mode: "balmy", wantErr: ErrUnknownMode},
		{name: "empty mode", address: 1, mode: "", wantErr: ErrUnknownMode},
		{name: "address too high", address: 256, mode: "off", wantErr: ErrInvalidAddress},
		{name: "negative address", address: -1, mode: "off", wantErr: ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewModeCommand(tt.address, tt.mode)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewModeCommand() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewModeCommand() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NewModeCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewFanModeCommand(t *testing.T) {
	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{mode: "auto", want: "A=1 FM=0"},
		{mode: "on", want: "A=1 FM=1"},
		{mode: "off", wantErr: true},
		{mode: "circulate", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := NewFanModeCommand(1, tt.mode)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownMode) {
					t.Fatalf("NewFanModeCommand(%q) error = %v, want ErrUnknownMode", tt.mode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFanModeCommand(%q) unexpected error: %v", tt.mode, err)
			}
			if got != tt.want {
				t.Errorf("NewFanModeCommand(%q) = %q, want %q", tt.mode, got, tt.want)
			}
		})
	}
}

func TestNewPollRequest(t *testing.T) {
	if got := NewPollRequest(1); got != "A=1 R=1" {
		t.Errorf("NewPollRequest(1) = %q, want %q", got, "A=1 R=1")
	}
	if got := NewPollRequest(42); got != "A=42 R=1" {
		t.Errorf("NewPollRequest(42) = %q, want %q", got, "A=42 R=1")
	}
}

func TestNewTransparentCommand(t *testing.T) {
	got, err := NewTransparentCommand(3, []Pair{{Key: "sp", Value: "72"}, {Key: "M", Value: "H"}})
	if err != nil {
		t.Fatalf("NewTransparentCommand() unexpected error: %v", err)
	}
	if got != "A=3 sp=72 M=H" {
		t.Errorf("NewTransparentCommand() = %q, want %q", got, "A=3 sp=72 M=H")
	}
}

func TestNewTransparentCommand_Errors(t *testing.T) {
	long := strings.Repeat("9", 40)
	var many []Pair
	for i := 0; i < 10; i++ {
		many = append(many, Pair{Key: "K", Value: long})
	}

	tests := []struct {
		name    string
		pairs   []Pair
		wantErr error
	}{
		{name: "no pairs", pairs: nil, wantErr: ErrEmptyCommand},
		{name: "too long", pairs: many, wantErr: ErrCommandTooLong},
		{name: "empty key", pairs: []Pair{{Key: "", Value: "1"}}, wantErr: ErrInvalidPair},
		{name: "space in value", pairs: []Pair{{Key: "SP", Value: "7 2"}}, wantErr: ErrInvalidPair},
		{name: "separator in key", pairs: []Pair{{Key: "S=P", Value: "72"}}, wantErr: ErrInvalidPair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransparentCommand(1, tt.pairs)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTransparentCommand() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTransparentCommand_MaxLengthAccepted(t *testing.T) {
	// "A=1" + " K=" + value fills the command exactly
	value := strings.Repeat("9", MaxCommandLength-len("A=1 K="))
	got, err := NewTransparentCommand(1, []Pair{{Key: "K", Value: value}})
	if err != nil {
		t.Fatalf("NewTransparentCommand() unexpected error: %v", err)
	}
	if len(got) != MaxCommandLength {
		t.Errorf("len = %d, want %d", len(got), MaxCommandLength)
	}
}

func TestFrame(t *testing.T) {
	got := string(Frame("a=1 m=c"))
	if got != "A=1 M=C\r" {
		t.Errorf("Frame() = %q, want %q", got, "A=1 M=C\r")
	}
}

func TestModeTables(t *testing.T) {
	if got := strings.Join(HVACModes(), ","); got != "off,heat,cool,auto" {
		t.Errorf("HVACModes() = %s", got)
	}
	if got := strings.Join(FanModes(), ","); got != "auto,on" {
		t.Errorf("FanModes() = %s", got)
	}
}
