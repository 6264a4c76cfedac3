// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcs

import (
	"errors"
	"fmt"
	"strings"
)

// Command builder functions return command text without the line
// terminator. Use Frame to produce the bytes written to the link.

var (
	ErrInvalidAddress = errors.New("thermostat address out of range")
	ErrUnknownMode    = errors.New("unknown mode")
	ErrCommandTooLong = errors.New("command exceeds maximum length")
	ErrEmptyCommand   = errors.New("command has no key/value pairs")
	ErrInvalidPair    = errors.New("invalid key/value pair")
)

// modeSetting maps a bus level mode name onto its serial suffix.
type modeSetting struct {
	Name   string
	Suffix string
}

var hvacModes = []modeSetting{
	{Name: "off", Suffix: " " + KeyMode + "=" + ModeOff},
	{Name: "heat", Suffix: " " + KeyMode + "=" + ModeHeat},
	{Name: "cool", Suffix: " " + KeyMode + "=" + ModeCool},
	{Name: "auto", Suffix: " " + KeyMode + "=" + ModeAuto},
}

var fanModes = []modeSetting{
	{Name: "auto", Suffix: " " + KeyFanMode + "=" + FanModeAuto},
	{Name: "on", Suffix: " " + KeyFanMode + "=" + FanModeOn},
}

// HVACModes lists the accepted hvac-mode names in table order.
func HVACModes() []string {
	return modeNames(hvacModes)
}

// FanModes lists the accepted fan-mode names in table order.
func FanModes() []string {
	return modeNames(fanModes)
}

func modeNames(table []modeSetting) []string {
	names := make([]string, len(table))
	for i, m := range table {
		names[i] = m.Name
	}
	return names
}

func lookupMode(table []modeSetting, name string) (string, bool) {
	for _, m := range table {
		if strings.EqualFold(m.Name, name) {
			return m.Suffix, true
		}
	}
	return "", false
}

// AddressPrefix returns the A=n token that starts every command.
func AddressPrefix(address int) string {
	return fmt.Sprintf("%s=%d", KeyAddress, address)
}

// ValidAddress reports whether address is a legal thermostat address.
func ValidAddress(address int) bool {
	return address >= MinAddress && address <= MaxAddress
}

// NewPollRequest creates the status request sent on every poll cycle.
func NewPollRequest(address int) string {
	return fmt.Sprintf("%s %s=%s", AddressPrefix(address), KeyRequest, RequestStatus)
}

// NewModeCommand creates an hvac mode command (off, heat, cool, auto).
func NewModeCommand(address int, mode string) (string, error) {
	return newModeCommand(address, hvacModes, "hvac", mode)
}

// NewFanModeCommand creates a fan mode command (auto, on).
func NewFanModeCommand(address int, mode string) (string, error) {
	return newModeCommand(address, fanModes, "fan", mode)
}

func newModeCommand(address int, table []modeSetting, label, mode string) (string, error) {
	if !ValidAddress(address) {
		return "", fmt.Errorf("%w: %d", ErrInvalidAddress, address)
	}
	suffix, ok := lookupMode(table, mode)
	if !ok {
		return "", fmt.Errorf("%w: %s mode %q", ErrUnknownMode, label, mode)
	}
	return AddressPrefix(address) + suffix, nil
}

// Pair is a single KEY=VALUE token of a transparent command.
type Pair struct {
	Key   string
	Value string
}

// NewTransparentCommand creates an address qualified command from arbitrary
// pairs. The whole command is rejected when it would exceed
// MaxCommandLength; it is never truncated.
func NewTransparentCommand(address int, pairs []Pair) (string, error) {
	if !ValidAddress(address) {
		return "", fmt.Errorf("%w: %d", ErrInvalidAddress, address)
	}
	if len(pairs) == 0 {
		return "", ErrEmptyCommand
	}

	var b strings.Builder
	b.WriteString(AddressPrefix(address))
	for _, p := range pairs {
		if p.Key == "" || strings.ContainsAny(p.Key, " =\r\n") || strings.ContainsAny(p.Value, " \r\n") {
			return "", fmt.Errorf("%w: %q=%q", ErrInvalidPair, p.Key, p.Value)
		}
		b.WriteByte(' ')
		b.WriteString(p.Key)
		b.WriteByte(KeyValueSep)
		b.WriteString(p.Value)
		if b.Len() > MaxCommandLength {
			return "", fmt.Errorf("%w: more than %d bytes", ErrCommandTooLong, MaxCommandLength)
		}
	}
	return b.String(), nil
}

// Normalize converts command text to the upper case convention the
// thermostat expects.
func Normalize(command string) string {
	return strings.ToUpper(command)
}

// Frame returns the normalized, terminated bytes for a command.
func Frame(command string) []byte {
	return []byte(Normalize(command) + LineTerminator)
}
