// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Thermoquad/rcsbridge/pkg/bus"
	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// Basic command vocabulary
const (
	CommandHVACMode = "hvac-mode"
	CommandFanMode  = "fan-mode"
)

// transparentAlias is the short schema type some clients still send
const transparentAlias = "transp"

var (
	ErrMissingCommand = errors.New("basic command has no command field")
	ErrMissingZone    = errors.New("basic command has no zone field")
	ErrUnknownZone    = errors.New("zone has no thermostat address")
	ErrUnknownCommand = errors.New("unknown basic command")
)

// Translator converts hvac command messages into thermostat commands
type Translator struct {
	Address int
}

// Translate returns the command for msg. ok is false when msg carries no
// command for the thermostat (an hvac.request, or a schema outside the
// hvac class).
func (t *Translator) Translate(msg *bus.Message) (entry CommandEntry, ok bool, err error) {
	switch {
	case msg.Schema.Is(bus.SchemaHVACTransparent),
		msg.Schema.Is(bus.Schema{Class: "hvac", Type: transparentAlias}):
		text, err := t.transparent(msg)
		if err != nil {
			return CommandEntry{}, false, err
		}
		return CommandEntry{Text: text, Kind: Transparent}, true, nil

	case msg.Schema.Is(bus.SchemaHVACBasic):
		text, err := t.basic(msg)
		if err != nil {
			return CommandEntry{}, false, err
		}
		return CommandEntry{Text: text, Kind: Basic}, true, nil
	}
	return CommandEntry{}, false, nil
}

func (t *Translator) transparent(msg *bus.Message) (string, error) {
	pairs := make([]rcs.Pair, 0, len(msg.Body))
	for _, nv := range msg.Body {
		if nv.Binary {
			continue
		}
		pairs = append(pairs, rcs.Pair{Key: nv.Name, Value: nv.Value})
	}
	return rcs.NewTransparentCommand(t.Address, pairs)
}

func (t *Translator) basic(msg *bus.Message) (string, error) {
	command, ok := msg.Value("command")
	if !ok {
		return "", ErrMissingCommand
	}
	zone, ok := msg.Value("zone")
	if !ok {
		return "", ErrMissingZone
	}
	address, err := t.zoneAddress(zone)
	if err != nil {
		return "", err
	}

	mode, _ := msg.Value("mode")
	switch strings.ToLower(command) {
	case CommandHVACMode:
		return rcs.NewModeCommand(address, mode)
	case CommandFanMode:
		return rcs.NewFanModeCommand(address, mode)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

// zoneAddress maps a zone onto a thermostat address. Only zone 1, the
// configured thermostat, is known.
func (t *Translator) zoneAddress(zone string) (int, error) {
	if strings.TrimSpace(zone) != "1" {
		return 0, fmt.Errorf("%w: %q", ErrUnknownZone, zone)
	}
	return t.Address, nil
}

// StatusMessage builds the full status report for a command response
func StatusMessage(source string, fields []rcs.Field) *bus.Message {
	return fieldMessage(bus.KindStatus, source, bus.SchemaRCSStatus, fields)
}

// TriggerMessage builds the delta report for a poll response
func TriggerMessage(source string, fields []rcs.Field) *bus.Message {
	return fieldMessage(bus.KindTrigger, source, bus.SchemaRCSTrigger, fields)
}

func fieldMessage(kind bus.Kind, source string, schema bus.Schema, fields []rcs.Field) *bus.Message {
	msg := bus.NewMessage(kind, source, schema)
	for _, f := range fields {
		if f.IsAddress() {
			continue
		}
		msg.Set(f.Key, f.Value)
	}
	return msg
}

// rejectReason labels a translation or queueing failure for metrics
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, rcs.ErrCommandTooLong):
		return "too_long"
	case errors.Is(err, rcs.ErrEmptyCommand):
		return "empty"
	case errors.Is(err, rcs.ErrInvalidPair):
		return "invalid_pair"
	case errors.Is(err, ErrMissingCommand):
		return "missing_command"
	case errors.Is(err, ErrMissingZone):
		return "missing_zone"
	case errors.Is(err, ErrUnknownZone):
		return "unknown_zone"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, rcs.ErrUnknownMode):
		return "unknown_mode"
	default:
		return "invalid"
	}
}
