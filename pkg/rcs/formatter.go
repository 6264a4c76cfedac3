// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcs

import (
	"fmt"
	"strings"
)

// FieldName returns the human-readable name for a status key
func FieldName(key string) string {
	switch strings.ToUpper(key) {
	case KeyAddress:
		return "Address"
	case KeyOriginator:
		return "Originator"
	case KeyZone:
		return "Zone"
	case KeyTemperature:
		return "Temperature"
	case KeySetpoint:
		return "Setpoint"
	case KeyHeatSetting:
		return "Heat Setpoint"
	case KeyCoolSetting:
		return "Cool Setpoint"
	case KeyMode:
		return "Mode"
	case KeyFanMode:
		return "Fan Mode"
	default:
		return strings.ToUpper(key)
	}
}

// FormatValue returns value with a readable annotation for known keys
func FormatValue(key, value string) string {
	switch strings.ToUpper(key) {
	case KeyMode:
		switch strings.ToUpper(value) {
		case ModeOff:
			return value + " (off)"
		case ModeHeat:
			return value + " (heat)"
		case ModeCool:
			return value + " (cool)"
		case ModeAuto:
			return value + " (auto)"
		}
	case KeyFanMode:
		switch value {
		case FanModeAuto:
			return value + " (auto)"
		case FanModeOn:
			return value + " (on)"
		}
	}
	return value
}

// FormatField formats a single field as "Name: value"
func FormatField(f Field) string {
	return fmt.Sprintf("%s: %s", FieldName(f.Key), FormatValue(f.Key, f.Value))
}
