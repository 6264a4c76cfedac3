// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rcs implements the line-oriented serial protocol spoken by RCS
// RC65 style thermostats over RS-485 and RS-232.
//
// Every exchange is a single line of space separated KEY=VALUE tokens
// terminated by a carriage return. Commands and poll requests always carry
// the thermostat address (A=n) as their first token; the thermostat answers
// with a status line in the same format.
package rcs

// Line framing
const (
	LineTerminator = "\r"
	KeyValueSep    = '='
)

// Link defaults
const (
	DefaultBaudRate = 9600
	DefaultAddress  = 1
)

// Address limits
const (
	MinAddress = 0
	MaxAddress = 255
)

// Size limits
const (
	// MaxCommandLength is the longest command accepted before the line
	// terminator is appended.
	MaxCommandLength = 255

	// MaxLineLength is the longest status line the decoder accumulates.
	MaxLineLength = 255
)

// Well-known status and command keys. Keys are upper case on the wire and
// lower case once parsed into a Field.
const (
	KeyAddress     = "A"
	KeyOriginator  = "O"
	KeyZone        = "Z"
	KeyTemperature = "T"
	KeySetpoint    = "SP"
	KeyHeatSetting = "SPH"
	KeyCoolSetting = "SPC"
	KeyMode        = "M"
	KeyFanMode     = "FM"
	KeyRequest     = "R"
)

// Mode values carried by the M key
const (
	ModeOff  = "O"
	ModeHeat = "H"
	ModeCool = "C"
	ModeAuto = "A"
)

// Fan mode values carried by the FM key
const (
	FanModeAuto = "0"
	FanModeOn   = "1"
)

// RequestStatus is the R value that asks the thermostat for a full status line.
const RequestStatus = "1"
