// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLineTooLong is returned once for a line that overflows the decoder buffer.
var ErrLineTooLong = errors.New("status line exceeds maximum length")

// LineDecoder accumulates link bytes into complete lines
type LineDecoder struct {
	buffer   []byte
	overflow bool // Discarding until the next terminator
}

// NewLineDecoder creates a new line decoder
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{
		buffer: make([]byte, 0, MaxLineLength),
	}
}

// Reset discards any partial line
func (d *LineDecoder) Reset() {
	d.buffer = d.buffer[:0]
	d.overflow = false
}

// Pending returns the number of buffered bytes of the current partial line
func (d *LineDecoder) Pending() int {
	return len(d.buffer)
}

// DecodeByte processes a single byte.
// Returns the completed line and true when b terminates a non-empty line.
// Either CR or LF terminates a line, so CRLF pairs never yield empty lines.
// Returns ErrLineTooLong when a line overflows; the rest of that line is
// discarded up to its terminator.
func (d *LineDecoder) DecodeByte(b byte) (string, bool, error) {
	switch b {
	case '\r', '\n':
		if d.overflow {
			d.Reset()
			return "", false, nil
		}
		line := strings.TrimSpace(string(d.buffer))
		d.buffer = d.buffer[:0]
		if line == "" {
			return "", false, nil
		}
		return line, true, nil

	case 0:
		// Line noise on an idle RS-485 bus
		return "", false, nil
	}

	if d.overflow {
		return "", false, nil
	}

	if len(d.buffer) >= MaxLineLength {
		d.buffer = d.buffer[:0]
		d.overflow = true
		return "", false, fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, MaxLineLength)
	}

	d.buffer = append(d.buffer, b)
	return "", false, nil
}

// Decode feeds p through the decoder and returns every completed line.
// Decoding continues past overflow errors; the first error is returned.
func (d *LineDecoder) Decode(p []byte) ([]string, error) {
	var lines []string
	var firstErr error
	for _, b := range p {
		line, ok, err := d.DecodeByte(b)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			lines = append(lines, line)
		}
	}
	return lines, firstErr
}
