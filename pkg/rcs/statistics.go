// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcs

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks link traffic and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalLines      uint64
	ValidLines      uint64
	DecodeErrors    uint64
	MalformedLines  uint64
	MalformedTokens uint64
	MissingAddress  uint64
	AddressMismatch uint64
	DuplicateKeys   uint64
	InvalidValues   uint64
	CommandsSent    uint64
	PollsSent       uint64
	MissedResponses uint64

	// Rates (calculated)
	LineRate  float64 // lines/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a received line and its errors
func (s *Statistics) Update(decodeErr error, validationErrors []ValidationError) {
	s.TotalLines++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrLineTooLong) {
			s.MalformedLines++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if len(validationErrors) == 0 {
		s.ValidLines++
		return
	}

	s.MalformedLines++
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyMalformedToken:
			s.MalformedTokens++
		case AnomalyMissingAddress:
			s.MissingAddress++
		case AnomalyAddressMismatch:
			s.AddressMismatch++
		case AnomalyDuplicateKey:
			s.DuplicateKeys++
		case AnomalyInvalidValue:
			s.InvalidValues++
		}
	}
}

// RecordCommand counts a command written to the link
func (s *Statistics) RecordCommand() {
	s.CommandsSent++
}

// RecordPoll counts a status request written to the link
func (s *Statistics) RecordPoll() {
	s.PollsSent++
}

// RecordMissedResponse counts a poll abandoned without a reply
func (s *Statistics) RecordMissedResponse() {
	s.MissedResponses++
}

// CalculateRates calculates line and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.LineRate = float64(s.TotalLines) / elapsed
		s.ErrorRate = float64(s.DecodeErrors+s.MalformedLines+s.MissedResponses) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, malformedPercent float64
	if s.TotalLines > 0 {
		validPercent = float64(s.ValidLines) * 100.0 / float64(s.TotalLines)
		malformedPercent = float64(s.MalformedLines) * 100.0 / float64(s.TotalLines)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", s.TotalLines)
	result += fmt.Sprintf("Valid Lines:     %8d (%.1f%%)\n", s.ValidLines, validPercent)

	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.MalformedLines > 0 {
		result += fmt.Sprintf("Malformed Lines: %8d (%.1f%%)\n", s.MalformedLines, malformedPercent)
		if s.MalformedTokens > 0 {
			result += fmt.Sprintf("  Bad Tokens:       %5d\n", s.MalformedTokens)
		}
		if s.MissingAddress > 0 {
			result += fmt.Sprintf("  No Address:       %5d\n", s.MissingAddress)
		}
		if s.AddressMismatch > 0 {
			result += fmt.Sprintf("  Wrong Address:    %5d\n", s.AddressMismatch)
		}
		if s.DuplicateKeys > 0 {
			result += fmt.Sprintf("  Duplicate Keys:   %5d\n", s.DuplicateKeys)
		}
		if s.InvalidValues > 0 {
			result += fmt.Sprintf("  Invalid Values:   %5d\n", s.InvalidValues)
		}
	}

	result += fmt.Sprintf("Commands Sent:   %8d\n", s.CommandsSent)
	result += fmt.Sprintf("Polls Sent:      %8d\n", s.PollsSent)
	if s.MissedResponses > 0 {
		result += fmt.Sprintf("Missed Replies:  %8d\n", s.MissedResponses)
	}
	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "====================================\n"

	return result
}
