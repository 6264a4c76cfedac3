// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcs

import (
	"fmt"
	"strconv"
	"strings"
)

// AnomalyType represents different types of status line anomalies
type AnomalyType int

const (
	AnomalyMalformedToken AnomalyType = iota
	AnomalyMissingAddress
	AnomalyAddressMismatch
	AnomalyDuplicateKey
	AnomalyInvalidValue
)

// String returns a short name for the anomaly
func (a AnomalyType) String() string {
	switch a {
	case AnomalyMalformedToken:
		return "malformed_token"
	case AnomalyMissingAddress:
		return "missing_address"
	case AnomalyAddressMismatch:
		return "address_mismatch"
	case AnomalyDuplicateKey:
		return "duplicate_key"
	case AnomalyInvalidValue:
		return "invalid_value"
	default:
		return "unknown"
	}
}

// ValidationError represents a status line validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Token   string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateStatus checks a status line received from the thermostat at
// address. Returns a slice of validation errors (empty if the line is valid).
func ValidateStatus(line string, address int) []ValidationError {
	errors := []ValidationError{}
	seen := make(map[string]bool)
	sawAddress := false

	for _, tok := range Tokenize(line) {
		f, err := ParseField(tok)
		if err != nil {
			errors = append(errors, ValidationError{
				Type:    AnomalyMalformedToken,
				Message: fmt.Sprintf("token %q has no '=' separator", tok),
				Token:   tok,
			})
			continue
		}

		if seen[f.Key] {
			errors = append(errors, ValidationError{
				Type:    AnomalyDuplicateKey,
				Message: fmt.Sprintf("key %q repeated", strings.ToUpper(f.Key)),
				Token:   tok,
			})
		}
		seen[f.Key] = true

		if f.IsAddress() {
			sawAddress = true
			n, err := strconv.Atoi(f.Value)
			if err != nil || !ValidAddress(n) {
				errors = append(errors, ValidationError{
					Type:    AnomalyInvalidValue,
					Message: fmt.Sprintf("address %q is not a number in 0-255", f.Value),
					Token:   tok,
				})
			} else if n != address {
				errors = append(errors, ValidationError{
					Type:    AnomalyAddressMismatch,
					Message: fmt.Sprintf("reply from address %d, expected %d", n, address),
					Token:   tok,
				})
			}
		}
	}

	if !sawAddress {
		errors = append(errors, ValidationError{
			Type:    AnomalyMissingAddress,
			Message: "status line has no address field",
		})
	}

	return errors
}
