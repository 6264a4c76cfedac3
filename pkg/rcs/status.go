// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedToken is returned for a status token without a '=' separator.
var ErrMalformedToken = errors.New("malformed status token")

// Field is one KEY=VALUE token of a status line
type Field struct {
	Key   string // lower case
	Value string // as received
	Raw   string // original token text
}

// IsAddress reports whether the field carries the routing address.
func (f Field) IsAddress() bool {
	return f.Key == strings.ToLower(KeyAddress)
}

// String returns the field as key=value.
func (f Field) String() string {
	return f.Key + string(KeyValueSep) + f.Value
}

// Tokenize splits a status line on whitespace. Token order is preserved.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// ParseField splits a single token at its first '='.
func ParseField(token string) (Field, error) {
	i := strings.IndexByte(token, KeyValueSep)
	if i <= 0 {
		return Field{}, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}
	return Field{
		Key:   strings.ToLower(token[:i]),
		Value: token[i+1:],
		Raw:   token,
	}, nil
}

// ParseStatus parses every well-formed token of a status line. Malformed
// tokens are skipped; the returned error joins one error per skipped token.
func ParseStatus(line string) ([]Field, error) {
	tokens := Tokenize(line)
	fields := make([]Field, 0, len(tokens))
	var errs []error
	for _, tok := range tokens {
		f, err := ParseField(tok)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fields = append(fields, f)
	}
	return fields, errors.Join(errs...)
}

// WithoutAddress returns fields with the address field removed.
func WithoutAddress(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if !f.IsAddress() {
			out = append(out, f)
		}
	}
	return out
}
