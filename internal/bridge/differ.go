// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"

	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// DiffMode selects how two status lines are compared
type DiffMode int

const (
	// DiffPositional compares tokens position by position
	DiffPositional DiffMode = iota
	// DiffByKey compares key to value maps; a reordering reports nothing
	DiffByKey
)

func (m DiffMode) String() string {
	if m == DiffByKey {
		return "by-key"
	}
	return "positional"
}

// Delta is the set of fields to report after a poll response
type Delta struct {
	Changed []rcs.Field
	Full    bool  // every field of the current line is reported
	Err     error // parse errors in the current line, if any
}

// Empty reports whether there is nothing to send
func (d Delta) Empty() bool {
	return len(d.Changed) == 0
}

// Diff returns the fields of cur that changed relative to prev. The address
// field is never reported.
func Diff(prev, cur string, mode DiffMode) Delta {
	if prev == cur {
		return Delta{}
	}
	if mode == DiffByKey {
		return diffByKey(prev, cur)
	}
	return diffPositional(prev, cur)
}

// diffPositional splits only the tokens whose raw text changed. A changed
// token without a separator switches to a full report.
func diffPositional(prev, cur string) Delta {
	prevTokens := rcs.Tokenize(prev)
	curTokens := rcs.Tokenize(cur)
	if len(prevTokens) != len(curTokens) {
		return fullReport(cur)
	}

	var d Delta
	var errs []error
	for i, tok := range curTokens {
		if tok == prevTokens[i] {
			continue
		}
		f, err := rcs.ParseField(tok)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !f.IsAddress() {
			d.Changed = append(d.Changed, f)
		}
	}
	if len(errs) > 0 {
		fields, _ := rcs.ParseStatus(cur)
		return Delta{Changed: rcs.WithoutAddress(fields), Full: true, Err: errors.Join(errs...)}
	}
	return d
}

func fullReport(cur string) Delta {
	fields, err := rcs.ParseStatus(cur)
	return Delta{Changed: rcs.WithoutAddress(fields), Full: true, Err: err}
}

// diffByKey compares key to value maps. A key missing from cur is reported
// with an empty value. Malformed tokens are reported only when they are new.
func diffByKey(prev, cur string) Delta {
	prevTokens := rcs.Tokenize(prev)
	if len(prevTokens) == 0 {
		return fullReport(cur)
	}

	seen := make(map[string]bool, len(prevTokens))
	var prevFields []rcs.Field
	for _, tok := range prevTokens {
		seen[tok] = true
		if f, err := rcs.ParseField(tok); err == nil {
			prevFields = append(prevFields, f)
		}
	}
	old := make(map[string]string, len(prevFields))
	for _, f := range prevFields {
		old[f.Key] = f.Value
	}

	var d Delta
	var errs []error
	present := make(map[string]bool)
	for _, tok := range rcs.Tokenize(cur) {
		f, err := rcs.ParseField(tok)
		if err != nil {
			if !seen[tok] {
				errs = append(errs, err)
			}
			continue
		}
		present[f.Key] = true
		if f.IsAddress() {
			continue
		}
		if v, ok := old[f.Key]; !ok || v != f.Value {
			d.Changed = append(d.Changed, f)
		}
	}
	for _, f := range prevFields {
		if !present[f.Key] && !f.IsAddress() {
			d.Changed = append(d.Changed, rcs.Field{Key: f.Key})
			present[f.Key] = true
		}
	}
	d.Err = errors.Join(errs...)
	return d
}
