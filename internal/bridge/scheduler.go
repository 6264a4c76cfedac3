// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/rcsbridge/pkg/rcs"
)

// Poll rate bounds, in ticks
const (
	MinPollRate        = 1
	MaxPollRate        = 60
	DefaultPollRate    = 5
	DefaultPollTimeout = 3
)

// ErrPollRateRange is returned for a poll rate outside [MinPollRate, MaxPollRate]
var ErrPollRateRange = errors.New("poll rate out of range")

// ActionKind is what the scheduler decided to do on a tick
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionCommand
	ActionPoll
)

func (k ActionKind) String() string {
	switch k {
	case ActionCommand:
		return "command"
	case ActionPoll:
		return "poll"
	default:
		return "none"
	}
}

// Action is the outcome of one tick
type Action struct {
	Kind  ActionKind
	Entry CommandEntry // set for ActionCommand
	Frame []byte       // bytes to write to the link, nil for ActionNone

	// MissedPoll is set when the previous poll timed out on this tick
	MissedPoll bool
}

// Scheduler decides once per tick whether to send a queued command, a
// status poll, or nothing. Queued commands always preempt polling and at
// most one write happens per tick.
type Scheduler struct {
	queue       *CommandQueue
	address     int
	counter     int
	pollRate    int
	pollTimeout int
	pollPending bool
	pollAge     int
}

// NewScheduler creates a scheduler draining queue. A pollTimeout of 0
// leaves an unanswered poll pending until the next line arrives.
func NewScheduler(queue *CommandQueue, address, pollRate, pollTimeout int) (*Scheduler, error) {
	if !rcs.ValidAddress(address) {
		return nil, fmt.Errorf("%w: %d", rcs.ErrInvalidAddress, address)
	}
	s := &Scheduler{
		queue:       queue,
		address:     address,
		pollTimeout: pollTimeout,
	}
	if err := s.SetPollRate(pollRate); err != nil {
		return nil, err
	}
	if s.pollTimeout < 0 {
		s.pollTimeout = 0
	}
	return s, nil
}

// Tick advances the scheduler by one tick
func (s *Scheduler) Tick() Action {
	var action Action
	s.counter++

	if s.pollPending {
		s.pollAge++
		if s.pollTimeout > 0 && s.pollAge >= s.pollTimeout {
			s.pollPending = false
			action.MissedPoll = true
		}
	}

	if entry, ok := s.queue.Dequeue(); ok {
		action.Kind = ActionCommand
		action.Entry = entry
		action.Frame = rcs.Frame(entry.Text)
		return action
	}

	if s.counter >= s.pollRate {
		s.counter = 0
		s.pollPending = true
		s.pollAge = 0
		action.Kind = ActionPoll
		action.Frame = rcs.Frame(rcs.NewPollRequest(s.address))
	}
	return action
}

// SetPollRate installs a new poll rate. The current rate is kept when rate
// is out of range.
func (s *Scheduler) SetPollRate(rate int) error {
	if rate < MinPollRate || rate > MaxPollRate {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrPollRateRange, rate, MinPollRate, MaxPollRate)
	}
	s.pollRate = rate
	return nil
}

// PollRate returns the active poll rate
func (s *Scheduler) PollRate() int {
	return s.pollRate
}

// PollPending reports whether a poll is awaiting its response
func (s *Scheduler) PollPending() bool {
	return s.pollPending
}

// ClearPollPending clears the pending flag and reports whether it was set
func (s *Scheduler) ClearPollPending() bool {
	was := s.pollPending
	s.pollPending = false
	s.pollAge = 0
	return was
}
