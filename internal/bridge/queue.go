// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge connects bus commands to the thermostat link: the command
// queue, the status differ, message translation, the tick scheduler and
// the controller event loop that owns all of their state.
package bridge

import (
	"errors"
	"fmt"
)

// DefaultQueueSize is the default command queue capacity
const DefaultQueueSize = 64

// ErrQueueFull is returned when a command arrives at a full queue
var ErrQueueFull = errors.New("command queue full")

// CommandKind records which translation produced a command
type CommandKind int

const (
	Transparent CommandKind = iota
	Basic
)

func (k CommandKind) String() string {
	switch k {
	case Transparent:
		return "transparent"
	case Basic:
		return "basic"
	default:
		return "unknown"
	}
}

// CommandEntry is one command waiting for the link
type CommandEntry struct {
	Text string
	Kind CommandKind
}

// CommandQueue is a FIFO of commands. A capacity of 0 means unbounded.
type CommandQueue struct {
	entries  []CommandEntry
	capacity int
}

// NewCommandQueue creates an empty queue holding at most capacity entries
func NewCommandQueue(capacity int) *CommandQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &CommandQueue{capacity: capacity}
}

// Enqueue appends entry to the tail
func (q *CommandQueue) Enqueue(entry CommandEntry) error {
	if q.capacity > 0 && len(q.entries) >= q.capacity {
		return fmt.Errorf("%w: %d commands waiting", ErrQueueFull, len(q.entries))
	}
	q.entries = append(q.entries, entry)
	return nil
}

// Dequeue removes and returns the head. ok is false when the queue is empty.
func (q *CommandQueue) Dequeue() (entry CommandEntry, ok bool) {
	if len(q.entries) == 0 {
		return CommandEntry{}, false
	}
	entry = q.entries[0]
	q.entries[0] = CommandEntry{}
	q.entries = q.entries[1:]
	if len(q.entries) == 0 {
		q.entries = nil
	}
	return entry, true
}

// Len returns the number of waiting commands
func (q *CommandQueue) Len() int {
	return len(q.entries)
}

// Capacity returns the queue bound, 0 when unbounded
func (q *CommandQueue) Capacity() int {
	return q.capacity
}
