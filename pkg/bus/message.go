// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bus implements the home-automation message bus side of the
// bridge: the message model, wire codecs, service identity with its
// configurables, and a NATS transport.
package bus

import (
	"strings"

	"github.com/google/uuid"
)

// Kind is the message type of a bus message
type Kind int

const (
	KindOther Kind = iota
	KindCommand
	KindStatus
	KindTrigger
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindStatus:
		return "status"
	case KindTrigger:
		return "trigger"
	default:
		return "other"
	}
}

// ParseKind is the inverse of Kind.String. Unknown names map to KindOther.
func ParseKind(s string) Kind {
	switch strings.ToLower(s) {
	case "command", "cmnd", "xpl-cmnd":
		return KindCommand
	case "status", "stat", "xpl-stat":
		return KindStatus
	case "trigger", "trig", "xpl-trig":
		return KindTrigger
	default:
		return KindOther
	}
}

// Schema is the class.type pair describing a message body
type Schema struct {
	Class string
	Type  string
}

// Common schemas
var (
	SchemaHVACBasic       = Schema{Class: "hvac", Type: "basic"}
	SchemaHVACTransparent = Schema{Class: "hvac", Type: "transparent"}
	SchemaHVACRequest     = Schema{Class: "hvac", Type: "request"}
	SchemaRCSStatus       = Schema{Class: "rcs", Type: "status"}
	SchemaRCSTrigger      = Schema{Class: "rcs", Type: "trigger"}
	SchemaConfigResponse  = Schema{Class: "config", Type: "response"}
	SchemaConfigCurrent   = Schema{Class: "config", Type: "current"}
	SchemaConfigList      = Schema{Class: "config", Type: "list"}
	SchemaHeartbeatApp    = Schema{Class: "hbeat", Type: "app"}
	SchemaHeartbeatEnd    = Schema{Class: "hbeat", Type: "end"}
)

// ParseSchema parses "class.type". Both parts are lower-cased.
func ParseSchema(s string) Schema {
	class, typ, _ := strings.Cut(strings.ToLower(s), ".")
	return Schema{Class: class, Type: typ}
}

// String returns the schema as class.type
func (s Schema) String() string {
	return s.Class + "." + s.Type
}

// Is reports whether s and other name the same schema, ignoring case
func (s Schema) Is(other Schema) bool {
	return strings.EqualFold(s.Class, other.Class) && strings.EqualFold(s.Type, other.Type)
}

// NameValue is one body entry. Binary entries carry opaque data and are
// never forwarded to the thermostat.
type NameValue struct {
	Name   string
	Value  string
	Binary bool
}

// Message is a bus message
type Message struct {
	ID     string
	Kind   Kind
	Hop    int
	Source string
	Target string
	Schema Schema
	Body   []NameValue
}

// NewMessage creates a message with a fresh ID
func NewMessage(kind Kind, source string, schema Schema) *Message {
	return &Message{
		ID:     uuid.NewString(),
		Kind:   kind,
		Hop:    1,
		Source: source,
		Target: "*",
		Schema: schema,
	}
}

// IsBroadcast reports whether the message is addressed to every service
func (m *Message) IsBroadcast() bool {
	return m.Target == "" || m.Target == "*"
}

// IsFor reports whether the message targets the named service directly
func (m *Message) IsFor(id string) bool {
	return strings.EqualFold(m.Target, id)
}

// Value returns the value of the first body entry named name, matched
// case-insensitively.
func (m *Message) Value(name string) (string, bool) {
	for _, nv := range m.Body {
		if strings.EqualFold(nv.Name, name) {
			return nv.Value, true
		}
	}
	return "", false
}

// Set appends a body entry
func (m *Message) Set(name, value string) {
	m.Body = append(m.Body, NameValue{Name: name, Value: value})
}
