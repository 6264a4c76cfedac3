// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnknownCodec is returned by CodecByName for an unsupported name
var ErrUnknownCodec = errors.New("unknown codec")

// Codec converts messages to and from their wire form
type Codec interface {
	Name() string
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte) (*Message, error)
}

type wireValue struct {
	Name   string `json:"name" cbor:"1,keyasint"`
	Value  string `json:"value" cbor:"2,keyasint"`
	Binary bool   `json:"binary,omitempty" cbor:"3,keyasint,omitempty"`
}

type wireMessage struct {
	ID     string      `json:"id,omitempty" cbor:"1,keyasint,omitempty"`
	Kind   string      `json:"kind" cbor:"2,keyasint"`
	Hop    int         `json:"hop,omitempty" cbor:"3,keyasint,omitempty"`
	Source string      `json:"source" cbor:"4,keyasint"`
	Target string      `json:"target" cbor:"5,keyasint"`
	Schema string      `json:"schema" cbor:"6,keyasint"`
	Body   []wireValue `json:"body" cbor:"7,keyasint"`
}

func toWire(msg *Message) wireMessage {
	w := wireMessage{
		ID:     msg.ID,
		Kind:   msg.Kind.String(),
		Hop:    msg.Hop,
		Source: msg.Source,
		Target: msg.Target,
		Schema: msg.Schema.String(),
		Body:   make([]wireValue, len(msg.Body)),
	}
	for i, nv := range msg.Body {
		w.Body[i] = wireValue{Name: nv.Name, Value: nv.Value, Binary: nv.Binary}
	}
	return w
}

func fromWire(w wireMessage) (*Message, error) {
	if w.Schema == "" {
		return nil, fmt.Errorf("message %q has no schema", w.ID)
	}
	msg := &Message{
		ID:     w.ID,
		Kind:   ParseKind(w.Kind),
		Hop:    w.Hop,
		Source: w.Source,
		Target: w.Target,
		Schema: ParseSchema(w.Schema),
		Body:   make([]NameValue, len(w.Body)),
	}
	for i, v := range w.Body {
		msg.Body[i] = NameValue{Name: v.Name, Value: v.Value, Binary: v.Binary}
	}
	return msg, nil
}

// JSONCodec encodes messages as JSON objects
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(toWire(msg))
}

func (JSONCodec) Unmarshal(data []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode JSON message: %w", err)
	}
	return fromWire(w)
}

// CBORCodec encodes messages as CBOR maps with integer keys
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Marshal(msg *Message) ([]byte, error) {
	return cbor.Marshal(toWire(msg))
}

func (CBORCodec) Unmarshal(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR payload")
	}
	var w wireMessage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return fromWire(w)
}

// CodecByName returns the codec registered under name
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
