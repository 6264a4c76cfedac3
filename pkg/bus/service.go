// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrUnknownConfigurable   = errors.New("unknown configurable")
	ErrDuplicateConfigurable = errors.New("configurable already registered")
)

// Publisher sends messages onto the bus
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// ConfigStore persists configurable values between runs
type ConfigStore interface {
	Load() (map[string]string, error)
	Save(values map[string]string) error
}

type configurable struct {
	name   string
	value  string
	reconf bool
}

// Service is this process's presence on the bus: its identity, version,
// configurables and heartbeat.
type Service struct {
	mu        sync.Mutex
	identity  Identity
	version   string
	enabled   bool
	items     []*configurable
	stored    map[string]string
	store     ConfigStore
	listeners []func(name string)
}

// NewService creates a service and loads any stored configuration
func NewService(identity Identity, version string, store ConfigStore) (*Service, error) {
	s := &Service{
		identity: identity,
		version:  version,
		store:    store,
		stored:   map[string]string{},
	}
	if store != nil {
		values, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load service config: %w", err)
		}
		for k, v := range values {
			s.stored[strings.ToLower(k)] = v
		}
	}
	return s, nil
}

// ID returns the service's bus address
func (s *Service) ID() string {
	return s.identity.String()
}

// Version returns the reported software version
func (s *Service) Version() string {
	return s.version
}

// SetEnabled marks the service ready to handle messages
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Enabled reports whether the service handles messages
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// AddConfigurable registers a configurable. A previously stored value wins
// over def; on first run def is stored.
func (s *Service) AddConfigurable(name, def string, reconf bool) error {
	name = strings.ToLower(name)

	s.mu.Lock()
	for _, it := range s.items {
		if it.name == name {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateConfigurable, name)
		}
	}
	value, ok := s.stored[name]
	if !ok {
		value = def
	}
	s.items = append(s.items, &configurable{name: name, value: value, reconf: reconf})
	s.mu.Unlock()

	if !ok {
		return s.save()
	}
	return nil
}

// ConfigValue returns the current value of a configurable
func (s *Service) ConfigValue(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.lookup(name)
	if it == nil {
		return "", false
	}
	return it.value, true
}

// ConfigInt returns a configurable parsed as an integer
func (s *Service) ConfigInt(name string) (int, error) {
	v, ok := s.ConfigValue(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownConfigurable, name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("configurable %s=%q is not an integer: %w", name, v, err)
	}
	return n, nil
}

// SetConfigValue overwrites a configurable and persists the result.
// Listeners are not notified.
func (s *Service) SetConfigValue(name, value string) error {
	s.mu.Lock()
	it := s.lookup(name)
	if it == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConfigurable, name)
	}
	it.value = value
	s.mu.Unlock()
	return s.save()
}

// SetConfigInt is SetConfigValue for integers
func (s *Service) SetConfigInt(name string, value int) error {
	return s.SetConfigValue(name, strconv.Itoa(value))
}

// OnConfigChanged registers fn to run for each configurable changed by
// ApplyConfig. fn runs on the goroutine calling ApplyConfig.
func (s *Service) OnConfigChanged(fn func(name string)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// ApplyConfig installs the values of a config.response message. Entries
// that do not name a reconfigurable item are ignored. Returns the names of
// the configurables that changed.
func (s *Service) ApplyConfig(msg *Message) ([]string, error) {
	if !msg.Schema.Is(SchemaConfigResponse) {
		return nil, nil
	}

	var changed []string
	s.mu.Lock()
	for _, nv := range msg.Body {
		it := s.lookup(nv.Name)
		if it == nil || !it.reconf {
			continue
		}
		if it.value != nv.Value {
			it.value = nv.Value
			changed = append(changed, it.name)
		}
	}
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil, nil
	}
	if err := s.save(); err != nil {
		return changed, err
	}
	for _, name := range changed {
		for _, fn := range listeners {
			fn(name)
		}
	}
	return changed, nil
}

// ConfigMessage builds the reply to a config.current or config.list request
func (s *Service) ConfigMessage(schema Schema) *Message {
	msg := NewMessage(KindStatus, s.ID(), schema)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		switch {
		case schema.Is(SchemaConfigList):
			kind := "config"
			if it.reconf {
				kind = "reconf"
			}
			msg.Set(kind, it.name)
		default:
			msg.Set(it.name, it.value)
		}
	}
	return msg
}

// Heartbeat publishes hbeat.app at every interval until ctx is done, then
// publishes hbeat.end.
func (s *Service) Heartbeat(ctx context.Context, pub Publisher, interval time.Duration) error {
	send := func(ctx context.Context, schema Schema) error {
		msg := NewMessage(KindStatus, s.ID(), schema)
		msg.Set("interval", strconv.Itoa(int(interval/time.Minute)))
		msg.Set("version", s.version)
		return pub.Publish(ctx, msg)
	}

	if err := send(ctx, SchemaHeartbeatApp); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			endCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return send(endCtx, SchemaHeartbeatEnd)
		case <-ticker.C:
			if err := send(ctx, SchemaHeartbeatApp); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

func (s *Service) lookup(name string) *configurable {
	name = strings.ToLower(name)
	for _, it := range s.items {
		if it.name == name {
			return it
		}
	}
	return nil
}

func (s *Service) save() error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	values := make(map[string]string, len(s.items))
	for _, it := range s.items {
		values[it.name] = it.value
	}
	s.mu.Unlock()

	if err := s.store.Save(values); err != nil {
		return fmt.Errorf("failed to save service config: %w", err)
	}
	return nil
}
