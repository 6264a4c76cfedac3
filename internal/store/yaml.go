// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// yamlFile is the on-disk layout: service ID to name/value pairs
type yamlFile struct {
	Services map[string]map[string]string `yaml:"services"`
}

// YAMLStore keeps configuration in a YAML file
type YAMLStore struct {
	path    string
	service string
}

// NewYAMLStore creates a store backed by path. The file is created on the
// first Save.
func NewYAMLStore(path, service string) *YAMLStore {
	return &YAMLStore{path: path, service: service}
}

func (s *YAMLStore) read() (yamlFile, error) {
	var f yamlFile
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return f, nil
}

// Load returns the stored values for this service
func (s *YAMLStore) Load() (map[string]string, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	return copyValues(f.Services[s.service]), nil
}

// Save replaces the stored values for this service. Other services in the
// file are kept.
func (s *YAMLStore) Save(values map[string]string) error {
	f, err := s.read()
	if err != nil {
		return err
	}
	if f.Services == nil {
		f.Services = map[string]map[string]string{}
	}
	f.Services[s.service] = copyValues(values)

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".rcsbridge-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *YAMLStore) Close() error { return nil }
