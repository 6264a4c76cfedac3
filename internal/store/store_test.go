// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "memory", path: "", want: "*store.MemoryStore"},
		{name: "yaml", path: filepath.Join(dir, "state.yaml"), want: "*store.YAMLStore"},
		{name: "sqlite", path: filepath.Join(dir, "state.db"), want: "*store.SQLiteStore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.path, "rcs-rc65.test")
			if err != nil {
				t.Fatalf("Open() error: %v", err)
			}
			defer s.Close()
			if got := fmt.Sprintf("%T", s); got != tt.want {
				t.Errorf("Open(%q) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}

func testRoundTrip(t *testing.T, s Store) {
	t.Helper()

	values, err := s.Load()
	if err != nil {
		t.Fatalf("Load() on empty store: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("empty store returned %v", values)
	}

	if err := s.Save(map[string]string{"prate": "5"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Save(map[string]string{"prate": "30"}); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	values, err = s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(values) != 1 || values["prate"] != "30" {
		t.Errorf("Load() = %v, want map[prate:30]", values)
	}
}

func TestMemoryStore(t *testing.T) {
	testRoundTrip(t, NewMemoryStore())
}

func TestYAMLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	testRoundTrip(t, NewYAMLStore(path, "rcs-rc65.a"))

	// A second service shares the file without clobbering the first
	other := NewYAMLStore(path, "rcs-rc65.b")
	if err := other.Save(map[string]string{"prate": "7"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	values, _ := NewYAMLStore(path, "rcs-rc65.a").Load()
	if values["prate"] != "30" {
		t.Errorf("first service prate = %q, want 30", values["prate"])
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "rcs-rc65.b") {
		t.Errorf("file missing second service: %s", data)
	}
}

func TestYAMLStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("services: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewYAMLStore(path, "x").Load(); err == nil {
		t.Error("Load() expected parse error")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"), "rcs-rc65.test")
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer s.Close()
	testRoundTrip(t, s)
}

func TestSQLiteStore_LoadQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, value FROM service_config")).
		WithArgs("svc").
		WillReturnError(errors.New("disk I/O error"))

	if _, err := newSQLiteStore(db, "svc").Load(); err == nil {
		t.Error("Load() expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLiteStore_SaveRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM service_config")).
		WithArgs("svc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO service_config")).
		WithArgs("svc", "prate", "9", sqlmock.AnyArg()).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	if err := newSQLiteStore(db, "svc").Save(map[string]string{"prate": "9"}); err == nil {
		t.Error("Save() expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLiteStore_SaveCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM service_config")).
		WithArgs("svc").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO service_config")).
		WithArgs("svc", "prate", "5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := newSQLiteStore(db, "svc").Save(map[string]string{"prate": "5"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
