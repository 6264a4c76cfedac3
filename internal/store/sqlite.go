// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaServiceConfig = `
CREATE TABLE IF NOT EXISTS service_config (
    service TEXT NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (service, name)
);
`

const (
	selectConfigSQL = `SELECT name, value FROM service_config WHERE service = ?`
	deleteConfigSQL = `DELETE FROM service_config WHERE service = ?`
	insertConfigSQL = `INSERT INTO service_config (service, name, value, updated_at) VALUES (?, ?, ?, ?)`
)

// SQLiteStore keeps configuration in a SQLite database
type SQLiteStore struct {
	db      *sql.DB
	service string
}

// OpenSQLite opens or creates the database at path and ensures the schema
func OpenSQLite(path, service string) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaServiceConfig); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return newSQLiteStore(db, service), nil
}

func newSQLiteStore(db *sql.DB, service string) *SQLiteStore {
	return &SQLiteStore{db: db, service: service}
}

// Load returns the stored values for this service
func (s *SQLiteStore) Load() (map[string]string, error) {
	rows, err := s.db.Query(selectConfigSQL, s.service)
	if err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		values[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config rows: %w", err)
	}
	return values, nil
}

// Save replaces the stored values for this service in one transaction
func (s *SQLiteStore) Save(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin config transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(deleteConfigSQL, s.service); err != nil {
		return fmt.Errorf("clear config: %w", err)
	}
	now := time.Now().UTC()
	for name, value := range values {
		if _, err := tx.Exec(insertConfigSQL, s.service, name, value, now); err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit config transaction: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
