// Package db is the SQLite-backed implementation of the domain package's
// storage interfaces. The gateway treats the relational store as an
// interchangeable collaborator behind those interfaces (spec §3); SQLite is
// the one concrete backend wired up here.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite connection and implements every domain storage
// interface the gateway depends on (AssistantStorage, ThreadStorage,
// RunStorage, ActionStorage, APIKeyStorage).
type Storage struct {
	db *sql.DB
}

// NewStorage opens (and migrates) a SQLite database at dbPath. A dbPath of
// ":memory:" is valid and is used by the test suite.
func NewStorage(dbPath string) (*Storage, error) {
	sqlDb, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite only supports a single writer; a small pool avoids
	// "database is locked" errors under concurrent activity execution.
	sqlDb.SetMaxOpenConns(1)

	s := &Storage{db: sqlDb}
	if err := s.migrate(); err != nil {
		sqlDb.Close()
		return nil, err
	}
	return s, nil
}

func NewStorageFromDB(sqlDb *sql.DB) *Storage {
	return &Storage{db: sqlDb}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	log.Debug().Str("query", query).Msg("db exec")
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Storage) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	log.Debug().Str("query", query).Msg("db query")
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Storage) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	log.Debug().Str("query", query).Msg("db query row")
	return s.db.QueryRowContext(ctx, query, args...)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
