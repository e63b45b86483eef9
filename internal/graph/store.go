// Package graph implements the property graph store backing both replicas:
// content units, topics, section text and typed edges over sqlx. The local
// replica runs on sqlite, the cloud replica on postgres; every query is
// written against `?` placeholders and rebound per driver.
package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/jonesrussell/analyst/internal/logger"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

var (
	// ErrNotFound is returned when a unit, topic or section does not exist.
	ErrNotFound = errors.New("graph: not found")
	// ErrAlreadyProcessed is returned when a status transition finds the
	// unit already processed. At most one caller ever wins the transition.
	ErrAlreadyProcessed = errors.New("graph: unit already processed")
)

// Store is one graph replica.
type Store struct {
	db     *sqlx.DB
	driver string
	logger logger.Logger
}

// Open connects to a replica. Sqlite replicas get their schema bootstrapped
// in place; postgres replicas are migrated via the migrate command.
func Open(driver, dsn string, log logger.Logger) (*Store, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("graph: unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("graph: dsn is required")
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		// Sqlite has one writer; a single pooled connection avoids
		// SQLITE_BUSY under the scheduler's concurrent probes.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(defaultMaxOpenConns)
		db.SetMaxIdleConns(defaultMaxIdleConns)
		db.SetConnMaxLifetime(defaultConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver, logger: log}
	if driver == "sqlite3" {
		if err := s.bootstrapSqlite(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewFromDB wraps an existing connection without pinging or bootstrapping.
// Tests use this to run the query layer against a mocked driver.
func NewFromDB(db *sql.DB, driver string, log logger.Logger) *Store {
	return &Store{db: sqlx.NewDb(db, driver), driver: driver, logger: log}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the replica's driver name.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) bootstrapSqlite(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS content_units (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	external_id  TEXT NOT NULL DEFAULT '',
	dedup_key    TEXT NOT NULL UNIQUE,
	tier         TEXT NOT NULL DEFAULT 'standard',
	status       TEXT NOT NULL DEFAULT 'unprocessed',
	published_at TIMESTAMP NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_content_units_status ON content_units(status);

CREATE TABLE IF NOT EXISTS topics (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	level         TEXT NOT NULL DEFAULT 'main',
	parent_id     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	stance        TEXT NOT NULL DEFAULT 'thesis_only',
	last_updated  TIMESTAMP NOT NULL,
	last_analyzed TIMESTAMP,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS topic_sections (
	topic_id     TEXT NOT NULL REFERENCES topics(id),
	section      TEXT NOT NULL,
	text         TEXT NOT NULL DEFAULT '',
	rewritten_at TIMESTAMP NOT NULL,
	rounds       INTEGER NOT NULL DEFAULT 0,
	open_issues  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (topic_id, section)
);

CREATE TABLE IF NOT EXISTS edges (
	src_id     TEXT NOT NULL,
	dst_id     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (src_id, dst_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst_id, kind);
`
