// Package store provides SQLite-backed persistence for pipeline entities.
// Records are append-mostly: the only destructive update is explicit
// metadata enrichment on loops and decision supersession on forced
// re-evaluation.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS loops (
	id            TEXT PRIMARY KEY,
	source_url    TEXT NOT NULL UNIQUE,
	source_type   TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	raw_content   TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	discovered_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_sets (
	loop_id              TEXT NOT NULL,
	extractor_version    TEXT NOT NULL,
	has_code             INTEGER NOT NULL DEFAULT 0,
	code_language        TEXT NOT NULL DEFAULT '',
	code_complexity      REAL NOT NULL DEFAULT 0,
	code_lines           INTEGER NOT NULL DEFAULT 0,
	title_length         INTEGER NOT NULL DEFAULT 0,
	description_length   INTEGER NOT NULL DEFAULT 0,
	has_tutorial         INTEGER NOT NULL DEFAULT 0,
	has_documentation    INTEGER NOT NULL DEFAULT 0,
	primary_category     TEXT NOT NULL DEFAULT '',
	secondary_categories TEXT NOT NULL DEFAULT '[]',
	keywords             TEXT NOT NULL DEFAULT '[]',
	automation_type      TEXT NOT NULL DEFAULT '',
	complexity_level     TEXT NOT NULL DEFAULT '',
	popularity_score     REAL NOT NULL DEFAULT 0,
	author_reputation    REAL NOT NULL DEFAULT 0,
	recency_score        REAL NOT NULL DEFAULT 0,
	degraded             INTEGER NOT NULL DEFAULT 0,
	extracted_at         DATETIME NOT NULL,
	UNIQUE(loop_id, extractor_version)
);

CREATE TABLE IF NOT EXISTS quality_scores (
	loop_id        TEXT NOT NULL,
	overall        REAL NOT NULL,
	disposition    TEXT NOT NULL,
	confidence     REAL NOT NULL,
	reasons        TEXT NOT NULL DEFAULT '[]',
	strategy       TEXT NOT NULL,
	scorer_version TEXT NOT NULL,
	UNIQUE(loop_id, scorer_version)
);

CREATE TABLE IF NOT EXISTS embeddings (
	loop_id TEXT PRIMARY KEY,
	dim     INTEGER NOT NULL,
	vector  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicate_links (
	loop_id      TEXT NOT NULL,
	duplicate_of TEXT NOT NULL,
	similarity   REAL NOT NULL,
	created_at   DATETIME NOT NULL,
	UNIQUE(loop_id, duplicate_of)
);

CREATE TABLE IF NOT EXISTS decisions (
	loop_id           TEXT PRIMARY KEY,
	disposition       TEXT NOT NULL,
	overall           REAL NOT NULL,
	confidence        REAL NOT NULL,
	reasons           TEXT NOT NULL DEFAULT '[]',
	duplicate_of      TEXT NOT NULL DEFAULT '',
	dedup_skipped     INTEGER NOT NULL DEFAULT 0,
	extractor_version TEXT NOT NULL,
	scorer_version    TEXT NOT NULL,
	decided_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at);
CREATE INDEX IF NOT EXISTS idx_duplicate_links_loop ON duplicate_links(loop_id);
`

// DB wraps a sql.DB with pipeline persistence operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
