// Package catalog is the durable, crash-safe store for photo metadata, cache
// payloads and sync settings (spec §4.1). It is implemented directly against
// database/sql and the pure-Go modernc.org/sqlite driver rather than an ORM:
// the sort-policy queries and the atomic blob/row transactions the spec
// demands are simpler to hand-write than to coerce out of a generic mapper.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "modernc.org/sqlite"
)

const integrityProbeTimeout = 5 * time.Second

// SQLite is the Catalog implementation backing the engine's persisted state.
type SQLite struct {
	db   *sql.DB
	path string
}

// Open creates a Catalog bound to path but does not yet touch the file;
// call Init to actually open/verify/migrate it.
func Open(path string) *SQLite {
	return &SQLite{path: path}
}

// Init opens the store, verifies integrity, applies storage tuning, and
// ensures the schema exists. A corrupt store is deleted and recreated: an
// empty catalog is a valid recovery state, it just triggers a full resync.
func (c *SQLite) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	// Every mutation goes through one handle so the Catalog is the sole
	// serialization point the spec's concurrency model (§5) requires.
	db.SetMaxOpenConns(1)
	c.db = db

	if err := c.probeIntegrity(ctx); err != nil {
		log.WithError(err).Warn("catalog integrity probe failed, rebuilding")
		if err := c.rebuild(ctx); err != nil {
			return fmt.Errorf("rebuild corrupt catalog: %w", err)
		}
	}

	if err := c.tune(ctx); err != nil {
		return fmt.Errorf("tune catalog: %w", err)
	}
	if err := c.migrate(ctx); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}

func (c *SQLite) probeIntegrity(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, integrityProbeTimeout)
	defer cancel()

	row := c.db.QueryRowContext(probeCtx, "PRAGMA integrity_check")
	var result string
	if err := row.Scan(&result); err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("integrity probe timed out: %w", err)
		}
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check reported: %s", result)
	}
	return nil
}

func (c *SQLite) rebuild(ctx context.Context) error {
	if err := c.db.Close(); err != nil {
		log.WithError(err).Warn("closing corrupt catalog handle")
	}
	if c.path != "" && c.path != ":memory:" {
		if err := removeAll(c.path); err != nil {
			return err
		}
	}
	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	c.db = db
	return nil
}

// tune favors larger page sizes and a generous page cache for BLOB locality
// on SD-card-backed storage, trading a small crash window (NORMAL
// synchronous) for reduced write amplification.
func (c *SQLite) tune(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA page_size = 16384",
		"PRAGMA cache_size = -65536", // ~64MiB, negative means KiB of RAM
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := c.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (c *SQLite) migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schemaDDL)
	return err
}

// Close closes the one handle owning the catalog file.
func (c *SQLite) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS photos (
	id               TEXT PRIMARY KEY,
	provider_key     TEXT NOT NULL,
	container_key    TEXT NOT NULL,
	filename         TEXT NOT NULL,
	creation_time    INTEGER NOT NULL,
	width            INTEGER,
	height           INTEGER,
	latitude         REAL,
	longitude        REAL,
	location_name    TEXT,
	last_viewed_at   INTEGER,
	cache_form       INTEGER NOT NULL DEFAULT 0,
	cache_blob       BLOB,
	cache_mime       TEXT,
	cache_path       TEXT,
	cache_size_bytes INTEGER,
	cache_cached_at  INTEGER,
	CHECK (
		(cache_form = 0 AND cache_blob IS NULL AND cache_path IS NULL) OR
		(cache_form = 1 AND cache_blob IS NOT NULL AND cache_path IS NULL AND cache_size_bytes > 0) OR
		(cache_form = 2 AND cache_path IS NOT NULL AND cache_blob IS NULL AND cache_size_bytes > 0)
	)
);

CREATE INDEX IF NOT EXISTS idx_photos_cache_form ON photos (cache_form);
CREATE INDEX IF NOT EXISTS idx_photos_last_viewed ON photos (last_viewed_at);
CREATE INDEX IF NOT EXISTS idx_photos_creation_time ON photos (creation_time);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
