package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "threads: exploration thread index",
		SQL: `
CREATE TABLE threads (
    id                       TEXT PRIMARY KEY,
    name                     TEXT NOT NULL,
    question                 TEXT NOT NULL,
    created_at               INTEGER NOT NULL,
    updated_at               INTEGER NOT NULL,
    status                   TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'dormant', 'concluded')),
    depth                    INTEGER NOT NULL DEFAULT 0,
    root_introspection_id    TEXT NOT NULL,
    current_introspection_id TEXT NOT NULL,
    branched_from_thread_id  TEXT,
    branched_from_link_id    TEXT,
    conclusion               TEXT,
    tags                     TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX idx_threads_status  ON threads(status);
CREATE INDEX idx_threads_updated ON threads(updated_at DESC);
CREATE INDEX idx_threads_name    ON threads(name);
`,
	},
	{
		Version:     2,
		Description: "thread_links: chain of introspection references per thread",
		SQL: `
CREATE TABLE thread_links (
    id               TEXT PRIMARY KEY,
    thread_id        TEXT NOT NULL,
    introspection_id TEXT NOT NULL,
    parent_link_id   TEXT,
    depth            INTEGER NOT NULL,
    question         TEXT NOT NULL,
    insight_summary  TEXT,
    created_at       INTEGER NOT NULL,
    branch_ids       TEXT NOT NULL DEFAULT '[]',

    FOREIGN KEY (thread_id) REFERENCES threads(id)
);

CREATE INDEX idx_links_thread        ON thread_links(thread_id);
CREATE INDEX idx_links_introspection ON thread_links(introspection_id);
`,
	},
	{
		Version:     3,
		Description: "shared_state: single coordination document with optimistic versioning",
		SQL: `
CREATE TABLE shared_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    doc        TEXT NOT NULL DEFAULT '{}',
    version    INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     4,
		Description: "search_docs: id registry for similarity collections",
		SQL: `
CREATE TABLE search_docs (
    collection TEXT NOT NULL,
    doc_id     TEXT NOT NULL,
    created_at INTEGER NOT NULL,

    PRIMARY KEY (collection, doc_id)
);

CREATE INDEX idx_search_docs_created ON search_docs(collection, created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
