package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SharedState is the single coordination document passed between the
// memory manager and the daemon. Reads return the whole document; writes
// go through Merge, which shallow-merges updates under optimistic
// versioning so concurrent writers cannot silently lose each other's
// updates.
type SharedState struct {
	db *DB
}

// SharedState returns the shared-state accessor for this database.
func (db *DB) SharedState() *SharedState {
	return &SharedState{db: db}
}

const mergeRetries = 3

// Read returns the current document, or an empty map if none has been
// written yet.
func (s *SharedState) Read(ctx context.Context) (map[string]any, error) {
	doc, _, err := s.read(ctx)
	return doc, err
}

func (s *SharedState) read(ctx context.Context) (map[string]any, int64, error) {
	var raw string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM shared_state WHERE id = 1`,
	).Scan(&raw, &version)
	if err == sql.ErrNoRows {
		return map[string]any{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read shared state: %w", err)
	}

	doc := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, 0, fmt.Errorf("decode shared state: %w", err)
	}
	return doc, version, nil
}

// Merge shallow-merges updates into the document and writes it back.
// It retries a few times on version conflicts and returns ErrConflict
// when a concurrent writer keeps winning.
func (s *SharedState) Merge(ctx context.Context, updates map[string]any) error {
	for attempt := 0; attempt < mergeRetries; attempt++ {
		doc, version, err := s.read(ctx)
		if err != nil {
			return err
		}

		for k, v := range updates {
			doc[k] = v
		}
		doc["last_updated"] = time.Now().Format(time.RFC3339)

		ok, err := s.write(ctx, doc, version)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrConflict
}

func (s *SharedState) write(ctx context.Context, doc map[string]any, expectedVersion int64) (bool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode shared state: %w", err)
	}
	now := time.Now().UnixMilli()

	if expectedVersion == 0 {
		// First write for this document. The primary-key check makes a
		// racing first writer fail instead of silently overwriting.
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO shared_state (id, doc, version, updated_at)
			VALUES (1, ?, 1, ?)
		`, string(data), now)
		if err != nil {
			// Row appeared between read and write; retry against it.
			var exists int
			if scanErr := s.db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM shared_state WHERE id = 1`,
			).Scan(&exists); scanErr == nil && exists > 0 {
				return false, nil
			}
			return false, fmt.Errorf("insert shared state: %w", err)
		}
		return true, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE shared_state SET doc = ?, version = version + 1, updated_at = ?
		WHERE id = 1 AND version = ?
	`, string(data), now, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update shared state: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
