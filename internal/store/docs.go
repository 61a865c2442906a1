package store

import (
	"fmt"
	"time"
)

// The search-doc registry mirrors the ids held by each similarity
// collection. The vector store can fetch and count by id but cannot
// enumerate, so metadata scans go through this table.

// RegisterDoc records a document id for a collection. Re-registering an
// existing id keeps its original created_at.
func (db *DB) RegisterDoc(collection, docID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO search_docs (collection, doc_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, doc_id) DO NOTHING
	`, collection, docID, now)
	if err != nil {
		return fmt.Errorf("register doc: %w", err)
	}
	return nil
}

// UnregisterDoc removes a document id from the registry.
func (db *DB) UnregisterDoc(collection, docID string) error {
	_, err := db.Exec(`
		DELETE FROM search_docs WHERE collection = ? AND doc_id = ?
	`, collection, docID)
	if err != nil {
		return fmt.Errorf("unregister doc: %w", err)
	}
	return nil
}

// ListDocIDs returns document ids for a collection, newest first.
// limit <= 0 returns all.
func (db *DB) ListDocIDs(collection string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT doc_id FROM search_docs
		WHERE collection = ?
		ORDER BY created_at DESC, doc_id DESC
		LIMIT ?
	`, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("list doc ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan doc id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
