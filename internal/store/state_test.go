package store

import (
	"context"
	"testing"
)

func TestSharedStateEmptyRead(t *testing.T) {
	db := testDB(t)

	doc, err := db.SharedState().Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("doc = %v, want empty", doc)
	}
}

func TestSharedStateMerge(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	state := db.SharedState()

	if err := state.Merge(ctx, map[string]any{"a": "one"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := state.Merge(ctx, map[string]any{"b": float64(2)}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	doc, err := state.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc["a"] != "one" {
		t.Errorf("doc[a] = %v, want one", doc["a"])
	}
	if doc["b"] != float64(2) {
		t.Errorf("doc[b] = %v, want 2", doc["b"])
	}
	if doc["last_updated"] == nil {
		t.Error("last_updated not set")
	}
}

func TestSharedStateMergeOverwritesKey(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	state := db.SharedState()

	state.Merge(ctx, map[string]any{"summary": "old"})
	state.Merge(ctx, map[string]any{"summary": "new"})

	doc, _ := state.Read(ctx)
	if doc["summary"] != "new" {
		t.Errorf("summary = %v, want new", doc["summary"])
	}
}

func TestSharedStateVersionAdvances(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	state := db.SharedState()

	state.Merge(ctx, map[string]any{"a": "1"})
	state.Merge(ctx, map[string]any{"a": "2"})

	var version int64
	if err := db.QueryRow(`SELECT version FROM shared_state WHERE id = 1`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}
