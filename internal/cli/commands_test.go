package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenManagerAppliesMemoryConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte("memory:\n  max_turns: 2\n  max_retrieved: 4\n  consolidate_every: 7\n")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MNEMO_CONFIG", cfgPath)
	t.Setenv("MNEMO_DB", filepath.Join(dir, "mnemo.db"))

	db, mgr, err := openManager()
	if err != nil {
		t.Fatalf("openManager: %v", err)
	}
	defer db.Close()

	// max_turns = 2 must bound the working window.
	mgr.AddConversationTurn("user", "one", "neutral", nil)
	mgr.AddConversationTurn("assistant", "two", "neutral", nil)
	mgr.AddConversationTurn("user", "three", "neutral", nil)

	turns := mgr.ConversationHistory(0)
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2 from config", len(turns))
	}
	if turns[0].Content != "two" || turns[1].Content != "three" {
		t.Errorf("window = %q..%q, want two..three", turns[0].Content, turns[1].Content)
	}
}

func TestOpenStoresDefaultsVectorPathNextToDB(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MNEMO_CONFIG", filepath.Join(dir, "no-config.yaml"))
	t.Setenv("MNEMO_DB", filepath.Join(dir, "mnemo.db"))

	db, _, err := openStores()
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "vectors")); err != nil {
		t.Errorf("vectors dir not created next to db: %v", err)
	}
}
