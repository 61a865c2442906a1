package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftline/mnemo/internal/search"
	"github.com/driftline/mnemo/internal/store"
)

func testIndex(t *testing.T) *search.ChromemIndex {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return search.OpenMemory(db, search.NewHashEmbedder(64))
}

func TestEpisodicStoreDefaults(t *testing.T) {
	s := NewEpisodicStore(testIndex(t))
	ctx := context.Background()

	e, err := s.Store(ctx, "we watched the sunset together", EpisodeOptions{})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if e.Tier != TierEpisodic {
		t.Errorf("Tier = %s", e.Tier)
	}
	if e.Importance != 0.5 {
		t.Errorf("Importance = %f, want default 0.5", e.Importance)
	}
	if e.DecayRate != 0.05 {
		t.Errorf("DecayRate = %f, want 0.05", e.DecayRate)
	}
	if e.Valence != ValenceNeutral {
		t.Errorf("Valence = %s", e.Valence)
	}
}

func TestEpisodicStoreRejectsEmpty(t *testing.T) {
	s := NewEpisodicStore(testIndex(t))

	_, err := s.Store(context.Background(), "   ", EpisodeOptions{})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestEpisodicRoundTrip(t *testing.T) {
	idx := testIndex(t)
	s := NewEpisodicStore(idx)
	ctx := context.Background()

	stored, err := s.Store(ctx, "the garden bloomed in late april", EpisodeOptions{Importance: 0.8})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := s.Recall(ctx, "the garden bloomed in late april", 3, RecallOptions{})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Recall returned nothing")
	}
	if got[0].ID != stored.ID || got[0].Content != stored.Content {
		t.Errorf("got %q (%s), want %q (%s)", got[0].Content, got[0].ID, stored.Content, stored.ID)
	}

	// The id must stay stable across repeated fetches.
	for i := 0; i < 3; i++ {
		doc, err := idx.Get(ctx, "episodic", stored.ID)
		if err != nil || doc == nil {
			t.Fatalf("Get attempt %d: doc=%v err=%v", i, doc, err)
		}
	}
}

func TestEpisodicRecallBumpsAccess(t *testing.T) {
	idx := testIndex(t)
	s := NewEpisodicStore(idx)
	ctx := context.Background()

	stored, _ := s.Store(ctx, "a remembered walk by the river", EpisodeOptions{})

	if _, err := s.Recall(ctx, "walk by the river", 1, RecallOptions{}); err != nil {
		t.Fatalf("Recall: %v", err)
	}

	doc, _ := idx.Get(ctx, "episodic", stored.ID)
	e := entryFromDocument(*doc)
	if e.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", e.AccessCount)
	}
	if e.LastAccessedAt == nil {
		t.Error("LastAccessedAt not set after recall")
	}
}

func TestEpisodicRecallMinImportance(t *testing.T) {
	s := NewEpisodicStore(testIndex(t))
	ctx := context.Background()

	s.Store(ctx, "a trivial moment about lunch", EpisodeOptions{Importance: 0.2})
	s.Store(ctx, "a major milestone about lunch", EpisodeOptions{Importance: 0.9})

	got, err := s.Recall(ctx, "lunch", 5, RecallOptions{MinImportance: 0.5})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	for _, e := range got {
		if e.EffectiveImportance() < 0.5 {
			t.Errorf("entry below importance floor: %+v", e)
		}
	}
}

func TestEpisodicRecallEmotional(t *testing.T) {
	s := NewEpisodicStore(testIndex(t))
	ctx := context.Background()

	s.Store(ctx, "a joyful surprise party", EpisodeOptions{Valence: ValencePositive, Intensity: 0.9})
	s.Store(ctx, "a mildly pleasant chat", EpisodeOptions{Valence: ValencePositive, Intensity: 0.2})
	s.Store(ctx, "a sad goodbye at the station", EpisodeOptions{Valence: ValenceNegative, Intensity: 0.8})

	got, err := s.RecallEmotional(ctx, ValencePositive, 0.5, 10)
	if err != nil {
		t.Fatalf("RecallEmotional: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Valence != ValencePositive || got[0].Intensity < 0.5 {
		t.Errorf("got %+v", got[0])
	}
}

func TestEpisodicByImportance(t *testing.T) {
	s := NewEpisodicStore(testIndex(t))
	ctx := context.Background()

	s.Store(ctx, "minor errand", EpisodeOptions{Importance: 0.3})
	s.Store(ctx, "big revelation", EpisodeOptions{Importance: 0.9})
	s.Store(ctx, "notable dinner", EpisodeOptions{Importance: 0.75})

	got, err := s.ByImportance(ctx, 0.7, 10)
	if err != nil {
		t.Fatalf("ByImportance: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].EffectiveImportance() < got[1].EffectiveImportance() {
		t.Error("not sorted strongest first")
	}
}

func TestEpisodicNarrativeThreadCycleGuard(t *testing.T) {
	idx := testIndex(t)
	s := NewEpisodicStore(idx)
	ctx := context.Background()

	// Two episodes referencing each other must not loop the walk.
	a, _ := s.Store(ctx, "first chapter of the trip", EpisodeOptions{})
	b, _ := s.Store(ctx, "second chapter of the trip", EpisodeOptions{RelatedIDs: []string{a.ID}})

	// Point a back at b to close the cycle.
	doc, _ := idx.Get(ctx, "episodic", a.ID)
	doc.Metadata[metaRelated] = b.ID
	if err := idx.Update(ctx, "episodic", a.ID, doc.Metadata); err != nil {
		t.Fatalf("Update: %v", err)
	}

	thread, err := s.NarrativeThread(ctx, a.ID, 5)
	if err != nil {
		t.Fatalf("NarrativeThread: %v", err)
	}
	if len(thread) != 2 {
		t.Fatalf("len(thread) = %d, want 2", len(thread))
	}
	if thread[0].CreatedAt.After(thread[1].CreatedAt) {
		t.Error("thread not chronological")
	}
}

func TestEpisodicConversationEpisodeImportance(t *testing.T) {
	s := NewEpisodicStore(testIndex(t))
	ctx := context.Background()

	short, err := s.StoreConversationEpisode(ctx, "a quick hello", ValenceNeutral, 0, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("StoreConversationEpisode: %v", err)
	}
	long, err := s.StoreConversationEpisode(ctx, "a long heartfelt talk", ValencePositive, 1, 2*time.Hour, []string{"life"})
	if err != nil {
		t.Fatalf("StoreConversationEpisode: %v", err)
	}

	if short.Importance >= long.Importance {
		t.Errorf("short %f >= long %f", short.Importance, long.Importance)
	}
	if long.Importance > 1 {
		t.Errorf("importance %f > 1", long.Importance)
	}
	if long.Metadata["day_of_week"] == "" || long.Metadata["time_of_day"] == "" {
		t.Errorf("context metadata missing: %v", long.Metadata)
	}
}

func TestEpisodicDelete(t *testing.T) {
	s := NewEpisodicStore(testIndex(t))
	ctx := context.Background()

	e, _ := s.Store(ctx, "forgettable detail", EpisodeOptions{})
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1", s.Count())
	}
	if err := s.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}
