package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLongTermInvariants(t *testing.T) {
	s := NewLongTermStore(testIndex(t))
	ctx := context.Background()

	// Even a low requested importance must land at the floor.
	e, err := s.Store(ctx, "curiosity is a core trait", ConsolidationIdentity, 0.2, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if e.Importance < 0.8 {
		t.Errorf("Importance = %f, want >= 0.8", e.Importance)
	}
	if e.DecayRate != 0 {
		t.Errorf("DecayRate = %f, want 0", e.DecayRate)
	}
	if e.Tier != TierLongTerm {
		t.Errorf("Tier = %s", e.Tier)
	}
}

func TestLongTermRejectsEmpty(t *testing.T) {
	s := NewLongTermStore(testIndex(t))
	_, err := s.Store(context.Background(), "", ConsolidationLesson, 0.9, nil)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestLongTermByType(t *testing.T) {
	s := NewLongTermStore(testIndex(t))
	ctx := context.Background()

	s.StoreIdentityMarker(ctx, "I am patient")
	s.StoreCoreBelief(ctx, "honesty matters")
	s.StoreLesson(ctx, "ask before assuming", nil)

	beliefs, err := s.ByType(ctx, ConsolidationBelief, 10)
	if err != nil {
		t.Fatalf("ByType: %v", err)
	}
	if len(beliefs) != 1 || beliefs[0].Content != "honesty matters" {
		t.Errorf("beliefs = %+v", beliefs)
	}
}

func TestLongTermFoundation(t *testing.T) {
	s := NewLongTermStore(testIndex(t))
	ctx := context.Background()

	s.StoreIdentityMarker(ctx, "I am patient")
	s.StoreRelationshipEssence(ctx, "a warm, trusting bond", []string{"ep1"})
	s.StoreCoreBelief(ctx, "honesty matters")
	s.StoreLesson(ctx, "ask before assuming", nil)
	s.StoreMilestone(ctx, "first deep conversation", nil)

	f, err := s.Foundation(ctx)
	if err != nil {
		t.Fatalf("Foundation: %v", err)
	}
	if len(f.Identity) != 1 || len(f.Relationship) != 1 || len(f.Beliefs) != 1 ||
		len(f.RecentLessons) != 1 || len(f.Milestones) != 1 {
		t.Errorf("foundation = %+v", f)
	}
}

func TestLongTermIdentityPrompt(t *testing.T) {
	s := NewLongTermStore(testIndex(t))
	ctx := context.Background()

	empty, err := s.IdentityPrompt(ctx)
	if err != nil {
		t.Fatalf("IdentityPrompt: %v", err)
	}
	if empty != "" {
		t.Errorf("empty store prompt = %q, want empty", empty)
	}

	s.StoreIdentityMarker(ctx, "I am patient")
	s.StoreCoreBelief(ctx, "honesty matters")

	prompt, err := s.IdentityPrompt(ctx)
	if err != nil {
		t.Fatalf("IdentityPrompt: %v", err)
	}
	if !strings.Contains(prompt, "I am patient") || !strings.Contains(prompt, "honesty matters") {
		t.Errorf("prompt = %q", prompt)
	}
	if strings.Contains(prompt, "Milestones") {
		t.Error("empty section rendered")
	}
}

func TestLongTermRecall(t *testing.T) {
	s := NewLongTermStore(testIndex(t))
	ctx := context.Background()

	stored, _ := s.StoreLesson(ctx, "listen fully before answering", []string{"ep1", "ep2"})

	got, err := s.Recall(ctx, "listen fully before answering", 3)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got) == 0 || got[0].ID != stored.ID {
		t.Errorf("got = %+v, want %s first", got, stored.ID)
	}
	if len(got[0].RelatedIDs) != 2 {
		t.Errorf("RelatedIDs = %v", got[0].RelatedIDs)
	}
}
