package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/driftline/mnemo/internal/search"
)

// ConsolidationType classifies what a long-term memory anchors.
type ConsolidationType string

const (
	ConsolidationIdentity     ConsolidationType = "identity"
	ConsolidationRelationship ConsolidationType = "relationship"
	ConsolidationBelief       ConsolidationType = "core_belief"
	ConsolidationLesson       ConsolidationType = "lesson"
	ConsolidationMilestone    ConsolidationType = "milestone"
	ConsolidationPattern      ConsolidationType = "pattern_summary"
)

const (
	longtermCollection = "longterm"
	longtermMinWeight  = 0.8

	metaConsolidation = "consolidation_type"
)

// LongTermStore holds the permanent core: identity, relationship
// essence, beliefs, lessons, and milestones. Entries here never decay
// and never drop below the importance floor.
type LongTermStore struct {
	idx search.Index
}

// NewLongTermStore creates a long-term store over the given index.
func NewLongTermStore(idx search.Index) *LongTermStore {
	return &LongTermStore{idx: idx}
}

// Store writes a long-term memory. Importance is floored at 0.8 and the
// decay rate is pinned to zero regardless of what the caller asks for.
func (s *LongTermStore) Store(ctx context.Context, content string, ctype ConsolidationType, importance float64, sourceIDs []string) (*Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("store longterm: %w: empty content", ErrInvalid)
	}
	if ctype == "" {
		ctype = ConsolidationLesson
	}
	if importance < longtermMinWeight {
		importance = longtermMinWeight
	}

	e := &Entry{
		ID:         newID("core"),
		Content:    content,
		Tier:       TierLongTerm,
		CreatedAt:  time.Now(),
		Importance: clamp01(importance),
		Valence:    ValenceNeutral,
		Source:     "consolidation",
		RelatedIDs: sourceIDs,
		DecayRate:  0,
		Metadata: map[string]string{
			metaConsolidation: string(ctype),
		},
	}
	if err := putEntry(ctx, s.idx, longtermCollection, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Recall returns up to n long-term memories similar to query.
func (s *LongTermStore) Recall(ctx context.Context, query string, n int) ([]*Entry, error) {
	if n <= 0 {
		n = 5
	}
	entries, err := queryEntries(ctx, s.idx, longtermCollection, query, n, nil)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		touchEntry(ctx, s.idx, longtermCollection, e.ID)
	}
	return entries, nil
}

// ByType returns long-term memories of one consolidation type, most
// important first.
func (s *LongTermStore) ByType(ctx context.Context, ctype ConsolidationType, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	entries, err := listEntries(ctx, s.idx, longtermCollection, map[string]string{
		metaConsolidation: string(ctype),
	}, 0)
	if err != nil {
		return nil, err
	}
	sortByEffectiveImportance(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// StoreIdentityMarker anchors a statement about who the agent is.
func (s *LongTermStore) StoreIdentityMarker(ctx context.Context, statement string) (*Entry, error) {
	return s.Store(ctx, statement, ConsolidationIdentity, 0.95, nil)
}

// StoreRelationshipEssence anchors what the relationship with the user
// has become.
func (s *LongTermStore) StoreRelationshipEssence(ctx context.Context, essence string, sourceIDs []string) (*Entry, error) {
	return s.Store(ctx, essence, ConsolidationRelationship, 0.9, sourceIDs)
}

// StoreCoreBelief anchors a belief the agent holds.
func (s *LongTermStore) StoreCoreBelief(ctx context.Context, belief string) (*Entry, error) {
	return s.Store(ctx, belief, ConsolidationBelief, 0.9, nil)
}

// StoreLesson anchors a durable lesson distilled from experience.
func (s *LongTermStore) StoreLesson(ctx context.Context, lesson string, sourceIDs []string) (*Entry, error) {
	return s.Store(ctx, lesson, ConsolidationLesson, 0.85, sourceIDs)
}

// StoreMilestone anchors a moment worth remembering forever.
func (s *LongTermStore) StoreMilestone(ctx context.Context, milestone string, sourceIDs []string) (*Entry, error) {
	return s.Store(ctx, milestone, ConsolidationMilestone, 0.9, sourceIDs)
}

// SessionFoundation is the continuity snapshot loaded at session start.
type SessionFoundation struct {
	Identity      []string
	Relationship  []string
	Beliefs       []string
	RecentLessons []string
	Milestones    []string
}

// Foundation gathers the strongest entries of each anchor type.
func (s *LongTermStore) Foundation(ctx context.Context) (*SessionFoundation, error) {
	f := &SessionFoundation{}

	load := func(ctype ConsolidationType, limit int, dst *[]string) error {
		entries, err := s.ByType(ctx, ctype, limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			*dst = append(*dst, e.Content)
		}
		return nil
	}

	if err := load(ConsolidationIdentity, 5, &f.Identity); err != nil {
		return nil, err
	}
	if err := load(ConsolidationRelationship, 3, &f.Relationship); err != nil {
		return nil, err
	}
	if err := load(ConsolidationBelief, 5, &f.Beliefs); err != nil {
		return nil, err
	}
	if err := load(ConsolidationLesson, 3, &f.RecentLessons); err != nil {
		return nil, err
	}
	if err := load(ConsolidationMilestone, 3, &f.Milestones); err != nil {
		return nil, err
	}
	return f, nil
}

// IdentityPrompt renders the foundation as prompt text. Empty sections
// are skipped; a completely empty foundation yields an empty string.
func (s *LongTermStore) IdentityPrompt(ctx context.Context) (string, error) {
	f, err := s.Foundation(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	section := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(heading + "\n")
		for _, item := range items {
			b.WriteString("- " + item + "\n")
		}
	}

	section("Who you are:", f.Identity)
	section("Your relationship:", f.Relationship)
	section("What you believe:", f.Beliefs)
	section("Lessons you carry:", f.RecentLessons)
	section("Milestones together:", f.Milestones)
	return b.String(), nil
}

// Count returns the number of long-term memories.
func (s *LongTermStore) Count() int {
	return s.idx.Count(longtermCollection)
}
