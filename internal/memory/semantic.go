package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/driftline/mnemo/internal/search"
)

// Category groups semantic facts by what they are about.
type Category string

const (
	CategoryUserPreference  Category = "user_preference"
	CategoryUserFact        Category = "user_fact"
	CategoryProjectInfo     Category = "project_info"
	CategoryTechnical       Category = "technical"
	CategoryRelationship    Category = "relationship"
	CategoryWorldKnowledge  Category = "world_knowledge"
	CategoryLearnedBehavior Category = "learned_behavior"
)

const (
	semanticCollection = "semantic"
	semanticDecayRate  = 0.01

	metaCategory   = "category"
	metaConfidence = "confidence"
	metaDeprecated = "deprecated"
	metaVerified   = "verified"
	metaSupersedes = "supersedes"
)

// SemanticStore holds distilled knowledge: facts, preferences, and
// patterns extracted from experience. Facts decay far slower than
// episodes and can supersede one another as understanding improves.
type SemanticStore struct {
	idx search.Index

	// Guards the read-modify-write of a superseded fact so two
	// concurrent supersessions cannot race on the same record.
	mu sync.Mutex
}

// NewSemanticStore creates a semantic store over the given index.
func NewSemanticStore(idx search.Index) *SemanticStore {
	return &SemanticStore{idx: idx}
}

// FactOptions carries the optional attributes of a stored fact.
type FactOptions struct {
	Category   Category
	Importance float64
	Confidence float64
	Tags       []string
	Source     string
	RelatedIDs []string
	Supersedes string // id of a fact this one replaces
}

// Store writes a fact. When Supersedes names an existing fact, that
// fact is marked deprecated and its importance is cut to 30%.
func (s *SemanticStore) Store(ctx context.Context, content string, opts FactOptions) (*Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("store fact: %w: empty content", ErrInvalid)
	}

	category := opts.Category
	if category == "" {
		category = CategoryWorldKnowledge
	}
	importance := opts.Importance
	if importance == 0 {
		importance = 0.6
	}
	confidence := opts.Confidence
	if confidence == 0 {
		confidence = 0.8
	}

	e := &Entry{
		ID:         newID("fact"),
		Content:    content,
		Tier:       TierSemantic,
		CreatedAt:  time.Now(),
		Importance: clamp01(importance),
		Valence:    ValenceNeutral,
		Tags:       opts.Tags,
		Source:     opts.Source,
		RelatedIDs: opts.RelatedIDs,
		DecayRate:  semanticDecayRate,
		Metadata: map[string]string{
			metaCategory:   string(category),
			metaConfidence: formatFloat(clamp01(confidence)),
			metaDeprecated: "false",
			metaVerified:   "false",
		},
	}
	if opts.Supersedes != "" {
		e.Metadata[metaSupersedes] = opts.Supersedes
	}
	if err := putEntry(ctx, s.idx, semanticCollection, e); err != nil {
		return nil, err
	}

	if opts.Supersedes != "" {
		if err := s.supersede(ctx, opts.Supersedes); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// supersede deprecates an existing fact and cuts its importance.
func (s *SemanticStore) supersede(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.idx.Get(ctx, semanticCollection, id)
	if err != nil {
		return err
	}
	if doc == nil {
		// Superseding a fact that no longer exists is a no-op.
		return nil
	}

	old := entryFromDocument(*doc)
	meta := doc.Metadata
	meta[metaDeprecated] = "true"
	meta[metaImportance] = formatFloat(old.Importance * 0.3)
	return s.idx.Update(ctx, semanticCollection, id, meta)
}

// FactFilter narrows a semantic recall.
type FactFilter struct {
	Category      Category
	MinConfidence float64
}

// Recall returns up to n non-deprecated facts similar to query that meet
// the confidence floor, then bumps access tracking on each hit.
func (s *SemanticStore) Recall(ctx context.Context, query string, n int, filter FactFilter) ([]*Entry, error) {
	if n <= 0 {
		n = 5
	}

	where := map[string]string{metaDeprecated: "false"}
	if filter.Category != "" {
		where[metaCategory] = string(filter.Category)
	}
	candidates, err := queryEntries(ctx, s.idx, semanticCollection, query, n*2, where)
	if err != nil {
		return nil, err
	}

	var out []*Entry
	for _, e := range candidates {
		if factConfidence(e) < filter.MinConfidence {
			continue
		}
		out = append(out, e)
		if len(out) >= n {
			break
		}
	}

	for _, e := range out {
		touchEntry(ctx, s.idx, semanticCollection, e.ID)
	}
	return out, nil
}

// RecallByCategory returns non-deprecated facts in a category, most
// important first.
func (s *SemanticStore) RecallByCategory(ctx context.Context, category Category, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	facts, err := listEntries(ctx, s.idx, semanticCollection, map[string]string{
		metaCategory:   string(category),
		metaDeprecated: "false",
	}, 0)
	if err != nil {
		return nil, err
	}
	sortByEffectiveImportance(facts)
	if len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

// StoreUserPreference records something the user likes or wants.
func (s *SemanticStore) StoreUserPreference(ctx context.Context, preference string, confidence float64) (*Entry, error) {
	return s.Store(ctx, preference, FactOptions{
		Category:   CategoryUserPreference,
		Importance: 0.7,
		Confidence: confidence,
		Source:     "conversation",
	})
}

// StoreUserFact records a biographical fact about the user.
func (s *SemanticStore) StoreUserFact(ctx context.Context, fact string, confidence float64) (*Entry, error) {
	return s.Store(ctx, fact, FactOptions{
		Category:   CategoryUserFact,
		Importance: 0.8,
		Confidence: confidence,
		Source:     "conversation",
	})
}

// StoreLearnedPattern records a behavioral pattern noticed across
// interactions, with the episode ids it was distilled from.
func (s *SemanticStore) StoreLearnedPattern(ctx context.Context, pattern string, sourceIDs []string) (*Entry, error) {
	return s.Store(ctx, pattern, FactOptions{
		Category:   CategoryLearnedBehavior,
		Importance: 0.6,
		Confidence: 0.7,
		Source:     "consolidation",
		RelatedIDs: sourceIDs,
	})
}

// UpdateConfidence adjusts a fact's confidence. A fact reaching 0.95 or
// higher is marked verified.
func (s *SemanticStore) UpdateConfidence(ctx context.Context, id string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.idx.Get(ctx, semanticCollection, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("update confidence: %w: unknown fact %s", ErrInvalid, id)
	}

	meta := doc.Metadata
	confidence = clamp01(confidence)
	meta[metaConfidence] = formatFloat(confidence)
	if confidence >= 0.95 {
		meta[metaVerified] = "true"
	}
	return s.idx.Update(ctx, semanticCollection, id, meta)
}

// Contradiction pairs two active facts in the same category whose
// contents pull in opposite directions.
type Contradiction struct {
	A, B *Entry
}

var antonymPairs = [][2]string{
	{"likes", "dislikes"},
	{"loves", "hates"},
	{"always", "never"},
	{"prefers", "avoids"},
	{"enjoys", "dreads"},
}

// FindContradictions scans active facts per category for antonym pairs.
// A crude signal, but enough to queue facts for review.
func (s *SemanticStore) FindContradictions(ctx context.Context) ([]Contradiction, error) {
	facts, err := listEntries(ctx, s.idx, semanticCollection, map[string]string{metaDeprecated: "false"}, 0)
	if err != nil {
		return nil, err
	}

	byCategory := map[string][]*Entry{}
	for _, e := range facts {
		cat := e.Metadata[metaCategory]
		byCategory[cat] = append(byCategory[cat], e)
	}

	var out []Contradiction
	for _, group := range byCategory {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if contradicts(group[i].Content, group[j].Content) {
					out = append(out, Contradiction{A: group[i], B: group[j]})
				}
			}
		}
	}
	return out, nil
}

func contradicts(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range antonymPairs {
		if strings.Contains(la, pair[0]) && strings.Contains(lb, pair[1]) {
			return true
		}
		if strings.Contains(la, pair[1]) && strings.Contains(lb, pair[0]) {
			return true
		}
	}
	return false
}

// Count returns the number of stored facts, deprecated included.
func (s *SemanticStore) Count() int {
	return s.idx.Count(semanticCollection)
}

// Delete removes a fact by id.
func (s *SemanticStore) Delete(ctx context.Context, id string) error {
	return s.idx.Delete(ctx, semanticCollection, id)
}

func factConfidence(e *Entry) float64 {
	return parseFloat(e.Metadata[metaConfidence], 0.8)
}
