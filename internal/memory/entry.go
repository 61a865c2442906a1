// Package memory implements the multi-tier memory subsystem: the decay
// model, the four tier stores, and the manager that orchestrates
// cross-tier recall and consolidation.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/mnemo/internal/search"
)

// Tier identifies which store a memory lives in.
type Tier string

const (
	TierWorking  Tier = "working"
	TierEpisodic Tier = "episodic"
	TierSemantic Tier = "semantic"
	TierLongTerm Tier = "longterm"
)

// Valence is the emotional coloring of a memory.
type Valence string

const (
	ValencePositive Valence = "positive"
	ValenceNegative Valence = "negative"
	ValenceNeutral  Valence = "neutral"
	ValenceMixed    Valence = "mixed"
)

// Entry is a single memory record, shared by all tiers.
type Entry struct {
	ID             string
	Content        string
	Tier           Tier
	CreatedAt      time.Time
	Importance     float64 // 0..1
	Valence        Valence
	Intensity      float64 // 0..1
	Tags           []string
	Source         string
	RelatedIDs     []string // weak references to other entries
	AccessCount    int
	LastAccessedAt *time.Time
	DecayRate      float64 // 0 = never fades, 1 = fades fast
	Metadata       map[string]string
}

// EffectiveImportance applies time decay and the access-frequency boost.
// The result is clamped to [0, 1] no matter how stale or hot the entry
// is. Entries that were never accessed keep their raw importance.
func (e *Entry) EffectiveImportance() float64 {
	return e.effectiveImportanceAt(time.Now())
}

func (e *Entry) effectiveImportanceAt(now time.Time) float64 {
	if e.LastAccessedAt == nil {
		return clamp01(e.Importance)
	}

	hours := now.Sub(*e.LastAccessedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	decayFactor := 1.0 - e.DecayRate*hours/24
	if decayFactor < 0.1 {
		decayFactor = 0.1
	}

	boost := float64(e.AccessCount) * 0.02
	if boost > 0.3 {
		boost = 0.3
	}

	return clamp01(e.Importance*decayFactor + boost)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// newID builds a time-ordered, tier-prefixed id such as
// "episode_20260827_101530_1a2b3c4d".
func newID(prefix string) string {
	return fmt.Sprintf("%s_%s_%s",
		prefix,
		time.Now().UTC().Format("20060102_150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Metadata keys used by the entry codec. Anything else in a document's
// metadata round-trips through Entry.Metadata.
const (
	metaTier        = "tier"
	metaCreatedAt   = "created_at"
	metaImportance  = "importance"
	metaValence     = "valence"
	metaIntensity   = "intensity"
	metaTags        = "tags"
	metaSource      = "source"
	metaRelated     = "related"
	metaAccessCount = "access_count"
	metaLastAccess  = "last_accessed"
	metaDecayRate   = "decay_rate"
)

var reservedMetaKeys = map[string]bool{
	metaTier: true, metaCreatedAt: true, metaImportance: true,
	metaValence: true, metaIntensity: true, metaTags: true,
	metaSource: true, metaRelated: true, metaAccessCount: true,
	metaLastAccess: true, metaDecayRate: true,
}

func (e *Entry) encodeMetadata() map[string]string {
	m := map[string]string{
		metaTier:        string(e.Tier),
		metaCreatedAt:   e.CreatedAt.Format(time.RFC3339Nano),
		metaImportance:  formatFloat(e.Importance),
		metaValence:     string(e.Valence),
		metaIntensity:   formatFloat(e.Intensity),
		metaSource:      e.Source,
		metaAccessCount: strconv.Itoa(e.AccessCount),
		metaDecayRate:   formatFloat(e.DecayRate),
	}
	if len(e.Tags) > 0 {
		m[metaTags] = strings.Join(e.Tags, ",")
	}
	if len(e.RelatedIDs) > 0 {
		m[metaRelated] = strings.Join(e.RelatedIDs, ",")
	}
	if e.LastAccessedAt != nil {
		m[metaLastAccess] = e.LastAccessedAt.Format(time.RFC3339Nano)
	}
	for k, v := range e.Metadata {
		if !reservedMetaKeys[k] {
			m[k] = v
		}
	}
	return m
}

func entryFromDocument(doc search.Document) *Entry {
	m := doc.Metadata
	e := &Entry{
		ID:          doc.ID,
		Content:     doc.Content,
		Tier:        Tier(m[metaTier]),
		Importance:  parseFloat(m[metaImportance], 0.5),
		Valence:     valenceOrDefault(m[metaValence]),
		Intensity:   parseFloat(m[metaIntensity], 0),
		Source:      m[metaSource],
		AccessCount: parseInt(m[metaAccessCount]),
		DecayRate:   parseFloat(m[metaDecayRate], 0.1),
		Metadata:    map[string]string{},
	}
	if ts, err := time.Parse(time.RFC3339Nano, m[metaCreatedAt]); err == nil {
		e.CreatedAt = ts
	} else {
		e.CreatedAt = time.Now()
	}
	if raw := m[metaLastAccess]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			e.LastAccessedAt = &ts
		}
	}
	if raw := m[metaTags]; raw != "" {
		e.Tags = strings.Split(raw, ",")
	}
	if raw := m[metaRelated]; raw != "" {
		e.RelatedIDs = strings.Split(raw, ",")
	}
	for k, v := range m {
		if !reservedMetaKeys[k] {
			e.Metadata[k] = v
		}
	}
	return e
}

func valenceOrDefault(raw string) Valence {
	switch Valence(raw) {
	case ValencePositive, ValenceNegative, ValenceNeutral, ValenceMixed:
		return Valence(raw)
	}
	return ValenceNeutral
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(raw string) int {
	v, _ := strconv.Atoi(raw)
	return v
}

// --- shared tier-store plumbing ---

func putEntry(ctx context.Context, idx search.Index, collection string, e *Entry) error {
	return idx.Add(ctx, collection, search.Document{
		ID:       e.ID,
		Content:  e.Content,
		Metadata: e.encodeMetadata(),
	})
}

func queryEntries(ctx context.Context, idx search.Index, collection, query string, k int, where map[string]string) ([]*Entry, error) {
	results, err := idx.Query(ctx, collection, query, k, where)
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, entryFromDocument(r.Document))
	}
	return entries, nil
}

func listEntries(ctx context.Context, idx search.Index, collection string, where map[string]string, limit int) ([]*Entry, error) {
	docs, err := idx.List(ctx, collection, where, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, entryFromDocument(d))
	}
	return entries, nil
}

// touchEntry bumps access tracking for a recalled entry. Best effort:
// failures are logged, never surfaced, so recall enrichment cannot fail
// the recall itself.
func touchEntry(ctx context.Context, idx search.Index, collection, id string) {
	doc, err := idx.Get(ctx, collection, id)
	if err != nil || doc == nil {
		if err != nil {
			log.Printf("touch %s: %v", id, err)
		}
		return
	}

	meta := doc.Metadata
	meta[metaAccessCount] = strconv.Itoa(parseInt(meta[metaAccessCount]) + 1)
	meta[metaLastAccess] = time.Now().Format(time.RFC3339Nano)

	if err := idx.Update(ctx, collection, id, meta); err != nil {
		log.Printf("touch %s: %v", id, err)
	}
}

func sortByEffectiveImportance(entries []*Entry) {
	now := time.Now()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].effectiveImportanceAt(now) > entries[j].effectiveImportanceAt(now)
	})
}
