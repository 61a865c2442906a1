package memory

import (
	"context"
	"fmt"
	"strings"
)

const consolidatedAtKey = "consolidated_at_count"

// maybeConsolidate runs a consolidation pass when enough new episodes
// have accumulated since the last pass. The watermark lives in the
// shared-state document, so the trigger survives restarts and stays
// stable when episodes are deleted.
func (m *Manager) maybeConsolidate(ctx context.Context) error {
	count := m.Episodic.Count()

	doc, err := m.state.Read(ctx)
	if err != nil {
		return err
	}
	watermark := 0
	if raw, ok := doc[consolidatedAtKey].(float64); ok {
		watermark = int(raw)
	}
	if watermark > count {
		// Episodes were purged since the last pass; reset so the
		// trigger can fire again.
		watermark = count
	}

	if count-watermark < m.consolidateEvery {
		return nil
	}

	if _, err := m.Consolidate(ctx); err != nil {
		return err
	}
	return m.state.Merge(ctx, map[string]any{consolidatedAtKey: count})
}

// ConsolidationResult reports what a consolidation pass produced.
type ConsolidationResult struct {
	PatternSummary      *Entry
	RelationshipEssence *Entry
	SourceEpisodes      int
}

// Consolidate promotes salient episodic memories into the long-term
// tier. Three or more important episodes yield exactly one
// pattern-summary entry linked to all of its sources; intense positive
// episodes refresh the relationship essence.
func (m *Manager) Consolidate(ctx context.Context) (*ConsolidationResult, error) {
	result := &ConsolidationResult{}

	important, err := m.Episodic.ByImportance(ctx, 0.7, 20)
	if err != nil {
		return nil, fmt.Errorf("gather important episodes: %w", err)
	}
	result.SourceEpisodes = len(important)

	if len(important) >= 3 {
		sourceIDs := make([]string, 0, len(important))
		var themes []string
		for _, e := range important {
			sourceIDs = append(sourceIDs, e.ID)
			themes = append(themes, dominantTheme(e))
		}
		summary := fmt.Sprintf("Pattern across %d significant experiences: %s",
			len(important), strings.Join(dedupeStrings(themes), "; "))

		entry, err := m.LongTerm.Store(ctx, summary, ConsolidationPattern, 0.85, sourceIDs)
		if err != nil {
			return nil, fmt.Errorf("store pattern summary: %w", err)
		}
		result.PatternSummary = entry
	}

	positive, err := m.Episodic.RecallEmotional(ctx, ValencePositive, 0.5, 10)
	if err != nil {
		return nil, fmt.Errorf("gather positive episodes: %w", err)
	}
	if len(positive) > 0 {
		sourceIDs := make([]string, 0, len(positive))
		for _, e := range positive {
			sourceIDs = append(sourceIDs, e.ID)
		}
		essence := fmt.Sprintf("The relationship has %d strongly positive shared moments; warmth and trust are growing.", len(positive))
		entry, err := m.LongTerm.StoreRelationshipEssence(ctx, essence, sourceIDs)
		if err != nil {
			return nil, fmt.Errorf("store relationship essence: %w", err)
		}
		result.RelationshipEssence = entry
	}

	return result, nil
}

// dominantTheme reduces an episode to a short label for the pattern
// summary: its first tag, or a truncated slice of its content.
func dominantTheme(e *Entry) string {
	if len(e.Tags) > 0 {
		return e.Tags[0]
	}
	content := e.Content
	if len(content) > 60 {
		content = content[:60]
	}
	return content
}

func dedupeStrings(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		if item != "" && !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
