package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/driftline/mnemo/internal/search"
)

// TimeWindow scopes a recall to a recency band.
type TimeWindow string

const (
	WindowToday TimeWindow = "today"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
	WindowAll   TimeWindow = "all"
)

const (
	episodicCollection = "episodic"
	episodicDecayRate  = 0.05
)

// EpisodicStore holds experiential memories: events, conversations,
// things that happened. Episodes decay over time unless access keeps
// them warm.
type EpisodicStore struct {
	idx search.Index
}

// NewEpisodicStore creates an episodic store over the given index.
func NewEpisodicStore(idx search.Index) *EpisodicStore {
	return &EpisodicStore{idx: idx}
}

// EpisodeOptions carries the optional attributes of a stored episode.
type EpisodeOptions struct {
	Importance float64
	Valence    Valence
	Intensity  float64
	Tags       []string
	Source     string
	RelatedIDs []string
	Context    map[string]string
}

// Store writes an episode and returns its entry.
func (s *EpisodicStore) Store(ctx context.Context, content string, opts EpisodeOptions) (*Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("store episode: %w: empty content", ErrInvalid)
	}

	importance := opts.Importance
	if importance == 0 {
		importance = 0.5
	}
	valence := opts.Valence
	if valence == "" {
		valence = ValenceNeutral
	}

	e := &Entry{
		ID:         newID("episode"),
		Content:    content,
		Tier:       TierEpisodic,
		CreatedAt:  time.Now(),
		Importance: clamp01(importance),
		Valence:    valence,
		Intensity:  clamp01(opts.Intensity),
		Tags:       opts.Tags,
		Source:     opts.Source,
		RelatedIDs: opts.RelatedIDs,
		DecayRate:  episodicDecayRate,
		Metadata:   opts.Context,
	}
	if err := putEntry(ctx, s.idx, episodicCollection, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RecallOptions narrows an episodic recall.
type RecallOptions struct {
	Window        TimeWindow
	MinImportance float64
}

// Recall returns up to n episodes similar to query, filtered by window
// and minimum effective importance, then bumps access tracking on each
// hit. The index is over-queried so post-filtering still fills n.
func (s *EpisodicStore) Recall(ctx context.Context, query string, n int, opts RecallOptions) ([]*Entry, error) {
	if n <= 0 {
		n = 5
	}
	candidates, err := queryEntries(ctx, s.idx, episodicCollection, query, n*2, nil)
	if err != nil {
		return nil, err
	}

	cutoff := windowCutoff(opts.Window)
	now := time.Now()
	var out []*Entry
	for _, e := range candidates {
		if !cutoff.IsZero() && e.CreatedAt.Before(cutoff) {
			continue
		}
		if e.effectiveImportanceAt(now) < opts.MinImportance {
			continue
		}
		out = append(out, e)
		if len(out) >= n {
			break
		}
	}

	for _, e := range out {
		touchEntry(ctx, s.idx, episodicCollection, e.ID)
	}
	return out, nil
}

// RecallByTime returns episodes created inside the window, most
// important first.
func (s *EpisodicStore) RecallByTime(ctx context.Context, window TimeWindow, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	all, err := listEntries(ctx, s.idx, episodicCollection, nil, 0)
	if err != nil {
		return nil, err
	}

	cutoff := windowCutoff(window)
	var out []*Entry
	for _, e := range all {
		if cutoff.IsZero() || !e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	sortByEffectiveImportance(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecallEmotional returns episodes with the given valence at or above
// the intensity floor, most intense first.
func (s *EpisodicStore) RecallEmotional(ctx context.Context, valence Valence, minIntensity float64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 5
	}
	all, err := listEntries(ctx, s.idx, episodicCollection, map[string]string{metaValence: string(valence)}, 0)
	if err != nil {
		return nil, err
	}

	var out []*Entry
	for _, e := range all {
		if e.Intensity >= minIntensity {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Intensity > out[j].Intensity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Recent returns episodes from the last 30 days, newest first.
func (s *EpisodicStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	all, err := listEntries(ctx, s.idx, episodicCollection, nil, 0)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -30)
	var out []*Entry
	for _, e := range all {
		if e.CreatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ByImportance returns episodes whose effective importance is at or
// above min, strongest first.
func (s *EpisodicStore) ByImportance(ctx context.Context, min float64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	all, err := listEntries(ctx, s.idx, episodicCollection, nil, 0)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var out []*Entry
	for _, e := range all {
		if e.effectiveImportanceAt(now) >= min {
			out = append(out, e)
		}
	}
	sortByEffectiveImportance(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NarrativeThread follows related-id links from a starting episode and
// returns the connected episodes in chronological order. A visited set
// guards against cycles; depth bounds the walk.
func (s *EpisodicStore) NarrativeThread(ctx context.Context, id string, depth int) ([]*Entry, error) {
	if depth <= 0 {
		depth = 3
	}

	visited := map[string]bool{}
	var thread []*Entry

	frontier := []string{id}
	for level := 0; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, fid := range frontier {
			if visited[fid] {
				continue
			}
			visited[fid] = true

			doc, err := s.idx.Get(ctx, episodicCollection, fid)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				continue
			}
			e := entryFromDocument(*doc)
			thread = append(thread, e)
			next = append(next, e.RelatedIDs...)
		}
		frontier = next
	}

	sort.SliceStable(thread, func(i, j int) bool { return thread[i].CreatedAt.Before(thread[j].CreatedAt) })
	return thread, nil
}

// StoreConversationEpisode records a whole conversation as one episode.
// Importance grows with emotional intensity and duration, capped at 1.
func (s *EpisodicStore) StoreConversationEpisode(ctx context.Context, summary string, valence Valence, intensity float64, duration time.Duration, topics []string) (*Entry, error) {
	minutes := duration.Minutes()
	durFactor := minutes / 60
	if durFactor > 1 {
		durFactor = 1
	}
	importance := 0.4 + 0.3*clamp01(intensity) + 0.3*durFactor
	if importance > 1 {
		importance = 1
	}

	now := time.Now()
	return s.Store(ctx, summary, EpisodeOptions{
		Importance: importance,
		Valence:    valence,
		Intensity:  intensity,
		Tags:       topics,
		Source:     "conversation",
		Context: map[string]string{
			"time_of_day":      timeOfDay(now),
			"day_of_week":      now.Weekday().String(),
			"duration_minutes": fmt.Sprintf("%.0f", minutes),
		},
	})
}

// Count returns the number of stored episodes.
func (s *EpisodicStore) Count() int {
	return s.idx.Count(episodicCollection)
}

// Delete removes an episode by id.
func (s *EpisodicStore) Delete(ctx context.Context, id string) error {
	return s.idx.Delete(ctx, episodicCollection, id)
}

func windowCutoff(w TimeWindow) time.Time {
	now := time.Now()
	switch w {
	case WindowToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}
