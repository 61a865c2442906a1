package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/driftline/mnemo/internal/search"
)

// StateStore is the shared coordination document passed between the
// memory core and its daemon collaborator. Merge folds updates into the
// document without dropping keys written by other processes.
type StateStore interface {
	Read(ctx context.Context) (map[string]any, error)
	Merge(ctx context.Context, updates map[string]any) error
}

// Options tunes the manager. Zero values select the defaults.
type Options struct {
	MaxTurns         int // working memory conversation window
	MaxRetrieved     int // working memory pulled-in set
	ConsolidateEvery int // episodes between consolidation passes
}

const defaultConsolidateEvery = 10

// Manager owns the four tiers and orchestrates the session lifecycle,
// cross-tier recall, and consolidation.
type Manager struct {
	Working  *WorkingMemory
	Episodic *EpisodicStore
	Semantic *SemanticStore
	LongTerm *LongTermStore

	state            StateStore
	consolidateEvery int

	mu            sync.Mutex
	sessionActive bool
	sessionStart  time.Time
}

// NewManager wires the tiers over a shared similarity index and the
// injected shared-state document.
func NewManager(idx search.Index, state StateStore, opts Options) *Manager {
	consolidateEvery := opts.ConsolidateEvery
	if consolidateEvery <= 0 {
		consolidateEvery = defaultConsolidateEvery
	}
	return &Manager{
		Working:          NewWorkingMemory(opts.MaxTurns, opts.MaxRetrieved),
		Episodic:         NewEpisodicStore(idx),
		Semantic:         NewSemanticStore(idx),
		LongTerm:         NewLongTermStore(idx),
		state:            state,
		consolidateEvery: consolidateEvery,
	}
}

// SessionContext is the continuity bundle returned by StartSession.
type SessionContext struct {
	IsFirstSession     bool
	TimeSinceLast      string
	LastSessionSummary string
	Foundation         *SessionFoundation
	RecentEpisodes     []string
}

// StartSession opens a session: clears working memory, loads the
// long-term foundation, reads the shared-state record from the previous
// session, and preloads up to 3 recent episodes into working context.
// Returns ErrSessionActive if a session is already open.
func (m *Manager) StartSession(ctx context.Context) (*SessionContext, error) {
	m.mu.Lock()
	if m.sessionActive {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}
	m.sessionActive = true
	m.sessionStart = time.Now()
	m.mu.Unlock()

	m.Working.Clear()

	foundation, err := m.LongTerm.Foundation(ctx)
	if err != nil {
		// A failed start leaves no session open; the next attempt must
		// not be rejected as reentrant.
		m.abortSession()
		return nil, fmt.Errorf("load foundation: %w", err)
	}

	sc := &SessionContext{
		IsFirstSession: true,
		Foundation:     foundation,
	}

	doc, err := m.state.Read(ctx)
	if err != nil {
		// A missing or unreadable shared state means a cold start, not
		// a failed session.
		log.Printf("read shared state: %v", err)
		doc = nil
	}
	if last, ok := doc["last_conversation"].(map[string]any); ok {
		sc.IsFirstSession = false
		if summary, ok := last["summary"].(string); ok {
			sc.LastSessionSummary = summary
		}
		if raw, ok := last["ended_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				sc.TimeSinceLast = humanizeSince(time.Since(ts))
			}
		}
	}

	recent, err := m.Episodic.Recent(ctx, 3)
	if err != nil {
		log.Printf("preload recent episodes: %v", err)
	}
	for _, e := range recent {
		m.Working.AddRetrieved(e)
		sc.RecentEpisodes = append(sc.RecentEpisodes, e.Content)
	}

	return sc, nil
}

func (m *Manager) abortSession() {
	m.mu.Lock()
	m.sessionActive = false
	m.sessionStart = time.Time{}
	m.mu.Unlock()
}

// EndSessionOptions lets callers override what gets recorded when a
// session closes. Empty fields are derived from working memory.
type EndSessionOptions struct {
	Summary          string
	Topics           []string
	EmotionalSummary string
}

// EndSession closes the session: records it as one conversation episode,
// publishes a shared-state record for daemon readers, runs the
// consolidation check, and clears working memory. A no-op when no
// session is open.
func (m *Manager) EndSession(ctx context.Context, opts EndSessionOptions) error {
	m.mu.Lock()
	if !m.sessionActive {
		m.mu.Unlock()
		return nil
	}
	m.sessionActive = false
	start := m.sessionStart
	m.mu.Unlock()

	summary := opts.Summary
	if summary == "" {
		summary = m.generateSummary()
	}
	topics := opts.Topics
	if len(topics) == 0 {
		topics = m.Working.ActiveTopics()
	}
	emotion := m.Working.Emotion()
	duration := time.Since(start)

	if m.Working.TurnCount() > 0 {
		_, err := m.Episodic.StoreConversationEpisode(ctx, summary, emotion.Valence, emotion.Intensity, duration, topics)
		if err != nil {
			return fmt.Errorf("store conversation episode: %w", err)
		}
	}

	record := map[string]any{
		"last_conversation": map[string]any{
			"summary":          summary,
			"topics":           topics,
			"emotional_tone":   string(emotion.Valence),
			"ended_at":         time.Now().Format(time.RFC3339),
			"duration_minutes": int(duration.Minutes()),
			"turn_count":       m.Working.TurnCount(),
			"key_moments":      m.keyMoments(),
		},
	}
	if opts.EmotionalSummary != "" {
		record["last_conversation"].(map[string]any)["emotional_summary"] = opts.EmotionalSummary
	}
	if err := m.state.Merge(ctx, record); err != nil {
		return fmt.Errorf("publish session record: %w", err)
	}

	if err := m.maybeConsolidate(ctx); err != nil {
		log.Printf("consolidation check: %v", err)
	}

	m.Working.Clear()
	return nil
}

// RememberOptions carries the tier-specific attributes of a stored
// memory.
type RememberOptions struct {
	Importance float64
	Valence    Valence
	Intensity  float64
	Tags       []string
	Source     string

	// Semantic only.
	Category   Category
	Confidence float64
	Supersedes string

	// LongTerm only.
	ConsolidationType ConsolidationType
	SourceIDs         []string
}

// Remember dispatches content to the matching tier. An unrecognized
// tier defaults to semantic, the safest durable home for a stray fact.
func (m *Manager) Remember(ctx context.Context, content string, tier Tier, opts RememberOptions) (*Entry, error) {
	switch tier {
	case TierWorking:
		m.Working.AddTurn("assistant", content, opts.Valence, opts.Tags)
		return &Entry{
			ID:         newID("working"),
			Content:    content,
			Tier:       TierWorking,
			CreatedAt:  time.Now(),
			Importance: clamp01(opts.Importance),
			Valence:    opts.Valence,
			Intensity:  clamp01(opts.Intensity),
			Tags:       opts.Tags,
			Source:     opts.Source,
		}, nil
	case TierEpisodic:
		return m.Episodic.Store(ctx, content, EpisodeOptions{
			Importance: opts.Importance,
			Valence:    opts.Valence,
			Intensity:  opts.Intensity,
			Tags:       opts.Tags,
			Source:     opts.Source,
		})
	case TierLongTerm:
		return m.LongTerm.Store(ctx, content, opts.ConsolidationType, opts.Importance, opts.SourceIDs)
	default:
		return m.Semantic.Store(ctx, content, FactOptions{
			Category:   opts.Category,
			Importance: opts.Importance,
			Confidence: opts.Confidence,
			Tags:       opts.Tags,
			Source:     opts.Source,
			Supersedes: opts.Supersedes,
		})
	}
}

// RecallOpts narrows a cross-tier recall.
type RecallOpts struct {
	Tiers          []Tier // durable tiers to query; empty means all three
	IncludeWorking bool   // merge working memory's relevance-scored subset
}

// Recall fans a query out to the selected tiers, dedupes by id, ranks by
// effective importance, and echoes the winners back into working memory
// for session continuity.
func (m *Manager) Recall(ctx context.Context, query string, n int, opts RecallOpts) ([]*Entry, error) {
	if n <= 0 {
		n = 5
	}
	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = []Tier{TierEpisodic, TierSemantic, TierLongTerm}
	}

	perTier := n / len(tiers)
	if perTier < 2 {
		perTier = 2
	}

	seen := map[string]bool{}
	var merged []*Entry
	add := func(entries []*Entry) {
		for _, e := range entries {
			if !seen[e.ID] {
				seen[e.ID] = true
				merged = append(merged, e)
			}
		}
	}

	for _, tier := range tiers {
		switch tier {
		case TierEpisodic:
			entries, err := m.Episodic.Recall(ctx, query, perTier, RecallOptions{})
			if err != nil {
				return nil, err
			}
			add(entries)
		case TierSemantic:
			entries, err := m.Semantic.Recall(ctx, query, perTier, FactFilter{})
			if err != nil {
				return nil, err
			}
			add(entries)
		case TierLongTerm:
			entries, err := m.LongTerm.Recall(ctx, query, perTier)
			if err != nil {
				return nil, err
			}
			add(entries)
		}
	}

	sortByEffectiveImportance(merged)

	if opts.IncludeWorking {
		add(m.Working.RelevantRetrieved(query, perTier))
	}

	if len(merged) > n {
		merged = merged[:n]
	}
	for _, e := range merged {
		m.Working.AddRetrieved(e)
	}
	return merged, nil
}

// AddConversationTurn records a turn in working memory.
func (m *Manager) AddConversationTurn(role, content string, tone Valence, topics []string) {
	m.Working.AddTurn(role, content, tone, topics)
}

// ConversationHistory returns the last n working-memory turns.
func (m *Manager) ConversationHistory(n int) []ConversationTurn {
	return m.Working.History(n)
}

// Stats summarizes the durable tiers and the active session.
type Stats struct {
	EpisodicCount  int
	SemanticCount  int
	LongTermCount  int
	WorkingTurns   int
	WorkingLoaded  int
	SessionActive  bool
	SessionMinutes float64
}

// GetStats reports per-tier counts and session state.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	active := m.sessionActive
	start := m.sessionStart
	m.mu.Unlock()

	s := Stats{
		EpisodicCount: m.Episodic.Count(),
		SemanticCount: m.Semantic.Count(),
		LongTermCount: m.LongTerm.Count(),
		WorkingTurns:  m.Working.TurnCount(),
		WorkingLoaded: m.Working.RetrievedCount(),
		SessionActive: active,
	}
	if active {
		s.SessionMinutes = time.Since(start).Minutes()
	}
	return s
}

// Reflection is a coarse self-assessment of the memory system.
type Reflection struct {
	Stats                Stats
	ConsolidationAdvised bool
	RecentMood           Valence
}

// Reflect reports tier counts, whether consolidation looks overdue, and
// the majority valence of the last five episodes.
func (m *Manager) Reflect(ctx context.Context) (*Reflection, error) {
	r := &Reflection{Stats: m.GetStats()}
	r.ConsolidationAdvised = r.Stats.EpisodicCount > 50

	recent, err := m.Episodic.Recent(ctx, 5)
	if err != nil {
		return nil, err
	}
	counts := map[Valence]int{}
	for _, e := range recent {
		counts[e.Valence]++
	}
	r.RecentMood = ValenceNeutral
	best := 0
	for _, v := range []Valence{ValencePositive, ValenceNegative, ValenceMixed, ValenceNeutral} {
		if counts[v] > best {
			best = counts[v]
			r.RecentMood = v
		}
	}
	return r, nil
}
