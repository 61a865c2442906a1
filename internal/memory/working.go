package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ConversationTurn is a single utterance in the active conversation.
type ConversationTurn struct {
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
	Tone      Valence
	Topics    []string
}

// EmotionalState tracks the smoothed emotional signal of the session.
type EmotionalState struct {
	Valence        Valence
	Intensity      float64
	RecentTriggers []string
}

const (
	defaultMaxTurns     = 20
	defaultMaxRetrieved = 10
	maxActiveTopics     = 10
	maxTriggers         = 5
)

// WorkingMemory is the active context window. It is never persisted: it
// holds the bounded conversation window, memories pulled in from the
// durable tiers, the smoothed emotional state, and the rolling topic set
// for the current session only.
type WorkingMemory struct {
	mu sync.Mutex

	maxTurns     int
	maxRetrieved int

	conversation []ConversationTurn
	retrieved    []*Entry
	emotional    EmotionalState
	activeTopics []string
	focus        string
	sessionStart time.Time
}

// NewWorkingMemory creates a working memory with the given bounds.
// Non-positive bounds select the defaults (20 turns, 10 retrieved).
func NewWorkingMemory(maxTurns, maxRetrieved int) *WorkingMemory {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	if maxRetrieved <= 0 {
		maxRetrieved = defaultMaxRetrieved
	}
	return &WorkingMemory{
		maxTurns:     maxTurns,
		maxRetrieved: maxRetrieved,
		emotional:    EmotionalState{Valence: ValenceNeutral},
		sessionStart: time.Now(),
	}
}

// AddTurn appends a conversation turn, folds its topics into the active
// set, and trims the window to the configured bound.
func (w *WorkingMemory) AddTurn(role, content string, tone Valence, topics []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.conversation = append(w.conversation, ConversationTurn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Tone:      tone,
		Topics:    topics,
	})
	if len(w.conversation) > w.maxTurns {
		w.conversation = w.conversation[len(w.conversation)-w.maxTurns:]
	}

	for _, topic := range topics {
		if !containsString(w.activeTopics, topic) {
			w.activeTopics = append(w.activeTopics, topic)
		}
	}
	if len(w.activeTopics) > maxActiveTopics {
		w.activeTopics = w.activeTopics[len(w.activeTopics)-maxActiveTopics:]
	}
}

// AddRetrieved pulls a durable-tier entry into working context. When the
// bounded set overflows, the entry with the lowest effective importance
// is evicted.
func (w *WorkingMemory) AddRetrieved(e *Entry) {
	if e == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, existing := range w.retrieved {
		if existing.ID == e.ID {
			return
		}
	}
	w.retrieved = append(w.retrieved, e)

	if len(w.retrieved) > w.maxRetrieved {
		sort.SliceStable(w.retrieved, func(i, j int) bool {
			return w.retrieved[i].EffectiveImportance() > w.retrieved[j].EffectiveImportance()
		})
		w.retrieved = w.retrieved[:w.maxRetrieved]
	}
}

// History returns the last n turns (all turns when n <= 0).
func (w *WorkingMemory) History(n int) []ConversationTurn {
	w.mu.Lock()
	defer w.mu.Unlock()

	turns := w.conversation
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]ConversationTurn, len(turns))
	copy(out, turns)
	return out
}

// RelevantRetrieved scores the pulled-in set against a query:
// 0.5 × word overlap + 0.5 × effective importance, best n first.
func (w *WorkingMemory) RelevantRetrieved(query string, n int) []*Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.retrieved) == 0 {
		return nil
	}

	queryWords := wordSet(query)
	type scored struct {
		score float64
		entry *Entry
	}
	items := make([]scored, 0, len(w.retrieved))
	for _, e := range w.retrieved {
		overlap := 0
		for word := range wordSet(e.Content) {
			if queryWords[word] {
				overlap++
			}
		}
		items = append(items, scored{
			score: float64(overlap)*0.5 + e.EffectiveImportance()*0.5,
			entry: e,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })

	if n > len(items) {
		n = len(items)
	}
	out := make([]*Entry, 0, n)
	for _, it := range items[:n] {
		out = append(out, it.entry)
	}
	return out
}

// UpdateEmotion folds a new emotional reading into the state with
// exponential smoothing (0.7 new, 0.3 old) so single turns don't whip
// the mood around.
func (w *WorkingMemory) UpdateEmotion(v Valence, intensity float64, trigger string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.emotional.Intensity = w.emotional.Intensity*0.3 + clamp01(intensity)*0.7
	w.emotional.Valence = v
	if trigger != "" {
		w.emotional.RecentTriggers = append(w.emotional.RecentTriggers, trigger)
		if len(w.emotional.RecentTriggers) > maxTriggers {
			w.emotional.RecentTriggers = w.emotional.RecentTriggers[len(w.emotional.RecentTriggers)-maxTriggers:]
		}
	}
}

// Emotion returns the current smoothed emotional state.
func (w *WorkingMemory) Emotion() EmotionalState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.emotional
}

// ActiveTopics returns the rolling deduplicated topic window.
func (w *WorkingMemory) ActiveTopics() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.activeTopics))
	copy(out, w.activeTopics)
	return out
}

// SetFocus records what the conversation is currently about.
func (w *WorkingMemory) SetFocus(focus string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focus = focus
}

// ContextSummary renders a one-line view of the working state.
func (w *WorkingMemory) ContextSummary() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var parts []string
	if w.emotional.Intensity > 0.3 {
		parts = append(parts, fmt.Sprintf("Current mood: %s (intensity: %.1f)",
			w.emotional.Valence, w.emotional.Intensity))
	}
	if len(w.activeTopics) > 0 {
		topics := w.activeTopics
		if len(topics) > 5 {
			topics = topics[len(topics)-5:]
		}
		parts = append(parts, "Active topics: "+strings.Join(topics, ", "))
	}
	if w.focus != "" {
		parts = append(parts, "Current focus: "+w.focus)
	}
	if len(w.retrieved) > 0 {
		parts = append(parts, fmt.Sprintf("Relevant memories loaded: %d", len(w.retrieved)))
	}
	if len(parts) == 0 {
		return "Fresh conversation"
	}
	return strings.Join(parts, " | ")
}

// SessionDuration reports how long the session has been running.
func (w *WorkingMemory) SessionDuration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.sessionStart)
}

// WordCount returns the total word count across all turns.
func (w *WorkingMemory) WordCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, t := range w.conversation {
		total += len(strings.Fields(t.Content))
	}
	return total
}

// TurnCount returns the number of turns in the window.
func (w *WorkingMemory) TurnCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conversation)
}

// RetrievedCount returns the size of the pulled-in set.
func (w *WorkingMemory) RetrievedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.retrieved)
}

// Clear drops all session state. Called at session boundaries.
func (w *WorkingMemory) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.conversation = nil
	w.retrieved = nil
	w.activeTopics = nil
	w.focus = ""
	w.emotional = EmotionalState{Valence: ValenceNeutral}
	w.sessionStart = time.Now()
}

func wordSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, word := range words {
		set[word] = true
	}
	return set
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
