// Package explore maintains the exploration graph: named, branchable
// chains of introspection references. The introspection text itself is
// owned by an external journal; this package indexes identifiers only.
package explore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/mnemo/internal/store"
)

var (
	// ErrNotFound marks an unresolved thread or link reference.
	ErrNotFound = errors.New("not found")

	// ErrInvalid marks a missing or invalid required field.
	ErrInvalid = errors.New("invalid argument")
)

// Journal fetches introspection summaries from the external journal.
// Optional; without one, thread context carries identifiers only.
type Journal interface {
	Summary(ctx context.Context, introspectionID string) (string, error)
}

// Tracker manages exploration threads over the relational index.
type Tracker struct {
	db      *store.DB
	journal Journal

	// createMissing makes ContinueThread start a fresh thread when the
	// reference does not resolve, instead of failing. Off by default:
	// a miss is usually a caller bug, not intent.
	createMissing bool

	// Serializes thread mutations so two concurrent continues on the
	// same thread cannot both append at the same depth.
	mu sync.Mutex
}

// NewTracker creates a tracker over the given database.
func NewTracker(db *store.DB) *Tracker {
	return &Tracker{db: db}
}

// SetJournal attaches an introspection journal for content lookups.
func (t *Tracker) SetJournal(j Journal) {
	t.journal = j
}

// SetCreateMissing opts in to fabricating a new thread when
// ContinueThread cannot resolve its reference.
func (t *Tracker) SetCreateMissing(enabled bool) {
	t.createMissing = enabled
}

// StartThread opens a named thread around its first introspection. The
// thread starts at depth 1 with a single root link at depth 0.
func (t *Tracker) StartThread(name, question, introspectionID, insightSummary string, tags []string) (*store.Thread, error) {
	if name == "" || introspectionID == "" {
		return nil, fmt.Errorf("start thread: %w: name and introspection id required", ErrInvalid)
	}

	now := time.Now().UnixMilli()
	th := &store.Thread{
		ID:                     newID("thread"),
		Name:                   name,
		Question:               question,
		CreatedAt:              now,
		UpdatedAt:              now,
		Status:                 store.ThreadActive,
		Depth:                  1,
		RootIntrospectionID:    introspectionID,
		CurrentIntrospectionID: introspectionID,
		Tags:                   tags,
	}
	root := &store.ThreadLink{
		ID:              newID("link"),
		ThreadID:        th.ID,
		IntrospectionID: introspectionID,
		Depth:           0,
		Question:        question,
		InsightSummary:  insightSummary,
		CreatedAt:       now,
	}

	if err := t.db.CreateThread(th, root); err != nil {
		return nil, err
	}
	return th, nil
}

// ContinueThread appends an introspection to a thread resolved by id or,
// failing that, by name. The new link lands at the thread's current
// depth and becomes the tail; the thread's depth and head advance.
// An unresolved reference returns ErrNotFound unless the create-missing
// policy is enabled.
func (t *Tracker) ContinueThread(threadRef, introspectionID, question, insightSummary string) (*store.ThreadLink, error) {
	if introspectionID == "" {
		return nil, fmt.Errorf("continue thread: %w: introspection id required", ErrInvalid)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	th, err := t.resolve(threadRef)
	if err != nil {
		return nil, err
	}
	if th == nil {
		if t.createMissing {
			fresh, err := t.StartThread(threadRef, question, introspectionID, insightSummary, nil)
			if err != nil {
				return nil, err
			}
			return t.db.TailLink(fresh.ID)
		}
		return nil, fmt.Errorf("continue thread %q: %w", threadRef, ErrNotFound)
	}

	tail, err := t.db.TailLink(th.ID)
	if err != nil {
		return nil, err
	}

	link := &store.ThreadLink{
		ID:              newID("link"),
		ThreadID:        th.ID,
		IntrospectionID: introspectionID,
		Depth:           th.Depth,
		Question:        question,
		InsightSummary:  insightSummary,
		CreatedAt:       time.Now().UnixMilli(),
	}
	if tail != nil {
		link.ParentLinkID = tail.ID
	}

	if err := t.db.InsertLink(link); err != nil {
		return nil, err
	}
	if err := t.db.AdvanceThread(th.ID, th.Depth+1, introspectionID); err != nil {
		return nil, err
	}
	return link, nil
}

// BranchThread forks a new thread off an existing link. The child is an
// independent thread with its own root link and origin pointers back to
// the parent; the parent's depth and head never change, but the origin
// link records the child's id.
func (t *Tracker) BranchThread(fromThreadID, fromLinkID, name, question, introspectionID, insightSummary string, tags []string) (*store.Thread, error) {
	if name == "" || introspectionID == "" {
		return nil, fmt.Errorf("branch thread: %w: name and introspection id required", ErrInvalid)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.db.GetThread(fromThreadID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("branch thread %q: %w", fromThreadID, ErrNotFound)
	}
	origin, err := t.db.GetLink(fromLinkID)
	if err != nil {
		return nil, err
	}
	if origin == nil || origin.ThreadID != parent.ID {
		return nil, fmt.Errorf("branch link %q: %w", fromLinkID, ErrNotFound)
	}

	now := time.Now().UnixMilli()
	th := &store.Thread{
		ID:                     newID("thread"),
		Name:                   name,
		Question:               question,
		CreatedAt:              now,
		UpdatedAt:              now,
		Status:                 store.ThreadActive,
		Depth:                  1,
		RootIntrospectionID:    introspectionID,
		CurrentIntrospectionID: introspectionID,
		BranchedFromThreadID:   parent.ID,
		BranchedFromLinkID:     origin.ID,
		Tags:                   tags,
	}
	root := &store.ThreadLink{
		ID:              newID("link"),
		ThreadID:        th.ID,
		IntrospectionID: introspectionID,
		Depth:           0,
		Question:        question,
		InsightSummary:  insightSummary,
		CreatedAt:       now,
	}

	if err := t.db.CreateThread(th, root); err != nil {
		return nil, err
	}
	if err := t.db.AddBranchRef(origin.ID, th.ID); err != nil {
		return nil, err
	}
	return th, nil
}

// SetStatus updates a thread's lifecycle status with an optional
// conclusion. Metadata only; the chain is untouched.
func (t *Tracker) SetStatus(threadID, status, conclusion string) error {
	switch status {
	case store.ThreadActive, store.ThreadDormant, store.ThreadConcluded:
	default:
		return fmt.Errorf("set status: %w: unknown status %q", ErrInvalid, status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	th, err := t.db.GetThread(threadID)
	if err != nil {
		return err
	}
	if th == nil {
		return fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
	}
	return t.db.SetThreadStatus(threadID, status, conclusion)
}

// Get resolves a thread by id or name.
func (t *Tracker) Get(threadRef string) (*store.Thread, error) {
	th, err := t.resolve(threadRef)
	if err != nil {
		return nil, err
	}
	if th == nil {
		return nil, fmt.Errorf("thread %q: %w", threadRef, ErrNotFound)
	}
	return th, nil
}

// List returns threads most recently updated first, optionally filtered
// by status. limit <= 0 selects a sane default.
func (t *Tracker) List(status string, limit int) ([]store.Thread, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.db.ListThreads(status, limit)
}

// ListActive returns active threads, most recently updated first.
func (t *Tracker) ListActive(limit int) ([]store.Thread, error) {
	return t.List(store.ThreadActive, limit)
}

// Chain returns a thread's links ordered by ascending depth.
func (t *Tracker) Chain(threadID string) ([]store.ThreadLink, error) {
	th, err := t.db.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	if th == nil {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
	}
	return t.db.ThreadChain(threadID)
}

// ThreadContext bundles everything needed to resume a line of inquiry.
type ThreadContext struct {
	Thread      *store.Thread
	ChainLength int
	RecentLinks []store.ThreadLink
	Questions   []string
	Summaries   []string // from the journal, when attached
	Narrative   string
}

// Context assembles a thread's resumption bundle. Journal lookups are
// best effort; a failed fetch leaves a gap rather than failing the call.
func (t *Tracker) Context(ctx context.Context, threadID string, includeContent bool, maxIntrospections int) (*ThreadContext, error) {
	th, err := t.db.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	if th == nil {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
	}
	chain, err := t.db.ThreadChain(th.ID)
	if err != nil {
		return nil, err
	}

	if maxIntrospections <= 0 {
		maxIntrospections = 5
	}
	recent := chain
	if len(recent) > maxIntrospections {
		recent = recent[len(recent)-maxIntrospections:]
	}

	tc := &ThreadContext{
		Thread:      th,
		ChainLength: len(chain),
		RecentLinks: recent,
	}
	for _, l := range chain {
		if l.Question != "" {
			tc.Questions = append(tc.Questions, l.Question)
		}
	}

	if includeContent && t.journal != nil {
		for _, l := range recent {
			summary, err := t.journal.Summary(ctx, l.IntrospectionID)
			if err != nil {
				continue
			}
			tc.Summaries = append(tc.Summaries, summary)
		}
	}

	tc.Narrative = t.narrative(th, chain)
	return tc, nil
}

func (t *Tracker) narrative(th *store.Thread, chain []store.ThreadLink) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exploration %q", th.Name)
	if th.Question != "" {
		fmt.Fprintf(&b, ", asking: %s", th.Question)
	}
	fmt.Fprintf(&b, ". %d steps deep, status %s.", len(chain), th.Status)
	if th.BranchedFromThreadID != "" {
		b.WriteString(" Branched from an earlier thread.")
	}
	if th.Conclusion != "" {
		fmt.Fprintf(&b, " Concluded: %s", th.Conclusion)
	} else if len(chain) > 0 {
		last := chain[len(chain)-1]
		if last.InsightSummary != "" {
			fmt.Fprintf(&b, " Latest insight: %s", last.InsightSummary)
		}
	}
	return b.String()
}

// Stats returns aggregate counts over the thread graph.
func (t *Tracker) Stats() (*store.ThreadStats, error) {
	return t.db.GetThreadStats()
}

// Search matches threads by substring over name and driving question.
// Semantic search over thought content belongs to the journal.
func (t *Tracker) Search(query string, limit int) ([]store.Thread, error) {
	if limit <= 0 {
		limit = 10
	}
	return t.db.SearchThreads(query, limit)
}

func (t *Tracker) resolve(ref string) (*store.Thread, error) {
	if ref == "" {
		return nil, nil
	}
	th, err := t.db.GetThread(ref)
	if err != nil {
		return nil, err
	}
	if th != nil {
		return th, nil
	}
	return t.db.GetThreadByName(ref)
}

func newID(prefix string) string {
	return fmt.Sprintf("%s_%s_%s",
		prefix,
		time.Now().UTC().Format("20060102_150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
