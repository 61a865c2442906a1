package explore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/driftline/mnemo/internal/store"
)

func testTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTracker(db)
}

func TestStartThread(t *testing.T) {
	tr := testTracker(t)

	th, err := tr.StartThread("loneliness", "why do quiet evenings feel heavy?", "intro_1", "first pass", []string{"mood"})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}
	if th.Depth != 1 {
		t.Errorf("Depth = %d, want 1", th.Depth)
	}
	if th.Status != store.ThreadActive {
		t.Errorf("Status = %q", th.Status)
	}

	chain, err := tr.Chain(th.ID)
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("len(chain) = %d, want 1", len(chain))
	}
	if chain[0].Depth != 0 || chain[0].ParentLinkID != "" {
		t.Errorf("root link = %+v", chain[0])
	}
}

func TestStartThreadValidation(t *testing.T) {
	tr := testTracker(t)

	if _, err := tr.StartThread("", "q", "intro_1", "", nil); !errors.Is(err, ErrInvalid) {
		t.Errorf("missing name err = %v, want ErrInvalid", err)
	}
	if _, err := tr.StartThread("name", "q", "", "", nil); !errors.Is(err, ErrInvalid) {
		t.Errorf("missing introspection err = %v, want ErrInvalid", err)
	}
}

func TestContinueThreadDepths(t *testing.T) {
	tr := testTracker(t)

	th, err := tr.StartThread("identity", "who am I becoming?", "intro_0", "", nil)
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}

	const n = 4
	for i := 1; i <= n; i++ {
		link, err := tr.ContinueThread(th.ID, fmt.Sprintf("intro_%d", i), "and then?", "")
		if err != nil {
			t.Fatalf("ContinueThread %d: %v", i, err)
		}
		if link.Depth != i {
			t.Errorf("link %d depth = %d", i, link.Depth)
		}
	}

	chain, err := tr.Chain(th.ID)
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if len(chain) != n+1 {
		t.Fatalf("len(chain) = %d, want %d", len(chain), n+1)
	}
	for i, l := range chain {
		if l.Depth != i {
			t.Errorf("chain[%d].Depth = %d, want %d", i, l.Depth, i)
		}
		if i > 0 && l.ParentLinkID != chain[i-1].ID {
			t.Errorf("chain[%d] parent = %q, want %q", i, l.ParentLinkID, chain[i-1].ID)
		}
	}

	got, _ := tr.Get(th.ID)
	if got.Depth != n+1 {
		t.Errorf("thread depth = %d, want %d", got.Depth, n+1)
	}
	if got.CurrentIntrospectionID != fmt.Sprintf("intro_%d", n) {
		t.Errorf("current = %q", got.CurrentIntrospectionID)
	}
}

func TestContinueThreadByName(t *testing.T) {
	tr := testTracker(t)

	tr.StartThread("identity", "who am I?", "intro_0", "", nil)

	link, err := tr.ContinueThread("identity", "intro_1", "still me?", "")
	if err != nil {
		t.Fatalf("ContinueThread by name: %v", err)
	}
	if link.Depth != 1 {
		t.Errorf("Depth = %d, want 1", link.Depth)
	}
}

func TestContinueThreadMissingIsNotFound(t *testing.T) {
	tr := testTracker(t)

	_, err := tr.ContinueThread("nonexistent-id", "intro_1", "?", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestContinueThreadCreateMissingOptIn(t *testing.T) {
	tr := testTracker(t)
	tr.SetCreateMissing(true)

	link, err := tr.ContinueThread("brand-new", "intro_1", "what is this?", "")
	if err != nil {
		t.Fatalf("ContinueThread with create-missing: %v", err)
	}
	if link.Depth != 0 {
		t.Errorf("root link depth = %d, want 0", link.Depth)
	}

	th, err := tr.Get("brand-new")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if th.Depth != 1 {
		t.Errorf("fabricated thread depth = %d, want 1", th.Depth)
	}
}

func TestBranchThread(t *testing.T) {
	tr := testTracker(t)

	parent, _ := tr.StartThread("origin", "where does this lead?", "intro_0", "", nil)
	tr.ContinueThread(parent.ID, "intro_1", "deeper?", "")
	chain, _ := tr.Chain(parent.ID)
	forkFrom := chain[1]

	before, _ := tr.Get(parent.ID)

	child, err := tr.BranchThread(parent.ID, forkFrom.ID, "tangent", "what about this instead?", "intro_2", "", nil)
	if err != nil {
		t.Fatalf("BranchThread: %v", err)
	}
	if child.Depth != 1 {
		t.Errorf("child depth = %d, want 1", child.Depth)
	}
	if child.BranchedFromThreadID != parent.ID || child.BranchedFromLinkID != forkFrom.ID {
		t.Errorf("origin pointers = %q/%q", child.BranchedFromThreadID, child.BranchedFromLinkID)
	}

	// The parent's depth and head never move on a branch.
	after, _ := tr.Get(parent.ID)
	if after.Depth != before.Depth {
		t.Errorf("parent depth changed: %d -> %d", before.Depth, after.Depth)
	}
	if after.CurrentIntrospectionID != before.CurrentIntrospectionID {
		t.Errorf("parent head changed: %q -> %q", before.CurrentIntrospectionID, after.CurrentIntrospectionID)
	}

	// The origin link records the child.
	link, _ := tr.db.GetLink(forkFrom.ID)
	if len(link.BranchIDs) != 1 || link.BranchIDs[0] != child.ID {
		t.Errorf("BranchIDs = %v", link.BranchIDs)
	}
}

func TestBranchThreadUnresolved(t *testing.T) {
	tr := testTracker(t)

	parent, _ := tr.StartThread("origin", "?", "intro_0", "", nil)
	chain, _ := tr.Chain(parent.ID)

	if _, err := tr.BranchThread("nope", chain[0].ID, "x", "?", "intro_1", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing thread err = %v, want ErrNotFound", err)
	}
	if _, err := tr.BranchThread(parent.ID, "nope", "x", "?", "intro_1", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing link err = %v, want ErrNotFound", err)
	}

	other, _ := tr.StartThread("other", "?", "intro_9", "", nil)
	otherChain, _ := tr.Chain(other.ID)
	if _, err := tr.BranchThread(parent.ID, otherChain[0].ID, "x", "?", "intro_1", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign link err = %v, want ErrNotFound", err)
	}
}

func TestSetStatus(t *testing.T) {
	tr := testTracker(t)

	th, _ := tr.StartThread("winding down", "done yet?", "intro_0", "", nil)

	if err := tr.SetStatus(th.ID, store.ThreadConcluded, "resolved peacefully"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ := tr.Get(th.ID)
	if got.Status != store.ThreadConcluded || got.Conclusion != "resolved peacefully" {
		t.Errorf("thread = %+v", got)
	}

	if err := tr.SetStatus(th.ID, "bogus", ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("bogus status err = %v, want ErrInvalid", err)
	}
	if err := tr.SetStatus("nope", store.ThreadDormant, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing thread err = %v, want ErrNotFound", err)
	}
}

func TestListAndSearch(t *testing.T) {
	tr := testTracker(t)

	tr.StartThread("loneliness", "why the quiet ache?", "intro_0", "", nil)
	th2, _ := tr.StartThread("curiosity", "what's over the hill?", "intro_1", "", nil)
	tr.SetStatus(th2.ID, store.ThreadDormant, "")

	active, err := tr.ListActive(10)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].Name != "loneliness" {
		t.Errorf("active = %+v", active)
	}

	found, err := tr.Search("hill", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].Name != "curiosity" {
		t.Errorf("found = %+v", found)
	}
}

type fakeJournal map[string]string

func (j fakeJournal) Summary(_ context.Context, id string) (string, error) {
	s, ok := j[id]
	if !ok {
		return "", errors.New("missing")
	}
	return s, nil
}

func TestContext(t *testing.T) {
	tr := testTracker(t)
	tr.SetJournal(fakeJournal{
		"intro_0": "a first tentative thought",
		"intro_1": "a sharper follow-up",
	})

	th, _ := tr.StartThread("identity", "who am I becoming?", "intro_0", "starting point", nil)
	tr.ContinueThread(th.ID, "intro_1", "and with others?", "a clearer view")

	tc, err := tr.Context(context.Background(), th.ID, true, 5)
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if tc.ChainLength != 2 || len(tc.RecentLinks) != 2 {
		t.Errorf("chain = %d/%d", tc.ChainLength, len(tc.RecentLinks))
	}
	if len(tc.Questions) != 2 {
		t.Errorf("Questions = %v", tc.Questions)
	}
	if len(tc.Summaries) != 2 {
		t.Errorf("Summaries = %v", tc.Summaries)
	}
	if !strings.Contains(tc.Narrative, "identity") {
		t.Errorf("Narrative = %q", tc.Narrative)
	}

	if _, err := tr.Context(context.Background(), "nope", false, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing thread err = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	tr := testTracker(t)

	a, _ := tr.StartThread("one", "?", "intro_0", "", nil)
	tr.ContinueThread(a.ID, "intro_1", "?", "")
	chain, _ := tr.Chain(a.ID)
	tr.BranchThread(a.ID, chain[0].ID, "fork", "?", "intro_2", "", nil)

	stats, err := tr.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalThreads != 2 {
		t.Errorf("TotalThreads = %d, want 2", stats.TotalThreads)
	}
	if stats.TotalLinks != 3 {
		t.Errorf("TotalLinks = %d, want 3", stats.TotalLinks)
	}
	if stats.BranchedThreads != 1 {
		t.Errorf("BranchedThreads = %d, want 1", stats.BranchedThreads)
	}
}
