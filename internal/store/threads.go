package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Thread status values.
const (
	ThreadActive    = "active"
	ThreadDormant   = "dormant"
	ThreadConcluded = "concluded"
)

// Thread is a named path of inquiry linking introspection records together.
// The introspection content itself lives in the external journal; threads
// index identifiers only.
type Thread struct {
	ID                     string
	Name                   string
	Question               string
	CreatedAt              int64
	UpdatedAt              int64
	Status                 string
	Depth                  int
	RootIntrospectionID    string
	CurrentIntrospectionID string
	BranchedFromThreadID   string
	BranchedFromLinkID     string
	Conclusion             string
	Tags                   []string
}

// ThreadLink chains one introspection reference into a thread. Depth is
// 0-based; the root link has no parent.
type ThreadLink struct {
	ID              string
	ThreadID        string
	IntrospectionID string
	ParentLinkID    string
	Depth           int
	Question        string
	InsightSummary  string
	CreatedAt       int64
	BranchIDs       []string
}

// ThreadStats summarizes the thread graph.
type ThreadStats struct {
	TotalThreads     int
	ActiveThreads    int
	DormantThreads   int
	ConcludedThreads int
	TotalLinks       int
	AverageDepth     float64
	BranchedThreads  int
}

const threadColumns = `id, name, question, created_at, updated_at, status, depth,
	root_introspection_id, current_introspection_id,
	branched_from_thread_id, branched_from_link_id, conclusion, tags`

const linkColumns = `id, thread_id, introspection_id, parent_link_id, depth,
	question, insight_summary, created_at, branch_ids`

// CreateThread inserts a thread together with its root link in one
// transaction.
func (db *DB) CreateThread(th *Thread, root *ThreadLink) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin create thread: %w", err)
	}

	tags, _ := json.Marshal(th.Tags)
	if th.Tags == nil {
		tags = []byte("[]")
	}
	_, err = tx.Exec(`
		INSERT INTO threads (`+threadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?)
	`, th.ID, th.Name, th.Question, th.CreatedAt, th.UpdatedAt, th.Status, th.Depth,
		th.RootIntrospectionID, th.CurrentIntrospectionID,
		th.BranchedFromThreadID, th.BranchedFromLinkID, th.Conclusion, string(tags))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert thread: %w", err)
	}

	if err := insertLink(tx, root); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create thread: %w", err)
	}
	return nil
}

func insertLink(tx *sql.Tx, l *ThreadLink) error {
	branches, _ := json.Marshal(l.BranchIDs)
	if l.BranchIDs == nil {
		branches = []byte("[]")
	}
	_, err := tx.Exec(`
		INSERT INTO thread_links (`+linkColumns+`)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?, ?)
	`, l.ID, l.ThreadID, l.IntrospectionID, l.ParentLinkID, l.Depth,
		l.Question, l.InsightSummary, l.CreatedAt, string(branches))
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// InsertLink appends a single link row.
func (db *DB) InsertLink(l *ThreadLink) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert link: %w", err)
	}
	if err := insertLink(tx, l); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetThread returns a thread by id, or nil if not found.
func (db *DB) GetThread(id string) (*Thread, error) {
	row := db.QueryRow(`SELECT `+threadColumns+` FROM threads WHERE id = ?`, id)
	return scanThread(row)
}

// GetThreadByName returns the most recently updated thread with the given
// name, or nil if none exists.
func (db *DB) GetThreadByName(name string) (*Thread, error) {
	row := db.QueryRow(`
		SELECT `+threadColumns+` FROM threads
		WHERE name = ? ORDER BY updated_at DESC LIMIT 1
	`, name)
	return scanThread(row)
}

// AdvanceThread moves a thread's head: new depth, new current
// introspection, fresh updated_at.
func (db *DB) AdvanceThread(id string, depth int, currentIntrospectionID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE threads SET depth = ?, current_introspection_id = ?, updated_at = ?
		WHERE id = ?
	`, depth, currentIntrospectionID, now, id)
	if err != nil {
		return fmt.Errorf("advance thread: %w", err)
	}
	return nil
}

// SetThreadStatus updates status, conclusion, and updated_at.
func (db *DB) SetThreadStatus(id, status, conclusion string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE threads SET status = ?, conclusion = NULLIF(?, ''), updated_at = ?
		WHERE id = ?
	`, status, conclusion, now, id)
	if err != nil {
		return fmt.Errorf("set thread status: %w", err)
	}
	return nil
}

// ListThreads returns threads ordered by updated_at DESC, optionally
// filtered by status.
func (db *DB) ListThreads(status string, limit int) ([]Thread, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = db.Query(`
			SELECT `+threadColumns+` FROM threads
			WHERE status = ? ORDER BY updated_at DESC LIMIT ?
		`, status, limit)
	} else {
		rows, err = db.Query(`
			SELECT `+threadColumns+` FROM threads
			ORDER BY updated_at DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()
	return scanThreads(rows)
}

// SearchThreads matches name or driving question by substring.
func (db *DB) SearchThreads(query string, limit int) ([]Thread, error) {
	term := "%" + query + "%"
	rows, err := db.Query(`
		SELECT `+threadColumns+` FROM threads
		WHERE name LIKE ? OR question LIKE ?
		ORDER BY updated_at DESC LIMIT ?
	`, term, term, limit)
	if err != nil {
		return nil, fmt.Errorf("search threads: %w", err)
	}
	defer rows.Close()
	return scanThreads(rows)
}

// GetLink returns a link by id, or nil if not found.
func (db *DB) GetLink(id string) (*ThreadLink, error) {
	var l ThreadLink
	var parent, insight sql.NullString
	var branches string
	err := db.QueryRow(`
		SELECT `+linkColumns+` FROM thread_links WHERE id = ?
	`, id).Scan(&l.ID, &l.ThreadID, &l.IntrospectionID, &parent, &l.Depth,
		&l.Question, &insight, &l.CreatedAt, &branches)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	l.ParentLinkID = parent.String
	l.InsightSummary = insight.String
	if branches != "" {
		json.Unmarshal([]byte(branches), &l.BranchIDs)
	}
	return &l, nil
}

// TailLink returns the deepest link of a thread, or nil if the thread has
// no links.
func (db *DB) TailLink(threadID string) (*ThreadLink, error) {
	links, err := db.queryLinks(`
		SELECT `+linkColumns+` FROM thread_links
		WHERE thread_id = ? ORDER BY depth DESC LIMIT 1
	`, threadID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}
	return &links[0], nil
}

// ThreadChain returns all links in a thread ordered by ascending depth.
func (db *DB) ThreadChain(threadID string) ([]ThreadLink, error) {
	return db.queryLinks(`
		SELECT `+linkColumns+` FROM thread_links
		WHERE thread_id = ? ORDER BY depth ASC
	`, threadID)
}

// AddBranchRef records a branched thread id on the link it forked from.
func (db *DB) AddBranchRef(linkID, branchThreadID string) error {
	link, err := db.GetLink(linkID)
	if err != nil {
		return err
	}
	if link == nil {
		return fmt.Errorf("link %s: %w", linkID, sql.ErrNoRows)
	}
	branches := append(link.BranchIDs, branchThreadID)
	data, _ := json.Marshal(branches)
	_, err = db.Exec(`UPDATE thread_links SET branch_ids = ? WHERE id = ?`, string(data), linkID)
	if err != nil {
		return fmt.Errorf("add branch ref: %w", err)
	}
	return nil
}

// GetThreadStats returns aggregate counts over the thread graph.
func (db *DB) GetThreadStats() (*ThreadStats, error) {
	var s ThreadStats
	err := db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'dormant' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'concluded' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(depth), 0),
			COALESCE(SUM(CASE WHEN branched_from_thread_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM threads
	`).Scan(&s.TotalThreads, &s.ActiveThreads, &s.DormantThreads,
		&s.ConcludedThreads, &s.AverageDepth, &s.BranchedThreads)
	if err != nil {
		return nil, fmt.Errorf("thread stats: %w", err)
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM thread_links`).Scan(&s.TotalLinks); err != nil {
		return nil, fmt.Errorf("link count: %w", err)
	}
	return &s, nil
}

func (db *DB) queryLinks(query string, args ...any) ([]ThreadLink, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var links []ThreadLink
	for rows.Next() {
		var l ThreadLink
		var parent, insight sql.NullString
		var branches string
		if err := rows.Scan(&l.ID, &l.ThreadID, &l.IntrospectionID, &parent, &l.Depth,
			&l.Question, &insight, &l.CreatedAt, &branches); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.ParentLinkID = parent.String
		l.InsightSummary = insight.String
		if branches != "" {
			json.Unmarshal([]byte(branches), &l.BranchIDs)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

type threadScanner interface {
	Scan(dest ...any) error
}

func scanThreadRow(sc threadScanner) (*Thread, error) {
	var t Thread
	var fromThread, fromLink, conclusion sql.NullString
	var tags string
	err := sc.Scan(&t.ID, &t.Name, &t.Question, &t.CreatedAt, &t.UpdatedAt,
		&t.Status, &t.Depth, &t.RootIntrospectionID, &t.CurrentIntrospectionID,
		&fromThread, &fromLink, &conclusion, &tags)
	if err != nil {
		return nil, err
	}
	t.BranchedFromThreadID = fromThread.String
	t.BranchedFromLinkID = fromLink.String
	t.Conclusion = conclusion.String
	if tags != "" {
		json.Unmarshal([]byte(tags), &t.Tags)
	}
	return &t, nil
}

func scanThread(row *sql.Row) (*Thread, error) {
	t, err := scanThreadRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	return t, nil
}

func scanThreads(rows *sql.Rows) ([]Thread, error) {
	var threads []Thread
	for rows.Next() {
		t, err := scanThreadRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, *t)
	}
	return threads, rows.Err()
}
