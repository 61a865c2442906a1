package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/driftline/mnemo/internal/store"
)

// ChromemIndex implements Index on chromem-go, a pure Go embedded vector
// database. chromem handles vector storage, cosine ranking, and metadata
// filters; it cannot enumerate documents, so ids are mirrored into the
// relational registry and List walks that mirror.
type ChromemIndex struct {
	db       *chromem.DB
	registry *store.DB
	embedder Embedder

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// Open creates a persistent index rooted at path.
func Open(path string, registry *store.DB, embedder Embedder) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem: %w", err)
	}
	return newIndex(db, registry, embedder), nil
}

// OpenMemory creates a non-persistent index for testing.
func OpenMemory(registry *store.DB, embedder Embedder) *ChromemIndex {
	return newIndex(chromem.NewDB(), registry, embedder)
}

func newIndex(db *chromem.DB, registry *store.DB, embedder Embedder) *ChromemIndex {
	return &ChromemIndex{
		db:          db,
		registry:    registry,
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}
}

func (x *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if col, ok := x.collections[name]; ok {
		return col, nil
	}

	col, err := x.db.GetOrCreateCollection(name, nil, x.embedFunc())
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w: %v", name, ErrUnavailable, err)
	}
	x.collections[name] = col
	return col, nil
}

func (x *ChromemIndex) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return x.embedder.Embed(ctx, text)
	}
}

// Add upserts a document and mirrors its id into the registry.
func (x *ChromemIndex) Add(ctx context.Context, collection string, doc Document) error {
	col, err := x.collection(collection)
	if err != nil {
		return err
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	})
	if err != nil {
		return fmt.Errorf("add document %s: %w", doc.ID, err)
	}

	return x.registry.RegisterDoc(collection, doc.ID)
}

// Query ranks documents by similarity to text. chromem rejects result
// counts larger than the (filtered) collection, so the requested k is
// clamped and then shrunk until the query succeeds.
func (x *ChromemIndex) Query(ctx context.Context, collection, text string, k int, where map[string]string) ([]Result, error) {
	col, err := x.collection(collection)
	if err != nil {
		return nil, err
	}

	total := col.Count()
	if total == 0 || k <= 0 {
		return nil, nil
	}
	if k > total {
		k = total
	}

	var raw []chromem.Result
	for ; k >= 1; k-- {
		raw, err = col.Query(ctx, text, k, where, nil)
		if err == nil {
			break
		}
		if !isTooFewDocsError(err) {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		if k == 1 {
			// Nothing matches the filter.
			return nil, nil
		}
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		results = append(results, Result{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}
	return results, nil
}

// Get returns a document by id, or nil if it is not in the collection.
func (x *ChromemIndex) Get(ctx context.Context, collection, id string) (*Document, error) {
	col, err := x.collection(collection)
	if err != nil {
		return nil, err
	}

	doc, err := col.GetByID(ctx, id)
	if err != nil {
		// chromem only errors here when the id is unknown.
		return nil, nil
	}
	return &Document{ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata}, nil
}

// Update replaces a document's metadata in place. The stored embedding is
// reused, so content stays searchable without re-embedding.
func (x *ChromemIndex) Update(ctx context.Context, collection, id string, metadata map[string]string) error {
	col, err := x.collection(collection)
	if err != nil {
		return err
	}

	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("update %s: document not found", id)
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	return nil
}

// Delete removes documents by id from the collection and the registry.
func (x *ChromemIndex) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := x.collection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	for _, id := range ids {
		if err := x.registry.UnregisterDoc(collection, id); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of documents in the collection.
func (x *ChromemIndex) Count(collection string) int {
	col, err := x.collection(collection)
	if err != nil {
		return 0
	}
	return col.Count()
}

// List walks the id registry newest-first and returns documents whose
// metadata matches the where filter exactly.
func (x *ChromemIndex) List(ctx context.Context, collection string, where map[string]string, limit int) ([]Document, error) {
	ids, err := x.registry.ListDocIDs(collection, 0)
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, id := range ids {
		doc, err := x.Get(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		if !matchesWhere(doc.Metadata, where) {
			continue
		}
		docs = append(docs, *doc)
		if limit > 0 && len(docs) >= limit {
			break
		}
	}
	return docs, nil
}

func matchesWhere(metadata, where map[string]string) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func isTooFewDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
