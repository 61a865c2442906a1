// Package search defines the similarity-search capability consumed by the
// memory tiers, and provides an embedded implementation backed by
// chromem-go with a SQLite id registry for metadata scans.
package search

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the underlying similarity backend
// cannot serve a request.
var ErrUnavailable = errors.New("search backend unavailable")

// Document is one record in a similarity collection. Metadata is flat
// string-to-string, mirroring what embedded vector stores filter on.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is a document with its similarity to the query, highest first.
type Result struct {
	Document
	Similarity float32
}

// Index is the similarity-search port. One logical collection per memory
// tier; filters are exact-match over metadata.
type Index interface {
	// Add upserts a document into a collection.
	Add(ctx context.Context, collection string, doc Document) error

	// Query returns up to k documents ranked by similarity to text,
	// restricted to documents matching the where filter. An empty or
	// smaller-than-k collection yields fewer results, never an error.
	Query(ctx context.Context, collection, text string, k int, where map[string]string) ([]Result, error)

	// Get returns a document by id, or nil if absent.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Update replaces a document's metadata, keeping its content.
	Update(ctx context.Context, collection, id string, metadata map[string]string) error

	// Delete removes documents by id.
	Delete(ctx context.Context, collection string, ids ...string) error

	// Count returns the number of documents in a collection.
	Count(collection string) int

	// List returns documents matching the where filter, newest first.
	// limit <= 0 returns all matches.
	List(ctx context.Context, collection string, where map[string]string, limit int) ([]Document, error)
}
