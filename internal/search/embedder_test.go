package search

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedderNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vec, err := e.Embed(context.Background(), "some words to hash into buckets")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 64 {
		t.Fatalf("len = %d, want 64", len(vec))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", math.Sqrt(norm))
	}
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e := NewHashEmbedder(32)
	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 1 {
		t.Errorf("empty text vec[0] = %v, want stable direction", vec[0])
	}
}

func TestHashEmbedderDefaults(t *testing.T) {
	e := NewHashEmbedder(0)
	if e.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions = %d, want %d", e.Dimensions(), DefaultDimensions)
	}
	if e.Model() == "" {
		t.Error("Model is empty")
	}
}

func TestHashEmbedderSharedVocabularyCloser(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "walking the dog in the park")
	near, _ := e.Embed(ctx, "the dog loves the park")
	far, _ := e.Embed(ctx, "quarterly revenue projections spreadsheet")

	if cosine(base, near) <= cosine(base, far) {
		t.Errorf("shared-vocabulary text not closer: near=%f far=%f",
			cosine(base, near), cosine(base, far))
	}
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
