package search

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimensions() int
}

// HashEmbedder is a deterministic, dependency-free embedder: tokens are
// feature-hashed into a fixed number of signed buckets and the result is
// L2-normalized. Texts sharing vocabulary land near each other, which is
// enough for lexical-semantic recall without a model server. Swap in a
// real embedding backend for production-quality similarity.
type HashEmbedder struct {
	dims int
}

// DefaultDimensions is the bucket count used when none is given.
const DefaultDimensions = 256

// NewHashEmbedder creates a hash embedder with the given dimensionality.
// dims <= 0 selects DefaultDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Model() string   { return "hash-v1" }
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed hashes each token into a bucket with a hash-derived sign and
// normalizes the resulting vector. Deterministic for identical input.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()

		bucket := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// All-zero vectors break cosine similarity; give empty text a
		// stable arbitrary direction instead.
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
