// Package retrieval implements the lexical/dense/hybrid search pipeline and
// citation validation used by the chat and search endpoints.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Embedder turns text into a fixed-size unit-norm vector. Swapping the
// implementation (a real model API) only requires satisfying this contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Size() int
}

// HashEmbedder is a deterministic, dependency-free pseudo-embedding: it
// hashes each token of the input into a bucket position of a fixed-size
// vector with a hash-derived sign, then L2-normalizes. Same text always yields the same
// vector, which is what every retrieval test in this package depends on;
// swapping in a real embedding model later is a drop-in Embedder change.
type HashEmbedder struct {
	size int
}

// NewHashEmbedder builds a HashEmbedder producing vectors of the given size.
func NewHashEmbedder(size int) *HashEmbedder {
	return &HashEmbedder{size: size}
}

func (e *HashEmbedder) Size() int { return e.size }

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.size)
	for _, tok := range tokenize(text) {
		h := sha256.Sum256([]byte(tok))
		idx := binary.BigEndian.Uint64(h[:8]) % uint64(e.size)
		sign := float32(1)
		if h[8]%2 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	return normalize(vec), nil
}

func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
