package rag

import (
	"errors"
	"hash/fnv"
	"strings"
)

// HashEmbedder is a deterministic local embedder: lowercase word tokens are
// hashed into a fixed number of buckets and the resulting count vector is
// L2-normalized. No network, no model weights, stable across processes,
// which is exactly what retrieval over scenario descriptions needs here.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder builds an embedder producing dim-dimensional vectors.
func NewHashEmbedder(dim int) (*HashEmbedder, error) {
	if dim <= 0 {
		return nil, errors.New("embedder: dimension must be positive")
	}
	return &HashEmbedder{dim: dim}, nil
}

// Dim returns the embedding dimension.
func (e *HashEmbedder) Dim() int { return e.dim }

// Embed converts text into a normalized bag-of-words hash vector.
func (e *HashEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()[]{}\"'")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dim]++
	}
	normalize(vec)
	return vec, nil
}
