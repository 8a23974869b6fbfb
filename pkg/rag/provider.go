// Package rag supplies prior scenarios as optional auxiliary context for
// generation. Retrieval results are never ground truth and are never
// required for correctness: a nil provider or an empty result set leaves
// generation fully functional.
package rag

import "context"

// DefaultThreshold is the minimum similarity score a prior scenario must
// reach to be returned as context.
const DefaultThreshold = 0.7

// Context is one retrieved prior scenario with its similarity score.
type Context struct {
	ID      string
	Score   float64
	Summary string
}

// Provider retrieves zero or more prior scenarios similar to the query,
// ranked by descending score, all at or above the provider's threshold.
type Provider interface {
	Retrieve(ctx context.Context, query string, k int) ([]Context, error)
}

// Embedder converts text into a vector representation.
type Embedder interface {
	Embed(text string) ([]float32, error)
}
