package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mzanella/gridforge/pkg/metrics"
)

type entry struct {
	id      string
	summary string
	vec     []float32
}

// MemoryProvider is an in-memory similarity index over prior scenario
// descriptions. Entries are embedded once at insert time; retrieval embeds
// the query and ranks by cosine similarity.
type MemoryProvider struct {
	embedder  Embedder
	threshold float64

	mu      sync.RWMutex
	entries []entry
}

// NewMemoryProvider builds a provider with the given embedder. A threshold
// of zero selects DefaultThreshold.
func NewMemoryProvider(embedder Embedder, threshold float64) *MemoryProvider {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &MemoryProvider{embedder: embedder, threshold: threshold}
}

// Add embeds and stores one prior scenario description.
func (p *MemoryProvider) Add(id, description, summary string) error {
	vec, err := p.embedder.Embed(description)
	if err != nil {
		return fmt.Errorf("rag: embedding %s: %w", id, err)
	}
	p.mu.Lock()
	p.entries = append(p.entries, entry{id: id, summary: summary, vec: vec})
	p.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Retrieve returns up to k entries scoring at or above the threshold,
// ranked by descending similarity.
func (p *MemoryProvider) Retrieve(ctx context.Context, query string, k int) ([]Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qv, err := p.embedder.Embed(query)
	if err != nil {
		metrics.RAGRetrievals.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rag: embedding query: %w", err)
	}

	p.mu.RLock()
	results := make([]Context, 0, len(p.entries))
	for _, e := range p.entries {
		score, err := cosineFunc(qv, e.vec)
		if err != nil {
			p.mu.RUnlock()
			metrics.RAGRetrievals.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("rag: scoring %s: %w", e.id, err)
		}
		if score >= p.threshold {
			results = append(results, Context{ID: e.id, Score: score, Summary: e.summary})
		}
	}
	p.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}

	if len(results) == 0 {
		metrics.RAGRetrievals.WithLabelValues("miss").Inc()
	} else {
		metrics.RAGRetrievals.WithLabelValues("hit").Inc()
	}
	return results, nil
}
