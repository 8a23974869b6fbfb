package scenario

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/mzanella/gridforge/pkg/metrics"
	"github.com/mzanella/gridforge/pkg/physics"
	"github.com/mzanella/gridforge/pkg/pinn"
	"github.com/mzanella/gridforge/pkg/rag"
)

// Service is the generation pipeline: feature encoding, the raw forward
// pass, hard enforcement through the correction layers, and document
// decoding. The RAG provider is optional context, never ground truth; with
// a nil provider the pipeline is unchanged except for the missing context
// features.
type Service struct {
	gen      *pinn.Generator
	norm     *physics.Normalizer
	reb      *physics.Rebalancer
	dec      *Decoder
	provider rag.Provider
	logger   *slog.Logger

	contextK int
}

// NewService wires the generation pipeline. provider may be nil; a nil
// logger selects slog.Default().
func NewService(gen *pinn.Generator, norm *physics.Normalizer, reb *physics.Rebalancer, dec *Decoder, provider rag.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gen:      gen,
		norm:     norm,
		reb:      reb,
		dec:      dec,
		provider: provider,
		logger:   logger,
		contextK: 3,
	}
}

// Generate produces one scenario document from a prompt and parameters.
// The raw prediction is passed through the normalizer and the rebalancer,
// so the returned document always satisfies the voltage band, the
// reference-angle convention, and (for isolated overloads) the thermal
// limits.
func (s *Service) Generate(ctx context.Context, prompt string, prm Params) (*Document, error) {
	var contexts []rag.Context
	if s.provider != nil {
		var err error
		contexts, err = s.provider.Retrieve(ctx, prompt, s.contextK)
		if err != nil {
			// Auxiliary input only: log and keep going without context.
			s.logger.Warn("[Scenario] context retrieval failed", "error", err)
			contexts = nil
		}
	}

	features := s.encodeFeatures(prompt, contexts, prm)

	raw, err := s.gen.Forward(features)
	if err != nil {
		return nil, fmt.Errorf("scenario: forward: %w", err)
	}
	normalized, err := s.norm.Apply(raw)
	if err != nil {
		return nil, fmt.Errorf("scenario: normalize: %w", err)
	}
	corrected, flows, err := s.reb.Apply(normalized)
	if err != nil {
		return nil, fmt.Errorf("scenario: rebalance: %w", err)
	}

	id := uuid.NewString()
	doc, err := s.dec.Decode(id, corrected, flows, 0, prm)
	if err != nil {
		return nil, fmt.Errorf("scenario: decode: %w", err)
	}

	metrics.ScenariosGenerated.Inc()
	s.logger.Info("[Scenario] generated",
		"id", id,
		"buses", len(doc.Network.Bus),
		"lines", len(doc.Network.ACLine),
		"contexts", len(contexts),
	)
	return doc, nil
}

// encodeFeatures builds the 1-row input feature tensor: hashed prompt token
// counts in the leading buckets, then the requested device counts, then the
// mean context similarity. The encoding is deterministic so the same prompt
// and parameters reproduce the same scenario.
func (s *Service) encodeFeatures(prompt string, contexts []rag.Context, prm Params) *mat.Dense {
	dim := s.gen.Config().InputDim
	f := make([]float64, dim)

	promptDim := dim - 3
	if promptDim > 0 {
		for _, tok := range strings.Fields(strings.ToLower(prompt)) {
			h := fnv.New32a()
			h.Write([]byte(tok))
			f[int(h.Sum32())%promptDim]++
		}
		// Scale token counts into the unit range so they do not swamp the
		// parameter features.
		var max float64
		for _, v := range f[:promptDim] {
			if v > max {
				max = v
			}
		}
		if max > 0 {
			for i := range f[:promptDim] {
				f[i] /= max
			}
		}
	}

	if dim >= 3 {
		f[dim-3] = float64(prm.NumGenerators)
		f[dim-2] = float64(prm.NumLoads)
	}
	if dim >= 1 && len(contexts) > 0 {
		var sum float64
		for _, c := range contexts {
			sum += c.Score
		}
		f[dim-1] = sum / float64(len(contexts))
	}

	return mat.NewDense(1, dim, f)
}
