// Package physics contains the deterministic correction transforms applied to
// raw scenario tensors: the voltage/angle normalizer and the line-flow
// rebalancer. Both are small pure transforms holding precomputed topology
// buffers; there are no learnable parameters and no hidden state, so a single
// value can serve any number of concurrent callers.
//
// Tensor layout contract: every sample row is [V(n), Theta(n), Extra(k)]
// where n is the number of buses. The layout is shared with the generator and
// the scenario decoder and must not change across components.
package physics

import "errors"

// ErrLayout indicates an input tensor too narrow for the configured topology
// (fewer than 2*n columns). Shape problems are fatal at the call site and are
// never silently broadcast or truncated.
var ErrLayout = errors.New("tensor narrower than voltage+angle layout")

// Band is the per-unit voltage band scenarios must satisfy.
//
// The same value is injected into the normalizer, the physics loss, and the
// document decoder so the internal band can never drift from the one the
// external validator enforces.
type Band struct {
	VMin float64 `yaml:"v_min"`
	VMax float64 `yaml:"v_max"`
}

// DefaultBand returns the band the external OpenDSS validator checks,
// 0.95-1.05 p.u.
func DefaultBand() Band {
	return Band{VMin: 0.95, VMax: 1.05}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
