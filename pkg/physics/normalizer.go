package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NormalizerConfig holds the bounds the normalizer enforces.
type NormalizerConfig struct {
	// Band is the per-unit voltage band. Defaults to the validator band.
	Band Band `yaml:"band"`
	// AngleLimit bounds non-reference angles to [-AngleLimit, +AngleLimit]
	// radians, a wide safety range that prevents divergence downstream.
	AngleLimit float64 `yaml:"angle_limit"`
}

// DefaultNormalizerConfig returns the bounds used in production.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		Band:       DefaultBand(),
		AngleLimit: 0.5,
	}
}

// Normalizer clamps voltages into the configured band and enforces the
// reference-bus angle convention. It is stateless and differentiable almost
// everywhere (the gradient is zero exactly at the clamp boundaries).
//
// Guarantee: for any input, the output satisfies V in [VMin, VMax] and
// Theta[:,0] == 0. Extra columns pass through unchanged.
type Normalizer struct {
	numBuses int
	cfg      NormalizerConfig
}

// NewNormalizer builds a normalizer for a grid with numBuses buses.
func NewNormalizer(numBuses int, cfg NormalizerConfig) (*Normalizer, error) {
	if numBuses <= 0 {
		return nil, fmt.Errorf("normalizer: numBuses must be positive, got %d", numBuses)
	}
	if cfg.Band.VMin <= 0 || cfg.Band.VMax < cfg.Band.VMin {
		return nil, fmt.Errorf("normalizer: invalid voltage band [%g, %g]", cfg.Band.VMin, cfg.Band.VMax)
	}
	if cfg.AngleLimit <= 0 {
		return nil, fmt.Errorf("normalizer: angle limit must be positive, got %g", cfg.AngleLimit)
	}
	return &Normalizer{numBuses: numBuses, cfg: cfg}, nil
}

// Band returns the voltage band the normalizer enforces.
func (nr *Normalizer) Band() Band { return nr.cfg.Band }

// Apply returns a corrected copy of x, same shape. The input is not modified.
//
// Angles are first re-referenced by subtracting each sample's slack angle,
// which preserves every pairwise angle difference (and therefore every line
// flow) while pinning Theta[:,0] to zero.
func (nr *Normalizer) Apply(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	n := nr.numBuses
	if cols < 2*n {
		return nil, fmt.Errorf("normalizer: %d columns for %d buses: %w", cols, n, ErrLayout)
	}

	out := mat.DenseCopyOf(x)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)

		for j := 0; j < n; j++ {
			row[j] = clamp(row[j], nr.cfg.Band.VMin, nr.cfg.Band.VMax)
		}

		ref := row[n]
		for j := n + 1; j < 2*n; j++ {
			row[j] = clamp(row[j]-ref, -nr.cfg.AngleLimit, nr.cfg.AngleLimit)
		}
		row[n] = 0
	}
	return out, nil
}
