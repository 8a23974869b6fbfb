package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mzanella/gridforge/pkg/grid"
)

// Rebalancer computes DC-approximation line flows and corrects angle
// differences on overloaded lines so that no single isolated overload
// survives a pass.
//
// The per-line constant buffers (from-index, to-index, reactance, thermal
// limit) are drawn from the topology at construction and never change.
//
// The correction is a first-order, single-pass relaxation: each overloaded
// line computes the signed excess angle difference that would put its flow
// exactly at the limit, and splits the correction evenly between its two
// endpoint buses. Shifts from multiple simultaneously overloaded lines
// touching the same bus accumulate additively. This resolves any isolated
// overload exactly and is stable when overloaded lines share buses, but it
// is not globally optimal: heavily meshed simultaneous overloads may retain
// residual violations after one pass.
type Rebalancer struct {
	numBuses  int
	from      []int
	to        []int
	reactance []float64
	limit     []float64
}

// NewRebalancer builds a rebalancer over the topology's constant buffers.
// The buffers are shared with the topology, which is immutable.
func NewRebalancer(t *grid.Topology) *Rebalancer {
	return &Rebalancer{
		numBuses:  t.NumBuses(),
		from:      t.FromIndices(),
		to:        t.ToIndices(),
		reactance: t.Reactances(),
		limit:     t.Limits(),
	}
}

// NumLines returns the number of lines the rebalancer tracks.
func (r *Rebalancer) NumLines() int { return len(r.from) }

// Flows computes the DC-approximation flow tensor [batch, numLines] for x
// without applying any correction.
func (r *Rebalancer) Flows(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	n := r.numBuses
	if cols < 2*n {
		return nil, fmt.Errorf("rebalancer: %d columns for %d buses: %w", cols, n, ErrLayout)
	}

	flows := mat.NewDense(rows, len(r.from), nil)
	for i := 0; i < rows; i++ {
		theta := x.RawRowView(i)[n : 2*n]
		for j := range r.from {
			flows.Set(i, j, (theta[r.from[j]]-theta[r.to[j]])/r.reactance[j])
		}
	}
	return flows, nil
}

// Apply corrects overloaded lines and returns (corrected tensor, flow tensor).
// The input is not modified; the returned flow tensor is recomputed from the
// corrected angles.
//
// A line is overloaded when |flow| exceeds its thermal limit. The comparison
// avoids dividing by the limit, so a zero-limit line is simply one on which
// any nonzero flow is overloaded and gets driven to zero angle difference.
//
// Re-applying Apply to an already compliant tensor is a no-op.
func (r *Rebalancer) Apply(x *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	rows, cols := x.Dims()
	n := r.numBuses
	if cols < 2*n {
		return nil, nil, fmt.Errorf("rebalancer: %d columns for %d buses: %w", cols, n, ErrLayout)
	}

	out := mat.DenseCopyOf(x)
	flows := mat.NewDense(rows, len(r.from), nil)
	shift := make([]float64, n)

	for i := 0; i < rows; i++ {
		theta := out.RawRowView(i)[n : 2*n]

		for b := range shift {
			shift[b] = 0
		}

		for j := range r.from {
			diff := theta[r.from[j]] - theta[r.to[j]]
			if math.Abs(diff/r.reactance[j]) <= r.limit[j] {
				continue
			}
			// Angle difference that puts |flow| exactly at the limit.
			target := sign(diff) * r.limit[j] * r.reactance[j]
			delta := target - diff
			shift[r.from[j]] += delta / 2
			shift[r.to[j]] -= delta / 2
		}

		for b, s := range shift {
			theta[b] += s
		}

		for j := range r.from {
			flows.Set(i, j, (theta[r.from[j]]-theta[r.to[j]])/r.reactance[j])
		}
	}
	return out, flows, nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
