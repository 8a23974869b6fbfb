package pinn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// PhysicsLoss returns the scalar physics-consistency penalty for a raw
// (uncorrected) prediction batch:
//
//	mean squared voltage-band violation
//	+ mean squared reference-angle violation
//	+ mean squared line-overload violation max(0, |flow_ratio|-1)^2
//
// The quantities penalized are exactly the ones the normalizer and
// rebalancer correct, computed from the same band and topology buffers, so
// the loss is zero if and only if the prediction already satisfies the
// voltage band, the zero reference angle, and every thermal limit.
func (g *Generator) PhysicsLoss(pred *mat.Dense) (float64, error) {
	_, cols := pred.Dims()
	if cols != g.cfg.OutputDim {
		return 0, &ShapeError{Op: "pinn: physics loss input", Want: g.cfg.OutputDim, Got: cols}
	}
	loss, _ := g.physicsLossGrad(pred, false)
	return loss, nil
}

// physicsLossGrad computes the physics penalty and, when withGrad is set,
// its analytic gradient wrt the prediction. Extra columns past the
// [V(n), Theta(n)] prefix carry no physics term and get zero gradient.
func (g *Generator) physicsLossGrad(pred *mat.Dense, withGrad bool) (float64, *mat.Dense) {
	rows, cols := pred.Dims()
	n := g.numBuses
	from, to := g.from, g.to
	reactance, limit := g.reactance, g.limit
	k := len(from)

	var grad *mat.Dense
	if withGrad {
		grad = mat.NewDense(rows, cols, nil)
	}

	var vLoss, aLoss, fLoss float64
	vScale := 1.0 / float64(rows*n)
	aScale := 1.0 / float64(rows)
	fScale := 0.0
	if k > 0 {
		fScale = 1.0 / float64(rows*k)
	}

	for i := 0; i < rows; i++ {
		row := pred.RawRowView(i)
		var gRow []float64
		if withGrad {
			gRow = grad.RawRowView(i)
		}

		// Voltage band: distance of V outside [VMin, VMax].
		for j := 0; j < n; j++ {
			v := row[j]
			switch {
			case v < g.band.VMin:
				d := g.band.VMin - v
				vLoss += d * d
				if withGrad {
					gRow[j] -= 2 * d * vScale
				}
			case v > g.band.VMax:
				d := v - g.band.VMax
				vLoss += d * d
				if withGrad {
					gRow[j] += 2 * d * vScale
				}
			}
		}

		// Reference angle: Theta[:,0] squared.
		ref := row[n]
		aLoss += ref * ref
		if withGrad {
			gRow[n] += 2 * ref * aScale
		}

		// Line overload: max(0, |flow_ratio|-1) per line. A zero-limit line
		// has no finite ratio; its raw |flow| stands in as the excess so the
		// penalty stays finite and still vanishes only at zero flow.
		theta := row[n : 2*n]
		for j := 0; j < k; j++ {
			diff := theta[from[j]] - theta[to[j]]
			flow := diff / reactance[j]

			var excess, dExcess float64
			if limit[j] > 0 {
				ratio := flow / limit[j]
				if math.Abs(ratio) <= 1 {
					continue
				}
				excess = math.Abs(ratio) - 1
				dExcess = sign(ratio) / (reactance[j] * limit[j])
			} else {
				if flow == 0 {
					continue
				}
				excess = math.Abs(flow)
				dExcess = sign(flow) / reactance[j]
			}

			fLoss += excess * excess
			if withGrad {
				d := 2 * excess * dExcess * fScale
				gRow[n+from[j]] += d
				gRow[n+to[j]] -= d
			}
		}
	}

	return vLoss*vScale + aLoss*aScale + fLoss*fScale, grad
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
