package pinn

import "math"

// Adam is a first-order adaptive optimizer: per-parameter moving averages of
// the gradient and squared gradient, with bias correction.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	params []*Param
	m      [][]float64
	v      [][]float64
	t      int
}

// NewAdam builds an optimizer over the given parameters with the standard
// decay rates (0.9 / 0.999) and epsilon 1e-8.
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		params: params,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, p := range params {
		r, c := p.Value.Dims()
		a.m[i] = make([]float64, r*c)
		a.v[i] = make([]float64, r*c)
	}
	return a
}

// Step applies one update using the gradients currently stored on the
// parameters.
func (a *Adam) Step() {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for i, p := range a.params {
		val := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		m := a.m[i]
		v := a.v[i]
		for j, g := range grad {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			val[j] -= a.lr * (m[j] / bc1) / (math.Sqrt(v[j]/bc2) + a.eps)
		}
	}
}
