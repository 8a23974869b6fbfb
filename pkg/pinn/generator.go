// Package pinn implements the physics-informed scenario generator: a stacked
// linear/ReLU network whose training loss combines a data-fit term with a
// physics-consistency penalty derived from the same voltage-band, reference-
// angle, and thermal-limit machinery the correction layers enforce.
//
// The forward pass is pure and does not apply the correction transforms;
// composition is explicit in the calling pipeline so callers can choose hard
// enforcement at generation time versus soft-penalty-only training.
package pinn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mzanella/gridforge/pkg/grid"
	"github.com/mzanella/gridforge/pkg/physics"
)

// ShapeError reports a batch or architecture dimension mismatch. Shape
// problems are fatal at the call site.
type ShapeError struct {
	Op   string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch: want %d, got %d", e.Op, e.Want, e.Got)
}

// Config describes the generator architecture.
type Config struct {
	InputDim  int   `yaml:"input_dim"`
	HiddenDim int   `yaml:"hidden_dim"`
	OutputDim int   `yaml:"output_dim"`
	NumLayers int   `yaml:"num_layers"`
	Seed      int64 `yaml:"seed"`
}

// DefaultConfig returns the baseline architecture.
func DefaultConfig() Config {
	return Config{
		InputDim:  10,
		HiddenDim: 64,
		OutputDim: 8,
		NumLayers: 3,
		Seed:      1,
	}
}

// Param is a named trainable tensor with its gradient buffer. The optimizer
// reads Grad and writes Value; TrainStep overwrites Grad on every call.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// linear is a fully connected layer computing y = x*W + b for a batch x.
type linear struct {
	w *Param // [in, out]
	b *Param // [1, out]
}

func newLinear(name string, in, out int, rng *rand.Rand) *linear {
	// Xavier/Glorot uniform initialization, zero biases.
	limit := math.Sqrt(6.0 / float64(in+out))
	w := mat.NewDense(in, out, nil)
	for i := 0; i < in; i++ {
		for j := 0; j < out; j++ {
			w.Set(i, j, rng.Float64()*2*limit-limit)
		}
	}
	return &linear{
		w: &Param{Name: name + ".weight", Value: w, Grad: mat.NewDense(in, out, nil)},
		b: &Param{Name: name + ".bias", Value: mat.NewDense(1, out, nil), Grad: mat.NewDense(1, out, nil)},
	}
}

func (l *linear) forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	_, out := l.w.Value.Dims()
	y := mat.NewDense(rows, out, nil)
	y.Mul(x, l.w.Value)
	bias := l.b.Value.RawRowView(0)
	for i := 0; i < rows; i++ {
		row := y.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return y
}

// backward overwrites the layer gradients given the layer input and the
// gradient flowing back from above, and returns the gradient wrt the input.
func (l *linear) backward(x, dY *mat.Dense) *mat.Dense {
	l.w.Grad.Mul(x.T(), dY)

	rows, _ := dY.Dims()
	bGrad := l.b.Grad.RawRowView(0)
	for j := range bGrad {
		bGrad[j] = 0
	}
	for i := 0; i < rows; i++ {
		row := dY.RawRowView(i)
		for j := range row {
			bGrad[j] += row[j]
		}
	}

	in, _ := l.w.Value.Dims()
	dX := mat.NewDense(rows, in, nil)
	dX.Mul(dY, l.w.Value.T())
	return dX
}

// Generator is the parametric feed-forward scenario model. It owns the
// physics-loss computation, built from the same topology buffers and voltage
// band the correction layers use.
//
// A live generator must not be mutated (optimizer step) concurrently with an
// in-flight Forward unless the caller serializes the two.
type Generator struct {
	cfg    Config
	layers []*linear

	// Topology-derived constant buffers, colocated with the parameters and
	// shared read-only with the correction layers.
	numBuses  int
	band      physics.Band
	from      []int
	to        []int
	reactance []float64
	limit     []float64
}

// New builds a generator for the given topology. OutputDim must cover the
// [V(n), Theta(n)] prefix of the scenario tensor layout.
func New(cfg Config, topo *grid.Topology) (*Generator, error) {
	return NewWithBand(cfg, topo, physics.DefaultBand())
}

// NewWithBand builds a generator with an explicit voltage band, shared with
// whatever normalizer and validator the caller wires up.
func NewWithBand(cfg Config, topo *grid.Topology, band physics.Band) (*Generator, error) {
	if cfg.InputDim <= 0 || cfg.HiddenDim <= 0 || cfg.OutputDim <= 0 {
		return nil, fmt.Errorf("pinn: dimensions must be positive: %+v", cfg)
	}
	if cfg.NumLayers < 1 {
		return nil, fmt.Errorf("pinn: need at least one hidden layer, got %d", cfg.NumLayers)
	}
	if n := topo.NumBuses(); cfg.OutputDim < 2*n {
		return nil, &ShapeError{Op: "pinn: output_dim vs topology", Want: 2 * n, Got: cfg.OutputDim}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	layers := make([]*linear, 0, cfg.NumLayers+1)
	layers = append(layers, newLinear("l0", cfg.InputDim, cfg.HiddenDim, rng))
	for i := 1; i < cfg.NumLayers; i++ {
		layers = append(layers, newLinear(fmt.Sprintf("l%d", i), cfg.HiddenDim, cfg.HiddenDim, rng))
	}
	layers = append(layers, newLinear("out", cfg.HiddenDim, cfg.OutputDim, rng))

	return &Generator{
		cfg:       cfg,
		layers:    layers,
		numBuses:  topo.NumBuses(),
		band:      band,
		from:      topo.FromIndices(),
		to:        topo.ToIndices(),
		reactance: topo.Reactances(),
		limit:     topo.Limits(),
	}, nil
}

// Config returns the architecture the generator was built with.
func (g *Generator) Config() Config { return g.cfg }

// Parameters returns the trainable parameters in a stable order.
func (g *Generator) Parameters() []*Param {
	params := make([]*Param, 0, 2*len(g.layers))
	for _, l := range g.layers {
		params = append(params, l.w, l.b)
	}
	return params
}

// Forward runs the batched feed-forward pass: stacked linear+ReLU blocks and
// a final linear projection. It is pure: no correction transform is applied
// and no internal state is touched.
func (g *Generator) Forward(x *mat.Dense) (*mat.Dense, error) {
	_, cols := x.Dims()
	if cols != g.cfg.InputDim {
		return nil, &ShapeError{Op: "pinn: forward input", Want: g.cfg.InputDim, Got: cols}
	}
	pred, _ := g.forwardTape(x, false)
	return pred, nil
}

// forwardTape runs the forward pass, optionally recording the per-layer
// inputs needed for backpropagation.
func (g *Generator) forwardTape(x *mat.Dense, record bool) (*mat.Dense, []*mat.Dense) {
	var inputs []*mat.Dense
	if record {
		inputs = make([]*mat.Dense, 0, len(g.layers))
	}

	h := x
	for i, l := range g.layers {
		if record {
			inputs = append(inputs, h)
		}
		h = l.forward(h)
		if i < len(g.layers)-1 {
			relu(h)
		}
	}
	return h, inputs
}

// backward propagates dOut through the network, overwriting every parameter
// gradient. inputs is the tape recorded by forwardTape; post-activation
// layer inputs double as the ReLU masks.
func (g *Generator) backward(inputs []*mat.Dense, dOut *mat.Dense) {
	d := dOut
	for i := len(g.layers) - 1; i >= 0; i-- {
		d = g.layers[i].backward(inputs[i], d)
		if i > 0 {
			// The input to layer i is the ReLU output of layer i-1:
			// zero entries mark where the activation gradient dies.
			maskReLU(d, inputs[i])
		}
	}
}

// TrainStep computes the combined loss on one batch, overwrites the
// parameter gradients, and returns (dataLoss, physicsLoss). The parameter
// values themselves are untouched; applying the update is the optimizer's
// job.
func (g *Generator) TrainStep(x, target *mat.Dense, physicsWeight float64) (float64, float64, error) {
	xr, xc := x.Dims()
	tr, tc := target.Dims()
	if xc != g.cfg.InputDim {
		return 0, 0, &ShapeError{Op: "pinn: train input", Want: g.cfg.InputDim, Got: xc}
	}
	if tc != g.cfg.OutputDim {
		return 0, 0, &ShapeError{Op: "pinn: train target", Want: g.cfg.OutputDim, Got: tc}
	}
	if xr != tr {
		return 0, 0, &ShapeError{Op: "pinn: batch rows", Want: xr, Got: tr}
	}

	pred, tape := g.forwardTape(x, true)

	dataLoss, dPred := msePair(pred, target)

	var physLoss float64
	if physicsWeight != 0 {
		loss, physGrad := g.physicsLossGrad(pred, true)
		physLoss = loss
		rows, cols := dPred.Dims()
		for i := 0; i < rows; i++ {
			dRow := dPred.RawRowView(i)
			pRow := physGrad.RawRowView(i)
			for j := 0; j < cols; j++ {
				dRow[j] += physicsWeight * pRow[j]
			}
		}
	} else {
		// Reported for logging; contributes no gradient.
		physLoss, _ = g.physicsLossGrad(pred, false)
	}

	g.backward(tape, dPred)
	return dataLoss, physLoss, nil
}

// msePair returns the mean squared error over all elements and its gradient
// wrt the prediction.
func msePair(pred, target *mat.Dense) (float64, *mat.Dense) {
	rows, cols := pred.Dims()
	grad := mat.NewDense(rows, cols, nil)
	total := 0.0
	scale := 1.0 / float64(rows*cols)
	for i := 0; i < rows; i++ {
		pRow := pred.RawRowView(i)
		tRow := target.RawRowView(i)
		gRow := grad.RawRowView(i)
		for j := 0; j < cols; j++ {
			diff := pRow[j] - tRow[j]
			total += diff * diff
			gRow[j] = 2 * diff * scale
		}
	}
	return total * scale, grad
}

// relu applies max(0, v) elementwise in place.
func relu(m *mat.Dense) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		for j, v := range row {
			if v < 0 {
				row[j] = 0
			}
		}
	}
}

// maskReLU zeroes d where the recorded activation is zero.
func maskReLU(d, act *mat.Dense) {
	rows, _ := d.Dims()
	for i := 0; i < rows; i++ {
		dRow := d.RawRowView(i)
		aRow := act.RawRowView(i)
		for j := range dRow {
			if aRow[j] <= 0 {
				dRow[j] = 0
			}
		}
	}
}
