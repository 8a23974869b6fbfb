package physics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mzanella/gridforge/pkg/grid"
)

func twoBusTopology(t *testing.T, reactance, limit float64) *grid.Topology {
	t.Helper()
	topo, err := grid.New(
		[]grid.BusRecord{{UID: "bus_0"}, {UID: "bus_1"}},
		[]grid.LineRecord{{UID: "acl_0", FromBus: "bus_0", ToBus: "bus_1", Reactance: reactance, ThermalLimitMVA: limit}},
	)
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	return topo
}

func TestRebalancerSingleOverload(t *testing.T) {
	// x = 0.1, limit = 1.0, raw angle diff = 0.5: flow = 5, ratio = 5.
	topo := twoBusTopology(t, 0.1, 1.0)
	r := NewRebalancer(topo)

	x := mat.NewDense(1, 4, []float64{1.0, 1.0, 0.5, 0.0})
	corrected, flows, err := r.Apply(x)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	flow := flows.At(0, 0)
	if math.Abs(flow) > 1.0+1e-5 {
		t.Fatalf("corrected flow %g still exceeds the limit", flow)
	}
	// The isolated overload is resolved exactly at the limit.
	if math.Abs(flow-1.0) > 1e-9 {
		t.Errorf("flow: got %g, want 1.0", flow)
	}

	// The correction split evenly across the endpoints.
	if diff := corrected.At(0, 2) - corrected.At(0, 3); math.Abs(diff-0.1) > 1e-12 {
		t.Errorf("corrected angle diff: got %g, want 0.1", diff)
	}
	if from := corrected.At(0, 2); math.Abs(from-0.3) > 1e-12 {
		t.Errorf("from angle: got %g, want 0.3", from)
	}
}

func TestRebalancerCompliantNoOp(t *testing.T) {
	topo := twoBusTopology(t, 0.1, 1.0)
	r := NewRebalancer(topo)

	// diff = 0.05, flow = 0.5: within the limit.
	x := mat.NewDense(1, 4, []float64{1.0, 1.0, 0.05, 0.0})
	corrected, flows, err := r.Apply(x)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !mat.EqualApprox(corrected, x, 1e-15) {
		t.Error("compliant tensor should pass through unchanged")
	}
	if got := flows.At(0, 0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("flow: got %g, want 0.5", got)
	}
}

func TestRebalancerIdempotent(t *testing.T) {
	topo := twoBusTopology(t, 0.1, 1.0)
	r := NewRebalancer(topo)

	inputs := [][]float64{
		{1.0, 1.0, 0.5, 0.0},   // overloaded
		{1.0, 1.0, 0.05, 0.0},  // compliant
		{1.0, 1.0, -0.7, 0.1},  // overloaded, negative direction
		{1.0, 1.0, 0.1, 0.0},   // exactly at the limit
	}
	for _, in := range inputs {
		x := mat.NewDense(1, 4, in)
		once, flowsOnce, err := r.Apply(x)
		if err != nil {
			t.Fatalf("first Apply: %v", err)
		}
		_, flowsTwice, err := r.Apply(once)
		if err != nil {
			t.Fatalf("second Apply: %v", err)
		}
		if !mat.EqualApprox(flowsOnce, flowsTwice, 1e-12) {
			t.Errorf("input %v: flows changed on re-application: %v vs %v",
				in, flowsOnce.RawRowView(0), flowsTwice.RawRowView(0))
		}
	}
}

func TestRebalancerZeroLimit(t *testing.T) {
	// A zero thermal limit makes any nonzero flow overloaded; the single
	// pass drives the angle difference to zero.
	topo := twoBusTopology(t, 0.2, 0)
	r := NewRebalancer(topo)

	x := mat.NewDense(1, 4, []float64{1.0, 1.0, 0.3, -0.1})
	_, flows, err := r.Apply(x)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := flows.At(0, 0); math.Abs(got) > 1e-12 {
		t.Errorf("zero-limit flow: got %g, want 0", got)
	}
}

func TestRebalancerSharedBusAccumulation(t *testing.T) {
	// Two overloaded lines in a chain share bus_1. Shifts accumulate
	// additively: the shared bus receives +0.2 from one line and -0.2 from
	// the other and stays put, so one pass moves both flows from 5 to 3.
	topo, err := grid.New(
		[]grid.BusRecord{{UID: "bus_0"}, {UID: "bus_1"}, {UID: "bus_2"}},
		[]grid.LineRecord{
			{UID: "acl_0", FromBus: "bus_0", ToBus: "bus_1", Reactance: 0.1, ThermalLimitMVA: 1},
			{UID: "acl_1", FromBus: "bus_1", ToBus: "bus_2", Reactance: 0.1, ThermalLimitMVA: 1},
		},
	)
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	r := NewRebalancer(topo)

	x := mat.NewDense(1, 6, []float64{1, 1, 1, 0.5, 0.0, -0.5})
	corrected, flows, err := r.Apply(x)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	for j := 0; j < 2; j++ {
		if got := flows.At(0, j); math.Abs(got-3.0) > 1e-12 {
			t.Errorf("flow[%d]: got %g, want 3.0 after one pass", j, got)
		}
	}
	if mid := corrected.At(0, 4); mid != 0 {
		t.Errorf("shared bus angle moved: got %g, want 0", mid)
	}

	// The relaxation is stable: a further pass keeps reducing the
	// violation instead of oscillating.
	_, flows2, err := r.Apply(corrected)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	for j := 0; j < 2; j++ {
		if math.Abs(flows2.At(0, j)) >= math.Abs(flows.At(0, j)) {
			t.Errorf("flow[%d] did not decrease: %g -> %g", j, flows.At(0, j), flows2.At(0, j))
		}
	}
}

func TestRebalancerShapeError(t *testing.T) {
	topo := twoBusTopology(t, 0.1, 1.0)
	r := NewRebalancer(topo)
	if _, _, err := r.Apply(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("tensor narrower than 2n columns should fail")
	}
	if _, err := r.Flows(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("Flows on a narrow tensor should fail")
	}
}

func TestRebalancerFlows(t *testing.T) {
	topo := twoBusTopology(t, 0.25, 10)
	r := NewRebalancer(topo)
	x := mat.NewDense(2, 4, []float64{
		1, 1, 0.5, 0.0,
		1, 1, -0.25, 0.25,
	})
	flows, err := r.Flows(x)
	if err != nil {
		t.Fatalf("Flows failed: %v", err)
	}
	if got := flows.At(0, 0); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("flow[0]: got %g, want 2.0", got)
	}
	if got := flows.At(1, 0); math.Abs(got+2.0) > 1e-12 {
		t.Errorf("flow[1]: got %g, want -2.0", got)
	}
}
