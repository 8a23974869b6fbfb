package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/mzanella/gridforge/pkg/physics"
	"github.com/mzanella/gridforge/pkg/pinn"
	"github.com/mzanella/gridforge/pkg/rag"
)

func testService(t *testing.T, provider rag.Provider) *Service {
	t.Helper()
	topo := testTopology(t)

	gen, err := pinn.New(pinn.Config{
		InputDim: 8, HiddenDim: 16, OutputDim: 7, NumLayers: 2, Seed: 5,
	}, topo)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	cfg := physics.DefaultNormalizerConfig()
	norm, err := physics.NewNormalizer(topo.NumBuses(), cfg)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(gen, norm, physics.NewRebalancer(topo),
		NewDecoder(topo, cfg.Band), provider, logger)
}

func TestServiceGenerateInvariants(t *testing.T) {
	svc := testService(t, nil)

	doc, err := svc.Generate(context.Background(), "winter evening peak with tight margins",
		Params{NumGenerators: 2, NumLoads: 1})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if doc.ID == "" {
		t.Error("document has no id")
	}

	// Hard enforcement: every bus inside the band, reference angle zero.
	for i, b := range doc.Network.Bus {
		if b.InitialStatus.Vm < b.VmLb || b.InitialStatus.Vm > b.VmUb {
			t.Errorf("bus %d: Vm %g outside [%g, %g]", i, b.InitialStatus.Vm, b.VmLb, b.VmUb)
		}
	}
	if va := doc.Network.Bus[0].InitialStatus.Va; va != 0 {
		t.Errorf("reference bus angle: got %g, want 0", va)
	}

	// The single line has no neighbors, so its corrected flow must respect
	// the thermal limit exactly.
	for _, l := range doc.Network.ACLine {
		if math.Abs(l.InitialStatus.P) > l.MvaUbNom+1e-9 {
			t.Errorf("line %s: flow %g exceeds limit %g", l.UID, l.InitialStatus.P, l.MvaUbNom)
		}
	}

	if got := len(doc.Network.SimpleDispatchableDevice); got != 3 {
		t.Errorf("devices: got %d, want 3", got)
	}
}

func TestServiceGenerateDeterministicModuloID(t *testing.T) {
	svc := testService(t, nil)
	prm := Params{NumGenerators: 1, NumLoads: 1}

	a, err := svc.Generate(context.Background(), "same prompt", prm)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Generate(context.Background(), "same prompt", prm)
	if err != nil {
		t.Fatal(err)
	}

	if a.ID == b.ID {
		t.Error("documents should get distinct ids")
	}
	for i := range a.Network.Bus {
		if a.Network.Bus[i].InitialStatus != b.Network.Bus[i].InitialStatus {
			t.Errorf("bus %d operating point differs between identical requests", i)
		}
	}
	for i := range a.Network.ACLine {
		if a.Network.ACLine[i].InitialStatus != b.Network.ACLine[i].InitialStatus {
			t.Errorf("line %d flow differs between identical requests", i)
		}
	}

	// A different prompt changes the features and, in general, the scenario.
	c, err := svc.Generate(context.Background(), "quiet spring night", prm)
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range a.Network.Bus {
		if a.Network.Bus[i].InitialStatus != c.Network.Bus[i].InitialStatus {
			same = false
		}
	}
	if same {
		t.Error("distinct prompts produced identical operating points")
	}
}

func TestServiceGenerateWithRetrieval(t *testing.T) {
	embedder, err := rag.NewHashEmbedder(64)
	if err != nil {
		t.Fatal(err)
	}
	provider := rag.NewMemoryProvider(embedder, 0.1)
	if err := provider.Add("prior-1", "winter evening peak", "heavy winter load"); err != nil {
		t.Fatal(err)
	}

	svc := testService(t, provider)
	doc, err := svc.Generate(context.Background(), "winter evening peak",
		Params{NumGenerators: 1, NumLoads: 1})
	if err != nil {
		t.Fatalf("Generate with retrieval failed: %v", err)
	}
	for _, b := range doc.Network.Bus {
		if b.InitialStatus.Vm < b.VmLb || b.InitialStatus.Vm > b.VmUb {
			t.Errorf("Vm %g outside the band with retrieval active", b.InitialStatus.Vm)
		}
	}
}

type failingProvider struct{}

func (failingProvider) Retrieve(context.Context, string, int) ([]rag.Context, error) {
	return nil, errors.New("index offline")
}

func TestServiceGenerateSurvivesProviderFailure(t *testing.T) {
	svc := testService(t, failingProvider{})
	doc, err := svc.Generate(context.Background(), "any prompt", Params{NumGenerators: 1})
	if err != nil {
		t.Fatalf("retrieval failure must not fail generation: %v", err)
	}
	if doc == nil || len(doc.Network.Bus) == 0 {
		t.Error("expected a complete document despite the failed provider")
	}
}
