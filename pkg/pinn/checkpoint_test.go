package pinn

import (
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// perturb moves every parameter away from its seeded initialization so a
// round-trip test cannot pass by rebuilding the same network.
func perturb(g *Generator) {
	for i, p := range g.Parameters() {
		data := p.Value.RawMatrix().Data
		for j := range data {
			data[j] += 0.01 * float64(i+1)
		}
	}
}

func TestCheckpointRoundTripFloat64(t *testing.T) {
	topo := testTopology(t)
	g, err := New(testConfig(), topo)
	if err != nil {
		t.Fatal(err)
	}
	perturb(g)

	path := filepath.Join(t.TempDir(), "model.ckpt")
	if err := g.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, skipped, err := Load(path, topo)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped parameters: %v", skipped)
	}

	orig := g.Parameters()
	rest := loaded.Parameters()
	for i := range orig {
		a := orig[i].Value.RawMatrix().Data
		b := rest[i].Value.RawMatrix().Data
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("%s[%d]: %g != %g, float64 restore must be bit-identical",
					orig[i].Name, j, a[j], b[j])
			}
		}
	}
}

func TestCheckpointRoundTripFloat16(t *testing.T) {
	topo := testTopology(t)
	g, err := New(testConfig(), topo)
	if err != nil {
		t.Fatal(err)
	}
	perturb(g)

	path := filepath.Join(t.TempDir(), "model.f16.ckpt")
	if err := g.SaveWithPrecision(path, PrecisionFloat16); err != nil {
		t.Fatalf("SaveWithPrecision failed: %v", err)
	}

	loaded, skipped, err := Load(path, topo)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped parameters: %v", skipped)
	}

	orig := g.Parameters()
	rest := loaded.Parameters()
	for i := range orig {
		a := orig[i].Value.RawMatrix().Data
		b := rest[i].Value.RawMatrix().Data
		for j := range a {
			// Half precision keeps about three decimal digits for values of
			// this magnitude.
			if math.Abs(a[j]-b[j]) > 1e-2 {
				t.Fatalf("%s[%d]: %g vs %g beyond half-precision tolerance",
					orig[i].Name, j, a[j], b[j])
			}
		}
	}
}

func TestCheckpointUnknownPrecision(t *testing.T) {
	topo := testTopology(t)
	g, err := New(testConfig(), topo)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.SaveWithPrecision(filepath.Join(t.TempDir(), "x.ckpt"), Precision("float8")); err == nil {
		t.Error("unknown precision should fail")
	}
}

func TestCheckpointMissingFile(t *testing.T) {
	topo := testTopology(t)
	if _, _, err := Load(filepath.Join(t.TempDir(), "nope.ckpt"), topo); err == nil {
		t.Error("loading a missing checkpoint should fail")
	}
}

// writeRawCheckpoint gob-encodes a hand-built checkpoint file.
func writeRawCheckpoint(t *testing.T, ckpt checkpointFile) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.ckpt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(&ckpt); err != nil {
		t.Fatal(err)
	}
	return path
}

func baseCheckpoint() checkpointFile {
	cfg := testConfig()
	return checkpointFile{
		Version:   checkpointVersion,
		InputDim:  cfg.InputDim,
		HiddenDim: cfg.HiddenDim,
		OutputDim: cfg.OutputDim,
		NumLayers: cfg.NumLayers,
		Seed:      cfg.Seed,
		Precision: PrecisionFloat64,
	}
}

func TestCheckpointVersionMismatch(t *testing.T) {
	topo := testTopology(t)
	ckpt := baseCheckpoint()
	ckpt.Version = checkpointVersion + 1
	if _, _, err := Load(writeRawCheckpoint(t, ckpt), topo); err == nil {
		t.Error("future version should fail")
	}
}

func TestCheckpointSkipsMismatchedOptionalParams(t *testing.T) {
	topo := testTopology(t)
	ckpt := baseCheckpoint()
	ckpt.Params = []paramRecord{
		// Right name, wrong shape.
		{Name: "l0.bias", Rows: 1, Cols: 99, Policy: policyOptional, F64: make([]float64, 99)},
		// Name the architecture does not have.
		{Name: "ghost.weight", Rows: 2, Cols: 2, Policy: policyOptional, F64: make([]float64, 4)},
		// A record that matches and must restore.
		{Name: "out.bias", Rows: 1, Cols: testConfig().OutputDim, Policy: policyOptional,
			F64: []float64{9, 9, 9, 9, 9, 9}},
	}

	g, skipped, err := Load(writeRawCheckpoint(t, ckpt), topo)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(skipped) != 2 {
		t.Fatalf("skipped: got %v, want the two mismatched records", skipped)
	}
	seen := map[string]bool{}
	for _, name := range skipped {
		seen[name] = true
	}
	if !seen["l0.bias"] || !seen["ghost.weight"] {
		t.Errorf("skipped names: got %v", skipped)
	}

	for _, p := range g.Parameters() {
		if p.Name == "out.bias" {
			for j, v := range p.Value.RawMatrix().Data {
				if v != 9 {
					t.Fatalf("out.bias[%d] = %g, matching record should restore", j, v)
				}
			}
		}
	}
}

func TestCheckpointRequiredMismatchFails(t *testing.T) {
	topo := testTopology(t)
	ckpt := baseCheckpoint()
	ckpt.Params = []paramRecord{
		{Name: "l0.weight", Rows: 3, Cols: 3, Policy: policyRequired, F64: make([]float64, 9)},
	}
	if _, _, err := Load(writeRawCheckpoint(t, ckpt), topo); err == nil {
		t.Error("mismatched required parameter should fail the load")
	}
}

func TestCheckpointAtomicReplace(t *testing.T) {
	topo := testTopology(t)
	g, err := New(testConfig(), topo)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "model.ckpt")
	if err := g.Save(path); err != nil {
		t.Fatal(err)
	}
	perturb(g)
	if err := g.Save(path); err != nil {
		t.Fatalf("overwriting an existing checkpoint failed: %v", err)
	}

	// No temp files linger after the rename.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory should hold only the checkpoint, got %v", names)
	}

	if _, _, err := Load(path, topo); err != nil {
		t.Errorf("reloading the replaced checkpoint failed: %v", err)
	}
}
