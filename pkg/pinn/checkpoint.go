package pinn

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/x448/float16"

	"github.com/mzanella/gridforge/pkg/grid"
	"github.com/mzanella/gridforge/pkg/physics"
)

// Checkpoint schema. The architecture dimensions are recorded explicitly so
// a load can rebuild the network before touching any parameter, and every
// parameter record declares its own shape and restore policy instead of
// relying on a name/shape intersection guessed at load time.
const checkpointVersion = 1

// Precision selects the on-disk parameter encoding.
type Precision string

const (
	// PrecisionFloat64 round-trips parameters bit-identically.
	PrecisionFloat64 Precision = "float64"
	// PrecisionFloat16 halves checkpoint size at half-precision accuracy.
	PrecisionFloat16 Precision = "float16"
)

// Restore policies. Optional records are skipped on mismatch; required
// records fail the load.
const (
	policyOptional = "optional"
	policyRequired = "required"
)

type paramRecord struct {
	Name   string
	Rows   int
	Cols   int
	Policy string
	F64    []float64
	F16    []uint16
}

type checkpointFile struct {
	Version   int
	InputDim  int
	HiddenDim int
	OutputDim int
	NumLayers int
	Seed      int64
	Precision Precision
	Params    []paramRecord
}

// Save writes the generator architecture and parameters to path with
// float64 precision. The write goes to a temporary file first and is
// renamed into place so a crash never leaves a truncated checkpoint.
func (g *Generator) Save(path string) error {
	return g.SaveWithPrecision(path, PrecisionFloat64)
}

// SaveWithPrecision writes a checkpoint with the chosen parameter encoding.
func (g *Generator) SaveWithPrecision(path string, prec Precision) error {
	if prec != PrecisionFloat64 && prec != PrecisionFloat16 {
		return fmt.Errorf("checkpoint: unknown precision %q", prec)
	}

	ckpt := checkpointFile{
		Version:   checkpointVersion,
		InputDim:  g.cfg.InputDim,
		HiddenDim: g.cfg.HiddenDim,
		OutputDim: g.cfg.OutputDim,
		NumLayers: g.cfg.NumLayers,
		Seed:      g.cfg.Seed,
		Precision: prec,
	}
	for _, p := range g.Parameters() {
		r, c := p.Value.Dims()
		rec := paramRecord{Name: p.Name, Rows: r, Cols: c, Policy: policyOptional}
		data := p.Value.RawMatrix().Data
		if prec == PrecisionFloat16 {
			rec.F16 = make([]uint16, len(data))
			for i, v := range data {
				rec.F16[i] = float16.Fromfloat32(float32(v)).Bits()
			}
		} else {
			rec.F64 = make([]float64, len(data))
			copy(rec.F64, data)
		}
		ckpt.Params = append(ckpt.Params, rec)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ckpt-*")
	if err != nil {
		return fmt.Errorf("checkpoint: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(&ckpt); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: encoding: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("checkpoint: replacing %s: %w", path, err)
	}
	return nil
}

// Load reads a checkpoint, rebuilds the recorded architecture against the
// given topology, and restores every parameter whose name and shape match.
//
// Mismatched optional records are skipped, never fatal: the returned slice
// enumerates the names left at their fresh initialization so the caller can
// log them. Only a version mismatch, a corrupt file, or a mismatched
// required record fails the load.
func Load(path string, topo *grid.Topology) (*Generator, []string, error) {
	return LoadWithBand(path, topo, physics.DefaultBand())
}

// LoadWithBand is Load with an explicit voltage band.
func LoadWithBand(path string, topo *grid.Topology, band physics.Band) (*Generator, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint: opening %s: %w", path, err)
	}
	defer f.Close()

	var ckpt checkpointFile
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, nil, fmt.Errorf("checkpoint: decoding %s: %w", path, err)
	}
	if ckpt.Version != checkpointVersion {
		return nil, nil, fmt.Errorf("checkpoint: unsupported version %d (want %d)", ckpt.Version, checkpointVersion)
	}

	cfg := Config{
		InputDim:  ckpt.InputDim,
		HiddenDim: ckpt.HiddenDim,
		OutputDim: ckpt.OutputDim,
		NumLayers: ckpt.NumLayers,
		Seed:      ckpt.Seed,
	}
	g, err := NewWithBand(cfg, topo, band)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint: rebuilding architecture: %w", err)
	}

	byName := make(map[string]*Param)
	for _, p := range g.Parameters() {
		byName[p.Name] = p
	}

	var skipped []string
	for _, rec := range ckpt.Params {
		p, ok := byName[rec.Name]
		if ok {
			r, c := p.Value.Dims()
			ok = r == rec.Rows && c == rec.Cols
		}
		if !ok {
			if rec.Policy == policyRequired {
				return nil, nil, fmt.Errorf("checkpoint: required parameter %s (%dx%d) does not match the model", rec.Name, rec.Rows, rec.Cols)
			}
			skipped = append(skipped, rec.Name)
			continue
		}

		data := p.Value.RawMatrix().Data
		switch ckpt.Precision {
		case PrecisionFloat16:
			for i, bits := range rec.F16 {
				data[i] = float64(float16.Frombits(bits).Float32())
			}
		default:
			copy(data, rec.F64)
		}
	}

	return g, skipped, nil
}
