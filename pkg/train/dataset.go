package train

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// ErrLengthMismatch indicates feature and target row counts differ.
var ErrLengthMismatch = errors.New("features and targets must have the same number of rows")

// Dataset pairs feature and target matrices of equal length. Batches are
// taken sequentially in input order, so training is reproducible given a
// fixed input order.
type Dataset struct {
	features *mat.Dense
	targets  *mat.Dense
}

// NewDataset validates and wraps the given matrices. The matrices are
// retained, not copied.
func NewDataset(features, targets *mat.Dense) (*Dataset, error) {
	fr, _ := features.Dims()
	tr, _ := targets.Dims()
	if fr != tr {
		return nil, fmt.Errorf("dataset: %d feature rows vs %d target rows: %w", fr, tr, ErrLengthMismatch)
	}
	if fr == 0 {
		return nil, errors.New("dataset: empty")
	}
	return &Dataset{features: features, targets: targets}, nil
}

// datasetFile is the on-disk JSON shape of a training dataset.
type datasetFile struct {
	Features [][]float64 `json:"features"`
	Targets  [][]float64 `json:"targets"`
}

// LoadDataset reads a JSON dataset file with "features" and "targets"
// arrays of equal length and rectangular shape.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	var f datasetFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}

	features, err := denseFromRows(f.Features, "features")
	if err != nil {
		return nil, err
	}
	targets, err := denseFromRows(f.Targets, "targets")
	if err != nil {
		return nil, err
	}
	return NewDataset(features, targets)
}

func denseFromRows(rows [][]float64, what string) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset: %s is empty", what)
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("dataset: %s rows are empty", what)
	}
	m := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("dataset: %s row %d has %d columns, want %d", what, i, len(row), cols)
		}
		m.SetRow(i, row)
	}
	return m, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	r, _ := d.features.Dims()
	return r
}

// Dims returns (featureDim, targetDim).
func (d *Dataset) Dims() (int, int) {
	_, fc := d.features.Dims()
	_, tc := d.targets.Dims()
	return fc, tc
}

// Batch returns the [start, start+size) slice of the dataset, truncated at
// the end. The returned matrices share backing storage with the dataset.
func (d *Dataset) Batch(start, size int) (*mat.Dense, *mat.Dense) {
	n := d.Len()
	end := start + size
	if end > n {
		end = n
	}
	_, fc := d.features.Dims()
	_, tc := d.targets.Dims()
	x := d.features.Slice(start, end, 0, fc).(*mat.Dense)
	y := d.targets.Slice(start, end, 0, tc).(*mat.Dense)
	return x, y
}
