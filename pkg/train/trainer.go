package train

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mzanella/gridforge/pkg/metrics"
	"github.com/mzanella/gridforge/pkg/pinn"
)

// DivergenceError reports a NaN or Inf loss. Divisions by reactance or
// thermal limit can diverge, so the loop fails fast with enough context to
// locate the batch that blew up.
type DivergenceError struct {
	Epoch          int
	Batch          int
	LastFiniteLoss float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("training diverged at epoch %d batch %d (last finite loss %.6f)",
		e.Epoch, e.Batch, e.LastFiniteLoss)
}

// Report summarizes a completed run.
type Report struct {
	Epochs int
	// EpochLoss is the epoch-mean total loss, one entry per epoch.
	EpochLoss []float64
}

// FinalLoss returns the last epoch-mean loss.
func (r *Report) FinalLoss() float64 {
	if len(r.EpochLoss) == 0 {
		return math.NaN()
	}
	return r.EpochLoss[len(r.EpochLoss)-1]
}

// Trainer drives the epoch/batch loop for one generator. It owns the
// optimizer state; the generator itself only carries parameters and
// gradients.
type Trainer struct {
	gen    *pinn.Generator
	cfg    Config
	opt    *pinn.Adam
	logger *slog.Logger
}

// New builds a trainer. The logger handle is held explicitly; passing nil
// selects slog.Default().
func New(gen *pinn.Generator, cfg Config, logger *slog.Logger) (*Trainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		gen:    gen,
		cfg:    cfg,
		opt:    pinn.NewAdam(gen.Parameters(), cfg.LearningRate),
		logger: logger,
	}, nil
}

// Run trains to the epoch budget over the dataset with deterministic
// sequential batching. Cancellation is only checked at batch boundaries,
// never mid-batch.
func (t *Trainer) Run(ctx context.Context, ds *Dataset) (*Report, error) {
	report := &Report{EpochLoss: make([]float64, 0, t.cfg.Epochs)}
	lastFinite := math.NaN()

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		var epochTotal, epochData, epochPhys float64
		batches := 0

		for start := 0; start < ds.Len(); start += t.cfg.BatchSize {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			default:
			}

			x, y := ds.Batch(start, t.cfg.BatchSize)
			dataLoss, physLoss, err := t.gen.TrainStep(x, y, t.cfg.PhysicsWeight)
			if err != nil {
				return report, err
			}

			total := dataLoss + t.cfg.PhysicsWeight*physLoss
			if math.IsNaN(total) || math.IsInf(total, 0) {
				return report, &DivergenceError{Epoch: epoch, Batch: batches, LastFiniteLoss: lastFinite}
			}
			lastFinite = total

			t.opt.Step()
			epochTotal += total
			epochData += dataLoss
			epochPhys += physLoss
			batches++
		}

		meanTotal := epochTotal / float64(batches)
		report.EpochLoss = append(report.EpochLoss, meanTotal)
		report.Epochs = epoch

		t.logger.Info("[Train] epoch complete",
			"epoch", epoch,
			"epochs", t.cfg.Epochs,
			"loss", meanTotal,
			"data_loss", epochData/float64(batches),
			"physics_loss", epochPhys/float64(batches),
		)
		metrics.TrainEpochsTotal.Inc()
		metrics.TrainLoss.WithLabelValues("total").Set(meanTotal)
		metrics.TrainLoss.WithLabelValues("data").Set(epochData / float64(batches))
		metrics.TrainLoss.WithLabelValues("physics").Set(epochPhys / float64(batches))

		if t.cfg.CheckpointPath != "" && epoch%t.cfg.CheckpointEvery == 0 {
			if err := t.checkpoint(epoch); err != nil {
				return report, err
			}
		}
	}

	if t.cfg.CheckpointPath != "" && t.cfg.Epochs%t.cfg.CheckpointEvery != 0 {
		if err := t.checkpoint(t.cfg.Epochs); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (t *Trainer) checkpoint(epoch int) error {
	if err := t.gen.Save(t.cfg.CheckpointPath); err != nil {
		return fmt.Errorf("epoch %d: %w", epoch, err)
	}
	metrics.CheckpointsTotal.Inc()
	t.logger.Info("[Train] checkpoint written", "epoch", epoch, "path", t.cfg.CheckpointPath)
	return nil
}
