package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// 1. Training epochs (Counter)
	// Counts completed epochs across all training runs.
	TrainEpochsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridforge_train_epochs_total",
			Help: "Total number of completed training epochs",
		},
	)

	// 2. Training loss (Gauge)
	// Last epoch-mean loss, labeled by component so data-fit and physics
	// terms can be watched separately.
	TrainLoss = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridforge_train_loss",
			Help: "Epoch-mean training loss of the last completed epoch",
		},
		[]string{"component"}, // data | physics | total
	)

	// 3. Checkpoints written (Counter)
	CheckpointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridforge_checkpoints_total",
			Help: "Total number of checkpoints written",
		},
	)

	// 4. Scenarios generated (Counter)
	ScenariosGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridforge_scenarios_generated_total",
			Help: "Total number of scenario documents generated",
		},
	)

	// 5. RAG retrievals (Counter)
	// Counts retrieval calls against the context provider, labeled by outcome.
	RAGRetrievals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridforge_rag_retrievals_total",
			Help: "Total number of RAG context retrievals",
		},
		[]string{"outcome"}, // hit | miss | error
	)
)
