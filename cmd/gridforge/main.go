package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mzanella/gridforge/pkg/grid"
	"github.com/mzanella/gridforge/pkg/physics"
	"github.com/mzanella/gridforge/pkg/pinn"
	"github.com/mzanella/gridforge/pkg/rag"
	"github.com/mzanella/gridforge/pkg/scenario"
	"github.com/mzanella/gridforge/pkg/train"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(logger, os.Args[2:])
	case "generate":
		err = runGenerate(logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gridforge <train|generate> [flags]")
}

func runTrain(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	topoPath := fs.String("topology", "topology.yaml", "Path to the YAML topology file")
	dataPath := fs.String("dataset", "dataset.json", "Path to the JSON training dataset")
	cfgPath := fs.String("config", "", "Optional YAML training config (defaults otherwise)")
	ckptPath := fs.String("checkpoint", "gridforge.ckpt", "Checkpoint path (overrides config)")
	metricsAddr := fs.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (disabled if empty)")
	fs.Parse(args)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics endpoint listening", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	topo, err := grid.Load(*topoPath)
	if err != nil {
		return err
	}
	ds, err := train.LoadDataset(*dataPath)
	if err != nil {
		return err
	}

	cfg := train.DefaultConfig()
	if *cfgPath != "" {
		if cfg, err = train.LoadConfig(*cfgPath); err != nil {
			return err
		}
	}
	if *ckptPath != "" {
		cfg.CheckpointPath = *ckptPath
	}

	genCfg := pinn.DefaultConfig()
	genCfg.InputDim, genCfg.OutputDim = ds.Dims()
	gen, err := pinn.New(genCfg, topo)
	if err != nil {
		return err
	}

	trainer, err := train.New(gen, cfg, logger)
	if err != nil {
		return err
	}

	// Ctrl+C stops cleanly at the next batch boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := trainer.Run(ctx, ds)
	if err != nil {
		return err
	}
	logger.Info("training finished", "epochs", report.Epochs, "final_loss", report.FinalLoss())
	return nil
}

func runGenerate(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	topoPath := fs.String("topology", "topology.yaml", "Path to the YAML topology file")
	ckptPath := fs.String("checkpoint", "gridforge.ckpt", "Path to a trained checkpoint")
	prompt := fs.String("prompt", "", "Generation prompt")
	generators := fs.Int("generators", 2, "Number of dispatchable producers")
	loads := fs.Int("loads", 1, "Number of dispatchable consumers")
	outPath := fs.String("out", "", "Output file (stdout if empty)")
	fs.Parse(args)

	topo, err := grid.Load(*topoPath)
	if err != nil {
		return err
	}
	gen, skipped, err := pinn.Load(*ckptPath, topo)
	if err != nil {
		return err
	}
	for _, name := range skipped {
		logger.Warn("checkpoint parameter skipped, using fresh initialization", "param", name)
	}

	normCfg := physics.DefaultNormalizerConfig()
	norm, err := physics.NewNormalizer(topo.NumBuses(), normCfg)
	if err != nil {
		return err
	}

	embedder, err := rag.NewHashEmbedder(256)
	if err != nil {
		return err
	}
	provider := rag.NewMemoryProvider(embedder, rag.DefaultThreshold)

	svc := scenario.NewService(
		gen,
		norm,
		physics.NewRebalancer(topo),
		scenario.NewDecoder(topo, normCfg.Band),
		provider,
		logger,
	)

	doc, err := svc.Generate(context.Background(), *prompt, scenario.Params{
		NumGenerators: *generators,
		NumLoads:      *loads,
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if *outPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		return err
	}
	logger.Info("scenario written", "id", doc.ID, "path", *outPath)
	return nil
}
