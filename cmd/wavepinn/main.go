package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"wavepinn/internal/checkpoint"
	"wavepinn/internal/config"
	"wavepinn/internal/metrics"
	"wavepinn/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config")
	preset := flag.String("preset", "", "Built-in experiment: constant, variable or wave2d")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	lr := flag.Float64("lr", 0, "Initial learning rate")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N epochs")
	checkpointEvery := flag.Int("checkpoint-every", 0, "Write a periodic checkpoint every N epochs")
	modelPath := flag.String("model-path", "", "Override the best-model checkpoint path")
	historyPath := flag.String("history-path", "", "Override the loss history CSV path")
	resume := flag.Bool("resume", false, "Continue from the latest saved checkpoint")
	eval := flag.Bool("eval", false, "Load the best checkpoint and print a few predictions instead of training")

	flag.Parse()

	cfg, err := loadConfig(*cfgPath, *preset)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		Epochs:          *epochs,
		LearningRate:    *lr,
		Seed:            *seed,
		LogEvery:        *logEvery,
		CheckpointEvery: *checkpointEvery,
		ModelPath:       *modelPath,
		HistoryPath:     *historyPath,
	})

	runCfg, err := cfg.RunConfig()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if *eval {
		evaluate(runCfg)
		return
	}

	if *resume {
		rp, err := resumePoint(runCfg)
		switch {
		case errors.Is(err, checkpoint.ErrNotFound):
			log.Printf("resume=none path=%s starting fresh", runCfg.ModelPath)
		case err != nil:
			log.Fatalf("resume from %s: %v", runCfg.ModelPath, err)
		case rp.Epoch >= runCfg.Epochs:
			log.Printf("resume=%s epoch=%d already reaches epochs=%d; nothing to do", rp.From, rp.Epoch, runCfg.Epochs)
			return
		default:
			log.Printf("resume=%s epoch=%d best_loss=%.4e", rp.From, rp.Epoch, rp.BestLoss)
			runCfg.Init = rp.Network
			runCfg.Resume = rp.Resume
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := trainer.Run(ctx, runCfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("training interrupted; history written to %s, continue with -resume", runCfg.HistoryPath)
			return
		}
		var div *trainer.DivergenceError
		if errors.As(err, &div) {
			log.Fatalf("training diverged at epoch %d (loss %v); history written to %s", div.Epoch, div.Loss, runCfg.HistoryPath)
		}
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("name=%s best_loss=%.4e best_epoch=%d model=%s history=%s",
		cfg.Name, res.BestLoss, res.BestEpoch, runCfg.ModelPath, runCfg.HistoryPath)
}

func loadConfig(path, preset string) (*config.Config, error) {
	switch {
	case path != "" && preset != "":
		return nil, errors.New("-config and -preset are mutually exclusive")
	case path != "":
		return config.Load(path)
	case preset != "":
		return config.Preset(preset)
	default:
		return config.Preset("constant")
	}
}

type resumed struct {
	*checkpoint.ResumePoint
	Resume *trainer.Resume
}

// resumePoint picks up the furthest snapshot next to the model path and the
// loss history written so far.
func resumePoint(cfg trainer.RunConfig) (*resumed, error) {
	rp, err := checkpoint.Resume(cfg.Model, cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	var history metrics.History
	if cfg.HistoryPath != "" {
		if history, err = metrics.LoadHistory(cfg.HistoryPath); err != nil {
			return nil, err
		}
	}
	return &resumed{
		ResumePoint: rp,
		Resume:      &trainer.Resume{Epoch: rp.Epoch, BestLoss: rp.BestLoss, History: history},
	}, nil
}

func evaluate(cfg trainer.RunConfig) {
	net, err := checkpoint.Load(cfg.Model, cfg.ModelPath)
	if errors.Is(err, checkpoint.ErrNotFound) {
		log.Printf("no trained model at %s; run training first", cfg.ModelPath)
		return
	}
	if err != nil {
		log.Fatalf("load %s: %v", cfg.ModelPath, err)
	}
	center := cfg.Domain.Center()
	tb := cfg.Domain.Time
	for _, t := range []float64{tb.Min, tb.Mid(), tb.Max} {
		p := append(append([]float64(nil), center...), t)
		log.Printf("u(%v)=%.6f", p, net.Predict(p...))
	}
}
