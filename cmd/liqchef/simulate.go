package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityChef/internal/config"
	"liquidityChef/internal/metrics"
	"liquidityChef/internal/scenario"
	"liquidityChef/internal/storage"
	"liquidityChef/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	if cfg.Out == "" && cfg.PGDSN == "" {
		return fmt.Errorf("an output path or a pg dsn is required")
	}

	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks storage.MultiStorage
	if cfg.Out != "" {
		if err := truncateFile(cfg.Out); err != nil {
			return err
		}
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if cfg.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		sinks = append(sinks, store)
	}

	var recorder *metrics.Recorder
	if cfg.MetricsFile != "" {
		recorder = metrics.New(nil)
	}

	runner, err := scenario.NewRunner(sc, scenario.Options{
		Sink:         sinks,
		Metrics:      recorder,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("scenario", cfg.Scenario),
		zap.String("name", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.String("out", cfg.Out),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("metrics_file", cfg.MetricsFile),
	)

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	cp := runner.Checkpoint()
	if err := scenario.NewCheckpointStore(cfg.Checkpoint).Save(cp); err != nil {
		return err
	}
	if store != nil {
		data, err := scenario.EncodeCheckpoint(cp)
		if err != nil {
			return err
		}
		if err := store.SaveCheckpoint(ctx, cfg.CheckpointName, cp.BlockNumber, data); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
		return err
	}

	logger.Info("simulate complete",
		zap.Int("committed", result.Committed),
		zap.Int("expected_failures", result.ExpectedFailures),
		zap.Int("logs", result.Logs),
		zap.Uint64("final_block", result.FinalBlock),
	)
	return nil
}

func truncateFile(path string) error {
	writer, err := storage.NewJSONLWriter(path, false)
	if err != nil {
		return err
	}
	return writer.Close()
}
