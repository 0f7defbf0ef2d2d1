package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityChef/internal/aggregate"
	"liquidityChef/internal/config"
	"liquidityChef/internal/storage"
	"liquidityChef/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.WindowBlocks == 0 {
		return fmt.Errorf("window-blocks must be positive")
	}
	if cfg.PGDSN == "" && cfg.Out == "" {
		return fmt.Errorf("an output path or a pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateName := fmt.Sprintf("%s:%d", cfg.StateName, cfg.WindowBlocks)
	var (
		sink       aggregate.Sink
		stateStore aggregate.StateStore
	)
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if cfg.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		sink = store
		stateStore = &aggregate.DBStateStore{Store: store, Name: stateName}
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
	}
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile, Name: stateName}
	}

	logger.Info("aggregate start",
		zap.String("in", cfg.Input),
		zap.Uint64("window_blocks", cfg.WindowBlocks),
		zap.String("out", cfg.Out),
		zap.String("pg", redactDSN(cfg.PGDSN)),
		zap.Uint64("recompute_from", cfg.RecomputeFrom),
	)

	aggregator := aggregate.NewAggregator(aggregate.Config{
		WindowBlocks:  cfg.WindowBlocks,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: cfg.RecomputeFrom,
		StateStore:    stateStore,
	}, sink, logger)

	summary, err := aggregator.Run(ctx, cfg.Input)
	if err != nil {
		return err
	}

	logger.Info("aggregate complete",
		zap.Int("total", summary.Total),
		zap.Int("windows", summary.Windows),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Uint64("max_block", summary.MaxBlock),
	)

	return nil
}
