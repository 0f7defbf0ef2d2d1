package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityChef/internal/config"
	"liquidityChef/internal/scenario"
	"liquidityChef/internal/storage/postgres"
)

type quoteResult struct {
	Pool        string `json:"pool"`
	BlockNumber uint64 `json:"block_number"`
	AssetIn     string `json:"asset_in"`
	AssetOut    string `json:"asset_out"`
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out"`
	ReserveA    string `json:"reserve_a"`
	ReserveB    string `json:"reserve_b"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.AssetIn == "" || cfg.AssetOut == "" {
		return fmt.Errorf("asset-in and asset-out are required")
	}
	amountIn, err := scenario.ParseAmount(cfg.Amount)
	if err != nil {
		return err
	}

	cp, err := loadQuoteCheckpoint(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	world, err := scenario.Restore(cp, logger)
	if err != nil {
		return err
	}
	if world.Pool == nil {
		return fmt.Errorf("checkpoint has no pool")
	}

	assetIn, err := world.Resolve(cfg.AssetIn)
	if err != nil {
		return err
	}
	assetOut, err := world.Resolve(cfg.AssetOut)
	if err != nil {
		return err
	}

	amountOut, err := world.Pool.GetSwapInfo(assetIn, assetOut, amountIn)
	if err != nil {
		return err
	}

	reserveA, reserveB := world.Pool.Reserves()
	result := quoteResult{
		Pool:        world.Pool.Address().Hex(),
		BlockNumber: cp.BlockNumber,
		AssetIn:     assetIn.Hex(),
		AssetOut:    assetOut.Hex(),
		AmountIn:    amountIn.Dec(),
		AmountOut:   amountOut.Dec(),
		ReserveA:    reserveA.Dec(),
		ReserveB:    reserveB.Dec(),
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func loadQuoteCheckpoint(ctx context.Context, cfg config.QuoteConfig, logger *zap.Logger) (scenario.Checkpoint, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return scenario.Checkpoint{}, fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		data, ok, err := store.LoadCheckpoint(ctx, cfg.CheckpointName)
		if err != nil {
			return scenario.Checkpoint{}, err
		}
		if !ok {
			return scenario.Checkpoint{}, fmt.Errorf("checkpoint %q not found", cfg.CheckpointName)
		}
		logger.Debug("checkpoint loaded", zap.String("name", cfg.CheckpointName), zap.String("pg", redactDSN(cfg.PGDSN)))
		return scenario.DecodeCheckpoint(data)
	}

	cp, ok, err := scenario.NewCheckpointStore(cfg.Checkpoint).Load()
	if err != nil {
		return scenario.Checkpoint{}, err
	}
	if !ok {
		return scenario.Checkpoint{}, fmt.Errorf("checkpoint not found: %s", cfg.Checkpoint)
	}
	logger.Debug("checkpoint loaded", zap.String("path", cfg.Checkpoint))
	return cp, nil
}

