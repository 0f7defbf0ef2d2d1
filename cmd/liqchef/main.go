package main

import (
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "liqchef",
		Short:        "Liquidity pool and reward engine simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario and emit event logs and a state checkpoint",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario YAML path")
	simulateCmd.Flags().String("out", "./data/logs.jsonl", "output event logs JSONL")
	simulateCmd.Flags().String("checkpoint", "./data/checkpoint.json", "final state checkpoint path")
	simulateCmd.Flags().String("checkpoint-name", "default", "checkpoint name when storing in Postgres")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for logs and checkpoints")
	simulateCmd.Flags().Bool("ensure-schema", false, "create Postgres tables if missing")
	simulateCmd.Flags().String("metrics-file", "", "optional Prometheus textfile output")
	simulateCmd.Flags().Int("batch-size", 500, "log records per sink write")
	simulateCmd.Flags().Int("max-retries", 5, "maximum retry attempts for sink writes")
	simulateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode event logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input event logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("checkpoint", "", "checkpoint used to attach pool metadata")
	decodeCmd.Flags().StringSlice("address", nil, "only decode logs from these addresses (comma-separated)")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed pool events into block window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input typed events JSONL")
	aggregateCmd.Flags().Uint64("window-blocks", 100, "aggregation window in blocks")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Bool("ensure-schema", false, "create Postgres tables if missing")
	aggregateCmd.Flags().String("out", "", "JSONL output when no Postgres DSN is set")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for sink writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("state-name", "aggregate", "progress row name in indexer_state")
	aggregateCmd.Flags().Uint64("recompute-from", 0, "recompute from block (inclusive)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against a state checkpoint",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	quoteCmd.Flags().String("checkpoint-name", "default", "checkpoint name when loading from Postgres")
	quoteCmd.Flags().String("pg-dsn", "", "load the checkpoint from Postgres instead of a file")
	quoteCmd.Flags().String("asset-in", "", "input asset (address or symbol)")
	quoteCmd.Flags().String("asset-out", "", "output asset (address or symbol)")
	quoteCmd.Flags().String("amount", "", "input amount in base units")
	quoteCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
