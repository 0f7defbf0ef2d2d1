package config

import (
	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	Checkpoint     string
	CheckpointName string
	PGDSN          string
	AssetIn        string
	AssetOut       string
	Amount         string
	LogLevel       string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v := newViper()
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-name", "default")
	v.SetDefault("log-level", "warn")

	if err := readConfig(v, cfgFile, flags); err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		Checkpoint:     v.GetString("checkpoint"),
		CheckpointName: v.GetString("checkpoint-name"),
		PGDSN:          v.GetString("pg-dsn"),
		AssetIn:        v.GetString("asset-in"),
		AssetOut:       v.GetString("asset-out"),
		Amount:         v.GetString("amount"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}
