package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityChef/internal/codec"
	"liquidityChef/internal/config"
	"liquidityChef/internal/model"
	"liquidityChef/internal/scenario"
	"liquidityChef/internal/storage"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	addresses := make(map[string]struct{}, len(cfg.Addresses))
	for _, input := range cfg.Addresses {
		addr, err := scenario.ParseAddress(input)
		if err != nil {
			return err
		}
		addresses[strings.ToLower(addr.Hex())] = struct{}{}
	}

	decoder, err := codec.NewDecoder(codec.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	poolMeta := codec.NewPoolMetaCache()
	if cfg.Checkpoint != "" {
		if err := loadPoolMeta(cfg.Checkpoint, poolMeta, logger); err != nil {
			return err
		}
	}
	decodeCtx := codec.DecodeContext{
		PoolMetaCache: poolMeta,
		Logger:        logger,
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.Int("addresses", len(addresses)),
	)

	scanner := bufio.NewScanner(inputFile)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total, decoded, skipped, failed int
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			writeDecodeError(errWriter, model.DecodeError{Error: err.Error()})
			continue
		}
		if record.Topic0() == "" {
			failed++
			writeDecodeError(errWriter, model.NewDecodeError(record, fmt.Errorf("missing topic0")))
			continue
		}

		if len(addresses) > 0 {
			if _, ok := addresses[strings.ToLower(record.Address)]; !ok {
				skipped++
				continue
			}
		}
		if !decoder.CanDecode(record.Topic0()) {
			skipped++
			continue
		}

		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			failed++
			writeDecodeError(errWriter, model.NewDecodeError(record, err))
			continue
		}

		if err := outWriter.Write(event); err != nil {
			return err
		}
		decoded++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

// loadPoolMeta registers the checkpoint's pool so its events carry pool metadata.
func loadPoolMeta(path string, cache *codec.PoolMetaCache, logger *zap.Logger) error {
	cp, ok, err := scenario.NewCheckpointStore(path).Load()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checkpoint not found: %s", path)
	}
	world, err := scenario.Restore(cp, logger)
	if err != nil {
		return err
	}
	if world.Pool == nil {
		logger.Warn("checkpoint has no pool", zap.String("checkpoint", path))
		return nil
	}
	cache.Set(world.Pool.Address(), world.Pool.Meta())
	return nil
}

func writeDecodeError(writer *storage.JSONLWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}

