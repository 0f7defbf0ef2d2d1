package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"liquidityChef/internal/model"
)

// Sink receives aggregated pools and window metrics.
type Sink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowBlocks  uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Summary reports counters from one aggregation run.
type Summary struct {
	Total    int
	Windows  int
	Skipped  int
	Failed   int
	MaxBlock uint64
}

// Aggregator aggregates typed pool events into block window metrics.
type Aggregator struct {
	cfg          Config
	sink         Sink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Summary, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	return a.Process(ctx, file)
}

// Process aggregates typed event JSON lines read from r. Records must be
// ordered by block within each pool.
func (a *Aggregator) Process(ctx context.Context, r io.Reader) (Summary, error) {
	var summary Summary
	if a.sink == nil {
		return summary, fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowBlocks == 0 {
		return summary, fmt.Errorf("window blocks must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startBlock, resume, err := a.loadStartBlock(ctx)
	if err != nil {
		return summary, err
	}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 256)
	summary.MaxBlock = startBlock

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		summary.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			summary.Failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if record.PoolMeta == nil || (resume && record.BlockNumber <= startBlock) {
			summary.Skipped++
			continue
		}

		windowStart := windowStart(record.BlockNumber, a.cfg.WindowBlocks)
		windowEnd := windowStart + a.cfg.WindowBlocks - 1

		accKey := poolKey(record.Address)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(acc)
			batch = append(batch, metrics)
			if pool != nil {
				pools = append(pools, *pool)
			}
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			summary.Failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			continue
		}

		if record.BlockNumber > summary.MaxBlock {
			summary.MaxBlock = record.BlockNumber
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return summary, err
			}
			summary.Windows += len(batch)
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx, summary.MaxBlock); err != nil {
				return summary, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(acc)
		batch = append(batch, metrics)
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return summary, err
		}
		summary.Windows += len(batch)
	}

	if err := a.saveState(ctx, summary.MaxBlock); err != nil {
		return summary, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", summary.Total),
		zap.Int("windows", summary.Windows),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Uint64("max_block", summary.MaxBlock),
	)

	return summary, nil
}

// loadStartBlock returns the last block already covered and whether records
// at or below it must be skipped.
func (a *Aggregator) loadStartBlock(ctx context.Context) (uint64, bool, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, true, nil
	}
	if a.cfg.StateStore == nil {
		return 0, false, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, false, err
	}
	return last, ok, nil
}

// saveState records the last block whose windows are fully flushed.
func (a *Aggregator) saveState(ctx context.Context, maxBlock uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if start, ok := minOpenWindowStart(a.accumulators); ok {
		if start == 0 {
			return nil
		}
		return a.cfg.StateStore.Save(ctx, start-1)
	}
	return a.cfg.StateStore.Save(ctx, maxBlock)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.sink.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) (model.PoolWindowMetrics, *model.Pool) {
	return acc.Metrics(a.cfg.WindowBlocks), a.registerPool(acc)
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		AssetA:         acc.PoolMeta.AssetA,
		AssetB:         acc.PoolMeta.AssetB,
		ShareToken:     acc.PoolMeta.ShareToken,
		FeeNum:         acc.PoolMeta.FeeNum,
		FeeDen:         acc.PoolMeta.FeeDen,
		FirstSeenBlock: acc.FirstBlock,
	}

	existing, ok := a.poolSeen[key]
	if ok && existing.FirstSeenBlock <= pool.FirstSeenBlock {
		return nil
	}

	a.poolSeen[key] = pool
	return &pool
}

func windowStart(block uint64, windowBlocks uint64) uint64 {
	return block - (block % windowBlocks)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) (uint64, bool) {
	var min uint64
	found := false
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if !found || entry.WindowStart < min {
			min = entry.WindowStart
			found = true
		}
	}
	return min, found
}
