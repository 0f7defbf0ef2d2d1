package aggregate

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"liquidityChef/internal/model"
)

const (
	testPool   = "0x00000000000000000000000000000000000000f0"
	testAssetA = "0x00000000000000000000000000000000000000aa"
	testAssetB = "0x00000000000000000000000000000000000000bb"
)

type memorySink struct {
	pools   []model.Pool
	metrics []model.PoolWindowMetrics
}

func (m *memorySink) UpsertPools(_ context.Context, pools []model.Pool) error {
	m.pools = append(m.pools, pools...)
	return nil
}

func (m *memorySink) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	m.metrics = append(m.metrics, metrics...)
	return nil
}

func (m *memorySink) window(start uint64) (model.PoolWindowMetrics, bool) {
	for _, metric := range m.metrics {
		if metric.WindowStart == start {
			return metric, true
		}
	}
	return model.PoolWindowMetrics{}, false
}

func typedLine(t *testing.T, block uint64, name string, decoded interface{}, withMeta bool) string {
	t.Helper()
	payload, err := json.Marshal(decoded)
	require.NoError(t, err)

	record := model.TypedEventRecord{
		ChainID:     31337,
		BlockNumber: block,
		Address:     testPool,
		EventName:   name,
		Decoded:     payload,
	}
	if withMeta {
		record.PoolMeta = &model.PoolMeta{
			AssetA:     testAssetA,
			AssetB:     testAssetB,
			ShareToken: testPool,
			FeeNum:     3,
			FeeDen:     1000,
		}
	}
	line, err := json.Marshal(record)
	require.NoError(t, err)
	return string(line)
}

func sampleInput(t *testing.T) string {
	lines := []string{
		typedLine(t, 1, "Mint", model.MintEventData{AmountA: "1000", AmountB: "1000", Shares: "1000000000000000000"}, true),
		typedLine(t, 2, "Swap", model.SwapEventData{AssetIn: testAssetA, AssetOut: testAssetB, AmountIn: "100", AmountOut: "90", FeeShares: "300000000000000"}, true),
		typedLine(t, 2, "Transfer", model.TransferEventData{Value: "100"}, false),
		"{not json",
		typedLine(t, 12, "Swap", model.SwapEventData{AssetIn: testAssetB, AssetOut: testAssetA, AmountIn: "50", AmountOut: "40", FeeShares: "0"}, true),
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestAggregatorBlockWindows(t *testing.T) {
	sink := &memorySink{}
	agg := NewAggregator(Config{WindowBlocks: 10}, sink, nil)

	summary, err := agg.Process(context.Background(), strings.NewReader(sampleInput(t)))
	require.NoError(t, err)
	require.Equal(t, 5, summary.Total)
	require.Equal(t, 2, summary.Windows)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, uint64(12), summary.MaxBlock)

	first, ok := sink.window(0)
	require.True(t, ok)
	require.Equal(t, uint64(9), first.WindowEnd)
	require.Equal(t, uint64(10), first.WindowSize)
	require.Equal(t, uint64(1), first.MintCount)
	require.Equal(t, uint64(1), first.SwapCount)
	require.Equal(t, "100", first.VolumeA)
	require.Equal(t, "90", first.VolumeB)
	require.Equal(t, "300000000000000", first.FeeShares)
	require.Equal(t, "1100", first.NetA)
	require.Equal(t, "910", first.NetB)

	second, ok := sink.window(10)
	require.True(t, ok)
	require.Equal(t, uint64(19), second.WindowEnd)
	require.Equal(t, "40", second.VolumeA)
	require.Equal(t, "50", second.VolumeB)
	require.Equal(t, "-40", second.NetA)
	require.Equal(t, "50", second.NetB)
	require.Equal(t, "0", second.FeeShares)

	require.Len(t, sink.pools, 1)
	require.Equal(t, uint64(1), sink.pools[0].FirstSeenBlock)
	require.Equal(t, testAssetA, sink.pools[0].AssetA)
	require.Equal(t, uint32(1000), sink.pools[0].FeeDen)
}

func TestAggregatorResumesFromState(t *testing.T) {
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "aggregate.json"), Name: "aggregate:10"}
	input := sampleInput(t)

	first := &memorySink{}
	_, err := NewAggregator(Config{WindowBlocks: 10, StateStore: store}, first, nil).
		Process(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	last, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(12), last)

	second := &memorySink{}
	summary, err := NewAggregator(Config{WindowBlocks: 10, StateStore: store}, second, nil).
		Process(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Zero(t, summary.Windows)
	require.Empty(t, second.metrics)
}

func TestFileStateStoreKeepsNamedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()
	small := &FileStateStore{Path: path, Name: "aggregate:10"}
	large := &FileStateStore{Path: path, Name: "aggregate:100"}

	_, ok, err := small.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, small.Save(ctx, 19))
	require.NoError(t, large.Save(ctx, 99))

	last, ok, err := small.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(19), last)

	last, ok, err = large.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(99), last)
}

func TestDBStateStoreWithoutStore(t *testing.T) {
	ctx := context.Background()
	store := &DBStateStore{Name: "aggregate:10"}

	last, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, last)
	require.NoError(t, store.Save(ctx, 19))
}

func TestAggregatorRecomputeFrom(t *testing.T) {
	sink := &memorySink{}
	agg := NewAggregator(Config{WindowBlocks: 10, RecomputeFrom: 12}, sink, nil)

	summary, err := agg.Process(context.Background(), strings.NewReader(sampleInput(t)))
	require.NoError(t, err)
	require.Equal(t, 1, summary.Windows)
	require.Len(t, sink.metrics, 1)
	require.Equal(t, uint64(10), sink.metrics[0].WindowStart)
	require.Equal(t, uint64(12), sink.pools[0].FirstSeenBlock)
}

func TestAggregatorRejectsBadConfig(t *testing.T) {
	_, err := NewAggregator(Config{}, &memorySink{}, nil).Process(context.Background(), strings.NewReader(""))
	require.Error(t, err)

	_, err = NewAggregator(Config{WindowBlocks: 5}, nil, nil).Process(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}

func TestAccumulatorRejectsForeignSwap(t *testing.T) {
	payload, err := json.Marshal(model.SwapEventData{AssetIn: testAssetA, AssetOut: "0x00000000000000000000000000000000000000cc", AmountIn: "1", AmountOut: "1"})
	require.NoError(t, err)
	record := model.TypedEventRecord{
		BlockNumber: 3,
		Address:     testPool,
		EventName:   "Swap",
		Decoded:     payload,
		PoolMeta:    &model.PoolMeta{AssetA: testAssetA, AssetB: testAssetB},
	}
	acc := NewAccumulator(record, 0, 9)
	require.Error(t, acc.AddEvent(record))
	require.Zero(t, acc.SwapCount)
}
