package scenario

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"liquidityChef/internal/codec"
	"liquidityChef/internal/errs"
	"liquidityChef/internal/fixedpoint"
	"liquidityChef/internal/metrics"
	"liquidityChef/internal/model"
	"liquidityChef/internal/storage"
)

var (
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	usdc    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	weth    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	rwd     = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	chefHex = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func runFarm(t *testing.T, opts Options) (*Runner, Result) {
	t.Helper()
	sc, err := Load(filepath.Join("testdata", "farm.yaml"))
	require.NoError(t, err)

	opts.Now = fixedNow
	runner, err := NewRunner(sc, opts, nil)
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	return runner, result
}

func TestRunnerStakesPoolShares(t *testing.T) {
	runner, result := runFarm(t, Options{})
	w := runner.World()

	require.Equal(t, 8, result.Steps)
	require.Equal(t, 6, result.Committed)
	require.Equal(t, 2, result.ExpectedFailures)
	require.Equal(t, uint64(113), result.FinalBlock)

	reserveA, reserveB := w.Pool.Reserves()
	require.Equal(t, uint64(990), reserveA.Uint64())
	require.Equal(t, uint64(819), reserveB.Uint64())
	require.Equal(t, uint64(990*819), w.Pool.K().Uint64())

	require.Equal(t, "10000000000000000000", fixedpoint.Format(w.Tokens[rwd].BalanceOf(alice)))
	require.Equal(t, "990000000000000000000", fixedpoint.Format(w.Tokens[rwd].BalanceOf(chefHex)))
	require.Equal(t, uint64(999110), w.Tokens[usdc].BalanceOf(alice).Uint64())
	require.Equal(t, uint64(999091), w.Tokens[weth].BalanceOf(alice).Uint64())

	require.True(t, w.Chef.TotalStaked().IsZero())
	require.True(t, w.Pool.ShareBalance(chefHex).IsZero())
	// 1e18 minted, 3e14 fee shares to the pool, 1.0003e17 burned on remove.
	require.Equal(t, "899970000000000000", fixedpoint.Format(w.Pool.ShareBalance(alice)))
}

func TestRunnerWritesDecodableLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	_, result := runFarm(t, Options{Sink: storage.NewJsonlStorage(path), BatchSize: 3})
	require.Positive(t, result.Logs)

	decoder, err := codec.NewDecoder(codec.DecoderConfig{})
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	counts := make(map[string]int)
	lines := 0
	var lastBlock, lastIndex uint64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.LogRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		require.Equal(t, uint64(31337), record.ChainID)
		require.Equal(t, uint64(1700000000+record.BlockNumber*12), record.Timestamp)
		if record.BlockNumber == lastBlock && lines > 0 {
			require.Equal(t, lastIndex+1, record.LogIndex)
		}
		lastBlock, lastIndex = record.BlockNumber, record.LogIndex

		typed, err := decoder.Decode(record, codec.DecodeContext{})
		require.NoError(t, err)
		counts[typed.EventName]++
		lines++
	}
	require.NoError(t, scanner.Err())

	require.Equal(t, result.Logs, lines)
	require.Equal(t, 1, counts[model.EventSwap])
	require.Equal(t, 1, counts[model.EventMint])
	require.Equal(t, 1, counts[model.EventBurn])
	require.Equal(t, 1, counts[model.EventDeposit])
	require.Equal(t, 1, counts[model.EventWithdraw])
	require.Equal(t, 1, counts[model.EventClaim])
	require.Equal(t, 5, counts[model.EventApproval])
}

func TestRunnerRecordsMetrics(t *testing.T) {
	rec := metrics.New(nil)
	runFarm(t, Options{Metrics: rec})

	require.Equal(t, 1.0, testutil.ToFloat64(rec.OperationsTotal.WithLabelValues("swap", metrics.OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.OperationsTotal.WithLabelValues("swap", metrics.OutcomeExpected)))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.OperationsTotal.WithLabelValues("set_reward_rate", metrics.OutcomeExpected)))
	require.Equal(t, 113.0, testutil.ToFloat64(rec.BlockHeight))
	require.Equal(t, 0.0, testutil.ToFloat64(rec.ChefTotalStaked.WithLabelValues(chefHex.Hex())))
}

func TestCheckpointRoundTrip(t *testing.T) {
	runner, _ := runFarm(t, Options{})
	cp := runner.Checkpoint()

	store := NewCheckpointStore(filepath.Join(t.TempDir(), "state", "checkpoint.json"))
	require.NoError(t, store.Save(cp))
	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cp, loaded)

	restored, err := Restore(loaded, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(113), restored.Host.BlockNumber())
	require.Equal(t, runner.World().Pool.Export(), restored.Pool.Export())
	require.Equal(t, runner.World().Chef.Export(), restored.Chef.Export())

	amountIn := uint256.NewInt(50)
	want, err := runner.World().Pool.GetSwapInfo(weth, usdc, amountIn)
	require.NoError(t, err)
	got, err := restored.Pool.GetSwapInfo(weth, usdc, amountIn)
	require.NoError(t, err)
	require.Equal(t, want, got)

	addr, err := restored.Resolve("alice")
	require.NoError(t, err)
	require.Equal(t, alice, addr)
}

func TestCheckpointStoreMissingFile(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "missing.json"))
	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunnerStopsOnUnexpectedOutcome(t *testing.T) {
	base := `
chain_id: 1
start_block: 10
accounts: {alice: "0x0000000000000000000000000000000000000a11", bob: "0x0000000000000000000000000000000000000b0b"}
tokens:
  - {address: "0x00000000000000000000000000000000000000aa", symbol: AAA, balances: {alice: "100"}}
`
	cases := map[string]struct {
		steps  string
		target error
	}{
		"unexpected failure": {
			steps:  "steps:\n  - {op: transfer, caller: bob, token: AAA, to: alice, amount: \"1\"}\n",
			target: errs.ErrInsufficientBalance,
		},
		"expected failure missing": {
			steps: "steps:\n  - {op: transfer, caller: alice, token: AAA, to: bob, amount: \"1\", expect_error: insufficient_balance}\n",
		},
		"wrong failure": {
			steps:  "steps:\n  - {op: transfer, caller: bob, token: AAA, to: alice, amount: \"1\", expect_error: unauthorized}\n",
			target: errs.ErrInsufficientBalance,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			sc, err := Parse([]byte(base + tc.steps))
			require.NoError(t, err)
			runner, err := NewRunner(sc, Options{}, nil)
			require.NoError(t, err)

			_, err = runner.Run(context.Background())
			require.Error(t, err)
			if tc.target != nil {
				require.True(t, errors.Is(err, tc.target), "got %v", err)
			}
		})
	}
}

func TestRunnerAnyExpectedError(t *testing.T) {
	sc, err := Parse([]byte(`
start_block: 1
accounts: {alice: "0x0000000000000000000000000000000000000a11"}
tokens:
  - {address: "0x00000000000000000000000000000000000000aa", symbol: AAA}
steps:
  - {op: swap, caller: alice, asset_in: AAA, asset_out: AAA, amount: "1", expect_error: any}
  - {block: 5, op: mint, token: AAA, to: alice, amount: "7"}
`))
	require.NoError(t, err)
	runner, err := NewRunner(sc, Options{}, nil)
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ExpectedFailures)
	require.Equal(t, 1, result.Committed)
	require.Equal(t, uint64(7), runner.World().Tokens[common.HexToAddress("0xaa")].BalanceOf(alice).Uint64())
}

func TestRunnerRejectsMintingPoolShares(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "farm.yaml"))
	require.NoError(t, err)
	data = append(data, []byte("  - {block: 120, op: mint, token: pool, to: bob, amount: \"5000000000000000000\", expect_error: input}\n")...)

	sc, err := Parse(data)
	require.NoError(t, err)
	runner, err := NewRunner(sc, Options{Now: fixedNow}, nil)
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, result.ExpectedFailures)

	w := runner.World()
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	require.True(t, w.Pool.ShareBalance(bob).IsZero())
	require.Equal(t, "900270000000000000", fixedpoint.Format(w.Pool.TotalShares()))

	_, ok := w.Token(w.Pool.Address())
	require.False(t, ok)
}
