package scenario

import (
	"context"
	"fmt"
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityChef/internal/codec"
	"liquidityChef/internal/errs"
	"liquidityChef/internal/fixedpoint"
	"liquidityChef/internal/host"
	"liquidityChef/internal/metrics"
	"liquidityChef/internal/model"
	"liquidityChef/internal/storage"
)

const defaultLogBatchSize = 500

// Options wires the runner to its outputs.
type Options struct {
	Sink         storage.Storage
	Metrics      *metrics.Recorder
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	Now          func() time.Time
}

// Result summarises a run.
type Result struct {
	Steps            int
	Committed        int
	ExpectedFailures int
	Logs             int
	FinalBlock       uint64
}

// Runner executes a scenario step by step through the host.
type Runner struct {
	sc      *Scenario
	world   *World
	opts    Options
	retry   retryPolicy
	encoder *codec.Encoder
	logger  *zap.Logger

	buffer   []model.LogRecord
	logBlock uint64
	logIndex uint
	logs     int
}

func NewRunner(sc *Scenario, opts Options, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultLogBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	world, err := Build(sc, logger)
	if err != nil {
		return nil, err
	}
	encoder, err := codec.NewEncoder()
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}

	return &Runner{
		sc:      sc,
		world:   world,
		opts:    opts,
		retry:   retryPolicy{MaxRetries: opts.MaxRetries, BaseDelay: opts.RetryBackoff},
		encoder: encoder,
		logger:  logger,
		buffer:  make([]model.LogRecord, 0, opts.BatchSize),
	}, nil
}

// World returns the live components driven by the runner.
func (r *Runner) World() *World {
	return r.world
}

// Run applies set-up and every step. It stops at the first step whose outcome differs from
// what the scenario declares.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var result Result
	h := r.world.Host

	receipt, err := h.Execute("setup", r.setup)
	r.opts.Metrics.ObserveReceipt("setup", receipt, false)
	if err != nil {
		return result, fmt.Errorf("apply setup: %w", err)
	}
	if err := r.record(ctx, receipt); err != nil {
		return result, err
	}

	for i, step := range r.sc.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if step.Block > 0 {
			if err := h.AdvanceTo(step.Block); err != nil {
				return result, fmt.Errorf("step %d: %w", i, err)
			}
		}

		step := step
		receipt, err := h.Execute(fmt.Sprintf("%d:%s", i, step.Op), func() error {
			return r.apply(step)
		})
		result.Steps++

		expected := step.ExpectError != ""
		matched := expected && matchesExpected(step.ExpectError, err)
		r.opts.Metrics.ObserveReceipt(step.Op, receipt, matched)

		switch {
		case err == nil && expected:
			return result, fmt.Errorf("step %d (%s): expected %s error, operation succeeded", i, step.Op, step.ExpectError)
		case err != nil && !matched:
			return result, fmt.Errorf("step %d (%s) at block %d: %w", i, step.Op, receipt.BlockNumber, err)
		case err != nil:
			result.ExpectedFailures++
			r.logger.Debug("expected failure", zap.Int("step", i), zap.String("op", step.Op), zap.Error(err))
		default:
			result.Committed++
			r.logger.Debug("step committed",
				zap.Int("step", i),
				zap.String("op", step.Op),
				zap.Uint64("block", receipt.BlockNumber),
				zap.Int("events", len(receipt.Events)),
			)
		}

		if err := r.record(ctx, receipt); err != nil {
			return result, err
		}
		r.opts.Metrics.ObservePool(r.world.Pool)
		r.opts.Metrics.ObserveChef(r.world.Chef)
	}

	if err := r.flush(ctx); err != nil {
		return result, err
	}

	result.Logs = r.logs
	result.FinalBlock = h.BlockNumber()
	r.logger.Info("scenario complete",
		zap.String("name", r.sc.Name),
		zap.Int("steps", result.Steps),
		zap.Int("committed", result.Committed),
		zap.Int("expected_failures", result.ExpectedFailures),
		zap.Int("logs", result.Logs),
		zap.Uint64("final_block", result.FinalBlock),
	)
	return result, nil
}

func (r *Runner) setup() error {
	w := r.world
	for _, spec := range r.sc.Tokens {
		addr, err := ParseAddress(spec.Address)
		if err != nil {
			return err
		}
		token := w.Tokens[addr]
		holders := make([]string, 0, len(spec.Balances))
		for holder := range spec.Balances {
			holders = append(holders, holder)
		}
		sort.Strings(holders)
		for _, holder := range holders {
			to, err := w.Resolve(holder)
			if err != nil {
				return err
			}
			amount, err := fixedpoint.Parse(spec.Balances[holder])
			if err != nil {
				return fmt.Errorf("balance of %s: %w", holder, err)
			}
			if err := token.Mint(to, amount); err != nil {
				return err
			}
		}
	}

	for _, approval := range r.sc.Approvals {
		token, err := w.resolveLedger(approval.Token)
		if err != nil {
			return err
		}
		owner, err := w.Resolve(approval.Owner)
		if err != nil {
			return err
		}
		spender, err := w.Resolve(approval.Spender)
		if err != nil {
			return err
		}
		amount, err := ParseAmount(approval.Amount)
		if err != nil {
			return err
		}
		if err := token.Approve(owner, spender, amount); err != nil {
			return err
		}
	}

	if r.sc.Chef != nil && r.sc.Chef.Funding != "" {
		funding, err := fixedpoint.Parse(r.sc.Chef.Funding)
		if err != nil {
			return fmt.Errorf("chef funding: %w", err)
		}
		rewardAddr := w.Chef.RewardToken().Address()
		token, ok := w.Token(rewardAddr)
		if !ok {
			return errorsmod.Wrapf(errs.ErrInput, "chef reward token %s is not mintable", rewardAddr.Hex())
		}
		if err := token.Mint(w.Chef.Address(), funding); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) apply(step Step) error {
	w := r.world
	caller, err := w.Resolve(step.Caller)
	if err != nil && step.Op != OpMint {
		return err
	}

	switch step.Op {
	case OpAdd, OpRemove, OpSwap:
		if w.Pool == nil {
			return errorsmod.Wrap(errs.ErrInput, "scenario has no pool")
		}
	case OpDeposit, OpWithdraw, OpClaim, OpEmergencyWithdraw, OpSetRewardRate:
		if w.Chef == nil {
			return errorsmod.Wrap(errs.ErrInput, "scenario has no chef")
		}
	}

	switch step.Op {
	case OpAdd:
		amountA, amountB, err := parsePair(step.AmountA, step.AmountB)
		if err != nil {
			return err
		}
		_, err = w.Pool.Add(caller, amountA, amountB)
		return err
	case OpRemove:
		amountA, amountB, err := parsePair(step.AmountA, step.AmountB)
		if err != nil {
			return err
		}
		_, _, err = w.Pool.Remove(caller, amountA, amountB)
		return err
	case OpSwap:
		assetIn, err := w.Resolve(step.AssetIn)
		if err != nil {
			return err
		}
		assetOut, err := w.Resolve(step.AssetOut)
		if err != nil {
			return err
		}
		amountIn, minOut, err := parsePair(step.Amount, step.MinOut)
		if err != nil {
			return err
		}
		_, err = w.Pool.Swap(caller, assetIn, assetOut, amountIn, minOut)
		return err
	case OpDeposit:
		amount, err := fixedpoint.Parse(step.Amount)
		if err != nil {
			return err
		}
		_, err = w.Chef.Deposit(caller, amount)
		return err
	case OpWithdraw:
		amount, err := fixedpoint.Parse(step.Amount)
		if err != nil {
			return err
		}
		_, err = w.Chef.Withdraw(caller, amount)
		return err
	case OpClaim:
		_, err := w.Chef.Claim(caller)
		return err
	case OpEmergencyWithdraw:
		_, err := w.Chef.EmergencyWithdraw(caller)
		return err
	case OpSetRewardRate:
		rate, err := fixedpoint.Parse(step.Rate)
		if err != nil {
			return err
		}
		return w.Chef.SetRewardPerBlock(caller, rate)
	case OpTransfer:
		token, err := w.resolveLedger(step.Token)
		if err != nil {
			return err
		}
		to, err := w.Resolve(step.To)
		if err != nil {
			return err
		}
		amount, err := fixedpoint.Parse(step.Amount)
		if err != nil {
			return err
		}
		return token.Transfer(caller, to, amount)
	case OpApprove:
		token, err := w.resolveLedger(step.Token)
		if err != nil {
			return err
		}
		spender, err := w.Resolve(step.Spender)
		if err != nil {
			return err
		}
		amount, err := ParseAmount(step.Amount)
		if err != nil {
			return err
		}
		return token.Approve(caller, spender, amount)
	case OpMint:
		addr, err := w.Resolve(step.Token)
		if err != nil {
			return err
		}
		token, ok := w.Token(addr)
		if !ok {
			return errorsmod.Wrapf(errs.ErrInput, "no token at %s", addr.Hex())
		}
		to, err := w.Resolve(step.To)
		if err != nil {
			return err
		}
		amount, err := fixedpoint.Parse(step.Amount)
		if err != nil {
			return err
		}
		return token.Mint(to, amount)
	default:
		return errorsmod.Wrapf(errs.ErrInput, "unknown op %q", step.Op)
	}
}

// record encodes a committed receipt's events and queues them for the sink.
func (r *Runner) record(ctx context.Context, receipt host.Receipt) error {
	if !receipt.Succeeded() || len(receipt.Events) == 0 {
		return nil
	}
	if receipt.BlockNumber != r.logBlock {
		r.logBlock = receipt.BlockNumber
		r.logIndex = 0
	}

	blockHash := host.BlockHash(receipt.BlockNumber)
	timestamp := r.sc.GenesisTime + receipt.BlockNumber*r.sc.BlockTime
	now := r.opts.Now()
	for _, event := range receipt.Events {
		log, err := r.encoder.Encode(event, codec.LogContext{
			BlockNumber: receipt.BlockNumber,
			BlockHash:   blockHash,
			TxHash:      receipt.TxHash,
			TxIndex:     uint(receipt.TxIndex),
			LogIndex:    r.logIndex,
		})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		r.logIndex++
		r.buffer = append(r.buffer, codec.BuildLogRecord(r.sc.ChainID, log, timestamp, now))
		r.logs++
	}

	if len(r.buffer) >= r.opts.BatchSize {
		return r.flush(ctx)
	}
	return nil
}

func (r *Runner) flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}
	if r.opts.Sink != nil {
		batch := r.buffer
		err := r.retry.do(ctx, r.logger, "put log batch", func(ctx context.Context) error {
			return r.opts.Sink.PutLogBatch(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("write logs: %w", err)
		}
	}
	r.buffer = r.buffer[:0]
	return nil
}

// Checkpoint exports the world at the current block.
func (r *Runner) Checkpoint() Checkpoint {
	return r.world.Checkpoint(r.opts.Now())
}

func parsePair(a, b string) (*uint256.Int, *uint256.Int, error) {
	first, err := fixedpoint.Parse(a)
	if err != nil {
		return nil, nil, err
	}
	second, err := fixedpoint.Parse(b)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}
