// Package chef implements a block-driven staking engine that distributes a fixed reward per
// block across depositors in proportion to their stake, using an accumulator-per-share.
package chef

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityChef/internal/errs"
	"liquidityChef/internal/fixedpoint"
	"liquidityChef/internal/ledger"
	"liquidityChef/internal/model"
)

// Precision scales AccRewardPerShare.
var Precision = uint256.NewInt(1_000_000_000_000)

// BlockSource reports the current block height.
type BlockSource interface {
	BlockNumber() uint64
}

// Config describes a new engine.
type Config struct {
	Address        common.Address
	Owner          common.Address
	RewardPerBlock *uint256.Int
	StartBlock     uint64
}

// RewardEngine accepts deposits of one asset and pays rewards in another (or the same) asset.
type RewardEngine struct {
	address   common.Address
	owner     common.Address
	staked    ledger.FungibleLedger
	reward    ledger.FungibleLedger
	blocks    BlockSource
	state     State
	snapshots []State
	emitter   ledger.Emitter
	logger    *zap.Logger
}

// New creates an engine. Accrual starts at the later of cfg.StartBlock and the current block.
func New(cfg Config, staked, reward ledger.FungibleLedger, blocks BlockSource, emitter ledger.Emitter, logger *zap.Logger) (*RewardEngine, error) {
	if staked == nil || reward == nil {
		return nil, errorsmod.Wrap(errs.ErrInput, "staked and reward assets are required")
	}
	if blocks == nil {
		return nil, errorsmod.Wrap(errs.ErrInput, "block source is required")
	}
	if cfg.Address == (common.Address{}) {
		return nil, errorsmod.Wrap(errs.ErrInput, "engine address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	start := cfg.StartBlock
	if current := blocks.BlockNumber(); current > start {
		start = current
	}
	state := newState(start)
	if cfg.RewardPerBlock != nil {
		state.RewardPerBlock = cfg.RewardPerBlock.Clone()
	}
	return &RewardEngine{
		address: cfg.Address,
		owner:   cfg.Owner,
		staked:  staked,
		reward:  reward,
		blocks:  blocks,
		state:   state,
		emitter: emitter,
		logger:  logger.With(zap.String("chef", cfg.Address.Hex())),
	}, nil
}

// Address returns the engine address that holds stake and reward funds.
func (e *RewardEngine) Address() common.Address { return e.address }

// Owner returns the account allowed to change the reward rate.
func (e *RewardEngine) Owner() common.Address { return e.owner }

func (e *RewardEngine) StakedToken() ledger.FungibleLedger { return e.staked }

func (e *RewardEngine) RewardToken() ledger.FungibleLedger { return e.reward }

func (e *RewardEngine) TotalStaked() *uint256.Int       { return e.state.TotalStaked.Clone() }
func (e *RewardEngine) AccRewardPerShare() *uint256.Int { return e.state.AccRewardPerShare.Clone() }
func (e *RewardEngine) RewardPerBlock() *uint256.Int    { return e.state.RewardPerBlock.Clone() }
func (e *RewardEngine) LastRewardBlock() uint64         { return e.state.LastRewardBlock }

// Position returns a copy of user's position.
func (e *RewardEngine) Position(user common.Address) Position {
	return e.state.position(user).clone()
}

// PendingReward projects the reward user could claim at the current block.
func (e *RewardEngine) PendingReward(user common.Address) (*uint256.Int, error) {
	acc, err := e.state.accrued(e.blocks.BlockNumber())
	if err != nil {
		return nil, err
	}
	return e.state.position(user).pending(acc)
}

// Deposit stakes amount from caller, paying out any reward accrued so far.
func (e *RewardEngine) Deposit(caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, errorsmod.Wrap(errs.ErrInput, "deposit: amount must be positive")
	}
	if err := e.updatePool(); err != nil {
		return nil, err
	}
	pos := e.state.position(caller)
	pending, err := pos.pending(e.state.AccRewardPerShare)
	if err != nil {
		return nil, err
	}
	staked, err := fixedpoint.Add(pos.Staked, amount)
	if err != nil {
		return nil, errorsmod.Wrap(err, "deposit")
	}
	total, err := fixedpoint.Add(e.state.TotalStaked, amount)
	if err != nil {
		return nil, errorsmod.Wrap(err, "deposit")
	}
	if err := e.checkRewardFunds(pending); err != nil {
		return nil, err
	}

	if err := e.staked.TransferFrom(e.address, caller, e.address, amount); err != nil {
		return nil, err
	}

	if err := e.commit(caller, staked, total); err != nil {
		return nil, err
	}
	e.emit(model.EventDeposit, model.StakeEventData{User: caller.Hex(), Amount: fixedpoint.Format(amount)})
	e.logger.Debug("deposit",
		zap.String("user", caller.Hex()),
		zap.String("amount", fixedpoint.Format(amount)),
		zap.String("reward", fixedpoint.Format(pending)),
	)

	if err := e.payReward(caller, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// Withdraw returns amount of caller's stake together with the reward accrued so far.
func (e *RewardEngine) Withdraw(caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, errorsmod.Wrap(errs.ErrInput, "withdraw: amount must be positive")
	}
	pos := e.state.position(caller)
	if amount.Gt(pos.Staked) {
		return nil, errorsmod.Wrapf(errs.ErrInsufficientBalance, "withdraw: %s exceeds stake %s",
			fixedpoint.Format(amount), fixedpoint.Format(pos.Staked))
	}
	if err := e.checkHolding(amount); err != nil {
		return nil, err
	}
	if err := e.updatePool(); err != nil {
		return nil, err
	}
	pending, err := pos.pending(e.state.AccRewardPerShare)
	if err != nil {
		return nil, err
	}
	staked, err := fixedpoint.Sub(pos.Staked, amount)
	if err != nil {
		return nil, errorsmod.Wrap(err, "withdraw")
	}
	total, err := fixedpoint.Sub(e.state.TotalStaked, amount)
	if err != nil {
		return nil, errorsmod.Wrap(err, "withdraw")
	}
	if err := e.checkRewardFunds(pending); err != nil {
		return nil, err
	}

	if err := e.commit(caller, staked, total); err != nil {
		return nil, err
	}
	e.emit(model.EventWithdraw, model.StakeEventData{User: caller.Hex(), Amount: fixedpoint.Format(amount)})
	e.logger.Debug("withdraw",
		zap.String("user", caller.Hex()),
		zap.String("amount", fixedpoint.Format(amount)),
		zap.String("reward", fixedpoint.Format(pending)),
	)

	if err := e.payReward(caller, pending); err != nil {
		return nil, err
	}
	if err := e.staked.Transfer(e.address, caller, amount); err != nil {
		return nil, err
	}
	return pending, nil
}

// Claim pays caller the reward accrued so far without touching the stake.
func (e *RewardEngine) Claim(caller common.Address) (*uint256.Int, error) {
	if err := e.updatePool(); err != nil {
		return nil, err
	}
	pos := e.state.position(caller)
	pending, err := pos.pending(e.state.AccRewardPerShare)
	if err != nil {
		return nil, err
	}
	if err := e.checkRewardFunds(pending); err != nil {
		return nil, err
	}

	if err := e.commit(caller, pos.Staked, e.state.TotalStaked); err != nil {
		return nil, err
	}
	e.emit(model.EventClaim, model.StakeEventData{User: caller.Hex(), Amount: fixedpoint.Format(pending)})
	e.logger.Debug("claim", zap.String("user", caller.Hex()), zap.String("reward", fixedpoint.Format(pending)))

	if err := e.payReward(caller, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// EmergencyWithdraw returns caller's whole stake and forfeits the pending reward.
func (e *RewardEngine) EmergencyWithdraw(caller common.Address) (*uint256.Int, error) {
	pos := e.state.position(caller)
	amount := pos.Staked.Clone()
	if err := e.checkHolding(amount); err != nil {
		return nil, err
	}
	if err := e.updatePool(); err != nil {
		return nil, err
	}
	total, err := fixedpoint.Sub(e.state.TotalStaked, amount)
	if err != nil {
		return nil, errorsmod.Wrap(err, "emergency withdraw")
	}

	e.state.Positions[caller] = Position{Staked: fixedpoint.Zero(), RewardDebt: fixedpoint.Zero()}
	e.state.TotalStaked = total
	e.emit(model.EventEmergencyWithdraw, model.StakeEventData{User: caller.Hex(), Amount: fixedpoint.Format(amount)})
	e.logger.Debug("emergency withdraw", zap.String("user", caller.Hex()), zap.String("amount", fixedpoint.Format(amount)))

	if !amount.IsZero() {
		if err := e.staked.Transfer(e.address, caller, amount); err != nil {
			return nil, err
		}
	}
	return amount, nil
}

// SetRewardPerBlock changes the reward rate after settling accrual at the old one.
func (e *RewardEngine) SetRewardPerBlock(caller common.Address, rate *uint256.Int) error {
	if caller != e.owner {
		return errorsmod.Wrapf(errs.ErrUnauthorized, "set reward rate: %s is not the owner", caller.Hex())
	}
	if rate == nil {
		return errorsmod.Wrap(errs.ErrInput, "set reward rate: rate is required")
	}
	if err := e.updatePool(); err != nil {
		return err
	}
	old := e.state.RewardPerBlock
	e.state.RewardPerBlock = rate.Clone()
	e.emit(model.EventRewardRateUpdated, model.RewardRateEventData{
		OldRate: fixedpoint.Format(old),
		NewRate: fixedpoint.Format(rate),
	})
	e.logger.Info("reward rate updated", zap.String("old", fixedpoint.Format(old)), zap.String("new", fixedpoint.Format(rate)))
	return nil
}

// Snapshot records the engine state and returns its id.
func (e *RewardEngine) Snapshot() int {
	e.snapshots = append(e.snapshots, e.state.Clone())
	return len(e.snapshots) - 1
}

// RevertToSnapshot restores the state recorded by Snapshot.
func (e *RewardEngine) RevertToSnapshot(id int) {
	if id < 0 || id >= len(e.snapshots) {
		panic(fmt.Sprintf("chef %s: invalid snapshot %d", e.address.Hex(), id))
	}
	e.state = e.snapshots[id]
	e.snapshots = e.snapshots[:id]
}

// DiscardSnapshot drops snapshot id and later ones.
func (e *RewardEngine) DiscardSnapshot(id int) {
	if id < 0 || id >= len(e.snapshots) {
		panic(fmt.Sprintf("chef %s: invalid snapshot %d", e.address.Hex(), id))
	}
	e.snapshots = e.snapshots[:id]
}

// updatePool brings AccRewardPerShare up to the current block.
func (e *RewardEngine) updatePool() error {
	current := e.blocks.BlockNumber()
	if current <= e.state.LastRewardBlock {
		return nil
	}
	acc, err := e.state.accrued(current)
	if err != nil {
		return err
	}
	e.state.AccRewardPerShare = acc
	e.state.LastRewardBlock = current
	return nil
}

func (e *RewardEngine) commit(user common.Address, staked, total *uint256.Int) error {
	debt, err := fixedpoint.MulDiv(staked, e.state.AccRewardPerShare, Precision)
	if err != nil {
		return errorsmod.Wrap(err, "reward debt")
	}
	e.state.Positions[user] = Position{Staked: staked.Clone(), RewardDebt: debt}
	e.state.TotalStaked = total.Clone()
	return nil
}

// checkHolding guards against paying out more stake than the engine holds.
func (e *RewardEngine) checkHolding(amount *uint256.Int) error {
	holding := e.staked.BalanceOf(e.address)
	if holding.Lt(amount) {
		return errorsmod.Wrapf(errs.ErrInvariantViolation, "engine holds %s of staked asset, need %s",
			fixedpoint.Format(holding), fixedpoint.Format(amount))
	}
	return nil
}

// checkRewardFunds keeps reward payouts from spending deposited stake when both assets are
// the same ledger. Distinct ledgers report their own shortfall on transfer.
func (e *RewardEngine) checkRewardFunds(amount *uint256.Int) error {
	if amount.IsZero() || e.reward.Address() != e.staked.Address() {
		return nil
	}
	holding := e.reward.BalanceOf(e.address)
	available := fixedpoint.Zero()
	if holding.Gt(e.state.TotalStaked) {
		available.Sub(holding, e.state.TotalStaked)
	}
	if available.Lt(amount) {
		return errorsmod.Wrapf(errs.ErrInsufficientBalance, "reward: engine has %s available beyond stake, need %s",
			fixedpoint.Format(available), fixedpoint.Format(amount))
	}
	return nil
}

func (e *RewardEngine) payReward(to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	return e.reward.Transfer(e.address, to, amount)
}

func (e *RewardEngine) emit(name string, data interface{}) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(model.Event{Address: e.address, Name: name, Data: data})
}
