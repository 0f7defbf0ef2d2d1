package chef

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityChef/internal/fixedpoint"
	"liquidityChef/internal/ledger"
	"liquidityChef/internal/model"
)

// Position is one depositor's stake and the share of AccRewardPerShare already attributed to it.
type Position struct {
	Staked     *uint256.Int
	RewardDebt *uint256.Int
}

func (p Position) clone() Position {
	return Position{Staked: p.Staked.Clone(), RewardDebt: p.RewardDebt.Clone()}
}

// pending is Staked*acc/Precision - RewardDebt.
func (p Position) pending(acc *uint256.Int) (*uint256.Int, error) {
	accrued, err := fixedpoint.MulDiv(p.Staked, acc, Precision)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Sub(accrued, p.RewardDebt)
}

// State is the global accrual state plus every position.
type State struct {
	RewardPerBlock    *uint256.Int
	AccRewardPerShare *uint256.Int
	LastRewardBlock   uint64
	TotalStaked       *uint256.Int
	Positions         map[common.Address]Position
}

func newState(start uint64) State {
	return State{
		RewardPerBlock:    fixedpoint.Zero(),
		AccRewardPerShare: fixedpoint.Zero(),
		LastRewardBlock:   start,
		TotalStaked:       fixedpoint.Zero(),
		Positions:         make(map[common.Address]Position),
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{
		RewardPerBlock:    s.RewardPerBlock.Clone(),
		AccRewardPerShare: s.AccRewardPerShare.Clone(),
		LastRewardBlock:   s.LastRewardBlock,
		TotalStaked:       s.TotalStaked.Clone(),
		Positions:         make(map[common.Address]Position, len(s.Positions)),
	}
	for user, pos := range s.Positions {
		out.Positions[user] = pos.clone()
	}
	return out
}

func (s State) position(user common.Address) Position {
	if pos, ok := s.Positions[user]; ok {
		return pos
	}
	return Position{Staked: fixedpoint.Zero(), RewardDebt: fixedpoint.Zero()}
}

// accrued returns AccRewardPerShare as of block without modifying s. Blocks with nothing
// staked add nothing.
func (s State) accrued(block uint64) (*uint256.Int, error) {
	if block <= s.LastRewardBlock || s.TotalStaked.IsZero() {
		return s.AccRewardPerShare.Clone(), nil
	}
	elapsed := uint256.NewInt(block - s.LastRewardBlock)
	reward, err := fixedpoint.Mul(elapsed, s.RewardPerBlock)
	if err != nil {
		return nil, err
	}
	increment, err := fixedpoint.MulDiv(reward, Precision, s.TotalStaked)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(s.AccRewardPerShare, increment)
}

// Export returns the serialisable engine state.
func (e *RewardEngine) Export() model.ChefSnapshot {
	out := model.ChefSnapshot{
		Address:           e.address.Hex(),
		Owner:             e.owner.Hex(),
		StakedToken:       e.staked.Address().Hex(),
		RewardToken:       e.reward.Address().Hex(),
		RewardPerBlock:    fixedpoint.Format(e.state.RewardPerBlock),
		AccRewardPerShare: fixedpoint.Format(e.state.AccRewardPerShare),
		LastRewardBlock:   e.state.LastRewardBlock,
		TotalStaked:       fixedpoint.Format(e.state.TotalStaked),
		Positions:         make(map[string]model.PositionSnapshot, len(e.state.Positions)),
	}
	for user, pos := range e.state.Positions {
		if pos.Staked.IsZero() && pos.RewardDebt.IsZero() {
			continue
		}
		out.Positions[user.Hex()] = model.PositionSnapshot{
			Staked:     fixedpoint.Format(pos.Staked),
			RewardDebt: fixedpoint.Format(pos.RewardDebt),
		}
	}
	return out
}

// Restore rebuilds an engine from an exported snapshot.
func Restore(snapshot model.ChefSnapshot, staked, reward ledger.FungibleLedger, blocks BlockSource, emitter ledger.Emitter, logger *zap.Logger) (*RewardEngine, error) {
	for _, addr := range []string{snapshot.Address, snapshot.Owner} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid address: %s", addr)
		}
	}
	if staked == nil || reward == nil {
		return nil, fmt.Errorf("staked and reward ledgers are required")
	}
	if !common.IsHexAddress(snapshot.StakedToken) || common.HexToAddress(snapshot.StakedToken) != staked.Address() {
		return nil, fmt.Errorf("staked token %s does not match ledger %s", snapshot.StakedToken, staked.Address().Hex())
	}
	if !common.IsHexAddress(snapshot.RewardToken) || common.HexToAddress(snapshot.RewardToken) != reward.Address() {
		return nil, fmt.Errorf("reward token %s does not match ledger %s", snapshot.RewardToken, reward.Address().Hex())
	}

	rate, err := fixedpoint.Parse(snapshot.RewardPerBlock)
	if err != nil {
		return nil, fmt.Errorf("parse reward per block: %w", err)
	}
	acc, err := fixedpoint.Parse(snapshot.AccRewardPerShare)
	if err != nil {
		return nil, fmt.Errorf("parse acc reward per share: %w", err)
	}
	total, err := fixedpoint.Parse(snapshot.TotalStaked)
	if err != nil {
		return nil, fmt.Errorf("parse total staked: %w", err)
	}

	state := newState(snapshot.LastRewardBlock)
	state.RewardPerBlock = rate
	state.AccRewardPerShare = acc
	state.TotalStaked = total
	sum := fixedpoint.Zero()
	for user, pos := range snapshot.Positions {
		if !common.IsHexAddress(user) {
			return nil, fmt.Errorf("invalid position address: %s", user)
		}
		amount, err := fixedpoint.Parse(pos.Staked)
		if err != nil {
			return nil, fmt.Errorf("parse stake of %s: %w", user, err)
		}
		debt, err := fixedpoint.Parse(pos.RewardDebt)
		if err != nil {
			return nil, fmt.Errorf("parse reward debt of %s: %w", user, err)
		}
		if sum, err = fixedpoint.Add(sum, amount); err != nil {
			return nil, fmt.Errorf("sum stakes: %w", err)
		}
		state.Positions[common.HexToAddress(user)] = Position{Staked: amount, RewardDebt: debt}
	}
	if !sum.Eq(total) {
		return nil, fmt.Errorf("positions sum %s != total staked %s", fixedpoint.Format(sum), snapshot.TotalStaked)
	}

	e, err := New(Config{
		Address:    common.HexToAddress(snapshot.Address),
		Owner:      common.HexToAddress(snapshot.Owner),
		StartBlock: snapshot.LastRewardBlock,
	}, staked, reward, blocks, emitter, logger)
	if err != nil {
		return nil, err
	}
	e.state = state
	return e, nil
}
