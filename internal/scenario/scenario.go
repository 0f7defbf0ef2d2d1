// Package scenario drives the ledger, pool and reward engine through a scripted sequence of
// block-stamped operations and turns the results into event logs and checkpoints.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step operations.
const (
	OpAdd               = "add"
	OpRemove            = "remove"
	OpSwap              = "swap"
	OpDeposit           = "deposit"
	OpWithdraw          = "withdraw"
	OpClaim             = "claim"
	OpEmergencyWithdraw = "emergency_withdraw"
	OpSetRewardRate     = "set_reward_rate"
	OpTransfer          = "transfer"
	OpApprove           = "approve"
	OpMint              = "mint"
)

const defaultBlockTime = 12

// Scenario is the YAML document read by the simulator.
type Scenario struct {
	Name        string            `yaml:"name"`
	ChainID     uint64            `yaml:"chain_id"`
	StartBlock  uint64            `yaml:"start_block"`
	GenesisTime uint64            `yaml:"genesis_time"`
	BlockTime   uint64            `yaml:"block_time"`
	Accounts    map[string]string `yaml:"accounts"`
	Tokens      []TokenSpec       `yaml:"tokens"`
	Approvals   []ApprovalSpec    `yaml:"approvals"`
	Pool        *PoolSpec         `yaml:"pool"`
	Chef        *ChefSpec         `yaml:"chef"`
	Steps       []Step            `yaml:"steps"`
}

// TokenSpec declares an in-memory token and its opening balances.
type TokenSpec struct {
	Address  string            `yaml:"address"`
	Symbol   string            `yaml:"symbol"`
	Name     string            `yaml:"name"`
	Decimals uint8             `yaml:"decimals"`
	Balances map[string]string `yaml:"balances"`
}

// ApprovalSpec grants an allowance during set-up.
type ApprovalSpec struct {
	Token   string `yaml:"token"`
	Owner   string `yaml:"owner"`
	Spender string `yaml:"spender"`
	Amount  string `yaml:"amount"`
}

// PoolSpec declares the liquidity pool.
type PoolSpec struct {
	Address string `yaml:"address"`
	AssetA  string `yaml:"asset_a"`
	AssetB  string `yaml:"asset_b"`
}

// ChefSpec declares the reward engine. StakedToken may name the pool to stake its shares.
type ChefSpec struct {
	Address        string `yaml:"address"`
	Owner          string `yaml:"owner"`
	StakedToken    string `yaml:"staked_token"`
	RewardToken    string `yaml:"reward_token"`
	RewardPerBlock string `yaml:"reward_per_block"`
	StartBlock     uint64 `yaml:"start_block"`
	Funding        string `yaml:"funding"`
}

// Step is one operation. Block 0 keeps the current height.
type Step struct {
	Block       uint64 `yaml:"block"`
	Op          string `yaml:"op"`
	Caller      string `yaml:"caller"`
	Token       string `yaml:"token"`
	To          string `yaml:"to"`
	Spender     string `yaml:"spender"`
	AssetIn     string `yaml:"asset_in"`
	AssetOut    string `yaml:"asset_out"`
	Amount      string `yaml:"amount"`
	AmountA     string `yaml:"amount_a"`
	AmountB     string `yaml:"amount_b"`
	MinOut      string `yaml:"min_out"`
	Rate        string `yaml:"rate"`
	ExpectError string `yaml:"expect_error"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the structural rules that do not need a built world.
func (s *Scenario) Validate() error {
	if len(s.Tokens) == 0 {
		return fmt.Errorf("scenario declares no tokens")
	}
	if s.BlockTime == 0 {
		s.BlockTime = defaultBlockTime
	}
	if s.Chef != nil && s.Chef.StartBlock == 0 {
		s.Chef.StartBlock = s.StartBlock
	}

	last := s.StartBlock
	for i := range s.Steps {
		step := &s.Steps[i]
		step.Op = strings.ToLower(strings.TrimSpace(step.Op))
		if !knownOp(step.Op) {
			return fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
		if step.Caller == "" && step.Op != OpMint {
			return fmt.Errorf("step %d: caller is required", i)
		}
		if step.Block == 0 {
			continue
		}
		if step.Block < last {
			return fmt.Errorf("step %d: block %d is before block %d", i, step.Block, last)
		}
		last = step.Block
	}
	for i, step := range s.Steps {
		if step.ExpectError == "" {
			continue
		}
		if _, err := expectedError(step.ExpectError); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func knownOp(op string) bool {
	switch op {
	case OpAdd, OpRemove, OpSwap, OpDeposit, OpWithdraw, OpClaim, OpEmergencyWithdraw,
		OpSetRewardRate, OpTransfer, OpApprove, OpMint:
		return true
	default:
		return false
	}
}
