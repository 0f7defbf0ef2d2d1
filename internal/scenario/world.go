package scenario

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityChef/internal/chef"
	"liquidityChef/internal/errs"
	"liquidityChef/internal/host"
	"liquidityChef/internal/ledger"
	"liquidityChef/internal/model"
	"liquidityChef/internal/pool"
)

// World is the set of live components a scenario or checkpoint describes.
type World struct {
	ChainID uint64
	Host    *host.Host
	Tokens  map[common.Address]*ledger.Token
	Pool    *pool.LiquidityPool
	Chef    *chef.RewardEngine

	names  map[string]common.Address
	logger *zap.Logger
}

func newWorld(chainID, startBlock uint64, logger *zap.Logger) *World {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &World{
		ChainID: chainID,
		Host:    host.New(startBlock, logger),
		Tokens:  make(map[common.Address]*ledger.Token),
		names:   make(map[string]common.Address),
		logger:  logger,
	}
}

// Build creates the tokens, pool and engine a scenario declares. Balances and approvals are
// applied separately so that they show up as events.
func Build(sc *Scenario, logger *zap.Logger) (*World, error) {
	w := newWorld(sc.ChainID, sc.StartBlock, logger)

	for name, hex := range sc.Accounts {
		addr, err := ParseAddress(hex)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		if err := w.alias(name, addr); err != nil {
			return nil, err
		}
	}

	for _, spec := range sc.Tokens {
		addr, err := ParseAddress(spec.Address)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", spec.Symbol, err)
		}
		if _, ok := w.Tokens[addr]; ok {
			return nil, fmt.Errorf("token %s declared twice", addr.Hex())
		}
		meta := model.TokenMeta{Symbol: spec.Symbol, Name: spec.Name, Decimals: spec.Decimals}
		w.Tokens[addr] = ledger.NewToken(addr, meta, w.Host, w.logger)
		if spec.Symbol != "" {
			if err := w.alias(spec.Symbol, addr); err != nil {
				return nil, err
			}
		}
	}

	if sc.Pool != nil {
		if err := w.buildPool(*sc.Pool); err != nil {
			return nil, err
		}
	}
	if sc.Chef != nil {
		if err := w.buildChef(*sc.Chef); err != nil {
			return nil, err
		}
	}

	w.register()
	return w, nil
}

func (w *World) buildPool(spec PoolSpec) error {
	addr, err := ParseAddress(spec.Address)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	assetA, err := w.resolveLedger(spec.AssetA)
	if err != nil {
		return fmt.Errorf("pool asset a: %w", err)
	}
	assetB, err := w.resolveLedger(spec.AssetB)
	if err != nil {
		return fmt.Errorf("pool asset b: %w", err)
	}
	p, err := pool.New(addr, assetA, assetB, w.Host, w.logger)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	w.Pool = p
	return nil
}

func (w *World) buildChef(spec ChefSpec) error {
	addr, err := ParseAddress(spec.Address)
	if err != nil {
		return fmt.Errorf("chef: %w", err)
	}
	owner, err := w.Resolve(spec.Owner)
	if err != nil {
		return fmt.Errorf("chef owner: %w", err)
	}
	staked, err := w.resolveLedger(spec.StakedToken)
	if err != nil {
		return fmt.Errorf("chef staked token: %w", err)
	}
	reward, err := w.resolveLedger(spec.RewardToken)
	if err != nil {
		return fmt.Errorf("chef reward token: %w", err)
	}
	rate, err := ParseAmount(spec.RewardPerBlock)
	if err != nil {
		return fmt.Errorf("chef reward per block: %w", err)
	}

	engine, err := chef.New(chef.Config{
		Address:        addr,
		Owner:          owner,
		RewardPerBlock: rate,
		StartBlock:     spec.StartBlock,
	}, staked, reward, w.Host, w.Host, w.logger)
	if err != nil {
		return fmt.Errorf("create chef: %w", err)
	}
	w.Chef = engine
	return nil
}

// register hands every state owner to the host in a stable order.
func (w *World) register() {
	for _, addr := range w.tokenAddresses() {
		w.Host.Register(w.Tokens[addr])
	}
	if w.Pool != nil {
		w.Host.Register(w.Pool)
	}
	if w.Chef != nil {
		w.Host.Register(w.Chef)
	}
}

func (w *World) alias(name string, addr common.Address) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "pool" || key == "chef" {
		return fmt.Errorf("name %q is reserved", name)
	}
	if existing, ok := w.names[key]; ok && existing != addr {
		return fmt.Errorf("name %q already refers to %s", name, existing.Hex())
	}
	w.names[key] = addr
	return nil
}

// Resolve turns a hex address, account name, token symbol, "pool" or "chef" into an address.
func (w *World) Resolve(name string) (common.Address, error) {
	if addr, err := ParseAddress(name); err == nil {
		return addr, nil
	}
	key := strings.ToLower(strings.TrimSpace(name))
	switch {
	case key == "pool" && w.Pool != nil:
		return w.Pool.Address(), nil
	case key == "chef" && w.Chef != nil:
		return w.Chef.Address(), nil
	}
	if addr, ok := w.names[key]; ok {
		return addr, nil
	}
	return common.Address{}, errorsmod.Wrapf(errs.ErrInput, "unknown account or token %q", name)
}

// Ledger returns the fungible ledger at addr, including the pool's share token.
func (w *World) Ledger(addr common.Address) (ledger.FungibleLedger, bool) {
	if token, ok := w.Tokens[addr]; ok {
		return token, true
	}
	if w.Pool != nil && w.Pool.Address() == addr {
		return w.Pool.Shares(), true
	}
	return nil, false
}

// Token returns a mintable token by address. Pool shares are only minted by the pool itself, so
// the share token is never returned.
func (w *World) Token(addr common.Address) (*ledger.Token, bool) {
	token, ok := w.Tokens[addr]
	return token, ok
}

func (w *World) resolveLedger(name string) (ledger.FungibleLedger, error) {
	addr, err := w.Resolve(name)
	if err != nil {
		return nil, err
	}
	l, ok := w.Ledger(addr)
	if !ok {
		return nil, errorsmod.Wrapf(errs.ErrInput, "no ledger at %s", addr.Hex())
	}
	return l, nil
}

func (w *World) tokenAddresses() []common.Address {
	out := make([]common.Address, 0, len(w.Tokens))
	for addr := range w.Tokens {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
