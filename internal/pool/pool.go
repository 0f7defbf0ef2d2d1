// Package pool implements a two-asset constant-product liquidity pool whose share token is an
// in-memory fungible ledger living at the pool address.
package pool

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

const (
	// SwapFeeNumerator and SwapFeeDenominator define the 0.3% fee realised as shares minted to
	// the pool's own balance on every swap.
	SwapFeeNumerator   = 3
	SwapFeeDenominator = 1000

	// ShareDecimals is the decimals reported by the share token.
	ShareDecimals = 18
)

// InitialShares is minted to the first liquidity provider regardless of the amounts deposited.
var InitialShares = uint256.NewInt(1_000_000_000_000_000_000)

// State holds the pool reserves and their product.
type State struct {
	ReserveA *uint256.Int
	ReserveB *uint256.Int
	K        *uint256.Int
}

func newState() State {
	return State{ReserveA: fixedpoint.Zero(), ReserveB: fixedpoint.Zero(), K: fixedpoint.Zero()}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{ReserveA: s.ReserveA.Clone(), ReserveB: s.ReserveB.Clone(), K: s.K.Clone()}
}

type snapshot struct {
	state    State
	sharesID int
}

// LiquidityPool holds reserves of two assets and trades them against the constant product.
type LiquidityPool struct {
	address   common.Address
	assetA    ledger.FungibleLedger
	assetB    ledger.FungibleLedger
	shares    *ledger.Token
	state     State
	snapshots []snapshot
	emitter   ledger.Emitter
	logger    *zap.Logger
}

// New creates an empty pool at address trading assetA against assetB.
func New(address common.Address, assetA, assetB ledger.FungibleLedger, emitter ledger.Emitter, logger *zap.Logger) (*LiquidityPool, error) {
	if assetA == nil || assetB == nil {
		return nil, errorsmod.Wrap(errs.ErrInput, "pool assets are required")
	}
	if assetA.Address() == assetB.Address() {
		return nil, errorsmod.Wrapf(errs.ErrInput, "pool assets must differ: %s", assetA.Address().Hex())
	}
	if address == (common.Address{}) {
		return nil, errorsmod.Wrap(errs.ErrInput, "pool address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	meta := model.TokenMeta{Decimals: ShareDecimals, Symbol: "LP", Name: "Liquidity Pool Share"}
	return &LiquidityPool{
		address: address,
		assetA:  assetA,
		assetB:  assetB,
		shares:  ledger.NewToken(address, meta, emitter, logger),
		state:   newState(),
		emitter: emitter,
		logger:  logger.With(zap.String("pool", address.Hex())),
	}, nil
}

// Address returns the pool address, which is also the share token address.
func (p *LiquidityPool) Address() common.Address { return p.address }

func (p *LiquidityPool) AssetA() ledger.FungibleLedger { return p.assetA }

func (p *LiquidityPool) AssetB() ledger.FungibleLedger { return p.assetB }

func (p *LiquidityPool) Shares() *ledger.Token { return p.shares }

// Reserves returns copies of both reserves.
func (p *LiquidityPool) Reserves() (*uint256.Int, *uint256.Int) {
	return p.state.ReserveA.Clone(), p.state.ReserveB.Clone()
}

// K returns the stored reserve product.
func (p *LiquidityPool) K() *uint256.Int { return p.state.K.Clone() }

func (p *LiquidityPool) TotalShares() *uint256.Int { return p.shares.TotalSupply() }

func (p *LiquidityPool) ShareBalance(holder common.Address) *uint256.Int {
	return p.shares.BalanceOf(holder)
}

// Meta describes the pool for decoded events.
func (p *LiquidityPool) Meta() model.PoolMeta {
	meta := model.PoolMeta{
		AssetA:     p.assetA.Address().Hex(),
		AssetB:     p.assetB.Address().Hex(),
		ShareToken: p.address.Hex(),
		FeeNum:     SwapFeeNumerator,
		FeeDen:     SwapFeeDenominator,
	}
	if t, ok := p.assetA.(*ledger.Token); ok {
		meta.SymbolA = t.Meta().Symbol
	}
	if t, ok := p.assetB.(*ledger.Token); ok {
		meta.SymbolB = t.Meta().Symbol
	}
	return meta
}

// Add deposits amountA and amountB from caller and mints shares to caller. Shares follow the
// smaller of the two deposit ratios; the excess of the other asset stays in the pool.
func (p *LiquidityPool) Add(caller common.Address, amountA, amountB *uint256.Int) (*uint256.Int, error) {
	if isZero(amountA) || isZero(amountB) {
		return nil, errorsmod.Wrap(errs.ErrInput, "add: both amounts must be positive")
	}

	minted, err := p.sharesForDeposit(amountA, amountB)
	if err != nil {
		return nil, err
	}
	if minted.IsZero() {
		return nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "add: deposit %s/%s mints zero shares",
			fixedpoint.Format(amountA), fixedpoint.Format(amountB))
	}
	next, err := p.state.apply(amountA, amountB, true)
	if err != nil {
		return nil, errorsmod.Wrap(err, "add")
	}

	if err := p.assetA.TransferFrom(p.address, caller, p.address, amountA); err != nil {
		return nil, err
	}
	if err := p.assetB.TransferFrom(p.address, caller, p.address, amountB); err != nil {
		return nil, err
	}

	p.state = next
	if err := p.shares.Mint(caller, minted); err != nil {
		return nil, errorsmod.Wrap(err, "add")
	}
	p.emit(model.EventMint, model.MintEventData{
		Sender:  caller.Hex(),
		AmountA: fixedpoint.Format(amountA),
		AmountB: fixedpoint.Format(amountB),
		Shares:  fixedpoint.Format(minted),
	})
	p.logger.Debug("add liquidity",
		zap.String("caller", caller.Hex()),
		zap.String("amount_a", fixedpoint.Format(amountA)),
		zap.String("amount_b", fixedpoint.Format(amountB)),
		zap.String("minted", fixedpoint.Format(minted)),
	)
	return minted, nil
}

// Remove burns the caller's shares backing amountA and amountB and returns those amounts.
func (p *LiquidityPool) Remove(caller common.Address, amountA, amountB *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if isZero(amountA) && isZero(amountB) {
		return nil, nil, errorsmod.Wrap(errs.ErrInput, "remove: amounts must not both be zero")
	}
	amountA, amountB = orZero(amountA), orZero(amountB)
	if amountA.Gt(p.state.ReserveA) || amountB.Gt(p.state.ReserveB) {
		return nil, nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "remove: %s/%s exceeds reserves %s/%s",
			fixedpoint.Format(amountA), fixedpoint.Format(amountB),
			fixedpoint.Format(p.state.ReserveA), fixedpoint.Format(p.state.ReserveB))
	}
	if err := p.checkRatio(amountA, amountB); err != nil {
		return nil, nil, err
	}
	burned, err := p.sharesForWithdrawal(amountA, amountB)
	if err != nil {
		return nil, nil, err
	}
	next, err := p.state.apply(amountA, amountB, false)
	if err != nil {
		return nil, nil, errorsmod.Wrap(err, "remove")
	}

	if err := p.shares.Burn(caller, burned); err != nil {
		return nil, nil, err
	}
	p.state = next
	p.emit(model.EventBurn, model.BurnEventData{
		Sender:  caller.Hex(),
		AmountA: fixedpoint.Format(amountA),
		AmountB: fixedpoint.Format(amountB),
		Shares:  fixedpoint.Format(burned),
	})
	p.logger.Debug("remove liquidity",
		zap.String("caller", caller.Hex()),
		zap.String("amount_a", fixedpoint.Format(amountA)),
		zap.String("amount_b", fixedpoint.Format(amountB)),
		zap.String("burned", fixedpoint.Format(burned)),
	)

	if !amountA.IsZero() {
		if err := p.assetA.Transfer(p.address, caller, amountA); err != nil {
			return nil, nil, err
		}
	}
	if !amountB.IsZero() {
		if err := p.assetB.Transfer(p.address, caller, amountB); err != nil {
			return nil, nil, err
		}
	}
	return amountA.Clone(), amountB.Clone(), nil
}

// Swap trades amountIn of assetIn for assetOut, failing when the output is below minAmountOut.
func (p *LiquidityPool) Swap(caller, assetIn, assetOut common.Address, amountIn, minAmountOut *uint256.Int) (*uint256.Int, error) {
	inIsA, err := p.direction(assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	amountOut, err := p.quote(inIsA, amountIn)
	if err != nil {
		return nil, err
	}
	if amountOut.Lt(orZero(minAmountOut)) {
		return nil, errorsmod.Wrapf(errs.ErrSlippageExceeded, "swap: output %s below minimum %s",
			fixedpoint.Format(amountOut), fixedpoint.Format(minAmountOut))
	}

	tradeA := amountOut
	if inIsA {
		tradeA = amountIn
	}
	feeShares, err := p.feeShares(tradeA)
	if err != nil {
		return nil, errorsmod.Wrap(err, "swap fee")
	}

	in, out := p.assetA, p.assetB
	if !inIsA {
		in, out = p.assetB, p.assetA
	}
	next, err := p.state.trade(inIsA, amountIn, amountOut)
	if err != nil {
		return nil, errorsmod.Wrap(err, "swap")
	}
	if next.K.Lt(p.state.K) {
		return nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "swap: product decreased from %s to %s",
			fixedpoint.Format(p.state.K), fixedpoint.Format(next.K))
	}

	if err := in.TransferFrom(p.address, caller, p.address, amountIn); err != nil {
		return nil, err
	}

	p.state = next
	if !feeShares.IsZero() {
		if err := p.shares.Mint(p.address, feeShares); err != nil {
			return nil, errorsmod.Wrap(err, "swap fee")
		}
	}
	p.emit(model.EventSwap, model.SwapEventData{
		Sender:    caller.Hex(),
		AssetIn:   assetIn.Hex(),
		AssetOut:  assetOut.Hex(),
		AmountIn:  fixedpoint.Format(amountIn),
		AmountOut: fixedpoint.Format(amountOut),
		FeeShares: fixedpoint.Format(feeShares),
	})
	p.logger.Debug("swap",
		zap.String("caller", caller.Hex()),
		zap.String("asset_in", assetIn.Hex()),
		zap.String("amount_in", fixedpoint.Format(amountIn)),
		zap.String("amount_out", fixedpoint.Format(amountOut)),
		zap.String("fee_shares", fixedpoint.Format(feeShares)),
	)

	if err := out.Transfer(p.address, caller, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// GetSwapInfo returns what Swap would pay for amountIn at the current reserves without
// changing any state.
func (p *LiquidityPool) GetSwapInfo(assetIn, assetOut common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	inIsA, err := p.direction(assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	return p.quote(inIsA, amountIn)
}

// Snapshot records the pool and share token state and returns its id.
func (p *LiquidityPool) Snapshot() int {
	p.snapshots = append(p.snapshots, snapshot{state: p.state.Clone(), sharesID: p.shares.Snapshot()})
	return len(p.snapshots) - 1
}

// RevertToSnapshot restores the state recorded by Snapshot.
func (p *LiquidityPool) RevertToSnapshot(id int) {
	if id < 0 || id >= len(p.snapshots) {
		panic(fmt.Sprintf("pool %s: invalid snapshot %d", p.address.Hex(), id))
	}
	s := p.snapshots[id]
	p.state = s.state
	p.shares.RevertToSnapshot(s.sharesID)
	p.snapshots = p.snapshots[:id]
}

// DiscardSnapshot drops snapshot id and later ones.
func (p *LiquidityPool) DiscardSnapshot(id int) {
	if id < 0 || id >= len(p.snapshots) {
		panic(fmt.Sprintf("pool %s: invalid snapshot %d", p.address.Hex(), id))
	}
	p.shares.DiscardSnapshot(p.snapshots[id].sharesID)
	p.snapshots = p.snapshots[:id]
}

// Export returns the serialisable pool state.
func (p *LiquidityPool) Export() model.PoolSnapshot {
	return model.PoolSnapshot{
		Address:  p.address.Hex(),
		AssetA:   p.assetA.Address().Hex(),
		AssetB:   p.assetB.Address().Hex(),
		ReserveA: fixedpoint.Format(p.state.ReserveA),
		ReserveB: fixedpoint.Format(p.state.ReserveB),
		K:        fixedpoint.Format(p.state.K),
		Shares:   p.shares.Export(),
	}
}

// Restore rebuilds a pool from an exported snapshot over the given asset ledgers.
func Restore(snapshot model.PoolSnapshot, assetA, assetB ledger.FungibleLedger, emitter ledger.Emitter, logger *zap.Logger) (*LiquidityPool, error) {
	if !common.IsHexAddress(snapshot.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", snapshot.Address)
	}
	p, err := New(common.HexToAddress(snapshot.Address), assetA, assetB, emitter, logger)
	if err != nil {
		return nil, err
	}
	if !sameAddress(snapshot.AssetA, assetA.Address()) || !sameAddress(snapshot.AssetB, assetB.Address()) {
		return nil, fmt.Errorf("pool assets %s/%s do not match ledgers %s/%s",
			snapshot.AssetA, snapshot.AssetB, assetA.Address().Hex(), assetB.Address().Hex())
	}

	reserveA, err := fixedpoint.Parse(snapshot.ReserveA)
	if err != nil {
		return nil, fmt.Errorf("parse reserve a: %w", err)
	}
	reserveB, err := fixedpoint.Parse(snapshot.ReserveB)
	if err != nil {
		return nil, fmt.Errorf("parse reserve b: %w", err)
	}
	k, err := fixedpoint.Mul(reserveA, reserveB)
	if err != nil {
		return nil, fmt.Errorf("reserve product: %w", err)
	}
	if snapshot.K != "" && snapshot.K != fixedpoint.Format(k) {
		return nil, fmt.Errorf("pool k %s does not match reserve product %s", snapshot.K, fixedpoint.Format(k))
	}

	shares := snapshot.Shares
	shares.Meta.Address = snapshot.Address
	token, err := ledger.RestoreToken(shares, emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("restore shares: %w", err)
	}
	p.shares = token
	p.state = State{ReserveA: reserveA, ReserveB: reserveB, K: k}
	return p, nil
}

func (p *LiquidityPool) direction(assetIn, assetOut common.Address) (bool, error) {
	a, b := p.assetA.Address(), p.assetB.Address()
	switch {
	case assetIn == a && assetOut == b:
		return true, nil
	case assetIn == b && assetOut == a:
		return false, nil
	default:
		return false, errorsmod.Wrapf(errs.ErrInput, "pair %s/%s is not traded by pool %s",
			assetIn.Hex(), assetOut.Hex(), p.address.Hex())
	}
}

func (p *LiquidityPool) emit(name string, data interface{}) {
	if p.emitter == nil {
		return
	}
	p.emitter.Emit(model.Event{Address: p.address, Name: name, Data: data})
}

func sameAddress(hex string, addr common.Address) bool {
	return common.IsHexAddress(hex) && common.HexToAddress(hex) == addr
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return fixedpoint.Zero()
	}
	return v
}
