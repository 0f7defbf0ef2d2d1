package pool

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"liquidityChef/internal/errs"
	"liquidityChef/internal/fixedpoint"
)

// apply adds (or removes) both amounts to the reserves and recomputes K.
func (s State) apply(amountA, amountB *uint256.Int, add bool) (State, error) {
	op := fixedpoint.Sub
	if add {
		op = fixedpoint.Add
	}
	reserveA, err := op(s.ReserveA, amountA)
	if err != nil {
		return State{}, err
	}
	reserveB, err := op(s.ReserveB, amountB)
	if err != nil {
		return State{}, err
	}
	return withReserves(reserveA, reserveB)
}

// trade credits amountIn to the input side and debits amountOut from the other one.
func (s State) trade(inIsA bool, amountIn, amountOut *uint256.Int) (State, error) {
	reserveIn, reserveOut := s.ReserveA, s.ReserveB
	if !inIsA {
		reserveIn, reserveOut = s.ReserveB, s.ReserveA
	}
	nextIn, err := fixedpoint.Add(reserveIn, amountIn)
	if err != nil {
		return State{}, err
	}
	nextOut, err := fixedpoint.Sub(reserveOut, amountOut)
	if err != nil {
		return State{}, err
	}
	if inIsA {
		return withReserves(nextIn, nextOut)
	}
	return withReserves(nextOut, nextIn)
}

func withReserves(reserveA, reserveB *uint256.Int) (State, error) {
	k, err := fixedpoint.Mul(reserveA, reserveB)
	if err != nil {
		return State{}, err
	}
	return State{ReserveA: reserveA, ReserveB: reserveB, K: k}, nil
}

// quote computes floor(reserveOut*amountIn/(reserveIn+amountIn)), which equals
// reserveOut - ceil(reserveIn*reserveOut/(reserveIn+amountIn)).
func (p *LiquidityPool) quote(inIsA bool, amountIn *uint256.Int) (*uint256.Int, error) {
	if isZero(amountIn) {
		return nil, errorsmod.Wrap(errs.ErrInput, "swap: amount in must be positive")
	}
	reserveIn, reserveOut := p.state.ReserveA, p.state.ReserveB
	if !inIsA {
		reserveIn, reserveOut = p.state.ReserveB, p.state.ReserveA
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, errorsmod.Wrap(errs.ErrInvariantViolation, "swap: pool has no liquidity")
	}
	denominator, err := fixedpoint.Add(reserveIn, amountIn)
	if err != nil {
		return nil, err
	}
	amountOut, err := fixedpoint.MulDiv(reserveOut, amountIn, denominator)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() {
		return nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "swap: %s in yields zero output", fixedpoint.Format(amountIn))
	}
	if !amountOut.Lt(reserveOut) {
		return nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "swap: output %s drains reserve %s",
			fixedpoint.Format(amountOut), fixedpoint.Format(reserveOut))
	}
	return amountOut, nil
}

// feeShares evaluates InitialShares / isqrt(K) * tradeA / SwapFeeDenominator * SwapFeeNumerator
// left to right on the pre-swap product.
func (p *LiquidityPool) feeShares(tradeA *uint256.Int) (*uint256.Int, error) {
	root := fixedpoint.Sqrt(p.state.K)
	if root.IsZero() {
		return fixedpoint.Zero(), nil
	}
	perUnit := new(uint256.Int).Div(InitialShares, root)
	fee, err := fixedpoint.Mul(perUnit, tradeA)
	if err != nil {
		return nil, err
	}
	fee.Div(fee, uint256.NewInt(SwapFeeDenominator))
	return fixedpoint.Mul(fee, uint256.NewInt(SwapFeeNumerator))
}

// sharesForDeposit mints InitialShares into an empty pool, otherwise the smaller of the two
// proportional amounts over the non-empty reserves.
func (p *LiquidityPool) sharesForDeposit(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	total := p.shares.TotalSupply()
	reserveA, reserveB := p.state.ReserveA, p.state.ReserveB
	if total.IsZero() || (reserveA.IsZero() && reserveB.IsZero()) {
		return InitialShares.Clone(), nil
	}

	var minted *uint256.Int
	if !reserveA.IsZero() {
		byA, err := fixedpoint.MulDiv(total, amountA, reserveA)
		if err != nil {
			return nil, errorsmod.Wrap(err, "add")
		}
		minted = byA
	}
	if !reserveB.IsZero() {
		byB, err := fixedpoint.MulDiv(total, amountB, reserveB)
		if err != nil {
			return nil, errorsmod.Wrap(err, "add")
		}
		if minted == nil || byB.Lt(minted) {
			minted = byB
		}
	}
	return minted, nil
}

// checkRatio requires amountA/reserveA and amountB/reserveB to agree to within one unit of
// rounding on either side.
func (p *LiquidityPool) checkRatio(amountA, amountB *uint256.Int) error {
	reserveA, reserveB := p.state.ReserveA, p.state.ReserveB
	lhs, err := fixedpoint.Mul(amountA, reserveB)
	if err != nil {
		return errorsmod.Wrap(err, "remove")
	}
	rhs, err := fixedpoint.Mul(amountB, reserveA)
	if err != nil {
		return errorsmod.Wrap(err, "remove")
	}
	diff := new(uint256.Int)
	if lhs.Gt(rhs) {
		diff.Sub(lhs, rhs)
	} else {
		diff.Sub(rhs, lhs)
	}
	if !diff.Lt(fixedpoint.Max(reserveA, reserveB)) {
		return errorsmod.Wrapf(errs.ErrInvariantViolation, "remove: %s/%s does not match reserve ratio %s/%s",
			fixedpoint.Format(amountA), fixedpoint.Format(amountB), fixedpoint.Format(reserveA), fixedpoint.Format(reserveB))
	}
	return nil
}

// sharesForWithdrawal rounds up so that rounding dust stays with the pool.
func (p *LiquidityPool) sharesForWithdrawal(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	total := p.shares.TotalSupply()
	if total.IsZero() {
		return nil, errorsmod.Wrap(errs.ErrInvariantViolation, "remove: no shares outstanding")
	}
	burned := fixedpoint.Zero()
	if !amountA.IsZero() {
		byA, err := fixedpoint.MulDivUp(total, amountA, p.state.ReserveA)
		if err != nil {
			return nil, errorsmod.Wrap(err, "remove")
		}
		burned = fixedpoint.Max(burned, byA)
	}
	if !amountB.IsZero() {
		byB, err := fixedpoint.MulDivUp(total, amountB, p.state.ReserveB)
		if err != nil {
			return nil, errorsmod.Wrap(err, "remove")
		}
		burned = fixedpoint.Max(burned, byB)
	}
	if burned.IsZero() {
		return nil, errorsmod.Wrap(errs.ErrInvariantViolation, "remove: zero shares to burn")
	}
	return burned, nil
}
