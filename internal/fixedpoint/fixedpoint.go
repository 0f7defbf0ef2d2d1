// Package fixedpoint provides overflow-checked 256-bit integer helpers used by the pool and chef.
//
// Helpers never wrap: leaving the 256-bit range returns errs.ErrInvariantViolation.
package fixedpoint

import (
	"math/big"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"liquidityChef/internal/errs"
)

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Add returns a+b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "overflow: %s + %s", Format(a), Format(b))
	}
	return out, nil
}

// Sub returns a-b and fails when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "underflow: %s - %s", Format(a), Format(b))
	}
	return out, nil
}

// Mul returns a*b.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "overflow: %s * %s", Format(a), Format(b))
	}
	return out, nil
}

// MulDiv returns floor(a*b/c). The product is taken in 512 bits, so only a quotient that
// does not fit in 256 bits fails.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c.IsZero() {
		return nil, errorsmod.Wrap(errs.ErrInvariantViolation, "division by zero")
	}
	quo, overflow := new(uint256.Int).MulDivOverflow(a, b, c)
	if overflow {
		return nil, errorsmod.Wrapf(errs.ErrInvariantViolation, "overflow: %s * %s / %s", Format(a), Format(b), Format(c))
	}
	return quo, nil
}

// MulDivUp returns ceil(a*b/c).
func MulDivUp(a, b, c *uint256.Int) (*uint256.Int, error) {
	quo, err := MulDiv(a, b, c)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, c).IsZero() {
		return quo, nil
	}
	return Add(quo, uint256.NewInt(1))
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *uint256.Int) *uint256.Int {
	root := new(big.Int).Sqrt(x.ToBig())
	return uint256.MustFromBig(root)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return a
	}
	return b
}

// Parse reads a base-10 amount. Empty input parses as zero.
func Parse(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Zero(), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, errorsmod.Wrapf(errs.ErrInput, "invalid amount: %q", value)
	}
	if parsed.Sign() < 0 {
		return nil, errorsmod.Wrapf(errs.ErrInput, "negative amount: %s", value)
	}
	out, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, errorsmod.Wrapf(errs.ErrInput, "amount exceeds 256 bits: %s", value)
	}
	return out, nil
}

// MustParse is Parse for constants and tests.
func MustParse(value string) *uint256.Int {
	out, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return out
}

// Format renders an amount in base 10; nil renders as "0".
func Format(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.ToBig().String()
}
