package scenario

import (
	"errors"
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityChef/internal/errs"
	"liquidityChef/internal/fixedpoint"
	"liquidityChef/internal/ledger"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

// ParseAmount reads a base-10 amount; "max" is the unlimited allowance.
func ParseAmount(input string) (*uint256.Int, error) {
	if strings.EqualFold(strings.TrimSpace(input), "max") {
		return ledger.MaxAllowance.Clone(), nil
	}
	return fixedpoint.Parse(input)
}

var namedErrors = map[string]*errorsmod.Error{
	"input":                  errs.ErrInput,
	"insufficient_balance":   errs.ErrInsufficientBalance,
	"insufficient_allowance": errs.ErrInsufficientAllowance,
	"invariant_violation":    errs.ErrInvariantViolation,
	"slippage_exceeded":      errs.ErrSlippageExceeded,
	"unauthorized":           errs.ErrUnauthorized,
}

// expectedError maps an expect_error name to a registered error. "any" maps to nil.
func expectedError(name string) (*errorsmod.Error, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "any" {
		return nil, nil
	}
	target, ok := namedErrors[key]
	if !ok {
		return nil, fmt.Errorf("unknown expected error %q", name)
	}
	return target, nil
}

// matchesExpected reports whether err is the failure a step declared.
func matchesExpected(name string, err error) bool {
	if err == nil {
		return false
	}
	target, lookupErr := expectedError(name)
	if lookupErr != nil {
		return false
	}
	return target == nil || errors.Is(err, target)
}
