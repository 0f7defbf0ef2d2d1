// Package errs holds the registered failure taxonomy shared by the ledger, pool and chef.
package errs

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace groups every error registered by this module.
const Codespace = "liquiditychef"

var (
	ErrInput                 = errorsmod.Register(Codespace, 2, "invalid input")
	ErrInsufficientBalance   = errorsmod.Register(Codespace, 3, "insufficient balance")
	ErrInsufficientAllowance = errorsmod.Register(Codespace, 4, "insufficient allowance")
	ErrInvariantViolation    = errorsmod.Register(Codespace, 5, "invariant violation")
	ErrSlippageExceeded      = errorsmod.Register(Codespace, 6, "slippage exceeded")
	ErrUnauthorized          = errorsmod.Register(Codespace, 7, "unauthorized")
)
