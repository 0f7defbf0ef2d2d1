// Package ledger defines the fungible-token contract consumed by the pool and chef and ships an
// in-memory implementation of it with snapshot/revert support.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityChef/internal/model"
)

// FungibleLedger is the balance / allowance / transfer contract of one asset.
//
// from in Transfer and spender in TransferFrom identify the caller of the operation.
type FungibleLedger interface {
	Address() common.Address
	TotalSupply() *uint256.Int
	BalanceOf(holder common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, owner, to common.Address, amount *uint256.Int) error
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

// Emitter receives emitted events.
type Emitter interface {
	Emit(event model.Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event model.Event)

// Emit calls f(event).
func (f EmitterFunc) Emit(event model.Event) {
	f(event)
}

// TransferHook runs after a transfer has been applied, modelling a receiver callback.
// A non-nil error fails the transfer.
type TransferHook func(from, to common.Address, amount *uint256.Int) error

// MaxAllowance is never decremented by TransferFrom.
var MaxAllowance = new(uint256.Int).SetAllOne()
