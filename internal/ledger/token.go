package ledger

import (
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityChef/internal/errs"
	"liquidityChef/internal/fixedpoint"
	"liquidityChef/internal/model"
)

type tokenState struct {
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

func newTokenState() tokenState {
	return tokenState{
		totalSupply: fixedpoint.Zero(),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (s tokenState) clone() tokenState {
	out := tokenState{
		totalSupply: s.totalSupply.Clone(),
		balances:    make(map[common.Address]*uint256.Int, len(s.balances)),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int, len(s.allowances)),
	}
	for holder, balance := range s.balances {
		out.balances[holder] = balance.Clone()
	}
	for owner, spenders := range s.allowances {
		copied := make(map[common.Address]*uint256.Int, len(spenders))
		for spender, amount := range spenders {
			copied[spender] = amount.Clone()
		}
		out.allowances[owner] = copied
	}
	return out
}

// Token is an in-memory FungibleLedger. Balances are stored sparsely; absent holders have zero.
type Token struct {
	address   common.Address
	meta      model.TokenMeta
	state     tokenState
	snapshots []tokenState
	emitter   Emitter
	hook      TransferHook
	logger    *zap.Logger
}

// NewToken builds an empty token at address.
func NewToken(address common.Address, meta model.TokenMeta, emitter Emitter, logger *zap.Logger) *Token {
	if logger == nil {
		logger = zap.NewNop()
	}
	meta.Address = address.Hex()
	return &Token{
		address: address,
		meta:    meta,
		state:   newTokenState(),
		emitter: emitter,
		logger:  logger.With(zap.String("token", meta.Symbol)),
	}
}

// SetTransferHook installs hook; nil removes it.
func (t *Token) SetTransferHook(hook TransferHook) {
	t.hook = hook
}

// Address returns the token address.
func (t *Token) Address() common.Address {
	return t.address
}

// Meta returns the token metadata.
func (t *Token) Meta() model.TokenMeta {
	return t.meta
}

// TotalSupply returns a copy of the total supply.
func (t *Token) TotalSupply() *uint256.Int {
	return t.state.totalSupply.Clone()
}

// BalanceOf returns a copy of holder's balance.
func (t *Token) BalanceOf(holder common.Address) *uint256.Int {
	if balance, ok := t.state.balances[holder]; ok {
		return balance.Clone()
	}
	return fixedpoint.Zero()
}

// Allowance returns a copy of the amount spender may move on owner's behalf.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	if spenders, ok := t.state.allowances[owner]; ok {
		if amount, ok := spenders[spender]; ok {
			return amount.Clone()
		}
	}
	return fixedpoint.Zero()
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return errorsmod.Wrap(errs.ErrInput, "approve to the zero address")
	}
	spenders, ok := t.state.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.state.allowances[owner] = spenders
	}
	spenders[spender] = amount.Clone()

	t.emit(model.EventApproval, model.ApprovalEventData{
		Owner:   owner.Hex(),
		Spender: spender.Hex(),
		Value:   fixedpoint.Format(amount),
	})
	return nil
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return errorsmod.Wrap(errs.ErrInput, "transfer to the zero address")
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	return t.afterTransfer(from, to, amount)
}

// TransferFrom moves amount from owner to to, spending spender's allowance.
func (t *Token) TransferFrom(spender, owner, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return errorsmod.Wrap(errs.ErrInput, "transfer to the zero address")
	}
	allowance := t.Allowance(owner, spender)
	if allowance.Lt(amount) {
		return errorsmod.Wrapf(errs.ErrInsufficientAllowance, "%s: spender %s allowance %s, need %s",
			t.meta.Symbol, spender.Hex(), fixedpoint.Format(allowance), fixedpoint.Format(amount))
	}
	if err := t.move(owner, to, amount); err != nil {
		return err
	}
	if !amount.IsZero() && !allowance.Eq(MaxAllowance) {
		t.state.allowances[owner][spender] = allowance.Sub(allowance, amount)
	}
	return t.afterTransfer(owner, to, amount)
}

// Mint creates amount for to.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return errorsmod.Wrap(errs.ErrInput, "mint to the zero address")
	}
	supply, err := fixedpoint.Add(t.state.totalSupply, amount)
	if err != nil {
		return errorsmod.Wrapf(err, "%s: mint", t.meta.Symbol)
	}
	balance, err := fixedpoint.Add(t.BalanceOf(to), amount)
	if err != nil {
		return errorsmod.Wrapf(err, "%s: mint", t.meta.Symbol)
	}
	t.state.totalSupply = supply
	t.state.balances[to] = balance

	t.emit(model.EventTransfer, model.TransferEventData{
		From:  common.Address{}.Hex(),
		To:    to.Hex(),
		Value: fixedpoint.Format(amount),
	})
	return nil
}

// Burn destroys amount held by from.
func (t *Token) Burn(from common.Address, amount *uint256.Int) error {
	balance := t.BalanceOf(from)
	if balance.Lt(amount) {
		return errorsmod.Wrapf(errs.ErrInsufficientBalance, "%s: burn %s from %s, balance %s",
			t.meta.Symbol, fixedpoint.Format(amount), from.Hex(), fixedpoint.Format(balance))
	}
	t.state.balances[from] = balance.Sub(balance, amount)
	t.state.totalSupply = new(uint256.Int).Sub(t.state.totalSupply, amount)

	t.emit(model.EventTransfer, model.TransferEventData{
		From:  from.Hex(),
		To:    common.Address{}.Hex(),
		Value: fixedpoint.Format(amount),
	})
	return nil
}

// Snapshot records the current state and returns its id.
func (t *Token) Snapshot() int {
	t.snapshots = append(t.snapshots, t.state.clone())
	return len(t.snapshots) - 1
}

// RevertToSnapshot restores the state recorded by Snapshot and drops later snapshots.
func (t *Token) RevertToSnapshot(id int) {
	if id < 0 || id >= len(t.snapshots) {
		panic(fmt.Sprintf("token %s: invalid snapshot %d", t.meta.Symbol, id))
	}
	t.state = t.snapshots[id]
	t.snapshots = t.snapshots[:id]
}

// DiscardSnapshot drops snapshot id and later ones, keeping the current state.
func (t *Token) DiscardSnapshot(id int) {
	if id < 0 || id >= len(t.snapshots) {
		panic(fmt.Sprintf("token %s: invalid snapshot %d", t.meta.Symbol, id))
	}
	t.snapshots = t.snapshots[:id]
}

// Export returns the serialisable state.
func (t *Token) Export() model.TokenSnapshot {
	out := model.TokenSnapshot{
		Meta:        t.meta,
		TotalSupply: fixedpoint.Format(t.state.totalSupply),
		Balances:    make(map[string]string, len(t.state.balances)),
	}
	for holder, balance := range t.state.balances {
		if balance.IsZero() {
			continue
		}
		out.Balances[holder.Hex()] = fixedpoint.Format(balance)
	}
	for owner, spenders := range t.state.allowances {
		for spender, amount := range spenders {
			if amount.IsZero() {
				continue
			}
			if out.Allowances == nil {
				out.Allowances = make(map[string]map[string]string)
			}
			if out.Allowances[owner.Hex()] == nil {
				out.Allowances[owner.Hex()] = make(map[string]string)
			}
			out.Allowances[owner.Hex()][spender.Hex()] = fixedpoint.Format(amount)
		}
	}
	return out
}

// RestoreToken rebuilds a token from an exported snapshot.
func RestoreToken(snapshot model.TokenSnapshot, emitter Emitter, logger *zap.Logger) (*Token, error) {
	if !common.IsHexAddress(snapshot.Meta.Address) {
		return nil, fmt.Errorf("invalid token address: %s", snapshot.Meta.Address)
	}
	token := NewToken(common.HexToAddress(snapshot.Meta.Address), snapshot.Meta, emitter, logger)

	supply, err := fixedpoint.Parse(snapshot.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("parse total supply: %w", err)
	}
	sum := fixedpoint.Zero()
	for holder, value := range snapshot.Balances {
		if !common.IsHexAddress(holder) {
			return nil, fmt.Errorf("invalid holder address: %s", holder)
		}
		balance, err := fixedpoint.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("parse balance of %s: %w", holder, err)
		}
		if sum, err = fixedpoint.Add(sum, balance); err != nil {
			return nil, fmt.Errorf("sum balances: %w", err)
		}
		token.state.balances[common.HexToAddress(holder)] = balance
	}
	if !sum.Eq(supply) {
		return nil, fmt.Errorf("%s: balances sum %s != total supply %s", snapshot.Meta.Symbol, fixedpoint.Format(sum), snapshot.TotalSupply)
	}
	token.state.totalSupply = supply

	for owner, spenders := range snapshot.Allowances {
		for spender, value := range spenders {
			amount, err := fixedpoint.Parse(value)
			if err != nil {
				return nil, fmt.Errorf("parse allowance %s/%s: %w", owner, spender, err)
			}
			ownerAddr := common.HexToAddress(owner)
			if token.state.allowances[ownerAddr] == nil {
				token.state.allowances[ownerAddr] = make(map[common.Address]*uint256.Int)
			}
			token.state.allowances[ownerAddr][common.HexToAddress(spender)] = amount
		}
	}
	return token, nil
}

func (t *Token) move(from, to common.Address, amount *uint256.Int) error {
	balance := t.BalanceOf(from)
	if balance.Lt(amount) {
		return errorsmod.Wrapf(errs.ErrInsufficientBalance, "%s: %s holds %s, need %s",
			t.meta.Symbol, from.Hex(), fixedpoint.Format(balance), fixedpoint.Format(amount))
	}
	t.state.balances[from] = balance.Sub(balance, amount)
	// Sum of balances equals total supply, so the credit cannot overflow.
	t.state.balances[to] = new(uint256.Int).Add(t.BalanceOf(to), amount)
	return nil
}

func (t *Token) afterTransfer(from, to common.Address, amount *uint256.Int) error {
	t.emit(model.EventTransfer, model.TransferEventData{
		From:  from.Hex(),
		To:    to.Hex(),
		Value: fixedpoint.Format(amount),
	})
	t.logger.Debug("transfer",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", fixedpoint.Format(amount)),
	)
	if t.hook != nil {
		if err := t.hook(from, to, amount); err != nil {
			return fmt.Errorf("%s transfer hook: %w", strings.ToLower(t.meta.Symbol), err)
		}
	}
	return nil
}

func (t *Token) emit(name string, data interface{}) {
	if t.emitter == nil {
		return
	}
	t.emitter.Emit(model.Event{Address: t.address, Name: name, Data: data})
}
