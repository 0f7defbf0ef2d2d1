package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"liquidityChef/internal/errs"
	"liquidityChef/internal/model"
)

var (
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	spender   = common.HexToAddress("0x0000000000000000000000000000000000005e11")
)

func newTestToken(t *testing.T) (*Token, *[]model.Event) {
	t.Helper()
	var events []model.Event
	token := NewToken(tokenAddr, model.TokenMeta{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
		EmitterFunc(func(event model.Event) { events = append(events, event) }), nil)
	require.NoError(t, token.Mint(alice, uint256.NewInt(100)))
	return token, &events
}

func TestTransfer(t *testing.T) {
	token, events := newTestToken(t)

	require.NoError(t, token.Transfer(alice, bob, uint256.NewInt(40)))
	require.Equal(t, uint64(60), token.BalanceOf(alice).Uint64())
	require.Equal(t, uint64(40), token.BalanceOf(bob).Uint64())
	require.Equal(t, uint64(100), token.TotalSupply().Uint64())

	last := (*events)[len(*events)-1]
	require.Equal(t, model.EventTransfer, last.Name)
	require.Equal(t, model.TransferEventData{From: alice.Hex(), To: bob.Hex(), Value: "40"}, last.Data)

	err := token.Transfer(bob, alice, uint256.NewInt(41))
	require.True(t, errors.Is(err, errs.ErrInsufficientBalance), "got %v", err)

	err = token.Transfer(alice, common.Address{}, uint256.NewInt(1))
	require.True(t, errors.Is(err, errs.ErrInput), "got %v", err)
}

func TestTransferToSelf(t *testing.T) {
	token, _ := newTestToken(t)
	require.NoError(t, token.Transfer(alice, alice, uint256.NewInt(100)))
	require.Equal(t, uint64(100), token.BalanceOf(alice).Uint64())
}

func TestTransferFromAllowance(t *testing.T) {
	token, _ := newTestToken(t)

	err := token.TransferFrom(spender, alice, bob, uint256.NewInt(1))
	require.True(t, errors.Is(err, errs.ErrInsufficientAllowance), "got %v", err)

	require.NoError(t, token.Approve(alice, spender, uint256.NewInt(50)))
	require.NoError(t, token.TransferFrom(spender, alice, bob, uint256.NewInt(30)))
	require.Equal(t, uint64(20), token.Allowance(alice, spender).Uint64())

	err = token.TransferFrom(spender, alice, bob, uint256.NewInt(21))
	require.True(t, errors.Is(err, errs.ErrInsufficientAllowance), "got %v", err)

	require.NoError(t, token.Approve(alice, spender, MaxAllowance))
	require.NoError(t, token.TransferFrom(spender, alice, bob, uint256.NewInt(70)))
	require.True(t, token.Allowance(alice, spender).Eq(MaxAllowance))

	err = token.TransferFrom(spender, alice, bob, uint256.NewInt(1))
	require.True(t, errors.Is(err, errs.ErrInsufficientBalance), "got %v", err)
}

func TestZeroAmountTransferFromWithoutAllowance(t *testing.T) {
	token, _ := newTestToken(t)
	require.NoError(t, token.TransferFrom(spender, bob, alice, uint256.NewInt(0)))
}

func TestMintBurn(t *testing.T) {
	token, events := newTestToken(t)

	require.NoError(t, token.Burn(alice, uint256.NewInt(30)))
	require.Equal(t, uint64(70), token.TotalSupply().Uint64())

	last := (*events)[len(*events)-1]
	require.Equal(t, model.TransferEventData{From: alice.Hex(), To: common.Address{}.Hex(), Value: "30"}, last.Data)

	err := token.Burn(bob, uint256.NewInt(1))
	require.True(t, errors.Is(err, errs.ErrInsufficientBalance), "got %v", err)

	err = token.Mint(bob, MaxAllowance)
	require.True(t, errors.Is(err, errs.ErrInvariantViolation), "got %v", err)
}

func TestSnapshotRevert(t *testing.T) {
	token, _ := newTestToken(t)

	id := token.Snapshot()
	require.NoError(t, token.Transfer(alice, bob, uint256.NewInt(10)))
	require.NoError(t, token.Approve(alice, spender, uint256.NewInt(5)))
	token.RevertToSnapshot(id)

	require.Equal(t, uint64(100), token.BalanceOf(alice).Uint64())
	require.True(t, token.BalanceOf(bob).IsZero())
	require.True(t, token.Allowance(alice, spender).IsZero())

	id = token.Snapshot()
	require.NoError(t, token.Transfer(alice, bob, uint256.NewInt(10)))
	token.DiscardSnapshot(id)
	require.Equal(t, uint64(10), token.BalanceOf(bob).Uint64())
}

func TestTransferHookFailure(t *testing.T) {
	token, _ := newTestToken(t)
	token.SetTransferHook(func(from, to common.Address, amount *uint256.Int) error {
		return errors.New("receiver rejected")
	})
	require.Error(t, token.Transfer(alice, bob, uint256.NewInt(1)))
}

func TestExportRestore(t *testing.T) {
	token, _ := newTestToken(t)
	require.NoError(t, token.Transfer(alice, bob, uint256.NewInt(25)))
	require.NoError(t, token.Approve(alice, spender, uint256.NewInt(7)))

	restored, err := RestoreToken(token.Export(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, token.Export(), restored.Export())
	require.Equal(t, uint64(7), restored.Allowance(alice, spender).Uint64())

	broken := token.Export()
	broken.TotalSupply = "1"
	_, err = RestoreToken(broken, nil, nil)
	require.Error(t, err)
}
