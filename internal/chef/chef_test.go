package chef

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"liquidityChef/internal/errs"
	"liquidityChef/internal/fixedpoint"
	"liquidityChef/internal/host"
	"liquidityChef/internal/ledger"
	"liquidityChef/internal/model"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	chefAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c4")
	stakeAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	rwdAddr   = common.HexToAddress("0x00000000000000000000000000000000000000bb")

	oneToken = fixedpoint.MustParse("1000000000000000000")
)

type fixture struct {
	host   *host.Host
	staked *ledger.Token
	reward *ledger.Token
	chef   *RewardEngine
}

func newFixture(t require.TestingT, rate *uint256.Int, rewardFunding *uint256.Int, sameToken bool) *fixture {
	h := host.New(1, nil)
	staked := ledger.NewToken(stakeAddr, model.TokenMeta{Symbol: "LP", Decimals: 18}, h, nil)
	reward := staked
	if !sameToken {
		reward = ledger.NewToken(rwdAddr, model.TokenMeta{Symbol: "CAKE", Decimals: 18}, h, nil)
	}
	engine, err := New(Config{Address: chefAddr, Owner: owner, RewardPerBlock: rate}, staked, reward, h, h, nil)
	require.NoError(t, err)
	h.Register(staked, engine)
	if !sameToken {
		h.Register(reward)
	}
	if rewardFunding != nil {
		_, err = h.Execute("fund", func() error { return reward.Mint(chefAddr, rewardFunding) })
		require.NoError(t, err)
	}
	return &fixture{host: h, staked: staked, reward: reward, chef: engine}
}

func (f *fixture) stake(t require.TestingT, user common.Address, amount *uint256.Int) {
	_, err := f.host.Execute("stake funds", func() error {
		if err := f.staked.Mint(user, amount); err != nil {
			return err
		}
		return f.staked.Approve(user, chefAddr, ledger.MaxAllowance)
	})
	require.NoError(t, err)
}

func (f *fixture) at(t require.TestingT, block uint64) {
	require.NoError(t, f.host.AdvanceTo(block))
}

func (f *fixture) deposit(user common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var paid *uint256.Int
	_, err := f.host.Execute("deposit", func() error {
		var err error
		paid, err = f.chef.Deposit(user, amount)
		return err
	})
	return paid, err
}

func (f *fixture) withdraw(user common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var paid *uint256.Int
	_, err := f.host.Execute("withdraw", func() error {
		var err error
		paid, err = f.chef.Withdraw(user, amount)
		return err
	})
	return paid, err
}

func (f *fixture) claim(user common.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	_, err := f.host.Execute("claim", func() error {
		var err error
		paid, err = f.chef.Claim(user)
		return err
	})
	return paid, err
}

func tokens(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), oneToken)
}

func TestSingleDepositorGetsFullRate(t *testing.T) {
	for _, stake := range []*uint256.Int{uint256.NewInt(1), uint256.NewInt(1000), oneToken, fixedpoint.MustParse("500000000000000000")} {
		f := newFixture(t, oneToken, tokens(1_000), false)
		f.stake(t, alice, stake)
		f.at(t, 10)
		paid, err := f.deposit(alice, stake)
		require.NoError(t, err)
		require.True(t, paid.IsZero())

		f.at(t, 20)
		paid, err = f.claim(alice)
		require.NoError(t, err)
		require.Equal(t, tokens(10), paid, "stake %s", stake)
		require.Equal(t, tokens(10), f.reward.BalanceOf(alice))
	}
}

func TestTwoDepositorsSplitProportionally(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)
	f.stake(t, alice, uint256.NewInt(100))
	f.stake(t, bob, uint256.NewInt(300))

	f.at(t, 10)
	_, err := f.deposit(alice, uint256.NewInt(100))
	require.NoError(t, err)
	f.at(t, 20)
	_, err = f.deposit(bob, uint256.NewInt(300))
	require.NoError(t, err)

	f.at(t, 40)
	alicePaid, err := f.claim(alice)
	require.NoError(t, err)
	bobPaid, err := f.claim(bob)
	require.NoError(t, err)

	require.Equal(t, tokens(15), alicePaid)
	require.Equal(t, tokens(15), bobPaid)
	require.Equal(t, tokens(30), new(uint256.Int).Add(alicePaid, bobPaid))
}

func TestNoRetroactiveRewardForDryPeriod(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)
	f.stake(t, alice, oneToken)

	f.at(t, 50)
	_, err := f.deposit(alice, oneToken)
	require.NoError(t, err)
	require.Equal(t, uint64(50), f.chef.LastRewardBlock())

	f.at(t, 60)
	paid, err := f.claim(alice)
	require.NoError(t, err)
	require.Equal(t, tokens(10), paid)
}

func TestDepositPaysPendingAndResetsDebt(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)
	f.stake(t, alice, tokens(2))

	f.at(t, 10)
	_, err := f.deposit(alice, oneToken)
	require.NoError(t, err)
	f.at(t, 15)
	paid, err := f.deposit(alice, oneToken)
	require.NoError(t, err)
	require.Equal(t, tokens(5), paid)

	pos := f.chef.Position(alice)
	require.Equal(t, tokens(2), pos.Staked)
	pending, err := f.chef.PendingReward(alice)
	require.NoError(t, err)
	require.True(t, pending.IsZero())
	require.Equal(t, tokens(2), f.chef.TotalStaked())
}

func TestWithdrawReturnsStakeAndReward(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)
	f.stake(t, alice, tokens(4))

	f.at(t, 10)
	_, err := f.deposit(alice, tokens(4))
	require.NoError(t, err)
	f.at(t, 14)
	paid, err := f.withdraw(alice, tokens(1))
	require.NoError(t, err)
	require.Equal(t, tokens(4), paid)
	require.Equal(t, tokens(1), f.staked.BalanceOf(alice))
	require.Equal(t, tokens(3), f.chef.Position(alice).Staked)
	require.Equal(t, tokens(3), f.staked.BalanceOf(chefAddr))
}

func TestPendingRewardMatchesClaim(t *testing.T) {
	f := newFixture(t, uint256.NewInt(7), tokens(1), false)
	f.stake(t, alice, uint256.NewInt(3))
	f.stake(t, bob, uint256.NewInt(11))

	f.at(t, 2)
	_, err := f.deposit(alice, uint256.NewInt(3))
	require.NoError(t, err)
	f.at(t, 5)
	_, err = f.deposit(bob, uint256.NewInt(11))
	require.NoError(t, err)
	f.at(t, 19)

	acc := f.chef.AccRewardPerShare()
	projected, err := f.chef.PendingReward(bob)
	require.NoError(t, err)
	require.Equal(t, acc, f.chef.AccRewardPerShare())

	paid, err := f.claim(bob)
	require.NoError(t, err)
	require.Equal(t, projected, paid)
}

func TestDepositAndWithdrawFailures(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)

	_, err := f.deposit(alice, uint256.NewInt(0))
	require.True(t, errors.Is(err, errs.ErrInput))

	_, err = f.host.Execute("mint", func() error { return f.staked.Mint(alice, oneToken) })
	require.NoError(t, err)
	_, err = f.deposit(alice, oneToken)
	require.True(t, errors.Is(err, errs.ErrInsufficientAllowance), "got %v", err)

	_, err = f.host.Execute("approve", func() error { return f.staked.Approve(bob, chefAddr, ledger.MaxAllowance) })
	require.NoError(t, err)
	_, err = f.deposit(bob, oneToken)
	require.True(t, errors.Is(err, errs.ErrInsufficientBalance), "got %v", err)

	_, err = f.withdraw(alice, uint256.NewInt(0))
	require.True(t, errors.Is(err, errs.ErrInput))

	_, err = f.withdraw(alice, uint256.NewInt(1))
	require.True(t, errors.Is(err, errs.ErrInsufficientBalance))

	require.True(t, f.chef.TotalStaked().IsZero())
}

func TestWithdrawDetectsHoldingShortfall(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)
	f.stake(t, alice, tokens(2))
	_, err := f.deposit(alice, tokens(2))
	require.NoError(t, err)

	_, err = f.host.Execute("drain", func() error { return f.staked.Burn(chefAddr, oneToken) })
	require.NoError(t, err)

	_, err = f.withdraw(alice, tokens(2))
	require.True(t, errors.Is(err, errs.ErrInvariantViolation), "got %v", err)
	require.Equal(t, tokens(2), f.chef.Position(alice).Staked)
}

func TestUnderfundedRewardRollsBack(t *testing.T) {
	f := newFixture(t, oneToken, nil, false)
	f.stake(t, alice, oneToken)
	f.at(t, 10)
	_, err := f.deposit(alice, oneToken)
	require.NoError(t, err)

	f.at(t, 20)
	before := f.chef.Export()
	_, err = f.claim(alice)
	require.True(t, errors.Is(err, errs.ErrInsufficientBalance), "got %v", err)
	require.Equal(t, before, f.chef.Export())
	require.Equal(t, uint64(10), f.chef.LastRewardBlock())

	_, err = f.host.Execute("fund", func() error { return f.reward.Mint(chefAddr, tokens(10)) })
	require.NoError(t, err)
	paid, err := f.claim(alice)
	require.NoError(t, err)
	require.Equal(t, tokens(10), paid)
}

func TestSameTokenRewardNeverSpendsStake(t *testing.T) {
	f := newFixture(t, oneToken, nil, true)
	f.stake(t, alice, tokens(5))
	f.at(t, 10)
	_, err := f.deposit(alice, tokens(5))
	require.NoError(t, err)

	f.at(t, 12)
	_, err = f.claim(alice)
	require.True(t, errors.Is(err, errs.ErrInsufficientBalance), "got %v", err)
	require.Equal(t, tokens(5), f.staked.BalanceOf(chefAddr))

	_, err = f.host.Execute("fund", func() error { return f.staked.Mint(chefAddr, tokens(2)) })
	require.NoError(t, err)
	paid, err := f.claim(alice)
	require.NoError(t, err)
	require.Equal(t, tokens(2), paid)
	require.Equal(t, tokens(5), f.staked.BalanceOf(chefAddr))
}

func TestEmergencyWithdrawForfeitsReward(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)
	f.stake(t, alice, oneToken)
	f.at(t, 10)
	_, err := f.deposit(alice, oneToken)
	require.NoError(t, err)

	f.at(t, 20)
	var returned *uint256.Int
	_, err = f.host.Execute("emergency", func() error {
		var err error
		returned, err = f.chef.EmergencyWithdraw(alice)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, oneToken, returned)
	require.Equal(t, oneToken, f.staked.BalanceOf(alice))
	require.True(t, f.reward.BalanceOf(alice).IsZero())
	require.True(t, f.chef.Position(alice).Staked.IsZero())
	require.True(t, f.chef.TotalStaked().IsZero())
}

func TestSetRewardPerBlock(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)
	f.stake(t, alice, oneToken)
	f.at(t, 10)
	_, err := f.deposit(alice, oneToken)
	require.NoError(t, err)

	f.at(t, 20)
	_, err = f.host.Execute("rate", func() error { return f.chef.SetRewardPerBlock(alice, tokens(2)) })
	require.True(t, errors.Is(err, errs.ErrUnauthorized))

	receipt, err := f.host.Execute("rate", func() error { return f.chef.SetRewardPerBlock(owner, tokens(2)) })
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, model.RewardRateEventData{OldRate: "1000000000000000000", NewRate: "2000000000000000000"}, receipt.Events[0].Data)

	f.at(t, 30)
	paid, err := f.claim(alice)
	require.NoError(t, err)
	require.Equal(t, tokens(30), paid)
}

func TestExportRestore(t *testing.T) {
	f := newFixture(t, oneToken, tokens(1_000), false)
	f.stake(t, alice, oneToken)
	f.at(t, 10)
	_, err := f.deposit(alice, oneToken)
	require.NoError(t, err)
	f.at(t, 13)
	_, err = f.claim(alice)
	require.NoError(t, err)

	exported := f.chef.Export()
	restored, err := Restore(exported, f.staked, f.reward, f.host, nil, nil)
	require.NoError(t, err)
	require.Equal(t, exported, restored.Export())

	exported.TotalStaked = "7"
	_, err = Restore(exported, f.staked, f.reward, f.host, nil, nil)
	require.Error(t, err)
}
