package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"liquidityChef/internal/errs"
)

func TestMulDivRounding(t *testing.T) {
	down, err := MulDiv(uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, uint64(33), down.Uint64())

	up, err := MulDivUp(uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, uint64(34), up.Uint64())

	exact, err := MulDivUp(uint256.NewInt(10), uint256.NewInt(9), uint256.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, uint64(30), exact.Uint64())
}

func TestMulDivWideIntermediate(t *testing.T) {
	a := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	b := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	c := new(uint256.Int).AddUint64(b, 1)

	down, err := MulDiv(a, b, c)
	require.NoError(t, err)
	require.Equal(t, "1606938044258990275541962092339894951921974764381296132096000", Format(down))

	up, err := MulDivUp(a, b, c)
	require.NoError(t, err)
	require.Equal(t, "1606938044258990275541962092339894951921974764381296132096001", Format(up))

	exact, err := MulDivUp(a, b, b)
	require.NoError(t, err)
	require.Equal(t, a, exact)

	_, err = MulDiv(a, b, uint256.NewInt(1))
	require.True(t, errors.Is(err, errs.ErrInvariantViolation), "got %v", err)
}

func TestOverflowIsInvariantViolation(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	_, err := Mul(max, uint256.NewInt(2))
	require.True(t, errors.Is(err, errs.ErrInvariantViolation), "got %v", err)

	_, err = Add(max, uint256.NewInt(1))
	require.True(t, errors.Is(err, errs.ErrInvariantViolation), "got %v", err)

	_, err = Sub(uint256.NewInt(1), uint256.NewInt(2))
	require.True(t, errors.Is(err, errs.ErrInvariantViolation), "got %v", err)

	_, err = MulDiv(uint256.NewInt(1), uint256.NewInt(1), Zero())
	require.True(t, errors.Is(err, errs.ErrInvariantViolation), "got %v", err)
}

func TestSqrt(t *testing.T) {
	require.Equal(t, uint64(10000), Sqrt(uint256.NewInt(100_000_000)).Uint64())
	require.Equal(t, uint64(10000), Sqrt(uint256.NewInt(13000*7693)).Uint64())
	require.Equal(t, uint64(0), Sqrt(Zero()).Uint64())
}

func TestParseFormat(t *testing.T) {
	v, err := Parse("1000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", Format(v))

	v, err = Parse("")
	require.NoError(t, err)
	require.True(t, v.IsZero())

	for _, bad := range []string{"-1", "abc", "1e18"} {
		_, err := Parse(bad)
		require.True(t, errors.Is(err, errs.ErrInput), "input %q: %v", bad, err)
	}

	require.Equal(t, "0", Format(nil))
}
