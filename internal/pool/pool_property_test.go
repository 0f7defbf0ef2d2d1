package pool

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"liquidityChef/internal/errs"
	"liquidityChef/internal/fixedpoint"
)

var bigFunding = fixedpoint.MustParse("1000000000000000000000000000000")

func TestAddKeepsKEqualToReserveProduct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		f.fundBig(t, alice, bigFunding, bigFunding)

		steps := rapid.IntRange(1, 8).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			a := rapid.Uint64Range(1, 1_000_000_000_000).Draw(t, "a")
			b := rapid.Uint64Range(1, 1_000_000_000_000).Draw(t, "b")
			_, err := f.add(alice, n(a), n(b))
			if err != nil && !errors.Is(err, errs.ErrInvariantViolation) {
				t.Fatalf("add %d/%d: %v", a, b, err)
			}
			ra, rb := f.pool.Reserves()
			if !new(uint256.Int).Mul(ra, rb).Eq(f.pool.K()) {
				t.Fatalf("k %s != %s * %s", f.pool.K(), ra, rb)
			}
		}
	})
}

func TestSwapNeverDecreasesK(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		f.fundBig(t, alice, bigFunding, bigFunding)
		ra := rapid.Uint64Range(1_000, 1_000_000_000_000_000).Draw(t, "reserveA")
		rb := rapid.Uint64Range(1_000, 1_000_000_000_000_000).Draw(t, "reserveB")
		if _, err := f.add(alice, n(ra), n(rb)); err != nil {
			t.Fatalf("seed: %v", err)
		}

		swaps := rapid.IntRange(1, 10).Draw(t, "swaps")
		for i := 0; i < swaps; i++ {
			in, out := addrA, addrB
			if rapid.Bool().Draw(t, "reverse") {
				in, out = addrB, addrA
			}
			amount := n(rapid.Uint64Range(1, 1_000_000_000_000_000).Draw(t, "amount"))

			kBefore := f.pool.K()
			quote, quoteErr := f.pool.GetSwapInfo(in, out, amount)
			if !f.pool.K().Eq(kBefore) {
				t.Fatalf("quote mutated k")
			}
			got, _, err := f.swap(alice, in, out, amount, nil)
			if quoteErr != nil {
				if err == nil || !errors.Is(err, errs.ErrInvariantViolation) {
					t.Fatalf("quote failed with %v but swap returned %v", quoteErr, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("swap: %v", err)
			}
			if !got.Eq(quote) {
				t.Fatalf("swap paid %s, quote was %s", got, quote)
			}
			if f.pool.K().Lt(kBefore) {
				t.Fatalf("k decreased from %s to %s", kBefore, f.pool.K())
			}
		}
	})
}

func TestRemoveThenAddRestoresK(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		f.fundBig(t, alice, bigFunding, bigFunding)
		ra := rapid.Uint64Range(2, 1_000_000_000_000).Draw(t, "reserveA")
		rb := rapid.Uint64Range(ra, 1_000_000_000_000_000).Draw(t, "reserveB")
		if _, err := f.add(alice, n(ra), n(rb)); err != nil {
			t.Fatalf("seed: %v", err)
		}

		a := n(rapid.Uint64Range(1, ra-1).Draw(t, "a"))
		b, err := fixedpoint.MulDiv(a, n(rb), n(ra))
		if err != nil {
			t.Fatalf("ratio: %v", err)
		}

		kBefore := f.pool.K()
		sharesBefore := f.pool.ShareBalance(alice)
		if err := f.remove(alice, a, b); err != nil {
			t.Fatalf("remove %s/%s: %v", a, b, err)
		}
		if _, err := f.add(alice, a, b); err != nil {
			t.Fatalf("add back %s/%s: %v", a, b, err)
		}
		if !f.pool.K().Eq(kBefore) {
			t.Fatalf("k %s, want %s", f.pool.K(), kBefore)
		}
		if f.pool.ShareBalance(alice).Gt(sharesBefore) {
			t.Fatalf("round trip gained shares: %s > %s", f.pool.ShareBalance(alice), sharesBefore)
		}
	})
}
