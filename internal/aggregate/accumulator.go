package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"liquidityChef/internal/model"
)

// Accumulator holds aggregate values for a pool block window.
type Accumulator struct {
	ChainID     uint64
	PoolAddress string
	PoolMeta    model.PoolMeta
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	MintCount   uint64
	BurnCount   uint64
	VolumeA     *big.Int
	VolumeB     *big.Int
	FeeShares   *big.Int
	NetA        *big.Int
	NetB        *big.Int
	FirstBlock  uint64
	LastBlock   uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	acc := &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: record.Address,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		VolumeA:     big.NewInt(0),
		VolumeB:     big.NewInt(0),
		FeeShares:   big.NewInt(0),
		NetA:        big.NewInt(0),
		NetB:        big.NewInt(0),
		FirstBlock:  record.BlockNumber,
		LastBlock:   record.BlockNumber,
	}
	if record.PoolMeta != nil {
		acc.PoolMeta = *record.PoolMeta
	}
	return acc
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.BlockNumber > a.LastBlock {
		a.LastBlock = record.BlockNumber
	}
	if record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}

	switch strings.ToLower(record.EventName) {
	case "swap":
		var swap model.SwapEventData
		if err := record.DecodePayload(&swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case "mint":
		var mint model.MintEventData
		if err := record.DecodePayload(&mint); err != nil {
			return fmt.Errorf("decode mint: %w", err)
		}
		if err := a.applyLiquidity(mint.AmountA, mint.AmountB, 1); err != nil {
			return err
		}
		a.MintCount++
		return nil
	case "burn":
		var burn model.BurnEventData
		if err := record.DecodePayload(&burn); err != nil {
			return fmt.Errorf("decode burn: %w", err)
		}
		if err := a.applyLiquidity(burn.AmountA, burn.AmountB, -1); err != nil {
			return err
		}
		a.BurnCount++
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	amountIn, err := parseBigInt(swap.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := parseBigInt(swap.AmountOut)
	if err != nil {
		return err
	}
	fee, err := parseBigInt(swap.FeeShares)
	if err != nil {
		return err
	}

	switch {
	case sameAddress(swap.AssetIn, a.PoolMeta.AssetA) && sameAddress(swap.AssetOut, a.PoolMeta.AssetB):
		a.VolumeA.Add(a.VolumeA, amountIn)
		a.VolumeB.Add(a.VolumeB, amountOut)
		a.NetA.Add(a.NetA, amountIn)
		a.NetB.Sub(a.NetB, amountOut)
	case sameAddress(swap.AssetIn, a.PoolMeta.AssetB) && sameAddress(swap.AssetOut, a.PoolMeta.AssetA):
		a.VolumeB.Add(a.VolumeB, amountIn)
		a.VolumeA.Add(a.VolumeA, amountOut)
		a.NetB.Add(a.NetB, amountIn)
		a.NetA.Sub(a.NetA, amountOut)
	default:
		return fmt.Errorf("swap assets %s/%s do not match pool", swap.AssetIn, swap.AssetOut)
	}

	a.FeeShares.Add(a.FeeShares, fee)
	a.SwapCount++
	return nil
}

func (a *Accumulator) applyLiquidity(rawA, rawB string, sign int) error {
	amountA, err := parseBigInt(rawA)
	if err != nil {
		return err
	}
	amountB, err := parseBigInt(rawB)
	if err != nil {
		return err
	}
	if sign < 0 {
		amountA.Neg(amountA)
		amountB.Neg(amountB)
	}
	a.NetA.Add(a.NetA, amountA)
	a.NetB.Add(a.NetB, amountB)
	return nil
}

// Metrics converts the accumulator into a storable window row.
func (a *Accumulator) Metrics(windowSize uint64) model.PoolWindowMetrics {
	return model.PoolWindowMetrics{
		ChainID:     a.ChainID,
		PoolAddress: a.PoolAddress,
		WindowSize:  windowSize,
		WindowStart: a.WindowStart,
		WindowEnd:   a.WindowEnd,
		SwapCount:   a.SwapCount,
		MintCount:   a.MintCount,
		BurnCount:   a.BurnCount,
		VolumeA:     a.VolumeA.String(),
		VolumeB:     a.VolumeB.String(),
		FeeShares:   a.FeeShares.String(),
		NetA:        a.NetA.String(),
		NetB:        a.NetB.String(),
	}
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
