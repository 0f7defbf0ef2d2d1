// Package metrics exposes Prometheus collectors for pool and reward engine activity.
package metrics

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"liquidityChef/internal/chef"
	"liquidityChef/internal/errs"
	"liquidityChef/internal/host"
	"liquidityChef/internal/pool"
)

const namespace = "liquiditychef"

// Outcome labels for OperationsTotal.
const (
	OutcomeOK       = "ok"
	OutcomeExpected = "expected_error"
	OutcomeFailed   = "failed"
)

// Recorder holds every collector. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	OperationsTotal *prometheus.CounterVec
	EventsTotal     *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	BlockHeight     prometheus.Gauge

	PoolReserves    *prometheus.GaugeVec
	PoolTotalShares *prometheus.GaugeVec
	PoolInvariantK  *prometheus.GaugeVec

	ChefTotalStaked       *prometheus.GaugeVec
	ChefAccRewardPerShare *prometheus.GaugeVec
	ChefRewardPerBlock    *prometheus.GaugeVec
}

// New registers collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Executed operations by op and outcome",
			},
			[]string{"op", "outcome"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Events released by committed operations",
			},
			[]string{"event"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_errors_total",
				Help:      "Reverted operations by error code",
			},
			[]string{"op", "code"},
		),
		BlockHeight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "block_height",
				Help:      "Current simulated block height",
			},
		),
		PoolReserves: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "reserves",
				Help:      "Pool reserves in base units",
			},
			[]string{"pool", "asset"},
		),
		PoolTotalShares: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "total_shares",
				Help:      "Outstanding pool shares",
			},
			[]string{"pool"},
		),
		PoolInvariantK: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "invariant_k",
				Help:      "Reserve product",
			},
			[]string{"pool"},
		),
		ChefTotalStaked: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "chef",
				Name:      "total_staked",
				Help:      "Total staked amount",
			},
			[]string{"chef"},
		),
		ChefAccRewardPerShare: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "chef",
				Name:      "acc_reward_per_share",
				Help:      "Accumulated reward per staked unit, scaled by precision",
			},
			[]string{"chef"},
		),
		ChefRewardPerBlock: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "chef",
				Name:      "reward_per_block",
				Help:      "Reward emitted per block",
			},
			[]string{"chef"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveReceipt counts an executed operation. expected marks failures the caller anticipated.
func (r *Recorder) ObserveReceipt(op string, receipt host.Receipt, expected bool) {
	if r == nil {
		return
	}
	r.BlockHeight.Set(float64(receipt.BlockNumber))

	if receipt.Succeeded() {
		r.OperationsTotal.WithLabelValues(op, OutcomeOK).Inc()
		for _, event := range receipt.Events {
			r.EventsTotal.WithLabelValues(event.Name).Inc()
		}
		return
	}

	outcome := OutcomeFailed
	if expected {
		outcome = OutcomeExpected
	}
	r.OperationsTotal.WithLabelValues(op, outcome).Inc()
	r.ErrorsTotal.WithLabelValues(op, errorCode(receipt.Err)).Inc()
}

// ObservePool records pool reserves, shares and K.
func (r *Recorder) ObservePool(p *pool.LiquidityPool) {
	if r == nil || p == nil {
		return
	}
	addr := p.Address().Hex()
	reserveA, reserveB := p.Reserves()
	r.PoolReserves.WithLabelValues(addr, p.AssetA().Address().Hex()).Set(toFloat(reserveA))
	r.PoolReserves.WithLabelValues(addr, p.AssetB().Address().Hex()).Set(toFloat(reserveB))
	r.PoolTotalShares.WithLabelValues(addr).Set(toFloat(p.TotalShares()))
	r.PoolInvariantK.WithLabelValues(addr).Set(toFloat(p.K()))
}

// ObserveChef records reward engine accrual state.
func (r *Recorder) ObserveChef(e *chef.RewardEngine) {
	if r == nil || e == nil {
		return
	}
	addr := e.Address().Hex()
	r.ChefTotalStaked.WithLabelValues(addr).Set(toFloat(e.TotalStaked()))
	r.ChefAccRewardPerShare.WithLabelValues(addr).Set(toFloat(e.AccRewardPerShare()))
	r.ChefRewardPerBlock.WithLabelValues(addr).Set(toFloat(e.RewardPerBlock()))
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func errorCode(err error) string {
	for _, known := range []*errorsmod.Error{
		errs.ErrInput,
		errs.ErrInsufficientBalance,
		errs.ErrInsufficientAllowance,
		errs.ErrInvariantViolation,
		errs.ErrSlippageExceeded,
		errs.ErrUnauthorized,
	} {
		if errors.Is(err, known) {
			return strconv.FormatUint(uint64(known.ABCICode()), 10)
		}
	}
	return "unknown"
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
