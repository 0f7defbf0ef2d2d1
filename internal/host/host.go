// Package host models the execution environment the pool and chef run in. Operations run one at
// a time and either commit with their events or leave every registered journal untouched.
package host

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityChef/internal/model"
)

// Journal is a state owner that can be snapshotted and reverted.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// Receipt describes one executed operation.
type Receipt struct {
	BlockNumber uint64
	TxIndex     uint64
	TxHash      common.Hash
	Label       string
	Events      []model.Event
	Err         error
}

// Succeeded reports whether the operation committed.
func (r Receipt) Succeeded() bool {
	return r.Err == nil
}

// Host applies operations one at a time. Operations run synchronously inside Execute and must
// not call Execute themselves. BlockNumber may be read from any goroutine, including from inside
// a running operation.
type Host struct {
	mu       sync.Mutex
	block    atomic.Uint64
	txIndex  uint64
	journals []Journal
	pending  []model.Event
	inTx     bool
	logger   *zap.Logger
}

// New returns a host positioned at startBlock.
func New(startBlock uint64, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Host{logger: logger}
	h.block.Store(startBlock)
	return h
}

// Register adds state owners that are snapshotted around every operation.
func (h *Host) Register(journals ...Journal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.journals = append(h.journals, journals...)
}

// BlockNumber returns the current block height.
func (h *Host) BlockNumber() uint64 {
	return h.block.Load()
}

// AdvanceTo moves the chain to block. Heights never decrease.
func (h *Host) AdvanceTo(block uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.block.Load()
	if block < current {
		return fmt.Errorf("block %d is behind current height %d", block, current)
	}
	if block > current {
		h.block.Store(block)
		h.txIndex = 0
	}
	return nil
}

// Mine advances the chain by n blocks.
func (h *Host) Mine(n uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n == 0 {
		return
	}
	h.block.Add(n)
	h.txIndex = 0
}

// Emit buffers an event for the running operation. Events emitted outside Execute are dropped.
func (h *Host) Emit(event model.Event) {
	if !h.inTx {
		h.logger.Debug("event outside operation dropped", zap.String("event", event.Name))
		return
	}
	h.pending = append(h.pending, event)
}

// Execute runs fn atomically. When fn fails every registered journal is reverted and no events
// are released; the failure is returned both in the receipt and as the error.
func (h *Host) Execute(label string, fn func() error) (Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	block := h.block.Load()
	receipt := Receipt{
		BlockNumber: block,
		TxIndex:     h.txIndex,
		TxHash:      txHash(block, h.txIndex, label),
		Label:       label,
	}
	h.txIndex++

	ids := make([]int, len(h.journals))
	for i, journal := range h.journals {
		ids[i] = journal.Snapshot()
	}
	h.pending = nil
	h.inTx = true

	err := fn()

	h.inTx = false
	if err != nil {
		for i := len(h.journals) - 1; i >= 0; i-- {
			h.journals[i].RevertToSnapshot(ids[i])
		}
		h.pending = nil
		receipt.Err = err
		h.logger.Debug("operation reverted", zap.String("label", label), zap.Uint64("block", receipt.BlockNumber), zap.Error(err))
		return receipt, err
	}

	for i := len(h.journals) - 1; i >= 0; i-- {
		h.journals[i].DiscardSnapshot(ids[i])
	}
	receipt.Events = h.pending
	h.pending = nil
	h.logger.Debug("operation committed", zap.String("label", label), zap.Uint64("block", receipt.BlockNumber), zap.Int("events", len(receipt.Events)))
	return receipt, nil
}

// BlockHash derives a deterministic hash for a simulated block.
func BlockHash(block uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], block)
	return crypto.Keccak256Hash([]byte("block"), buf[:])
}

func txHash(block, index uint64, label string) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], block)
	binary.BigEndian.PutUint64(buf[8:], index)
	return crypto.Keccak256Hash(buf[:], []byte(label))
}
