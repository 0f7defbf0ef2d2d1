package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"liquidityChef/internal/chef"
	"liquidityChef/internal/ledger"
	"liquidityChef/internal/model"
	"liquidityChef/internal/pool"
)

// Checkpoint is the serialisable state of a world at one block.
type Checkpoint struct {
	ChainID     uint64                `json:"chain_id"`
	BlockNumber uint64                `json:"block_number"`
	Accounts    map[string]string     `json:"accounts,omitempty"`
	Tokens      []model.TokenSnapshot `json:"tokens"`
	Pool        *model.PoolSnapshot   `json:"pool,omitempty"`
	Chef        *model.ChefSnapshot   `json:"chef,omitempty"`
	UpdatedAt   string                `json:"updated_at"`
}

// Checkpoint exports every component at the current block.
func (w *World) Checkpoint(now time.Time) Checkpoint {
	cp := Checkpoint{
		ChainID:     w.ChainID,
		BlockNumber: w.Host.BlockNumber(),
		Tokens:      make([]model.TokenSnapshot, 0, len(w.Tokens)),
		UpdatedAt:   now.UTC().Format(time.RFC3339Nano),
	}
	if len(w.names) > 0 {
		cp.Accounts = make(map[string]string, len(w.names))
		for name, addr := range w.names {
			cp.Accounts[name] = addr.Hex()
		}
	}
	for _, addr := range w.tokenAddresses() {
		cp.Tokens = append(cp.Tokens, w.Tokens[addr].Export())
	}
	if w.Pool != nil {
		snapshot := w.Pool.Export()
		cp.Pool = &snapshot
	}
	if w.Chef != nil {
		snapshot := w.Chef.Export()
		cp.Chef = &snapshot
	}
	return cp
}

// Restore rebuilds a world from a checkpoint. The host resumes at the checkpoint block.
func Restore(cp Checkpoint, logger *zap.Logger) (*World, error) {
	w := newWorld(cp.ChainID, cp.BlockNumber, logger)

	for name, hex := range cp.Accounts {
		addr, err := ParseAddress(hex)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		w.names[name] = addr
	}

	for _, snapshot := range cp.Tokens {
		token, err := ledger.RestoreToken(snapshot, w.Host, w.logger)
		if err != nil {
			return nil, fmt.Errorf("restore token: %w", err)
		}
		w.Tokens[token.Address()] = token
	}

	if cp.Pool != nil {
		assetA, err := w.restoredLedger(cp.Pool.AssetA)
		if err != nil {
			return nil, fmt.Errorf("pool asset a: %w", err)
		}
		assetB, err := w.restoredLedger(cp.Pool.AssetB)
		if err != nil {
			return nil, fmt.Errorf("pool asset b: %w", err)
		}
		p, err := pool.Restore(*cp.Pool, assetA, assetB, w.Host, w.logger)
		if err != nil {
			return nil, fmt.Errorf("restore pool: %w", err)
		}
		w.Pool = p
	}

	if cp.Chef != nil {
		staked, err := w.restoredLedger(cp.Chef.StakedToken)
		if err != nil {
			return nil, fmt.Errorf("chef staked token: %w", err)
		}
		reward, err := w.restoredLedger(cp.Chef.RewardToken)
		if err != nil {
			return nil, fmt.Errorf("chef reward token: %w", err)
		}
		engine, err := chef.Restore(*cp.Chef, staked, reward, w.Host, w.Host, w.logger)
		if err != nil {
			return nil, fmt.Errorf("restore chef: %w", err)
		}
		w.Chef = engine
	}

	w.register()
	return w, nil
}

func (w *World) restoredLedger(hex string) (ledger.FungibleLedger, error) {
	addr, err := ParseAddress(hex)
	if err != nil {
		return nil, err
	}
	l, ok := w.Ledger(addr)
	if !ok {
		return nil, fmt.Errorf("no ledger at %s in checkpoint", addr.Hex())
	}
	return l, nil
}

// EncodeCheckpoint renders a checkpoint as indented JSON.
func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return data, nil
}

// DecodeCheckpoint parses a checkpoint document.
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, nil
}

// CheckpointStore persists checkpoints to disk.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if c == nil || c.path == "" {
		return Checkpoint{}, false, nil
	}

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return Checkpoint{}, false, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	cp, err := DecodeCheckpoint(data)
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (c *CheckpointStore) Save(cp Checkpoint) error {
	if c == nil || c.path == "" {
		return nil
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
