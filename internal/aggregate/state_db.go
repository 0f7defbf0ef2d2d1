package aggregate

import (
	"context"

	"liquidityChef/internal/storage/postgres"
)

// DBStateStore keeps progress in the indexer_state row Name. The stored value is the last block
// whose windows are fully flushed; windows still open at the end of a run are recomputed on resume.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

// Load returns the last fully flushed block and whether a row exists.
func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.Name)
}

// Save upserts block as the last fully flushed block.
func (s *DBStateStore) Save(ctx context.Context, block uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, block)
}
