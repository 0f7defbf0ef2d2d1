package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityChef/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for logs, metrics and checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Schema returns the DDL applied by EnsureSchema.
func Schema() string {
	return schemaSQL
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts log records, ignoring ones already stored.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range logs {
		ingestedAt, err := time.Parse(time.RFC3339Nano, record.IngestedAt)
		if err != nil {
			return fmt.Errorf("parse ingested_at %q: %w", record.IngestedAt, err)
		}
		batch.Queue(`
			INSERT INTO event_logs (
				chain_id, block_number, block_hash, tx_hash, tx_index, log_index,
				address, topics, data, ts, ingested_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (chain_id, block_number, log_index) DO NOTHING
		`,
			int64(record.ChainID),
			int64(record.BlockNumber),
			record.BlockHash,
			record.TxHash,
			int64(record.TxIndex),
			int64(record.LogIndex),
			record.Address,
			record.Topics,
			record.Data,
			int64(record.Timestamp),
			ingestedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range logs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, asset_a, asset_b, share_token, fee_num, fee_den,
				first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				asset_a = EXCLUDED.asset_a,
				asset_b = EXCLUDED.asset_b,
				share_token = EXCLUDED.share_token,
				fee_num = EXCLUDED.fee_num,
				fee_den = EXCLUDED.fee_den,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.AssetA,
			pool.AssetB,
			pool.ShareToken,
			int32(pool.FeeNum),
			int32(pool.FeeDen),
			int64(pool.FirstSeenBlock),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_blocks, window_start_block, window_end_block,
				swap_count, mint_count, burn_count, volume_a, volume_b, fee_shares, net_a, net_b,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10::numeric,$11::numeric,$12::numeric,$13::numeric,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_blocks, window_start_block)
			DO UPDATE SET
				window_end_block = EXCLUDED.window_end_block,
				swap_count = EXCLUDED.swap_count,
				mint_count = EXCLUDED.mint_count,
				burn_count = EXCLUDED.burn_count,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				fee_shares = EXCLUDED.fee_shares,
				net_a = EXCLUDED.net_a,
				net_b = EXCLUDED.net_b,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			int64(m.WindowSize),
			int64(m.WindowStart),
			int64(m.WindowEnd),
			int64(m.SwapCount),
			int64(m.MintCount),
			int64(m.BurnCount),
			m.VolumeA,
			m.VolumeB,
			m.FeeShares,
			m.NetA,
			m.NetB,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

// SaveCheckpoint stores a JSON-encoded simulation checkpoint under name.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, block uint64, state []byte) error {
	if name == "" {
		return fmt.Errorf("checkpoint name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO simulation_checkpoints (name, block_number, state, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (name) DO UPDATE
		SET block_number = EXCLUDED.block_number, state = EXCLUDED.state, updated_at = now()
	`, name, int64(block), string(state))
	return err
}

// LoadCheckpoint returns the checkpoint stored under name.
func (s *Store) LoadCheckpoint(ctx context.Context, name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("checkpoint name required")
	}
	var state string
	row := s.pool.QueryRow(ctx, `SELECT state::text FROM simulation_checkpoints WHERE name=$1`, name)
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(state), true, nil
}
