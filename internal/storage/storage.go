package storage

import (
	"context"

	"liquidityChef/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// MultiStorage fans a batch out to every sink in order and stops at the first failure.
type MultiStorage []Storage

func (m MultiStorage) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutLogBatch(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}
