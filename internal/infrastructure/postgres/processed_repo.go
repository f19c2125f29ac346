package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/store"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedRepository persists processed telemetry records.
//
// Schema:
//
//	CREATE TABLE processed_telemetry (
//	    dedup_key    TEXT PRIMARY KEY,
//	    event_id     UUID NOT NULL,
//	    device_id    VARCHAR(64) NOT NULL,
//	    type         VARCHAR(64) NOT NULL,
//	    value        DOUBLE PRECISION NOT NULL,
//	    unit         VARCHAR(32) NOT NULL,
//	    priority     VARCHAR(8) NOT NULL,
//	    recorded_at  TIMESTAMPTZ NOT NULL,
//	    metadata     JSONB,
//	    processed_at TIMESTAMPTZ NOT NULL
//	);
type ProcessedRepository struct {
	pool *pgxpool.Pool
}

func NewProcessedRepository(pool *pgxpool.Pool) *ProcessedRepository {
	return &ProcessedRepository{pool: pool}
}

// Put upserts on the dedup key, so a redelivered event overwrites its own
// row instead of inserting a duplicate.
func (r *ProcessedRepository) Put(ctx context.Context, key string, rec store.ProcessedRecord) error {
	const sql = `
		INSERT INTO processed_telemetry
			(dedup_key, event_id, device_id, type, value, unit, priority, recorded_at, metadata, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dedup_key) DO UPDATE SET
			event_id     = EXCLUDED.event_id,
			value        = EXCLUDED.value,
			unit         = EXCLUDED.unit,
			priority     = EXCLUDED.priority,
			metadata     = EXCLUDED.metadata,
			processed_at = EXCLUDED.processed_at
	`

	recordedAt, err := time.Parse(time.RFC3339, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("parse recorded_at %q: %w", rec.RecordedAt, err)
	}

	_, err = r.pool.Exec(ctx, sql,
		key, rec.EventID, rec.DeviceID, rec.Type, rec.Value, rec.Unit,
		string(rec.Priority), recordedAt, rec.Metadata, rec.ProcessedAt)
	if err != nil {
		return fmt.Errorf("upsert processed record: %w", err)
	}

	return nil
}
