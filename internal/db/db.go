package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.ensureSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// ensureSchema creates the tables on first boot. The service is the only
// writer, so idempotent CREATE IF NOT EXISTS is enough — no migration tooling.
func (db *DB) ensureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id UUID PRIMARY KEY,
		status TEXT NOT NULL,
		source_video_path TEXT NOT NULL,
		avatar_image_path TEXT NOT NULL,
		product_image_path TEXT,
		product_name TEXT,
		error_code TEXT,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS clips (
		id UUID PRIMARY KEY,
		batch_id UUID NOT NULL REFERENCES batches(id),
		clip_index INT NOT NULL,
		start_seconds DOUBLE PRECISION NOT NULL,
		end_seconds DOUBLE PRECISION NOT NULL,
		description TEXT NOT NULL,
		contains_product BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		segment_url TEXT,
		result_url TEXT,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		batch_id UUID NOT NULL REFERENCES batches(id),
		clip_id UUID,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_clips_batch ON clips(batch_id, clip_index);
	CREATE INDEX IF NOT EXISTS idx_jobs_batch ON jobs(batch_id);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
