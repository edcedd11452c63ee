package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Willperez332/Wan-2.2-Automation/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateBatch(ctx context.Context, batch *models.Batch) error {
	query := `
		INSERT INTO batches (
			id, status, source_video_path, avatar_image_path,
			product_image_path, product_name
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		batch.ID, batch.Status, batch.SourceVideoPath, batch.AvatarImagePath,
		batch.ProductImagePath, batch.ProductName,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
}

func (db *DB) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	query := `
		SELECT
			id, status, source_video_path, avatar_image_path,
			product_image_path, product_name, error_code, error_message,
			created_at, updated_at
		FROM batches
		WHERE id = $1
	`

	batch := &models.Batch{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&batch.ID, &batch.Status, &batch.SourceVideoPath, &batch.AvatarImagePath,
		&batch.ProductImagePath, &batch.ProductName, &batch.ErrorCode,
		&batch.ErrorMessage, &batch.CreatedAt, &batch.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return batch, nil
}

func (db *DB) UpdateBatchStatus(ctx context.Context, id uuid.UUID, status models.BatchStatus) error {
	query := `UPDATE batches SET status = $1, error_code = NULL, error_message = NULL, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

func (db *DB) UpdateBatchError(ctx context.Context, id uuid.UUID, code, message string) error {
	query := `
		UPDATE batches
		SET status = $1, error_code = $2, error_message = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.BatchStatusFailed, code, message, id)
	return err
}
