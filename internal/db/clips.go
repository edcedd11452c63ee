package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Willperez332/Wan-2.2-Automation/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateClip(ctx context.Context, clip *models.Clip) error {
	query := `
		INSERT INTO clips (
			id, batch_id, clip_index, start_seconds, end_seconds,
			description, contains_product, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		clip.ID, clip.BatchID, clip.ClipIndex, clip.StartSeconds, clip.EndSeconds,
		clip.Description, clip.ContainsProduct, clip.Status,
	).Scan(&clip.CreatedAt, &clip.UpdatedAt)
}

func (db *DB) GetClip(ctx context.Context, id uuid.UUID) (*models.Clip, error) {
	query := `
		SELECT
			id, batch_id, clip_index, start_seconds, end_seconds,
			description, contains_product, status, segment_url, result_url,
			error_message, created_at, updated_at
		FROM clips
		WHERE id = $1
	`

	clip := &models.Clip{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&clip.ID, &clip.BatchID, &clip.ClipIndex, &clip.StartSeconds,
		&clip.EndSeconds, &clip.Description, &clip.ContainsProduct, &clip.Status,
		&clip.SegmentURL, &clip.ResultURL, &clip.ErrorMessage,
		&clip.CreatedAt, &clip.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("clip not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clip: %w", err)
	}

	return clip, nil
}

func (db *DB) GetBatchClips(ctx context.Context, batchID uuid.UUID) ([]models.Clip, error) {
	query := `
		SELECT
			id, batch_id, clip_index, start_seconds, end_seconds,
			description, contains_product, status, segment_url, result_url,
			error_message, created_at, updated_at
		FROM clips
		WHERE batch_id = $1
		ORDER BY clip_index
	`

	rows, err := db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips: %w", err)
	}
	defer rows.Close()

	var clips []models.Clip
	for rows.Next() {
		var clip models.Clip
		err := rows.Scan(
			&clip.ID, &clip.BatchID, &clip.ClipIndex, &clip.StartSeconds,
			&clip.EndSeconds, &clip.Description, &clip.ContainsProduct, &clip.Status,
			&clip.SegmentURL, &clip.ResultURL, &clip.ErrorMessage,
			&clip.CreatedAt, &clip.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clip: %w", err)
		}
		clips = append(clips, clip)
	}

	return clips, nil
}

func (db *DB) UpdateClipStatus(ctx context.Context, id uuid.UUID, status models.ClipStatus) error {
	query := `UPDATE clips SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

// UpdateClipSegmentURL records the remote URL of the cut source segment.
func (db *DB) UpdateClipSegmentURL(ctx context.Context, id uuid.UUID, url string) error {
	query := `UPDATE clips SET segment_url = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, url, id)
	return err
}

func (db *DB) UpdateClipResult(ctx context.Context, id uuid.UUID, resultURL string) error {
	query := `
		UPDATE clips
		SET status = $1, result_url = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.ClipStatusCompleted, resultURL, id)
	return err
}

func (db *DB) UpdateClipError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE clips
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.ClipStatusFailed, errorMessage, id)
	return err
}

// ResetBatchClips puts every clip of a batch back to pending with no result,
// so a re-run starts from a clean slate regardless of prior outcomes.
func (db *DB) ResetBatchClips(ctx context.Context, batchID uuid.UUID) error {
	query := `
		UPDATE clips
		SET status = $1, result_url = NULL, segment_url = NULL,
		    error_message = NULL, updated_at = NOW()
		WHERE batch_id = $2
	`
	_, err := db.ExecContext(ctx, query, models.ClipStatusPending, batchID)
	return err
}

// DeleteBatchClips removes all clips before a re-analysis replaces them.
func (db *DB) DeleteBatchClips(ctx context.Context, batchID uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM clips WHERE batch_id = $1`, batchID)
	return err
}

// CountNonTerminalClips returns how many clips of a batch are still pending
// or generating. Zero means the batch run has fully drained.
func (db *DB) CountNonTerminalClips(ctx context.Context, batchID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM clips
		WHERE batch_id = $1 AND status NOT IN ($2, $3)
	`

	var count int
	err := db.QueryRowContext(ctx, query, batchID,
		models.ClipStatusCompleted, models.ClipStatusFailed).Scan(&count)
	return count, err
}
