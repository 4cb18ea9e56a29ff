package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const imageColumns = `i.id, i.owner_id, i.path, i.embedding, i.quality_score, i.tag, i.tag_category,
	i.status, i.uploaded_at, i.deleted_at`

// ImageRepository provides PostgreSQL-backed image storage
type ImageRepository struct {
	pool *Pool
}

// NewImageRepository creates a new PostgreSQL image repository
func NewImageRepository(pool *Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (database.Image, error) {
	var img database.Image
	var vec *pgvector.Vector
	var score sql.NullFloat64
	var deletedAt sql.NullTime
	var status string

	err := row.Scan(
		&img.ID,
		&img.OwnerID,
		&img.Path,
		&vec,
		&score,
		&img.Tag,
		&img.TagCategory,
		&status,
		&img.UploadedAt,
		&deletedAt,
	)
	if err != nil {
		return img, err
	}

	if vec != nil {
		img.Embedding = vec.Slice()
	}
	if score.Valid {
		img.QualityScore = &score.Float64
	}
	if deletedAt.Valid {
		img.DeletedAt = &deletedAt.Time
	}
	img.Status = database.AnalysisStatus(status)
	return img, nil
}

func scanImages(rows *sql.Rows) ([]database.Image, error) {
	defer rows.Close()

	var images []database.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

// FindImagesWithEmbeddings implements database.ImageReader
func (r *ImageRepository) FindImagesWithEmbeddings(ctx context.Context, ownerID int64) ([]database.Image, error) {
	query := `
		SELECT ` + imageColumns + `
		FROM images i
		WHERE i.owner_id = $1 AND i.embedding IS NOT NULL AND i.deleted_at IS NULL
		ORDER BY i.id
	`
	rows, err := r.pool.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query images with embeddings: %w", err)
	}
	return scanImages(rows)
}

// GetImage implements database.ImageReader
func (r *ImageRepository) GetImage(ctx context.Context, imageID, ownerID int64) (*database.Image, error) {
	return r.getImage(ctx, imageID, ownerID, false)
}

// GetImageIncludingTrashed implements database.ImageReader
func (r *ImageRepository) GetImageIncludingTrashed(ctx context.Context, imageID, ownerID int64) (*database.Image, error) {
	return r.getImage(ctx, imageID, ownerID, true)
}

func (r *ImageRepository) getImage(ctx context.Context, imageID, ownerID int64, includeTrashed bool) (*database.Image, error) {
	query := `
		SELECT ` + imageColumns + `
		FROM images i
		WHERE i.id = $1 AND i.owner_id = $2 AND ($3 OR i.deleted_at IS NULL)
	`
	img, err := scanImage(r.pool.QueryRowContext(ctx, query, imageID, ownerID, includeTrashed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query image %d: %w", imageID, err)
	}
	return &img, nil
}

// ListTrashed implements database.ImageReader
func (r *ImageRepository) ListTrashed(ctx context.Context, ownerID int64) ([]database.Image, error) {
	query := `
		SELECT ` + imageColumns + `
		FROM images i
		WHERE i.owner_id = $1 AND i.deleted_at IS NOT NULL
		ORDER BY i.deleted_at DESC, i.id
	`
	rows, err := r.pool.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query trashed images: %w", err)
	}
	return scanImages(rows)
}

// ListOwnersWithEmbeddings implements database.ImageReader
func (r *ImageRepository) ListOwnersWithEmbeddings(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.QueryContext(ctx, `
		SELECT DISTINCT owner_id
		FROM images
		WHERE embedding IS NOT NULL AND deleted_at IS NULL
		ORDER BY owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	return scanOwnerIDs(rows)
}

func scanOwnerIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return owners, nil
}

// SoftDeleteImages implements database.ImageWriter
func (r *ImageRepository) SoftDeleteImages(ctx context.Context, ownerID int64, imageIDs []int64) (int64, error) {
	if len(imageIDs) == 0 {
		return 0, nil
	}
	return softDeleteImages(ctx, r.pool, ownerID, imageIDs)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// softDeleteImages is shared with ConfirmGroup, which runs it inside a transaction.
func softDeleteImages(ctx context.Context, db execer, ownerID int64, imageIDs []int64) (int64, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE images SET deleted_at = NOW()
		WHERE owner_id = $1 AND id = ANY($2) AND deleted_at IS NULL
	`, ownerID, pq.Array(imageIDs))
	if err != nil {
		return 0, fmt.Errorf("soft delete images: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// RestoreImage implements database.ImageWriter
func (r *ImageRepository) RestoreImage(ctx context.Context, imageID, ownerID int64) error {
	result, err := r.pool.ExecContext(ctx, `
		UPDATE images SET deleted_at = NULL
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NOT NULL
	`, imageID, ownerID)
	if err != nil {
		return fmt.Errorf("restore image %d: %w", imageID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SaveAnalysis implements database.ImageWriter
func (r *ImageRepository) SaveAnalysis(ctx context.Context, imageID, ownerID int64, res database.AnalysisResult) error {
	result, err := r.pool.ExecContext(ctx, `
		UPDATE images
		SET embedding = $3, quality_score = $4, tag = $5, tag_category = $6, status = $7
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`, imageID, ownerID, pgvector.NewVector(res.Embedding), res.QualityScore, res.Tag, res.TagCategory,
		string(database.AnalysisCompleted))
	if err != nil {
		return fmt.Errorf("save analysis for image %d: %w", imageID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// PurgeTrashed implements database.ImageWriter
func (r *ImageRepository) PurgeTrashed(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.ExecContext(ctx, `
		DELETE FROM images WHERE deleted_at IS NOT NULL AND deleted_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("purge trashed images: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
