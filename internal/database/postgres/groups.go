package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/lib/pq"
)

// GroupRepository provides PostgreSQL-backed similar group storage
type GroupRepository struct {
	pool *Pool
}

// NewGroupRepository creates a new PostgreSQL group repository
func NewGroupRepository(pool *Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// groupSelect counts only live members so soft-deleted images drop out of every group view.
const groupSelect = `
	SELECT g.id, g.owner_id, g.name, g.status, g.best_image_id, g.created_at,
		COUNT(i.id) AS image_count
	FROM similar_groups g
	LEFT JOIN similar_group_images m ON m.group_id = g.id
	LEFT JOIN images i ON i.id = m.image_id AND i.deleted_at IS NULL
`

func scanGroup(row rowScanner) (database.SimilarGroup, error) {
	var g database.SimilarGroup
	var status string
	var best sql.NullInt64

	if err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &status, &best, &g.CreatedAt, &g.ImageCount); err != nil {
		return g, err
	}
	g.Status = database.GroupStatus(status)
	if best.Valid {
		g.BestImageID = &best.Int64
	}
	return g, nil
}

// GetGroups implements database.GroupReader
func (r *GroupRepository) GetGroups(ctx context.Context, ownerID int64) ([]database.SimilarGroup, error) {
	query := groupSelect + `
		WHERE g.owner_id = $1
		GROUP BY g.id
		ORDER BY g.id
	`
	rows, err := r.pool.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []database.SimilarGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// GetGroup implements database.GroupReader
func (r *GroupRepository) GetGroup(ctx context.Context, groupID, ownerID int64) (*database.SimilarGroup, error) {
	query := groupSelect + `
		WHERE g.id = $1 AND g.owner_id = $2
		GROUP BY g.id
	`
	g, err := scanGroup(r.pool.QueryRowContext(ctx, query, groupID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query group %d: %w", groupID, err)
	}
	return &g, nil
}

// GetImagesForGroup implements database.GroupReader
func (r *GroupRepository) GetImagesForGroup(ctx context.Context, groupID, ownerID int64) ([]database.Image, error) {
	if _, err := r.GetGroup(ctx, groupID, ownerID); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + imageColumns + `
		FROM similar_group_images m
		JOIN images i ON i.id = m.image_id
		WHERE m.group_id = $1 AND i.owner_id = $2 AND i.deleted_at IS NULL
		ORDER BY i.id
	`
	rows, err := r.pool.QueryContext(ctx, query, groupID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query group images: %w", err)
	}
	return scanImages(rows)
}

// ListOwnersWithSuggestions implements database.GroupReader
func (r *GroupRepository) ListOwnersWithSuggestions(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.QueryContext(ctx, `
		SELECT DISTINCT owner_id FROM similar_groups WHERE status = $1 ORDER BY owner_id
	`, string(database.GroupStatusSuggested))
	if err != nil {
		return nil, fmt.Errorf("query group owners: %w", err)
	}
	return scanOwnerIDs(rows)
}

// ReplaceSuggestedGroups implements database.GroupWriter.
// The delete and all inserts share one transaction, so readers see either the old or the new set.
func (r *GroupRepository) ReplaceSuggestedGroups(
	ctx context.Context, ownerID int64, groups []database.NewGroup,
) ([]database.SimilarGroup, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM similar_groups WHERE owner_id = $1 AND status = $2`,
		ownerID, string(database.GroupStatusSuggested),
	); err != nil {
		return nil, fmt.Errorf("delete suggested groups: %w", err)
	}

	created := make([]database.SimilarGroup, 0, len(groups))
	for _, ng := range groups {
		g := database.SimilarGroup{
			OwnerID:     ownerID,
			Name:        database.GroupName(ng.Label),
			Status:      database.GroupStatusSuggested,
			BestImageID: ng.BestImageID,
			ImageCount:  len(ng.ImageIDs),
		}

		var best sql.NullInt64
		if ng.BestImageID != nil {
			best = sql.NullInt64{Int64: *ng.BestImageID, Valid: true}
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO similar_groups (owner_id, name, status, best_image_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, ownerID, g.Name, string(g.Status), best).Scan(&g.ID, &g.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert group %q: %w", g.Name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO similar_group_images (group_id, image_id, is_representative)
			SELECT $1, id, COALESCE(id = $3, FALSE)
			FROM unnest($2::bigint[]) AS id
		`, g.ID, pq.Array(ng.ImageIDs), best); err != nil {
			return nil, fmt.Errorf("insert members of group %d: %w", g.ID, err)
		}

		created = append(created, g)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit group replacement: %w", err)
	}
	return created, nil
}

// DeleteGroup implements database.GroupWriter
func (r *GroupRepository) DeleteGroup(ctx context.Context, groupID, ownerID int64) error {
	if _, err := r.pool.ExecContext(ctx,
		`DELETE FROM similar_groups WHERE id = $1 AND owner_id = $2`, groupID, ownerID,
	); err != nil {
		return fmt.Errorf("delete group %d: %w", groupID, err)
	}
	return nil
}

// ConfirmGroup implements database.GroupWriter
func (r *GroupRepository) ConfirmGroup(ctx context.Context, groupID, ownerID int64, imageIDs []int64) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM similar_groups WHERE id = $1 AND owner_id = $2 FOR UPDATE`, groupID, ownerID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, database.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock group %d: %w", groupID, err)
	}

	var deleted int64
	if len(imageIDs) > 0 {
		deleted, err = softDeleteImages(ctx, tx, ownerID, imageIDs)
		if err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM similar_groups WHERE id = $1`, groupID); err != nil {
		return 0, fmt.Errorf("delete group %d: %w", groupID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit group confirmation: %w", err)
	}
	return deleted, nil
}

// ConfirmKeepBest implements database.GroupWriter.
// The best image row is locked before the other members are trashed, so a concurrent soft
// delete of the best image cannot leave the group without a survivor.
func (r *GroupRepository) ConfirmKeepBest(ctx context.Context, groupID, ownerID int64) (int64, bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var best sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT best_image_id FROM similar_groups WHERE id = $1 AND owner_id = $2 FOR UPDATE`, groupID, ownerID,
	).Scan(&best)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, database.ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("lock group %d: %w", groupID, err)
	}

	bestLive := false
	if best.Valid {
		var exists int
		err = tx.QueryRowContext(ctx, `
			SELECT 1
			FROM similar_group_images m
			JOIN images i ON i.id = m.image_id
			WHERE m.group_id = $1 AND i.id = $2 AND i.owner_id = $3 AND i.deleted_at IS NULL
			FOR UPDATE OF i
		`, groupID, best.Int64, ownerID).Scan(&exists)
		switch {
		case err == nil:
			bestLive = true
		case !errors.Is(err, sql.ErrNoRows):
			return 0, false, fmt.Errorf("lock best image of group %d: %w", groupID, err)
		}
	}

	var deleted int64
	if bestLive {
		result, err := tx.ExecContext(ctx, `
			UPDATE images SET deleted_at = NOW()
			WHERE owner_id = $1 AND deleted_at IS NULL AND id <> $2
				AND id IN (SELECT image_id FROM similar_group_images WHERE group_id = $3)
		`, ownerID, best.Int64, groupID)
		if err != nil {
			return 0, false, fmt.Errorf("soft delete members of group %d: %w", groupID, err)
		}
		if deleted, err = result.RowsAffected(); err != nil {
			return 0, false, fmt.Errorf("rows affected: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM similar_groups WHERE id = $1`, groupID); err != nil {
		return 0, false, fmt.Errorf("delete group %d: %w", groupID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit group confirmation: %w", err)
	}
	return deleted, bestLive, nil
}
