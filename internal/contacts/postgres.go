// internal/contacts/postgres.go

package contacts

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Block(ctx context.Context, userID, blockedUserID int64) error
	Unblock(ctx context.Context, userID, blockedUserID int64) error
	IsBlocked(ctx context.Context, userID, targetUserID int64) (bool, error)
	IsBlockedEither(ctx context.Context, userA, userB int64) (bool, error)
	ListBlocked(ctx context.Context, userID int64) ([]int64, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Block(ctx context.Context, userID, blockedUserID int64) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO contact_blocks (user_id, blocked_user_id)
        VALUES ($1, $2)
        ON CONFLICT (user_id, blocked_user_id) DO NOTHING`,
		userID, blockedUserID)
	return err
}

func (r *postgresRepository) Unblock(ctx context.Context, userID, blockedUserID int64) error {
	_, err := r.db.ExecContext(ctx, `
        DELETE FROM contact_blocks
        WHERE user_id = $1 AND blocked_user_id = $2`,
		userID, blockedUserID)
	return err
}

func (r *postgresRepository) IsBlocked(ctx context.Context, userID, targetUserID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
        SELECT EXISTS(
            SELECT 1 FROM contact_blocks
            WHERE user_id = $1 AND blocked_user_id = $2
        )`, userID, targetUserID).Scan(&exists)
	return exists, err
}

func (r *postgresRepository) IsBlockedEither(ctx context.Context, userA, userB int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
        SELECT EXISTS(
            SELECT 1 FROM contact_blocks
            WHERE (user_id = $1 AND blocked_user_id = $2)
               OR (user_id = $2 AND blocked_user_id = $1)
        )`, userA, userB).Scan(&exists)
	return exists, err
}

func (r *postgresRepository) ListBlocked(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
        SELECT blocked_user_id FROM contact_blocks
        WHERE user_id = $1
        ORDER BY created_at DESC`, userID)
	return ids, err
}
