// internal/directory/directory.go
// User Directory collaborator: resolves user ids to display info for DTO
// assembly. Account lifecycle lives in the external auth system; this is a
// read-only projection.

package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/loquiapp/loqui-backend/internal/chat"
)

type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetUser(ctx context.Context, userID int64) (*chat.UserInfo, error) {
	var user chat.UserInfo
	err := s.db.GetContext(ctx, &user, `
        SELECT id, username, display_name, avatar_url
        FROM users
        WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUsers(ctx context.Context, userIDs []int64) (map[int64]*chat.UserInfo, error) {
	if len(userIDs) == 0 {
		return map[int64]*chat.UserInfo{}, nil
	}

	var users []*chat.UserInfo
	err := s.db.SelectContext(ctx, &users, `
        SELECT id, username, display_name, avatar_url
        FROM users
        WHERE id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		return nil, err
	}

	result := make(map[int64]*chat.UserInfo, len(users))
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}
