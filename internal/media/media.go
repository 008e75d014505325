// internal/media/media.go
// Media Reference Store collaborator: resolves a media file id to its
// metadata. File bytes live in an external object store; the chat core only
// ever persists the reference id.

package media

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/loquiapp/loqui-backend/internal/chat"
)

type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetMedia(ctx context.Context, mediaID int64) (*chat.MediaInfo, error) {
	var info chat.MediaInfo
	err := s.db.GetContext(ctx, &info, `
        SELECT id, mime_type, size_bytes, url, thumbnail_url, duration_ms
        FROM media_files
        WHERE id = $1`, mediaID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
