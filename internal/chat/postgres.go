// internal/chat/postgres.go

package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// CreateConversation inserts the conversation and all member rows in one
// transaction. A pair_key collision surfaces as ErrConflict so the caller
// can re-run the lookup.
func (r *postgresRepository) CreateConversation(ctx context.Context, conv *Conversation, memberIDs []int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateErr(err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO conversations (
            type, name, description, avatar_url, created_by, pair_key,
            last_active_at, settings, metadata
        ) VALUES ($1, $2, $3, $4, $5, $6, NOW(), COALESCE($7, '{}'::jsonb), COALESCE($8, '{}'::jsonb))
        RETURNING id, last_active_at, created_at, updated_at`

	err = tx.QueryRowContext(
		ctx, query,
		conv.Type, conv.Name, conv.Description, conv.AvatarURL,
		conv.CreatedBy, conv.PairKey,
		nullableJSON(conv.Settings), nullableJSON(conv.Metadata),
	).Scan(&conv.ID, &conv.LastActiveAt, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return translateErr(err)
	}

	for _, userID := range memberIDs {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO conversation_members (conversation_id, user_id)
            VALUES ($1, $2)
            ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			conv.ID, userID)
		if err != nil {
			return translateErr(err)
		}
	}

	return translateErr(tx.Commit())
}

func (r *postgresRepository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	var conv Conversation
	err := r.db.GetContext(ctx, &conv, `
        SELECT id, type, name, description, avatar_url, created_by, pair_key,
               last_active_at, last_message_id, is_deleted, deleted_at,
               settings, metadata, created_at, updated_at
        FROM conversations
        WHERE id = $1 AND is_deleted = false`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	return &conv, nil
}

func (r *postgresRepository) GetPrivateConversation(ctx context.Context, userA, userB int64) (*Conversation, error) {
	var conv Conversation
	err := r.db.GetContext(ctx, &conv, `
        SELECT id, type, name, description, avatar_url, created_by, pair_key,
               last_active_at, last_message_id, is_deleted, deleted_at,
               settings, metadata, created_at, updated_at
        FROM conversations
        WHERE pair_key = $1 AND type = $2 AND is_deleted = false`,
		PairKey(userA, userB), ConversationPrivate)
	if err != nil {
		return nil, translateErr(err)
	}
	return &conv, nil
}

// GetUserConversations returns the caller's side of every non-deleted
// conversation, newest activity first, split on the member's archive flag.
func (r *postgresRepository) GetUserConversations(ctx context.Context, userID int64, archived bool, limit, offset int) ([]*Conversation, error) {
	query := `
        SELECT c.id, c.type, c.name, c.description, c.avatar_url, c.created_by,
               c.pair_key, c.last_active_at, c.last_message_id, c.is_deleted,
               c.deleted_at, c.settings, c.metadata, c.created_at, c.updated_at,
               m.conversation_id, m.user_id, m.is_pinned, m.is_archived, m.is_dnd,
               m.draft, m.last_read_message_id, m.last_acceptable_message_id,
               m.created_at, m.updated_at
        FROM conversations c
        JOIN conversation_members m ON m.conversation_id = c.id
        WHERE m.user_id = $1 AND m.is_archived = $2 AND c.is_deleted = false
        ORDER BY c.last_active_at DESC
        LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, userID, archived, limit, offset)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var conv Conversation
		var member ConversationMember

		err := rows.Scan(
			&conv.ID, &conv.Type, &conv.Name, &conv.Description, &conv.AvatarURL,
			&conv.CreatedBy, &conv.PairKey, &conv.LastActiveAt, &conv.LastMessageID,
			&conv.IsDeleted, &conv.DeletedAt, &conv.Settings, &conv.Metadata,
			&conv.CreatedAt, &conv.UpdatedAt,
			&member.ConversationID, &member.UserID, &member.IsPinned,
			&member.IsArchived, &member.IsDnd, &member.Draft,
			&member.LastReadMessageID, &member.LastAcceptableMessageID,
			&member.CreatedAt, &member.UpdatedAt,
		)
		if err != nil {
			return nil, translateErr(err)
		}

		conv.Member = &member
		conversations = append(conversations, &conv)
	}

	return conversations, translateErr(rows.Err())
}

var conversationColumns = map[string]bool{
	"name":        true,
	"description": true,
	"avatar_url":  true,
	"settings":    true,
	"metadata":    true,
}

func (r *postgresRepository) UpdateConversation(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(updates)+1)
	args := make([]interface{}, 0, len(updates)+1)

	// Stable order keeps the generated SQL deterministic.
	keys := make([]string, 0, len(updates))
	for k := range updates {
		if !conversationColumns[k] {
			return fmt.Errorf("%w: column %q not updatable", ErrInvalidArgument, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", k, i+1))
		args = append(args, updates[k])
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE conversations SET %s WHERE id = $%d AND is_deleted = false",
		strings.Join(setClauses, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateErr(err)
	}
	return requireAffected(res)
}

func (r *postgresRepository) SoftDeleteConversation(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE conversations
        SET is_deleted = true, deleted_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND is_deleted = false`, id)
	if err != nil {
		return translateErr(err)
	}
	return requireAffected(res)
}

// RepairConversationPointer restores last_message_id / last_active_at from
// the message log. The pointer is a cache; a crash between a message insert
// and the pointer update is recovered here.
func (r *postgresRepository) RepairConversationPointer(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE conversations c
        SET last_message_id = COALESCE(x.max_id, 0),
            last_active_at  = GREATEST(c.last_active_at, COALESCE(x.max_at, c.last_active_at)),
            updated_at      = NOW()
        FROM (
            SELECT MAX(id) AS max_id, MAX(created_at) AS max_at
            FROM messages WHERE conversation_id = $1
        ) x
        WHERE c.id = $1`, id)
	return translateErr(err)
}

// Members

func (r *postgresRepository) GetMember(ctx context.Context, convID, userID int64) (*ConversationMember, error) {
	var member ConversationMember
	err := r.db.GetContext(ctx, &member, `
        SELECT conversation_id, user_id, is_pinned, is_archived, is_dnd, draft,
               last_read_message_id, last_acceptable_message_id, created_at, updated_at
        FROM conversation_members
        WHERE conversation_id = $1 AND user_id = $2`, convID, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	return &member, nil
}

func (r *postgresRepository) GetMembers(ctx context.Context, convID int64) ([]*ConversationMember, error) {
	var members []*ConversationMember
	err := r.db.SelectContext(ctx, &members, `
        SELECT conversation_id, user_id, is_pinned, is_archived, is_dnd, draft,
               last_read_message_id, last_acceptable_message_id, created_at, updated_at
        FROM conversation_members
        WHERE conversation_id = $1
        ORDER BY user_id`, convID)
	if err != nil {
		return nil, translateErr(err)
	}
	return members, nil
}

func (r *postgresRepository) IsMember(ctx context.Context, convID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
        SELECT EXISTS(
            SELECT 1 FROM conversation_members
            WHERE conversation_id = $1 AND user_id = $2
        )`, convID, userID).Scan(&exists)
	return exists, translateErr(err)
}

func (r *postgresRepository) AddMember(ctx context.Context, convID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO conversation_members (conversation_id, user_id)
        VALUES ($1, $2)
        ON CONFLICT (conversation_id, user_id) DO NOTHING`, convID, userID)
	return translateErr(err)
}

func (r *postgresRepository) RemoveMember(ctx context.Context, convID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
        DELETE FROM conversation_members
        WHERE conversation_id = $1 AND user_id = $2`, convID, userID)
	if err != nil {
		return translateErr(err)
	}
	return requireAffected(res)
}

var memberColumns = map[string]bool{
	"is_pinned":   true,
	"is_archived": true,
	"is_dnd":      true,
	"draft":       true,
}

// UpdateMemberSettings writes the caller-owned columns of the member row.
// The boundary cursor has its own methods and is excluded here.
func (r *postgresRepository) UpdateMemberSettings(ctx context.Context, convID, userID int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		if !memberColumns[k] {
			return fmt.Errorf("%w: column %q not updatable", ErrInvalidArgument, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	setClauses := make([]string, 0, len(keys)+1)
	args := make([]interface{}, 0, len(keys)+2)
	for i, k := range keys {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", k, i+1))
		args = append(args, updates[k])
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, convID, userID)

	query := fmt.Sprintf(
		"UPDATE conversation_members SET %s WHERE conversation_id = $%d AND user_id = $%d",
		strings.Join(setClauses, ", "), len(args)-1, len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateErr(err)
	}
	return requireAffected(res)
}

// RaiseBoundary sets the member's visibility boundary to the max of the
// current and the supplied id, so stale event replays never lower it.
func (r *postgresRepository) RaiseBoundary(ctx context.Context, convID, userID, boundary int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE conversation_members
        SET last_acceptable_message_id = GREATEST(COALESCE(last_acceptable_message_id, 0), $3),
            updated_at = NOW()
        WHERE conversation_id = $1 AND user_id = $2`, convID, userID, boundary)
	if err != nil {
		return translateErr(err)
	}
	return requireAffected(res)
}

func (r *postgresRepository) ClearBoundary(ctx context.Context, convID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE conversation_members
        SET last_acceptable_message_id = NULL, updated_at = NOW()
        WHERE conversation_id = $1 AND user_id = $2`, convID, userID)
	if err != nil {
		return translateErr(err)
	}
	return requireAffected(res)
}

// Messages

// CreateMessage appends to the conversation log. The conversation row is
// locked first, which serializes id assignment per conversation and makes
// the pointer update atomic with the insert.
func (r *postgresRepository) CreateMessage(ctx context.Context, message *Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateErr(err)
	}
	defer tx.Rollback()

	var isDeleted bool
	err = tx.QueryRowContext(ctx, `
        SELECT is_deleted FROM conversations WHERE id = $1 FOR UPDATE`,
		message.ConversationID).Scan(&isDeleted)
	if err != nil {
		return translateErr(err)
	}
	if isDeleted {
		return ErrNotFound
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO messages (
            conversation_id, sender_id, message_type, content, media_id,
            reply_to_message_id, original_message_id, client_message_id, status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at`,
		message.ConversationID, message.SenderID, message.MessageType,
		message.Content, message.MediaID, message.ReplyToMessageID,
		message.OriginalMessageID, message.ClientMessageID, message.Status,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return translateErr(err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE conversations
        SET last_message_id = $2,
            last_active_at  = GREATEST(last_active_at, $3),
            updated_at      = NOW()
        WHERE id = $1`,
		message.ConversationID, message.ID, message.CreatedAt)
	if err != nil {
		return translateErr(err)
	}

	return translateErr(tx.Commit())
}

const messageColumns = `
        id, conversation_id, sender_id, message_type, content, media_id,
        reply_to_message_id, original_message_id, client_message_id, status,
        is_read, is_edited, edited_at, indexed, is_deleted, deleted_at, created_at`

func (r *postgresRepository) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND is_deleted = false`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	return &msg, nil
}

func (r *postgresRepository) GetMessageByClientID(ctx context.Context, convID int64, clientID string) (*Message, error) {
	var msg Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+`
         FROM messages
         WHERE conversation_id = $1 AND client_message_id = $2`, convID, clientID)
	if err != nil {
		return nil, translateErr(err)
	}
	return &msg, nil
}

// GetConversationMessages pages the log by id descending. Soft-deleted rows
// are excluded; the caller's boundary, when set, caps visibility by id
// (never by timestamp).
func (r *postgresRepository) GetConversationMessages(ctx context.Context, convID int64, beforeID int64, limit int, boundary *int64) ([]*Message, error) {
	var messages []*Message
	err := r.db.SelectContext(ctx, &messages,
		`SELECT `+messageColumns+`
         FROM messages
         WHERE conversation_id = $1
           AND is_deleted = false
           AND ($2::bigint = 0 OR id < $2)
           AND ($3::bigint IS NULL OR id <= $3)
         ORDER BY id DESC
         LIMIT $4`, convID, beforeID, boundary, limit)
	if err != nil {
		return nil, translateErr(err)
	}
	return messages, nil
}

// UpdateMessageStatus applies the change as a compare-and-set against the
// legal source states, so a racing transition can never overwrite a terminal
// status. Zero rows affected means the row left the source set concurrently.
func (r *postgresRepository) UpdateMessageStatus(ctx context.Context, id int64, status MessageStatus) error {
	sources := pq.Array(transitionSources(status))

	var (
		res sql.Result
		err error
	)
	if status == StatusDeleted {
		res, err = r.db.ExecContext(ctx, `
            UPDATE messages
            SET status = $2, is_deleted = true, deleted_at = NOW()
            WHERE id = $1 AND status = ANY($3)`, id, status, sources)
	} else {
		res, err = r.db.ExecContext(ctx, `
            UPDATE messages SET status = $2
            WHERE id = $1 AND status = ANY($3)`, id, status, sources)
	}
	if err != nil {
		return translateErr(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: message %d cannot move to %s", ErrInvalidTransition, id, status)
	}
	return nil
}

func (r *postgresRepository) EditMessageContent(ctx context.Context, id int64, content string) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE messages
        SET content = $2, is_edited = true, edited_at = NOW(), indexed = false
        WHERE id = $1 AND is_deleted = false`, id, content)
	if err != nil {
		return translateErr(err)
	}
	return requireAffected(res)
}

func (r *postgresRepository) MaxMessageID(ctx context.Context, convID int64) (int64, error) {
	var maxID int64
	err := r.db.QueryRowContext(ctx, `
        SELECT COALESCE(MAX(id), 0) FROM messages WHERE conversation_id = $1`,
		convID).Scan(&maxID)
	return maxID, translateErr(err)
}

// CountUnread counts messages past the cursor from other senders, excluding
// deleted/recalled rows and anything past the boundary.
func (r *postgresRepository) CountUnread(ctx context.Context, convID, userID, afterID int64, boundary *int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*)
        FROM messages
        WHERE conversation_id = $1
          AND sender_id <> $2
          AND id > $3
          AND is_deleted = false
          AND status NOT IN ('recalled', 'deleted')
          AND ($4::bigint IS NULL OR id <= $4)`,
		convID, userID, afterID, boundary).Scan(&count)
	return count, translateErr(err)
}

func (r *postgresRepository) ListUnindexed(ctx context.Context, limit int) ([]*Message, error) {
	var messages []*Message
	err := r.db.SelectContext(ctx, &messages,
		`SELECT `+messageColumns+`
         FROM messages
         WHERE indexed = false AND is_deleted = false
         ORDER BY id
         LIMIT $1`, limit)
	if err != nil {
		return nil, translateErr(err)
	}
	return messages, nil
}

func (r *postgresRepository) MarkIndexed(ctx context.Context, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
        UPDATE messages SET indexed = true WHERE id = ANY($1)`,
		pq.Array(messageIDs))
	return translateErr(err)
}

// Read cursors

// AdvanceReadCursor moves the member cursor and its read_statuses shadow
// forward together. GREATEST makes stale requests a no-op rather than an
// error; messages up to the new cursor flip to read.
func (r *postgresRepository) AdvanceReadCursor(ctx context.Context, convID, userID, upTo int64) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, translateErr(err)
	}
	defer tx.Rollback()

	var cursor int64
	err = tx.QueryRowContext(ctx, `
        UPDATE conversation_members
        SET last_read_message_id = GREATEST(last_read_message_id, $3),
            updated_at = NOW()
        WHERE conversation_id = $1 AND user_id = $2
        RETURNING last_read_message_id`, convID, userID, upTo).Scan(&cursor)
	if err != nil {
		return 0, translateErr(err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO read_statuses (user_id, conversation_id, last_read_message_id, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (user_id, conversation_id) DO UPDATE
        SET last_read_message_id = GREATEST(read_statuses.last_read_message_id, EXCLUDED.last_read_message_id),
            updated_at = NOW()`, userID, convID, cursor)
	if err != nil {
		return 0, translateErr(err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE messages
        SET is_read = true,
            status = CASE WHEN status IN ('sent', 'delivered') THEN 'read' ELSE status END
        WHERE conversation_id = $1 AND sender_id <> $2 AND id <= $3 AND is_read = false`,
		convID, userID, cursor)
	if err != nil {
		return 0, translateErr(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, translateErr(err)
	}
	return cursor, nil
}

func (r *postgresRepository) GetReadStatus(ctx context.Context, userID, convID int64) (*ReadStatus, error) {
	var rs ReadStatus
	err := r.db.GetContext(ctx, &rs, `
        SELECT user_id, conversation_id, last_read_message_id, updated_at
        FROM read_statuses
        WHERE user_id = $1 AND conversation_id = $2`, userID, convID)
	if err != nil {
		return nil, translateErr(err)
	}
	return &rs, nil
}

// Helpers

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return translateErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
