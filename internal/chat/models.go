// internal/chat/models.go

package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConversationType classifies a conversation container.
type ConversationType string

const (
	ConversationPrivate   ConversationType = "private"
	ConversationGroup     ConversationType = "group"
	ConversationSystem    ConversationType = "system"
	ConversationChannel   ConversationType = "channel"
	ConversationTemporary ConversationType = "temporary"
)

// IsPaired reports whether the conversation type holds exactly two members
// and is keyed by the unordered user pair.
func (t ConversationType) IsPaired() bool {
	return t == ConversationPrivate || t == ConversationTemporary
}

// MessageType classifies message payloads.
type MessageType string

const (
	MessageText         MessageType = "text"
	MessageImage        MessageType = "image"
	MessageVideo        MessageType = "video"
	MessageAudio        MessageType = "audio"
	MessageFile         MessageType = "file"
	MessageLocation     MessageType = "location"
	MessageEmoji        MessageType = "emoji"
	MessageSystem       MessageType = "system"
	MessageNotification MessageType = "notification"
	MessageRecall       MessageType = "recall"
)

// RequiresMedia reports whether messages of this type must carry a media
// reference resolvable through the media store.
func (t MessageType) RequiresMedia() bool {
	switch t {
	case MessageImage, MessageVideo, MessageAudio, MessageFile:
		return true
	}
	return false
}

// Conversation is a durable container for an ordered sequence of messages.
type Conversation struct {
	ID            int64            `json:"id" db:"id"`
	Type          ConversationType `json:"type" db:"type"`
	Name          *string          `json:"name,omitempty" db:"name"`
	Description   *string          `json:"description,omitempty" db:"description"`
	AvatarURL     *string          `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedBy     *int64           `json:"created_by,omitempty" db:"created_by"`
	PairKey       *string          `json:"-" db:"pair_key"`
	LastActiveAt  time.Time        `json:"last_active_at" db:"last_active_at"`
	LastMessageID int64            `json:"last_message_id" db:"last_message_id"`
	IsDeleted     bool             `json:"-" db:"is_deleted"`
	DeletedAt     *time.Time       `json:"-" db:"deleted_at"`
	Settings      json.RawMessage  `json:"settings,omitempty" db:"settings"`
	Metadata      json.RawMessage  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`

	// Computed fields
	Member      *ConversationMember `json:"member,omitempty" db:"-"`
	UnreadCount int                 `json:"unread_count" db:"-"`
	LastMessage *Message            `json:"last_message,omitempty" db:"-"`
	Counterpart *UserInfo           `json:"counterpart,omitempty" db:"-"`
}

// ConversationMember is per-user, per-conversation view state. The row is
// owned by its user; only the block-boundary listener writes the
// last_acceptable_message_id column.
type ConversationMember struct {
	ConversationID          int64      `json:"conversation_id" db:"conversation_id"`
	UserID                  int64      `json:"user_id" db:"user_id"`
	IsPinned                bool       `json:"is_pinned" db:"is_pinned"`
	IsArchived              bool       `json:"is_archived" db:"is_archived"`
	IsDnd                   bool       `json:"is_dnd" db:"is_dnd"`
	Draft                   string     `json:"draft" db:"draft"`
	LastReadMessageID       int64      `json:"last_read_message_id" db:"last_read_message_id"`
	LastAcceptableMessageID *int64     `json:"last_acceptable_message_id,omitempty" db:"last_acceptable_message_id"`
	CreatedAt               time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at" db:"updated_at"`

	// Joined fields
	User *UserInfo `json:"user,omitempty" db:"-"`
}

// Message is one entry in a conversation's append-mostly log. Message ids are
// strictly increasing within a conversation and serve as the ordering key for
// pagination, read cursors and the block boundary.
type Message struct {
	ID                int64         `json:"id" db:"id"`
	ConversationID    int64         `json:"conversation_id" db:"conversation_id"`
	SenderID          int64         `json:"sender_id" db:"sender_id"`
	MessageType       MessageType   `json:"message_type" db:"message_type"`
	Content           *string       `json:"content,omitempty" db:"content"`
	MediaID           *int64        `json:"media_id,omitempty" db:"media_id"`
	ReplyToMessageID  *int64        `json:"reply_to_message_id,omitempty" db:"reply_to_message_id"`
	OriginalMessageID *int64        `json:"original_message_id,omitempty" db:"original_message_id"`
	ClientMessageID   *string       `json:"client_message_id,omitempty" db:"client_message_id"`
	Status            MessageStatus `json:"status" db:"status"`
	IsRead            bool          `json:"is_read" db:"is_read"`
	IsEdited          bool          `json:"is_edited" db:"is_edited"`
	EditedAt          *time.Time    `json:"edited_at,omitempty" db:"edited_at"`
	Indexed           bool          `json:"-" db:"indexed"`
	IsDeleted         bool          `json:"-" db:"is_deleted"`
	DeletedAt         *time.Time    `json:"-" db:"deleted_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`

	// Computed fields
	Sender *UserInfo  `json:"sender,omitempty" db:"-"`
	Media  *MediaInfo `json:"media,omitempty" db:"-"`
}

// ReadStatus is a denormalized shadow of the member's read cursor kept for
// unread-count queries. It must equal the member cursor after every
// successful mark-read.
type ReadStatus struct {
	UserID            int64     `json:"user_id" db:"user_id"`
	ConversationID    int64     `json:"conversation_id" db:"conversation_id"`
	LastReadMessageID int64     `json:"last_read_message_id" db:"last_read_message_id"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// UserInfo is the directory projection used for DTO assembly.
type UserInfo struct {
	ID          int64   `json:"id" db:"id"`
	Username    string  `json:"username" db:"username"`
	DisplayName string  `json:"display_name" db:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty" db:"avatar_url"`
}

// MediaInfo is the media-reference projection for media messages. The core
// stores only the foreign id, never file bytes.
type MediaInfo struct {
	ID           int64   `json:"id" db:"id"`
	MimeType     string  `json:"mime_type" db:"mime_type"`
	SizeBytes    int64   `json:"size_bytes" db:"size_bytes"`
	URL          string  `json:"url" db:"url"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	DurationMs   *int    `json:"duration_ms,omitempty" db:"duration_ms"`
}

// PairKey builds the canonical key for an unordered user pair. The unique
// index on conversations.pair_key is what serializes concurrent
// get-or-create calls for the same pair.
func PairKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

// Request DTOs

type SendMessageRequest struct {
	ConversationID    *int64          `json:"conversation_id,omitempty"`
	RecipientID       *int64          `json:"recipient_id,omitempty"`
	MessageType       MessageType     `json:"message_type" validate:"required,oneof=text image video audio file location emoji"`
	Content           string          `json:"content"`
	MediaID           *int64          `json:"media_id,omitempty"`
	ReplyToMessageID  *int64          `json:"reply_to_message_id,omitempty"`
	OriginalMessageID *int64          `json:"original_message_id,omitempty"`
	ClientMessageID   string          `json:"client_message_id,omitempty" validate:"omitempty,uuid4"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type MarkReadRequest struct {
	UpToMessageID int64 `json:"up_to_message_id" validate:"required,min=1"`
}

type MemberFlagRequest struct {
	Enabled bool `json:"enabled"`
}

type DraftRequest struct {
	Draft string `json:"draft" validate:"max=4096"`
}

type UpdateConversationRequest struct {
	Name        *string         `json:"name,omitempty" validate:"omitempty,max=128"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=1024"`
	AvatarURL   *string         `json:"avatar_url,omitempty" validate:"omitempty,url"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

type UnreadCountResponse struct {
	ConversationID int64 `json:"conversation_id"`
	UnreadCount    int   `json:"unread_count"`
}

type ReadAckResponse struct {
	ConversationID    int64 `json:"conversation_id"`
	LastReadMessageID int64 `json:"last_read_message_id"`
}
