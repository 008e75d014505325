// internal/chat/repository.go

package chat

import "context"

// Repository is the durable store behind the chat services. Methods that
// touch more than one table run inside a single transaction; partial writes
// are never observable.
type Repository interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation, memberIDs []int64) error
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	GetPrivateConversation(ctx context.Context, userA, userB int64) (*Conversation, error)
	GetUserConversations(ctx context.Context, userID int64, archived bool, limit, offset int) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, id int64, updates map[string]interface{}) error
	SoftDeleteConversation(ctx context.Context, id int64) error
	RepairConversationPointer(ctx context.Context, id int64) error

	// Members
	GetMember(ctx context.Context, convID, userID int64) (*ConversationMember, error)
	GetMembers(ctx context.Context, convID int64) ([]*ConversationMember, error)
	IsMember(ctx context.Context, convID, userID int64) (bool, error)
	AddMember(ctx context.Context, convID, userID int64) error
	RemoveMember(ctx context.Context, convID, userID int64) error
	UpdateMemberSettings(ctx context.Context, convID, userID int64, updates map[string]interface{}) error
	RaiseBoundary(ctx context.Context, convID, userID, boundary int64) error
	ClearBoundary(ctx context.Context, convID, userID int64) error

	// Messages
	CreateMessage(ctx context.Context, message *Message) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	GetMessageByClientID(ctx context.Context, convID int64, clientID string) (*Message, error)
	GetConversationMessages(ctx context.Context, convID int64, beforeID int64, limit int, boundary *int64) ([]*Message, error)
	UpdateMessageStatus(ctx context.Context, id int64, status MessageStatus) error
	EditMessageContent(ctx context.Context, id int64, content string) error
	MaxMessageID(ctx context.Context, convID int64) (int64, error)
	CountUnread(ctx context.Context, convID, userID, afterID int64, boundary *int64) (int, error)
	ListUnindexed(ctx context.Context, limit int) ([]*Message, error)
	MarkIndexed(ctx context.Context, messageIDs []int64) error

	// Read cursors. AdvanceReadCursor moves the member cursor and the
	// read_statuses shadow together in one transaction; it never moves
	// either backward and returns the cursor after the call.
	AdvanceReadCursor(ctx context.Context, convID, userID, upTo int64) (int64, error)
	GetReadStatus(ctx context.Context, userID, convID int64) (*ReadStatus, error)
}
