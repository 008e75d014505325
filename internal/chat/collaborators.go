// internal/chat/collaborators.go
// Narrow contracts consumed from external modules. The chat core owns the
// interfaces; sibling packages provide the implementations.

package chat

import (
	"context"
	"log"
)

// UserDirectory resolves user ids for DTO assembly. Never called inside a
// write transaction; read-after-commit is acceptable.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (*UserInfo, error)
	GetUsers(ctx context.Context, userIDs []int64) (map[int64]*UserInfo, error)
}

// MediaStore resolves a media file id to its metadata. The core stores only
// the foreign id.
type MediaStore interface {
	GetMedia(ctx context.Context, mediaID int64) (*MediaInfo, error)
}

// BlockChecker is the defensive block-check against the contacts module,
// consulted before creating new private conversations.
type BlockChecker interface {
	IsBlockedEither(ctx context.Context, userA, userB int64) (bool, error)
}

// Notifier is told about durable sends. Delivery is best effort and external;
// the core only guarantees the message record.
type Notifier interface {
	MessageSent(ctx context.Context, message *Message, recipientIDs []int64)
}

// LogNotifier is the default Notifier: it only logs. A real delivery module
// replaces it at wiring time.
type LogNotifier struct{}

func (LogNotifier) MessageSent(_ context.Context, message *Message, recipientIDs []int64) {
	log.Printf("message %d in conversation %d ready for delivery to %d recipients",
		message.ID, message.ConversationID, len(recipientIDs))
}
