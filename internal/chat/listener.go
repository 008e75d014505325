// internal/chat/listener.go
// Block-boundary listener: consumes contact block/unblock events from the
// relationship module and maintains the blocking user's visibility boundary.

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/go-redis/redis/v8"
)

const (
	EventContactBlocked   = "contact.blocked"
	EventContactUnblocked = "contact.unblocked"
)

// contactEvent is the wire shape published by the contacts module. The
// schema is shared by convention only; the two modules stay independently
// deployable.
type contactEvent struct {
	EventID  string `json:"event_id"`
	Event    string `json:"event"`
	UserID   int64  `json:"user_id"`
	FriendID int64  `json:"friend_id"`
}

type BlockBoundaryListener struct {
	repo          Repository
	conversations *ConversationService
	client        *redis.Client
	channel       string
}

func NewBlockBoundaryListener(repo Repository, conversations *ConversationService, client *redis.Client, channel string) *BlockBoundaryListener {
	if channel == "" {
		channel = "contacts:events"
	}
	return &BlockBoundaryListener{
		repo:          repo,
		conversations: conversations,
		client:        client,
		channel:       channel,
	}
}

// Run subscribes to the contact-event channel and processes events until the
// context is cancelled. Handler errors are logged, never fatal: events are
// idempotent and a dropped one is repaired by the next replay.
func (l *BlockBoundaryListener) Run(ctx context.Context) {
	sub := l.client.Subscribe(ctx, l.channel)
	defer sub.Close()

	log.Printf("block-boundary listener subscribed to %s", l.channel)

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				log.Println("block-boundary listener channel closed")
				return
			}
			l.dispatch(ctx, []byte(msg.Payload))
		case <-ctx.Done():
			log.Println("stopping block-boundary listener")
			return
		}
	}
}

func (l *BlockBoundaryListener) dispatch(ctx context.Context, payload []byte) {
	var event contactEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("discarding malformed contact event: %v", err)
		return
	}

	var err error
	switch event.Event {
	case EventContactBlocked:
		err = l.HandleBlocked(ctx, event.UserID, event.FriendID)
	case EventContactUnblocked:
		err = l.HandleUnblocked(ctx, event.UserID, event.FriendID)
	default:
		log.Printf("ignoring contact event %q (%s)", event.Event, event.EventID)
		return
	}

	if err != nil {
		log.Printf("contact event %s (%s) failed: %v", event.Event, event.EventID, err)
		return
	}
	recordBlockEvent(event.Event)
}

// HandleBlocked freezes the blocking user's visibility at the current top of
// the pair conversation. Creating the conversation on block is intentional:
// blocking before ever messaging is valid, and the boundary must exist once
// a conversation does. Replays only ever raise the boundary, never lower it.
func (l *BlockBoundaryListener) HandleBlocked(ctx context.Context, userID, friendID int64) error {
	conv, err := l.conversations.getOrCreatePrivate(ctx, userID, friendID, true)
	if err != nil {
		return err
	}

	maxID, err := l.repo.MaxMessageID(ctx, conv.ID)
	if err != nil {
		return err
	}
	if maxID == 0 {
		// Nothing to hide yet; the boundary stays unset.
		return nil
	}

	return l.repo.RaiseBoundary(ctx, conv.ID, userID, maxID)
}

// HandleUnblocked clears the boundary unconditionally, restoring full
// visibility including messages sent during the blocked interval. Blocking
// hides; it does not delete.
func (l *BlockBoundaryListener) HandleUnblocked(ctx context.Context, userID, friendID int64) error {
	conv, err := l.repo.GetPrivateConversation(ctx, userID, friendID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Never messaged and never blocked into existence; nothing to clear.
			return nil
		}
		return err
	}

	return l.repo.ClearBoundary(ctx, conv.ID, userID)
}
