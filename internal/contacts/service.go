// internal/contacts/service.go
// Thin edge of the relationship module: records blocking decisions and
// publishes the events the chat core's boundary listener consumes. Keeping
// the coupling event-shaped keeps both modules independently deployable.

package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type Service struct {
	repo    Repository
	client  *redis.Client
	channel string
}

func NewService(repo Repository, client *redis.Client, channel string) *Service {
	if channel == "" {
		channel = "contacts:events"
	}
	return &Service{
		repo:    repo,
		client:  client,
		channel: channel,
	}
}

// Block records the decision and publishes contact.blocked. The durable row
// is the source of truth; a lost event is repaired by republishing, which
// the listener tolerates.
func (s *Service) Block(ctx context.Context, userID, blockedUserID int64) error {
	if userID == blockedUserID {
		return fmt.Errorf("cannot block yourself")
	}
	if err := s.repo.Block(ctx, userID, blockedUserID); err != nil {
		return err
	}
	s.publish(ctx, EventBlocked, userID, blockedUserID)
	return nil
}

func (s *Service) Unblock(ctx context.Context, userID, blockedUserID int64) error {
	if err := s.repo.Unblock(ctx, userID, blockedUserID); err != nil {
		return err
	}
	s.publish(ctx, EventUnblocked, userID, blockedUserID)
	return nil
}

// IsBlockedEither satisfies the chat core's defensive block-check contract.
func (s *Service) IsBlockedEither(ctx context.Context, userA, userB int64) (bool, error) {
	return s.repo.IsBlockedEither(ctx, userA, userB)
}

func (s *Service) ListBlocked(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.ListBlocked(ctx, userID)
}

func (s *Service) publish(ctx context.Context, event string, userID, friendID int64) {
	if s.client == nil {
		log.Printf("no event bus configured, dropping %s for user %d", event, userID)
		return
	}

	payload, err := json.Marshal(BlockEvent{
		EventID:  uuid.New().String(),
		Event:    event,
		UserID:   userID,
		FriendID: friendID,
	})
	if err != nil {
		log.Printf("failed to encode %s event: %v", event, err)
		return
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		log.Printf("failed to publish %s event for user %d: %v", event, userID, err)
	}
}
