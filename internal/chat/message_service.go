// internal/chat/message_service.go
// Send/recall/edit/read orchestration and the block-boundary read filter.

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

type MessageService struct {
	repo          Repository
	conversations *ConversationService
	directory     UserDirectory
	media         MediaStore
	notifier      Notifier
	cache         *UnreadCache
}

func NewMessageService(repo Repository, conversations *ConversationService, directory UserDirectory, media MediaStore, notifier Notifier, cache *UnreadCache) *MessageService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &MessageService{
		repo:          repo,
		conversations: conversations,
		directory:     directory,
		media:         media,
		notifier:      notifier,
		cache:         cache,
	}
}

// SendMessage validates and persists a message with status sent. The message
// insert and the conversation pointer bump share one transaction; unread
// accounting is left to the recipients' next fetch or mark-read call.
func (s *MessageService) SendMessage(ctx context.Context, senderID int64, req *SendMessageRequest) (*Message, error) {
	start := time.Now()

	conv, err := s.resolveConversation(ctx, senderID, req)
	if err != nil {
		return nil, err
	}

	if err := s.validateSend(ctx, conv, req); err != nil {
		return nil, err
	}

	if req.ClientMessageID != "" {
		if dup, err := s.repo.GetMessageByClientID(ctx, conv.ID, req.ClientMessageID); err == nil {
			return dup, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	message := &Message{
		ConversationID:    conv.ID,
		SenderID:          senderID,
		MessageType:       req.MessageType,
		ReplyToMessageID:  req.ReplyToMessageID,
		OriginalMessageID: req.OriginalMessageID,
		Status:            StatusSent,
	}
	if req.Content != "" {
		content := req.Content
		message.Content = &content
	}
	if req.MessageType.RequiresMedia() {
		message.MediaID = req.MediaID
	}
	if req.ClientMessageID != "" {
		clientID := req.ClientMessageID
		message.ClientMessageID = &clientID
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		// A concurrent retry with the same client id beat us to the insert.
		if errors.Is(err, ErrConflict) && req.ClientMessageID != "" {
			return s.repo.GetMessageByClientID(ctx, conv.ID, req.ClientMessageID)
		}
		return nil, err
	}

	s.afterSend(ctx, message)
	recordSend(message.MessageType, start)
	return message, nil
}

func (s *MessageService) resolveConversation(ctx context.Context, senderID int64, req *SendMessageRequest) (*Conversation, error) {
	switch {
	case req.ConversationID != nil:
		conv, err := s.repo.GetConversation(ctx, *req.ConversationID)
		if err != nil {
			return nil, err
		}
		isMember, err := s.repo.IsMember(ctx, conv.ID, senderID)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, conv.ID)
		}
		return conv, nil
	case req.RecipientID != nil:
		return s.conversations.GetOrCreatePrivateConversation(ctx, senderID, *req.RecipientID)
	default:
		return nil, fmt.Errorf("%w: conversation_id or recipient_id required", ErrInvalidArgument)
	}
}

func (s *MessageService) validateSend(ctx context.Context, conv *Conversation, req *SendMessageRequest) error {
	if req.ReplyToMessageID != nil && req.OriginalMessageID != nil {
		return fmt.Errorf("%w: a message cannot be both a reply and a forward", ErrInvalidArgument)
	}

	switch {
	case req.MessageType == MessageText:
		if strings.TrimSpace(req.Content) == "" {
			return fmt.Errorf("%w: text messages require content", ErrInvalidArgument)
		}
	case req.MessageType.RequiresMedia():
		if req.MediaID == nil {
			return fmt.Errorf("%w: %s messages require a media reference", ErrInvalidArgument, req.MessageType)
		}
		if s.media != nil {
			if _, err := s.media.GetMedia(ctx, *req.MediaID); err != nil {
				return fmt.Errorf("%w: media reference %d not resolvable", ErrInvalidArgument, *req.MediaID)
			}
		}
	}

	// Reply and forward targets are shallow references by id, resolved one
	// level at a time; only their existence is checked here.
	if req.ReplyToMessageID != nil {
		parent, err := s.repo.GetMessage(ctx, *req.ReplyToMessageID)
		if err != nil {
			return fmt.Errorf("%w: reply target not found", ErrInvalidArgument)
		}
		if parent.ConversationID != conv.ID {
			return fmt.Errorf("%w: reply target belongs to another conversation", ErrInvalidArgument)
		}
	}
	if req.OriginalMessageID != nil {
		if _, err := s.repo.GetMessage(ctx, *req.OriginalMessageID); err != nil {
			return fmt.Errorf("%w: forward source not found", ErrInvalidArgument)
		}
	}

	return nil
}

// afterSend runs outside the send transaction: cache invalidation and the
// best-effort delivery hint. Neither affects durability of the message.
func (s *MessageService) afterSend(ctx context.Context, message *Message) {
	members, err := s.repo.GetMembers(ctx, message.ConversationID)
	if err != nil {
		log.Printf("post-send member lookup failed for conversation %d: %v", message.ConversationID, err)
		return
	}

	recipients := make([]int64, 0, len(members))
	for _, m := range members {
		if m.UserID != message.SenderID {
			recipients = append(recipients, m.UserID)
		}
	}

	s.cache.Invalidate(ctx, message.ConversationID, recipients...)
	go s.notifier.MessageSent(context.WithoutCancel(ctx), message, recipients)
}

// GetMessage returns a single message if the caller may see it: membership
// plus the caller's boundary cursor, compared by id.
func (s *MessageService) GetMessage(ctx context.Context, messageID, userID int64) (*Message, error) {
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	member, err := s.repo.GetMember(ctx, message.ConversationID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, message.ConversationID)
		}
		return nil, err
	}
	if member.LastAcceptableMessageID != nil && message.ID > *member.LastAcceptableMessageID {
		return nil, ErrNotFound
	}

	s.attachDetails(ctx, []*Message{message})
	return message, nil
}

// GetConversationMessages pages the conversation log by id descending,
// filtered by soft-delete status and the caller's boundary cursor.
func (s *MessageService) GetConversationMessages(ctx context.Context, convID, userID int64, beforeID int64, limit int) ([]*Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	member, err := s.repo.GetMember(ctx, convID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, convID)
		}
		return nil, err
	}

	messages, err := s.repo.GetConversationMessages(ctx, convID, beforeID, limit, member.LastAcceptableMessageID)
	if err != nil {
		return nil, err
	}

	s.attachDetails(ctx, messages)
	return messages, nil
}

// attachDetails resolves sender and media references for DTO assembly.
// Directory and media lookups happen after the data query and degrade
// silently.
func (s *MessageService) attachDetails(ctx context.Context, messages []*Message) {
	if len(messages) == 0 {
		return
	}

	if s.directory != nil {
		senderIDs := make([]int64, 0, len(messages))
		seen := make(map[int64]bool, len(messages))
		for _, m := range messages {
			if !seen[m.SenderID] {
				seen[m.SenderID] = true
				senderIDs = append(senderIDs, m.SenderID)
			}
		}
		if users, err := s.directory.GetUsers(ctx, senderIDs); err == nil {
			for _, m := range messages {
				m.Sender = users[m.SenderID]
			}
		}
	}

	if s.media != nil {
		for _, m := range messages {
			if m.MediaID != nil {
				if info, err := s.media.GetMedia(ctx, *m.MediaID); err == nil {
					m.Media = info
				}
			}
		}
	}
}

// RecallMessage withdraws a sent message. Only the sender may recall unless
// the admin override is set, which is logged explicitly.
func (s *MessageService) RecallMessage(ctx context.Context, messageID, userID int64, adminOverride bool) error {
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if message.SenderID != userID {
		if !adminOverride {
			return fmt.Errorf("%w: only the sender may recall message %d", ErrForbidden, messageID)
		}
		log.Printf("admin override: user %d recalling message %d sent by %d", userID, messageID, message.SenderID)
	}

	if !message.Status.CanRecall() {
		return fmt.Errorf("%w: cannot recall message in status %s", ErrInvalidTransition, message.Status)
	}

	if err := s.repo.UpdateMessageStatus(ctx, messageID, StatusRecalled); err != nil {
		return err
	}
	messagesRecalledTotal.Inc()
	s.invalidateForMembers(ctx, message.ConversationID)
	return nil
}

// EditMessage rewrites a text message's content, marking it edited and
// re-flagging it for the indexing collaborator.
func (s *MessageService) EditMessage(ctx context.Context, messageID, userID int64, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: edited content must not be empty", ErrInvalidArgument)
	}

	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != userID {
		return nil, fmt.Errorf("%w: only the sender may edit message %d", ErrForbidden, messageID)
	}
	if !CanEdit(message.Status, message.MessageType) {
		return nil, fmt.Errorf("%w: cannot edit %s message in status %s",
			ErrInvalidTransition, message.MessageType, message.Status)
	}

	if err := s.repo.EditMessageContent(ctx, messageID, content); err != nil {
		return nil, err
	}
	return s.repo.GetMessage(ctx, messageID)
}

// DeleteMessage soft-deletes; deleted is terminal.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, userID int64, adminOverride bool) error {
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if message.SenderID != userID {
		if !adminOverride {
			return fmt.Errorf("%w: only the sender may delete message %d", ErrForbidden, messageID)
		}
		log.Printf("admin override: user %d deleting message %d sent by %d", userID, messageID, message.SenderID)
	}

	if !message.Status.CanDelete() {
		return fmt.Errorf("%w: message %d already deleted", ErrInvalidTransition, messageID)
	}

	if err := s.repo.UpdateMessageStatus(ctx, messageID, StatusDeleted); err != nil {
		return err
	}
	s.invalidateForMembers(ctx, message.ConversationID)
	return nil
}

// MarkAsRead advances the caller's read cursor. The member cursor and the
// read-status shadow move together atomically; a stale up-to id is a no-op
// and the returned cursor reflects the row as stored.
func (s *MessageService) MarkAsRead(ctx context.Context, convID, userID, upTo int64) (int64, error) {
	if upTo <= 0 {
		return 0, fmt.Errorf("%w: up_to_message_id must be positive", ErrInvalidArgument)
	}

	cursor, err := s.repo.AdvanceReadCursor(ctx, convID, userID, upTo)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, convID)
		}
		return 0, err
	}

	s.cache.Invalidate(ctx, convID, userID)
	return cursor, nil
}

// GetUnreadCount counts messages past the caller's read cursor from other
// senders, capped by the boundary cursor. Served from the Redis projection
// when warm.
func (s *MessageService) GetUnreadCount(ctx context.Context, convID, userID int64) (int, error) {
	if count, ok := s.cache.Get(ctx, convID, userID); ok {
		return count, nil
	}

	member, err := s.repo.GetMember(ctx, convID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, convID)
		}
		return 0, err
	}

	count, err := s.repo.CountUnread(ctx, convID, userID,
		member.LastReadMessageID, member.LastAcceptableMessageID)
	if err != nil {
		return 0, err
	}

	s.cache.Set(ctx, convID, userID, count)
	return count, nil
}

// MarkIndexed is the batch handshake for the search collaborator.
func (s *MessageService) MarkIndexed(ctx context.Context, messageIDs []int64) error {
	return s.repo.MarkIndexed(ctx, messageIDs)
}

// ListUnindexed exposes the indexing backlog to the search collaborator.
func (s *MessageService) ListUnindexed(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListUnindexed(ctx, limit)
}

func (s *MessageService) invalidateForMembers(ctx context.Context, convID int64) {
	members, err := s.repo.GetMembers(ctx, convID)
	if err != nil {
		return
	}
	userIDs := make([]int64, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}
	s.cache.Invalidate(ctx, convID, userIDs...)
}
