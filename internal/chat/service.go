// internal/chat/service.go
// Conversation orchestration: creation/lookup, listing, per-member settings.

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
)

type ConversationService struct {
	repo      Repository
	directory UserDirectory
	blocks    BlockChecker
}

func NewConversationService(repo Repository, directory UserDirectory, blocks BlockChecker) *ConversationService {
	return &ConversationService{
		repo:      repo,
		directory: directory,
		blocks:    blocks,
	}
}

// GetOrCreatePrivateConversation returns the single private conversation for
// the unordered pair, creating it with both member rows if absent. Racing
// callers are serialized by the pair_key unique index; the loser of the race
// retries the lookup and both end up with the same conversation id.
func (s *ConversationService) GetOrCreatePrivateConversation(ctx context.Context, userA, userB int64) (*Conversation, error) {
	return s.getOrCreatePrivate(ctx, userA, userB, false)
}

func (s *ConversationService) getOrCreatePrivate(ctx context.Context, userA, userB int64, skipBlockCheck bool) (*Conversation, error) {
	if userA == userB || userA <= 0 || userB <= 0 {
		return nil, fmt.Errorf("%w: invalid user pair", ErrInvalidArgument)
	}

	conv, err := s.repo.GetPrivateConversation(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if !skipBlockCheck && s.blocks != nil {
		blocked, err := s.blocks.IsBlockedEither(ctx, userA, userB)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, fmt.Errorf("%w: contact is blocked", ErrForbidden)
		}
	}

	pairKey := PairKey(userA, userB)
	conv = &Conversation{
		Type:      ConversationPrivate,
		CreatedBy: &userA,
		PairKey:   &pairKey,
	}

	err = s.repo.CreateConversation(ctx, conv, []int64{userA, userB})
	if err == nil {
		recordConversationCreated(ConversationPrivate)
		return conv, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, err
	}

	// Lost the creation race; the winner's row is committed by now.
	return s.repo.GetPrivateConversation(ctx, userA, userB)
}

// ListConversations returns the caller's non-archived conversations ordered
// by last activity, with unread counts and private-counterpart display info.
func (s *ConversationService) ListConversations(ctx context.Context, userID int64, page, size int) ([]*Conversation, error) {
	return s.list(ctx, userID, false, page, size)
}

// ListArchived is the archived split of the same query.
func (s *ConversationService) ListArchived(ctx context.Context, userID int64, page, size int) ([]*Conversation, error) {
	return s.list(ctx, userID, true, page, size)
}

func (s *ConversationService) list(ctx context.Context, userID int64, archived bool, page, size int) ([]*Conversation, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	conversations, err := s.repo.GetUserConversations(ctx, userID, archived, size, (page-1)*size)
	if err != nil {
		return nil, err
	}

	for _, conv := range conversations {
		s.decorate(ctx, conv, userID)
	}
	return conversations, nil
}

// GetConversation returns the caller's view of one conversation.
func (s *ConversationService) GetConversation(ctx context.Context, convID, userID int64) (*Conversation, error) {
	member, err := s.repo.GetMember(ctx, convID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, convID)
		}
		return nil, err
	}

	conv, err := s.repo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}

	conv.Member = member
	s.decorate(ctx, conv, userID)
	return conv, nil
}

// decorate fills computed fields: unread count, boundary-capped last message
// and, for private conversations, the counterpart's directory entry. Lookup
// failures degrade the DTO instead of failing the request.
func (s *ConversationService) decorate(ctx context.Context, conv *Conversation, userID int64) {
	member := conv.Member
	if member == nil {
		return
	}

	count, err := s.repo.CountUnread(ctx, conv.ID, userID,
		member.LastReadMessageID, member.LastAcceptableMessageID)
	if err == nil {
		conv.UnreadCount = count
	}

	if last, err := s.repo.GetConversationMessages(ctx, conv.ID, 0, 1, member.LastAcceptableMessageID); err == nil && len(last) > 0 {
		conv.LastMessage = last[0]
	}

	if conv.Type.IsPaired() && s.directory != nil {
		if other, ok := s.counterpart(ctx, conv.ID, userID); ok {
			conv.Counterpart = other
		}
	}
}

func (s *ConversationService) counterpart(ctx context.Context, convID, userID int64) (*UserInfo, bool) {
	members, err := s.repo.GetMembers(ctx, convID)
	if err != nil {
		return nil, false
	}
	for _, m := range members {
		if m.UserID != userID {
			user, err := s.directory.GetUser(ctx, m.UserID)
			if err != nil {
				return nil, false
			}
			return user, true
		}
	}
	return nil, false
}

// SetPinned, SetArchived and SetMuted update exactly the caller's own member
// row; there are no cross-user side effects.
func (s *ConversationService) SetPinned(ctx context.Context, convID, userID int64, pinned bool) error {
	return s.updateOwnRow(ctx, convID, userID, map[string]interface{}{"is_pinned": pinned})
}

func (s *ConversationService) SetArchived(ctx context.Context, convID, userID int64, archived bool) error {
	return s.updateOwnRow(ctx, convID, userID, map[string]interface{}{"is_archived": archived})
}

func (s *ConversationService) SetMuted(ctx context.Context, convID, userID int64, muted bool) error {
	return s.updateOwnRow(ctx, convID, userID, map[string]interface{}{"is_dnd": muted})
}

func (s *ConversationService) SaveDraft(ctx context.Context, convID, userID int64, draft string) error {
	return s.updateOwnRow(ctx, convID, userID, map[string]interface{}{"draft": draft})
}

func (s *ConversationService) updateOwnRow(ctx context.Context, convID, userID int64, updates map[string]interface{}) error {
	err := s.repo.UpdateMemberSettings(ctx, convID, userID, updates)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, convID)
	}
	return err
}

// UpdateConversation writes shared display fields and the opaque
// settings/metadata blobs. Membership is required; the blobs are not
// validated here because the core reads none of their fields.
func (s *ConversationService) UpdateConversation(ctx context.Context, convID, userID int64, req *UpdateConversationRequest) error {
	isMember, err := s.repo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, convID)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if len(req.Settings) > 0 {
		updates["settings"] = []byte(req.Settings)
	}
	if len(req.Metadata) > 0 {
		updates["metadata"] = []byte(req.Metadata)
	}
	if len(updates) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrInvalidArgument)
	}

	return s.repo.UpdateConversation(ctx, convID, updates)
}

// DeleteConversation soft-deletes; the hot path never hard-deletes.
func (s *ConversationService) DeleteConversation(ctx context.Context, convID, userID int64) error {
	isMember, err := s.repo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("%w: not a member of conversation %d", ErrForbidden, convID)
	}
	return s.repo.SoftDeleteConversation(ctx, convID)
}

// RepairPointer re-derives last_message_id/last_active_at from the message
// log after a crash between the insert and the pointer update.
func (s *ConversationService) RepairPointer(ctx context.Context, convID int64) error {
	if err := s.repo.RepairConversationPointer(ctx, convID); err != nil {
		return err
	}
	log.Printf("repaired activity pointer for conversation %d", convID)
	return nil
}
