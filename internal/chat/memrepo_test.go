package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memRepository is an in-memory Repository with the same semantics as the
// Postgres implementation: pair_key uniqueness, per-conversation monotonic
// message ids, GREATEST cursor updates and atomic dual-cursor advancement.
type memRepository struct {
	mu sync.Mutex

	nextConvID int64
	nextMsgID  int64

	conversations map[int64]*Conversation
	byPairKey     map[string]int64
	members       map[string]*ConversationMember
	messages      map[int64]*Message
	readStatuses  map[string]*ReadStatus
}

func newMemRepository() *memRepository {
	return &memRepository{
		conversations: make(map[int64]*Conversation),
		byPairKey:     make(map[string]int64),
		members:       make(map[string]*ConversationMember),
		messages:      make(map[int64]*Message),
		readStatuses:  make(map[string]*ReadStatus),
	}
}

func memberKey(convID, userID int64) string {
	return fmt.Sprintf("%d:%d", convID, userID)
}

func copyConversation(c *Conversation) *Conversation {
	cp := *c
	return &cp
}

func copyMember(m *ConversationMember) *ConversationMember {
	cp := *m
	if m.LastAcceptableMessageID != nil {
		v := *m.LastAcceptableMessageID
		cp.LastAcceptableMessageID = &v
	}
	return &cp
}

func copyMessage(m *Message) *Message {
	cp := *m
	return &cp
}

func (r *memRepository) CreateConversation(_ context.Context, conv *Conversation, memberIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv.PairKey != nil {
		if _, exists := r.byPairKey[*conv.PairKey]; exists {
			return ErrConflict
		}
	}

	r.nextConvID++
	conv.ID = r.nextConvID
	now := time.Now()
	conv.LastActiveAt = now
	conv.CreatedAt = now
	conv.UpdatedAt = now

	r.conversations[conv.ID] = copyConversation(conv)
	if conv.PairKey != nil {
		r.byPairKey[*conv.PairKey] = conv.ID
	}

	for _, userID := range memberIDs {
		r.members[memberKey(conv.ID, userID)] = &ConversationMember{
			ConversationID: conv.ID,
			UserID:         userID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	return nil
}

func (r *memRepository) GetConversation(_ context.Context, id int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok || conv.IsDeleted {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (r *memRepository) GetPrivateConversation(_ context.Context, userA, userB int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byPairKey[PairKey(userA, userB)]
	if !ok {
		return nil, ErrNotFound
	}
	conv := r.conversations[id]
	if conv == nil || conv.IsDeleted {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (r *memRepository) GetUserConversations(_ context.Context, userID int64, archived bool, limit, offset int) ([]*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*Conversation
	for _, m := range r.members {
		if m.UserID != userID || m.IsArchived != archived {
			continue
		}
		conv := r.conversations[m.ConversationID]
		if conv == nil || conv.IsDeleted {
			continue
		}
		cp := copyConversation(conv)
		cp.Member = copyMember(m)
		result = append(result, cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActiveAt.After(result[j].LastActiveAt)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memRepository) UpdateConversation(_ context.Context, id int64, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok || conv.IsDeleted {
		return ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "name":
			s := v.(string)
			conv.Name = &s
		case "description":
			s := v.(string)
			conv.Description = &s
		case "avatar_url":
			s := v.(string)
			conv.AvatarURL = &s
		case "settings":
			conv.Settings = v.([]byte)
		case "metadata":
			conv.Metadata = v.([]byte)
		default:
			return fmt.Errorf("%w: column %q not updatable", ErrInvalidArgument, k)
		}
	}
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memRepository) SoftDeleteConversation(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok || conv.IsDeleted {
		return ErrNotFound
	}
	now := time.Now()
	conv.IsDeleted = true
	conv.DeletedAt = &now
	return nil
}

func (r *memRepository) RepairConversationPointer(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return ErrNotFound
	}
	var maxID int64
	var maxAt time.Time
	for _, m := range r.messages {
		if m.ConversationID == id && m.ID > maxID {
			maxID = m.ID
			maxAt = m.CreatedAt
		}
	}
	conv.LastMessageID = maxID
	if maxAt.After(conv.LastActiveAt) {
		conv.LastActiveAt = maxAt
	}
	return nil
}

func (r *memRepository) GetMember(_ context.Context, convID, userID int64) (*ConversationMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[memberKey(convID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMember(m), nil
}

func (r *memRepository) GetMembers(_ context.Context, convID int64) ([]*ConversationMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*ConversationMember
	for _, m := range r.members {
		if m.ConversationID == convID {
			result = append(result, copyMember(m))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (r *memRepository) IsMember(_ context.Context, convID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.members[memberKey(convID, userID)]
	return ok, nil
}

func (r *memRepository) AddMember(_ context.Context, convID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memberKey(convID, userID)
	if _, ok := r.members[key]; ok {
		return nil
	}
	now := time.Now()
	r.members[key] = &ConversationMember{
		ConversationID: convID,
		UserID:         userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (r *memRepository) RemoveMember(_ context.Context, convID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memberKey(convID, userID)
	if _, ok := r.members[key]; !ok {
		return ErrNotFound
	}
	delete(r.members, key)
	return nil
}

func (r *memRepository) UpdateMemberSettings(_ context.Context, convID, userID int64, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[memberKey(convID, userID)]
	if !ok {
		return ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "is_pinned":
			m.IsPinned = v.(bool)
		case "is_archived":
			m.IsArchived = v.(bool)
		case "is_dnd":
			m.IsDnd = v.(bool)
		case "draft":
			m.Draft = v.(string)
		default:
			return fmt.Errorf("%w: column %q not updatable", ErrInvalidArgument, k)
		}
	}
	m.UpdatedAt = time.Now()
	return nil
}

func (r *memRepository) RaiseBoundary(_ context.Context, convID, userID, boundary int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[memberKey(convID, userID)]
	if !ok {
		return ErrNotFound
	}
	if m.LastAcceptableMessageID == nil || *m.LastAcceptableMessageID < boundary {
		b := boundary
		m.LastAcceptableMessageID = &b
	}
	m.UpdatedAt = time.Now()
	return nil
}

func (r *memRepository) ClearBoundary(_ context.Context, convID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[memberKey(convID, userID)]
	if !ok {
		return ErrNotFound
	}
	m.LastAcceptableMessageID = nil
	m.UpdatedAt = time.Now()
	return nil
}

func (r *memRepository) CreateMessage(_ context.Context, message *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[message.ConversationID]
	if !ok || conv.IsDeleted {
		return ErrNotFound
	}

	if message.ClientMessageID != nil {
		for _, m := range r.messages {
			if m.ConversationID == message.ConversationID &&
				m.ClientMessageID != nil && *m.ClientMessageID == *message.ClientMessageID {
				return ErrConflict
			}
		}
	}

	r.nextMsgID++
	message.ID = r.nextMsgID
	message.CreatedAt = time.Now()

	r.messages[message.ID] = copyMessage(message)

	conv.LastMessageID = message.ID
	if message.CreatedAt.After(conv.LastActiveAt) {
		conv.LastActiveAt = message.CreatedAt
	}
	return nil
}

func (r *memRepository) GetMessage(_ context.Context, id int64) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok || m.IsDeleted {
		return nil, ErrNotFound
	}
	return copyMessage(m), nil
}

func (r *memRepository) GetMessageByClientID(_ context.Context, convID int64, clientID string) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.ConversationID == convID && m.ClientMessageID != nil && *m.ClientMessageID == clientID {
			return copyMessage(m), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepository) GetConversationMessages(_ context.Context, convID int64, beforeID int64, limit int, boundary *int64) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*Message
	for _, m := range r.messages {
		if m.ConversationID != convID || m.IsDeleted {
			continue
		}
		if beforeID != 0 && m.ID >= beforeID {
			continue
		}
		if boundary != nil && m.ID > *boundary {
			continue
		}
		result = append(result, copyMessage(m))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memRepository) UpdateMessageStatus(_ context.Context, id int64, status MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return ErrNotFound
	}
	if !m.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: message %d cannot move to %s", ErrInvalidTransition, id, status)
	}
	m.Status = status
	if status == StatusDeleted {
		now := time.Now()
		m.IsDeleted = true
		m.DeletedAt = &now
	}
	return nil
}

func (r *memRepository) EditMessageContent(_ context.Context, id int64, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok || m.IsDeleted {
		return ErrNotFound
	}
	now := time.Now()
	m.Content = &content
	m.IsEdited = true
	m.EditedAt = &now
	m.Indexed = false
	return nil
}

func (r *memRepository) MaxMessageID(_ context.Context, convID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var maxID int64
	for _, m := range r.messages {
		if m.ConversationID == convID && m.ID > maxID {
			maxID = m.ID
		}
	}
	return maxID, nil
}

func (r *memRepository) CountUnread(_ context.Context, convID, userID, afterID int64, boundary *int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, m := range r.messages {
		if m.ConversationID != convID || m.SenderID == userID || m.ID <= afterID {
			continue
		}
		if m.IsDeleted || m.Status == StatusRecalled || m.Status == StatusDeleted {
			continue
		}
		if boundary != nil && m.ID > *boundary {
			continue
		}
		count++
	}
	return count, nil
}

func (r *memRepository) ListUnindexed(_ context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*Message
	for _, m := range r.messages {
		if !m.Indexed && !m.IsDeleted {
			result = append(result, copyMessage(m))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memRepository) MarkIndexed(_ context.Context, messageIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range messageIDs {
		if m, ok := r.messages[id]; ok {
			m.Indexed = true
		}
	}
	return nil
}

func (r *memRepository) AdvanceReadCursor(_ context.Context, convID, userID, upTo int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[memberKey(convID, userID)]
	if !ok {
		return 0, ErrNotFound
	}
	if upTo > m.LastReadMessageID {
		m.LastReadMessageID = upTo
	}
	cursor := m.LastReadMessageID
	m.UpdatedAt = time.Now()

	key := memberKey(convID, userID)
	rs, ok := r.readStatuses[key]
	if !ok {
		rs = &ReadStatus{UserID: userID, ConversationID: convID}
		r.readStatuses[key] = rs
	}
	if cursor > rs.LastReadMessageID {
		rs.LastReadMessageID = cursor
	}
	rs.UpdatedAt = time.Now()

	for _, msg := range r.messages {
		if msg.ConversationID == convID && msg.SenderID != userID && msg.ID <= cursor && !msg.IsRead {
			msg.IsRead = true
			if msg.Status == StatusSent || msg.Status == StatusDelivered {
				msg.Status = StatusRead
			}
		}
	}
	return cursor, nil
}

func (r *memRepository) GetReadStatus(_ context.Context, userID, convID int64) (*ReadStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.readStatuses[memberKey(convID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rs
	return &cp, nil
}
