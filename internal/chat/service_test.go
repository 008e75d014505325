package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test doubles for the collaborator contracts.

type stubDirectory struct {
	users map[int64]*UserInfo
}

func (d *stubDirectory) GetUser(_ context.Context, userID int64) (*UserInfo, error) {
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (d *stubDirectory) GetUsers(_ context.Context, userIDs []int64) (map[int64]*UserInfo, error) {
	result := make(map[int64]*UserInfo, len(userIDs))
	for _, id := range userIDs {
		if u, ok := d.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

type stubBlocks struct {
	mu      sync.Mutex
	blocked map[string]bool
}

func (b *stubBlocks) block(userA, userB int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blocked == nil {
		b.blocked = make(map[string]bool)
	}
	b.blocked[PairKey(userA, userB)] = true
}

func (b *stubBlocks) IsBlockedEither(_ context.Context, userA, userB int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked[PairKey(userA, userB)], nil
}

type stubMedia struct {
	media map[int64]*MediaInfo
}

func (m *stubMedia) GetMedia(_ context.Context, mediaID int64) (*MediaInfo, error) {
	info, ok := m.media[mediaID]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

func testDirectory() *stubDirectory {
	return &stubDirectory{users: map[int64]*UserInfo{
		1: {ID: 1, Username: "alice", DisplayName: "Alice"},
		2: {ID: 2, Username: "bob", DisplayName: "Bob"},
		3: {ID: 3, Username: "carol", DisplayName: "Carol"},
	}}
}

func newTestConversationService() (*memRepository, *ConversationService, *stubBlocks) {
	repo := newMemRepository()
	blocks := &stubBlocks{}
	svc := NewConversationService(repo, testDirectory(), blocks)
	return repo, svc, blocks
}

func TestPairKeySymmetric(t *testing.T) {
	assert.Equal(t, PairKey(1, 2), PairKey(2, 1))
	assert.Equal(t, "1:2", PairKey(2, 1))
	assert.NotEqual(t, PairKey(1, 2), PairKey(1, 3))
}

func TestGetOrCreatePrivateConversationIdempotent(t *testing.T) {
	_, svc, _ := newTestConversationService()
	ctx := context.Background()

	first, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	assert.Equal(t, ConversationPrivate, first.Type)

	// Same pair, both orders, always the same conversation.
	again, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	reversed, err := svc.GetOrCreatePrivateConversation(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, reversed.ID)

	// A different pair gets its own conversation.
	other, err := svc.GetOrCreatePrivateConversation(ctx, 1, 3)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetOrCreatePrivateConversationCreatesBothMembers(t *testing.T) {
	repo, svc, _ := newTestConversationService()
	ctx := context.Background()

	conv, err := svc.GetOrCreatePrivateConversation(ctx, 2, 1)
	require.NoError(t, err)

	members, err := repo.GetMembers(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, int64(1), members[0].UserID)
	assert.Equal(t, int64(2), members[1].UserID)
	for _, m := range members {
		assert.Zero(t, m.LastReadMessageID)
		assert.Nil(t, m.LastAcceptableMessageID)
	}
}

func TestGetOrCreatePrivateConversationInvalidPair(t *testing.T) {
	_, svc, _ := newTestConversationService()
	ctx := context.Background()

	_, err := svc.GetOrCreatePrivateConversation(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.GetOrCreatePrivateConversation(ctx, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.GetOrCreatePrivateConversation(ctx, 1, -4)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetOrCreatePrivateConversationBlockedPair(t *testing.T) {
	_, svc, blocks := newTestConversationService()
	ctx := context.Background()

	blocks.block(1, 2)
	_, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	assert.ErrorIs(t, err, ErrForbidden)

	// An existing conversation is still returned after a block; blocking
	// hides new activity, it does not remove the container.
	existing, err := svc.GetOrCreatePrivateConversation(ctx, 1, 3)
	require.NoError(t, err)
	blocks.block(1, 3)
	got, err := svc.GetOrCreatePrivateConversation(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
}

func TestGetOrCreatePrivateConversationConcurrent(t *testing.T) {
	_, svc, _ := newTestConversationService()
	ctx := context.Background()

	const callers = 16
	ids := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := svc.GetOrCreatePrivateConversation(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Equal(t, ids[0], ids[i], "caller %d got a different conversation", i)
	}
}

func TestGetConversationRequiresMembership(t *testing.T) {
	_, svc, _ := newTestConversationService()
	ctx := context.Background()

	conv, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)

	_, err = svc.GetConversation(ctx, conv.ID, 3)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.GetConversation(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	require.NotNil(t, got.Member)
	assert.Equal(t, int64(2), got.Member.UserID)
	require.NotNil(t, got.Counterpart)
	assert.Equal(t, "alice", got.Counterpart.Username)
}

func TestListConversationsArchivedSplit(t *testing.T) {
	_, svc, _ := newTestConversationService()
	ctx := context.Background()

	withBob, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)
	withCarol, err := svc.GetOrCreatePrivateConversation(ctx, 1, 3)
	require.NoError(t, err)

	require.NoError(t, svc.SetArchived(ctx, withBob.ID, 1, true))

	active, err := svc.ListConversations(ctx, 1, 1, 50)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, withCarol.ID, active[0].ID)

	archived, err := svc.ListArchived(ctx, 1, 1, 50)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, withBob.ID, archived[0].ID)

	// Archiving is per member: user 2 still sees the conversation as active.
	bobActive, err := svc.ListConversations(ctx, 2, 1, 50)
	require.NoError(t, err)
	require.Len(t, bobActive, 1)
	assert.Equal(t, withBob.ID, bobActive[0].ID)
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	repo, svc, _ := newTestConversationService()
	ctx := context.Background()

	older, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)
	newer, err := svc.GetOrCreatePrivateConversation(ctx, 1, 3)
	require.NoError(t, err)

	content := "bump"
	require.NoError(t, repo.CreateMessage(ctx, &Message{
		ConversationID: newer.ID,
		SenderID:       3,
		MessageType:    MessageText,
		Content:        &content,
		Status:         StatusSent,
	}))

	// Pinning is member state and does not reorder the list; last activity
	// alone decides it.
	require.NoError(t, svc.SetPinned(ctx, older.ID, 1, true))

	list, err := svc.ListConversations(ctx, 1, 1, 50)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}

func TestMemberFlagsAndDraft(t *testing.T) {
	repo, svc, _ := newTestConversationService()
	ctx := context.Background()

	conv, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)

	require.NoError(t, svc.SetPinned(ctx, conv.ID, 1, true))
	require.NoError(t, svc.SetMuted(ctx, conv.ID, 1, true))
	require.NoError(t, svc.SaveDraft(ctx, conv.ID, 1, "see you at"))

	member, err := repo.GetMember(ctx, conv.ID, 1)
	require.NoError(t, err)
	assert.True(t, member.IsPinned)
	assert.True(t, member.IsDnd)
	assert.Equal(t, "see you at", member.Draft)

	// The other member's row is untouched.
	other, err := repo.GetMember(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.False(t, other.IsPinned)
	assert.False(t, other.IsDnd)
	assert.Empty(t, other.Draft)

	// Non-members cannot write member state.
	assert.ErrorIs(t, svc.SetPinned(ctx, conv.ID, 3, true), ErrForbidden)
	assert.ErrorIs(t, svc.SaveDraft(ctx, conv.ID, 3, "x"), ErrForbidden)
}

func TestUpdateConversation(t *testing.T) {
	_, svc, _ := newTestConversationService()
	ctx := context.Background()

	conv, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)

	name := "weekend plans"
	require.NoError(t, svc.UpdateConversation(ctx, conv.ID, 1, &UpdateConversationRequest{Name: &name}))

	got, err := svc.GetConversation(ctx, conv.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, got.Name)
	assert.Equal(t, name, *got.Name)

	err = svc.UpdateConversation(ctx, conv.ID, 3, &UpdateConversationRequest{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	err = svc.UpdateConversation(ctx, conv.ID, 1, &UpdateConversationRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDeleteConversationSoft(t *testing.T) {
	_, svc, _ := newTestConversationService()
	ctx := context.Background()

	conv, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteConversation(ctx, conv.ID, 3), ErrForbidden)
	require.NoError(t, svc.DeleteConversation(ctx, conv.ID, 1))

	_, err = svc.GetConversation(ctx, conv.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepairPointer(t *testing.T) {
	repo, svc, _ := newTestConversationService()
	ctx := context.Background()

	conv, err := svc.GetOrCreatePrivateConversation(ctx, 1, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		content := "hello"
		require.NoError(t, repo.CreateMessage(ctx, &Message{
			ConversationID: conv.ID,
			SenderID:       1,
			MessageType:    MessageText,
			Content:        &content,
			Status:         StatusSent,
		}))
	}

	// Simulate a crash between the message insert and the pointer bump.
	repo.mu.Lock()
	repo.conversations[conv.ID].LastMessageID = 0
	repo.mu.Unlock()

	require.NoError(t, svc.RepairPointer(ctx, conv.ID))

	repaired, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), repaired.LastMessageID)
}
