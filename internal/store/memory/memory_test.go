package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
)

func text(s string) *string { return &s }

func newRoom(t *testing.T, s *Store, userID string) *model.ChatRoom {
	t.Helper()
	room, err := s.CreateRoom(context.Background(), userID)
	require.NoError(t, err)
	return room
}

func send(t *testing.T, s *Store, roomID string, role model.Role, body string) *model.ChatMessage {
	t.Helper()
	msg, err := s.AppendMessage(context.Background(), roomID, &model.MessageDraft{Sender: role, Text: text(body)})
	require.NoError(t, err)
	return msg
}

func TestStore_CreateRoomIsExclusivePerUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	room := newRoom(t, s, "u1")
	assert.Equal(t, "u1", room.UserID)
	assert.Zero(t, room.UnreadCountForAdmin)
	assert.Zero(t, room.UnreadCountForUser)
	assert.Empty(t, room.LastMessage)

	_, err := s.CreateRoom(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrRoomExists)

	found, err := s.FindRoomByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, room.ID, found.ID)

	_, err = s.FindRoomByUser(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_AppendMessageUpdatesSummaryAndCounter(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s, "u1")

	msg := send(t, s, room.ID, model.RoleUser, "こんにちは")
	assert.True(t, msg.ReadByUser)
	assert.False(t, msg.ReadByAdmin)
	require.NotNil(t, msg.CreatedAt)

	send(t, s, room.ID, model.RoleUser, "応募について")
	img, err := s.AppendMessage(ctx, room.ID, &model.MessageDraft{Sender: model.RoleAdmin, ImageURL: text("https://cdn.example/a.png")})
	require.NoError(t, err)
	assert.Nil(t, img.Text)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadCountForAdmin)
	assert.Equal(t, 1, got.UnreadCountForUser)
	assert.Equal(t, "画像を送信しました", got.LastMessage)
	assert.Equal(t, model.RoleAdmin, got.LastSender)
	assert.Equal(t, *img.CreatedAt, got.UpdatedAt)
}

func TestStore_AppendMessageRejects(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s, "u1")

	_, err := s.AppendMessage(ctx, room.ID, &model.MessageDraft{Sender: model.RoleUser, Text: text("  ")})
	assert.ErrorIs(t, err, model.ErrEmptyDraft)

	_, err = s.AppendMessage(ctx, "missing", &model.MessageDraft{Sender: model.RoleUser, Text: text("hi")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_TimestampsStrictlyIncreaseOnFrozenClock(t *testing.T) {
	mock := clock.NewMock()
	s := New(WithClock(mock))
	room := newRoom(t, s, "u1")

	var last time.Time
	for i := 0; i < 5; i++ {
		msg := send(t, s, room.ID, model.RoleUser, "same instant")
		assert.True(t, msg.CreatedAt.After(last), "message %d not after previous", i)
		last = *msg.CreatedAt
	}
}

func TestStore_SubscribeMessagesDeliversOrderedSnapshots(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := newRoom(t, s, "u1")

	sub, err := s.SubscribeMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, <-sub.Updates())

	send(t, s, room.ID, model.RoleUser, "one")
	send(t, s, room.ID, model.RoleAdmin, "two")
	send(t, s, room.ID, model.RoleUser, "three")

	var msgs []model.ChatMessage
	require.Eventually(t, func() bool {
		select {
		case msgs = <-sub.Updates():
		default:
		}
		return len(msgs) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "one", *msgs[0].Text)
	assert.Equal(t, "two", *msgs[1].Text)
	assert.Equal(t, "three", *msgs[2].Text)

	cancel()
	require.Eventually(t, sub.Closed, time.Second, 5*time.Millisecond)
	assert.NoError(t, sub.Err())
}

func TestStore_SubscribeRoomsOrdersByRecency(t *testing.T) {
	mock := clock.NewMock()
	s := New(WithClock(mock))
	ctx := context.Background()

	r1 := newRoom(t, s, "u1")
	r2 := newRoom(t, s, "u2")
	mock.Add(time.Second)
	send(t, s, r1.ID, model.RoleUser, "later")

	sub, err := s.SubscribeRooms(ctx)
	require.NoError(t, err)
	defer sub.Close()

	rooms := <-sub.Updates()
	require.Len(t, rooms, 2)
	assert.Equal(t, r1.ID, rooms[0].ID)
	assert.Equal(t, r2.ID, rooms[1].ID)
}

func TestStore_SubscribeUnknownRoom(t *testing.T) {
	s := New()
	_, err := s.SubscribeRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.SubscribeMessages(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_MarkReadOwnsOneFlag(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s, "u1")
	msg := send(t, s, room.ID, model.RoleUser, "hi")

	assert.ErrorIs(t, s.MarkRead(ctx, room.ID, msg.ID, model.RoleUser), store.ErrForbidden)
	require.NoError(t, s.MarkRead(ctx, room.ID, msg.ID, model.RoleAdmin))
	require.NoError(t, s.MarkRead(ctx, room.ID, msg.ID, model.RoleAdmin))
	assert.ErrorIs(t, s.MarkRead(ctx, room.ID, "missing", model.RoleAdmin), store.ErrNotFound)

	n, err := s.CountMessages(ctx, room.ID, model.MessageFilter{ReadByAdmin: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_SoftDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s, "u1")
	msg, err := s.AppendMessage(ctx, room.ID, &model.MessageDraft{
		Sender:   model.RoleUser,
		Text:     text("oops"),
		ImageURL: text("https://cdn.example/a.png"),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.SoftDelete(ctx, room.ID, msg.ID, model.RoleAdmin), store.ErrForbidden)
	require.NoError(t, s.SoftDelete(ctx, room.ID, msg.ID, model.RoleUser))

	msgs, err := s.RecentMessages(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsDeleted)
	assert.Equal(t, model.DeletedPlaceholder, *msgs[0].Text)
	assert.Nil(t, msgs[0].ImageURL)
}

func TestStore_RecentMessagesKeepsNewest(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s, "u1")
	for _, body := range []string{"1", "2", "3", "4"} {
		send(t, s, room.ID, model.RoleUser, body)
	}

	msgs, err := s.RecentMessages(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "3", *msgs[0].Text)
	assert.Equal(t, "4", *msgs[1].Text)
}

func TestStore_ConcurrentAppendsKeepCounters(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := model.RoleUser
			if i%2 == 1 {
				role = model.RoleAdmin
			}
			_, err := s.AppendMessage(ctx, room.ID, &model.MessageDraft{Sender: role, Text: text("x")})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.UnreadCountForAdmin)
	assert.Equal(t, 25, got.UnreadCountForUser)
}

func TestStore_QuickReplies(t *testing.T) {
	s := New()
	ctx := context.Background()

	sub, err := s.SubscribeQuickReplies(ctx)
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, <-sub.Updates())

	second, err := s.CreateQuickReply(ctx, &model.QuickReplyRequest{Text: "second", SortOrder: 2})
	require.NoError(t, err)
	first, err := s.CreateQuickReply(ctx, &model.QuickReplyRequest{Text: "first", SortOrder: 1})
	require.NoError(t, err)

	list := <-sub.Updates()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	updated, err := s.UpdateQuickReply(ctx, second.ID, &model.QuickReplyRequest{Text: "now first", SortOrder: 0})
	require.NoError(t, err)
	assert.Equal(t, "now first", updated.Text)

	list, err = s.ListQuickReplies(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, s.DeleteQuickReply(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteQuickReply(ctx, first.ID), store.ErrNotFound)
	_, err = s.GetQuickReply(ctx, first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_CloseEndsSubscriptions(t *testing.T) {
	s := New()
	room := newRoom(t, s, "u1")

	sub, err := s.SubscribeRoom(context.Background(), room.ID)
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, sub.Closed())
}

func boolPtr(v bool) *bool { return &v }
