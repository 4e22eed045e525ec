package mongostore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

// These tests need a replica set, e.g.
// MONGO_TEST_URI="mongodb://localhost:27017/?replicaSet=rs0".
func setup(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, uri)
	require.NoError(t, err)

	dbName := fmt.Sprintf("recruit_chat_test_%d", time.Now().UnixNano())
	s := New(client, dbName, 5*time.Second, logger.NewNop())
	require.NoError(t, s.EnsureIndexes(ctx))

	t.Cleanup(func() {
		client.Database(dbName).Drop(context.Background())
		s.Close(context.Background())
	})
	return s
}

func TestMongoStore_CreateRoomRace(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		exists  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateRoom(ctx, "u1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, store.ErrRoomExists):
				exists++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, exists)
}

func TestMongoStore_AppendAndSubscribe(t *testing.T) {
	s := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room, err := s.CreateRoom(ctx, "u1")
	require.NoError(t, err)

	sub, err := s.SubscribeMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, <-sub.Updates())

	hello := "こんにちは"
	first, err := s.AppendMessage(ctx, room.ID, &model.MessageDraft{Sender: model.RoleUser, Text: &hello})
	require.NoError(t, err)
	second, err := s.AppendMessage(ctx, room.ID, &model.MessageDraft{Sender: model.RoleUser, Text: &hello})
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.After(*first.CreatedAt))

	var msgs []model.ChatMessage
	require.Eventually(t, func() bool {
		select {
		case msgs = <-sub.Updates():
		default:
		}
		return len(msgs) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, first.ID, msgs[0].ID)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadCountForAdmin)
	assert.Equal(t, hello, got.LastMessage)

	require.NoError(t, s.MarkRead(ctx, room.ID, first.ID, model.RoleAdmin))
	assert.ErrorIs(t, s.MarkRead(ctx, room.ID, first.ID, model.RoleUser), store.ErrForbidden)
	assert.ErrorIs(t, s.SoftDelete(ctx, room.ID, first.ID, model.RoleAdmin), store.ErrForbidden)

	no := false
	unread, err := s.CountMessages(ctx, room.ID, model.MessageFilter{ReadByAdmin: &no})
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	cancel()
	require.Eventually(t, sub.Closed, 5*time.Second, 20*time.Millisecond)
}
