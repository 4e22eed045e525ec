package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store/memory"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

var errInjected = errors.New("injected failure")

type typingWrite struct {
	role   model.Role
	typing bool
}

// recordingStore wraps the memory store, recording typing and read-flag
// writes and failing the ones a test asks it to.
type recordingStore struct {
	*memory.Store

	mu         sync.Mutex
	typing     []typingWrite
	markCalls  map[string]int
	failMark   map[string]int
	failTyping bool
}

func newRecordingStore(c clock.Clock) *recordingStore {
	return &recordingStore{
		Store:     memory.New(memory.WithClock(c)),
		markCalls: make(map[string]int),
		failMark:  make(map[string]int),
	}
}

func (s *recordingStore) SetTyping(ctx context.Context, roomID string, role model.Role, typing bool) error {
	s.mu.Lock()
	s.typing = append(s.typing, typingWrite{role, typing})
	fail := s.failTyping
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.Store.SetTyping(ctx, roomID, role, typing)
}

func (s *recordingStore) MarkRead(ctx context.Context, roomID, messageID string, viewer model.Role) error {
	s.mu.Lock()
	s.markCalls[messageID]++
	fail := s.failMark[messageID] > 0
	if fail {
		s.failMark[messageID]--
	}
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.Store.MarkRead(ctx, roomID, messageID, viewer)
}

func (s *recordingStore) typingWrites() []typingWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]typingWrite(nil), s.typing...)
}

func (s *recordingStore) markCallsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markCalls[id]
}

func (s *recordingStore) setFailTyping(fail bool) {
	s.mu.Lock()
	s.failTyping = fail
	s.mu.Unlock()
}

func (s *recordingStore) totalMarkCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.markCalls {
		n += c
	}
	return n
}

// recordingJournal collects every recorded event type.
type recordingJournal struct {
	mu     sync.Mutex
	events []model.EventType
}

func (j *recordingJournal) Record(_ context.Context, e *model.RoomEvent) error {
	j.mu.Lock()
	j.events = append(j.events, e.Type)
	j.mu.Unlock()
	return nil
}

func (j *recordingJournal) types() []model.EventType {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]model.EventType(nil), j.events...)
}

type harness struct {
	svc     *ChatService
	store   *recordingStore
	journal *recordingJournal
	clock   *clock.Mock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mock := clock.NewMock()
	st := newRecordingStore(mock)
	j := &recordingJournal{}
	svc := NewChatService(st, j, Options{
		StoreTimeout: time.Second,
		Clock:        mock,
	}, logger.NewNop())
	t.Cleanup(func() {
		svc.Close(context.Background())
		st.Close(context.Background())
	})
	return &harness{svc: svc, store: st, journal: j, clock: mock}
}

func (h *harness) room(t *testing.T, userID string) *model.ChatRoom {
	t.Helper()
	room, err := h.svc.Resolver().Resolve(context.Background(), userID)
	require.NoError(t, err)
	return room
}

func (h *harness) send(t *testing.T, roomID string, from model.Role, text string) *model.ChatMessage {
	t.Helper()
	msg, err := h.svc.Send(context.Background(), roomID, &model.MessageDraft{Sender: from, Text: &text})
	require.NoError(t, err)
	return msg
}

func (h *harness) messages(t *testing.T, roomID string) []model.ChatMessage {
	t.Helper()
	msgs, err := h.store.RecentMessages(context.Background(), roomID, 100)
	require.NoError(t, err)
	return msgs
}

func (h *harness) getRoom(t *testing.T, roomID string) *model.ChatRoom {
	t.Helper()
	room, err := h.store.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	return room
}
