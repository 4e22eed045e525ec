package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

// ErrSessionClosed is returned by writes on a closed session.
var ErrSessionClosed = errors.New("chat session closed")

// Snapshot is what a chat page renders: the room document and its
// messages as of the latest update of either.
type Snapshot struct {
	Room     model.ChatRoom      `json:"room"`
	Messages []model.ChatMessage `json:"messages"`
}

// Session is one viewer's open chat page. It holds the room and message
// subscriptions, runs the viewer's reconciler on every message update and
// pins the viewer's typing publisher. Close releases all of it.
type Session struct {
	svc        *ChatService
	viewer     model.Role
	roomID     string
	reconciler *Reconciler
	typing     *TypingPublisher
	logger     *logger.Logger

	roomSub *store.Subscription[model.ChatRoom]
	msgSub  *store.Subscription[[]model.ChatMessage]
	out     *store.Subscription[Snapshot]

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last *ReconcileResult
}

// OpenUserSession resolves userID's room, creating it on first visit, and
// opens the user's view of it.
func (s *ChatService) OpenUserSession(ctx context.Context, userID string) (*Session, error) {
	room, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, room.ID, model.RoleUser)
}

// OpenAdminSession opens the operator's view of roomID. The operator's
// unread counter is zeroed once here rather than after every pass.
func (s *ChatService) OpenAdminSession(ctx context.Context, roomID string) (*Session, error) {
	wctx, cancel := s.withTimeout(ctx)
	err := s.store.ResetUnread(wctx, roomID, model.RoleAdmin)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		s.logWriteFailure("reset_unread", roomID, model.RoleAdmin, err)
	} else {
		recordEvent(ctx, s.journal, s.logger, roomID, model.EventUnreadReset, model.RoleAdmin, nil, nil)
	}
	return s.openSession(ctx, roomID, model.RoleAdmin)
}

func (s *ChatService) openSession(ctx context.Context, roomID string, viewer model.Role) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)

	roomSub, err := s.SubscribeRoom(ctx, roomID)
	if err != nil {
		cancel()
		return nil, err
	}
	msgSub, err := s.SubscribeMessages(ctx, roomID)
	if err != nil {
		roomSub.Close()
		cancel()
		return nil, err
	}

	sess := &Session{
		svc:        s,
		viewer:     viewer,
		roomID:     roomID,
		reconciler: s.newReconciler(viewer),
		typing:     s.presence.Acquire(roomID, viewer),
		logger:     s.logger.WithRoom(roomID, string(viewer)),
		roomSub:    roomSub,
		msgSub:     msgSub,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	sess.out = store.NewSubscription[Snapshot](nil)

	go sess.run(ctx)
	return sess, nil
}

// RoomID returns the room the session shows.
func (sess *Session) RoomID() string {
	return sess.roomID
}

// Viewer returns the role the session acts for.
func (sess *Session) Viewer() model.Role {
	return sess.viewer
}

// Updates returns the snapshot stream. It is closed when the session ends.
func (sess *Session) Updates() <-chan Snapshot {
	return sess.out.Updates()
}

// Err returns the subscription failure that ended the session, if any.
func (sess *Session) Err() error {
	return sess.out.Err()
}

// Done is closed once the session has released everything it holds.
func (sess *Session) Done() <-chan struct{} {
	return sess.done
}

// LastReconcile returns the result of the most recent pass that issued writes.
func (sess *Session) LastReconcile() *ReconcileResult {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.last
}

// Send appends a text message from the viewer.
func (sess *Session) Send(ctx context.Context, text string) (*model.ChatMessage, error) {
	return sess.SendDraft(ctx, &model.MessageDraft{Text: &text})
}

// SendImage appends an image message from the viewer.
func (sess *Session) SendImage(ctx context.Context, imageURL string) (*model.ChatMessage, error) {
	return sess.SendDraft(ctx, &model.MessageDraft{ImageURL: &imageURL})
}

// SendDraft appends draft as the viewer.
func (sess *Session) SendDraft(ctx context.Context, draft *model.MessageDraft) (*model.ChatMessage, error) {
	if sess.closed() {
		return nil, ErrSessionClosed
	}
	draft.Sender = sess.viewer
	return sess.svc.Send(ctx, sess.roomID, draft)
}

// Delete soft-deletes one of the viewer's own messages.
func (sess *Session) Delete(ctx context.Context, messageID string) error {
	if sess.closed() {
		return ErrSessionClosed
	}
	return sess.svc.Delete(ctx, sess.roomID, messageID, sess.viewer)
}

// Keystroke reports the current input contents.
func (sess *Session) Keystroke(ctx context.Context, text string) error {
	if sess.closed() {
		return ErrSessionClosed
	}
	return sess.typing.Keystroke(ctx, text)
}

// SelectQuickReply puts a template into the operator input.
func (sess *Session) SelectQuickReply(ctx context.Context, quickReplyID string) (*model.SelectionResponse, error) {
	if sess.viewer != model.RoleAdmin {
		return nil, store.ErrForbidden
	}
	if sess.closed() {
		return nil, ErrSessionClosed
	}
	return sess.svc.SelectQuickReply(ctx, sess.roomID, quickReplyID)
}

// Typing returns the viewer's typing state.
func (sess *Session) Typing() TypingState {
	return sess.typing.State()
}

// Close releases the subscriptions and the typing publisher. It waits for
// the session loop to exit.
func (sess *Session) Close(ctx context.Context) error {
	sess.cancel()
	sess.roomSub.Close()
	sess.msgSub.Close()
	<-sess.done
	return nil
}

func (sess *Session) closed() bool {
	return sess.out.Closed()
}

func (sess *Session) run(ctx context.Context) {
	defer func() {
		sess.roomSub.Close()
		sess.msgSub.Close()
		if err := sess.svc.presence.Release(context.Background(), sess.roomID, sess.viewer); err != nil {
			sess.logger.Warn("failed to clear typing flag on close", zap.Error(err))
		}
		close(sess.done)
	}()

	var (
		room     model.ChatRoom
		msgs     []model.ChatMessage
		haveRoom bool
		haveMsgs bool
	)

	for {
		select {
		case r, ok := <-sess.roomSub.Updates():
			if !ok {
				sess.finish(sess.roomSub.Err(), "room")
				return
			}
			room, haveRoom = r, true

		case m, ok := <-sess.msgSub.Updates():
			if !ok {
				sess.finish(sess.msgSub.Err(), "messages")
				return
			}
			msgs, haveMsgs = m, true
			sess.reconcile(ctx, m)
		}

		if haveRoom && haveMsgs {
			sess.out.Publish(Snapshot{Room: room, Messages: msgs})
		}
	}
}

func (sess *Session) reconcile(ctx context.Context, msgs []model.ChatMessage) {
	result := sess.reconciler.Reconcile(ctx, sess.roomID, msgs)
	if result.Empty() {
		return
	}
	if result.Failed > 0 {
		sess.logger.Warn("reconciliation pass had failures",
			zap.Int("attempted", result.Attempted),
			zap.Int("failed", result.Failed),
		)
	}

	sess.mu.Lock()
	sess.last = result
	sess.mu.Unlock()
}

func (sess *Session) finish(err error, which string) {
	if err != nil && !errors.Is(err, context.Canceled) {
		sess.logger.Error("chat subscription failed", zap.String("subscription", which), zap.Error(err))
		sess.out.Fail(fmt.Errorf("%s subscription failed: %w", which, err))
		return
	}
	sess.out.Close()
}
