// Package memory provides an in-process store backend. It keeps every
// document in maps guarded by one mutex and pushes snapshots to live
// subscribers after each change, the way the hosted document store does.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raulk/clock"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	clock clock.Clock

	mu           sync.Mutex
	rooms        map[string]*model.ChatRoom
	roomsByUser  map[string]string
	messages     map[string][]*model.ChatMessage
	lastStamp    map[string]time.Time
	quickReplies map[string]*model.QuickReply

	nextWatcher  uint64
	roomWatchers map[string]map[uint64]*store.Subscription[model.ChatRoom]
	listWatchers map[uint64]*store.Subscription[[]model.ChatRoom]
	msgWatchers  map[string]map[uint64]*store.Subscription[[]model.ChatMessage]
	qrWatchers   map[uint64]*store.Subscription[[]model.QuickReply]
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for server timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:        clock.New(),
		rooms:        make(map[string]*model.ChatRoom),
		roomsByUser:  make(map[string]string),
		messages:     make(map[string][]*model.ChatMessage),
		lastStamp:    make(map[string]time.Time),
		quickReplies: make(map[string]*model.QuickReply),
		roomWatchers: make(map[string]map[uint64]*store.Subscription[model.ChatRoom]),
		listWatchers: make(map[uint64]*store.Subscription[[]model.ChatRoom]),
		msgWatchers:  make(map[string]map[uint64]*store.Subscription[[]model.ChatMessage]),
		qrWatchers:   make(map[uint64]*store.Subscription[[]model.QuickReply]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close ends every live subscription.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	var subs []interface{ Close() }
	for _, w := range s.roomWatchers {
		for _, sub := range w {
			subs = append(subs, sub)
		}
	}
	for _, sub := range s.listWatchers {
		subs = append(subs, sub)
	}
	for _, w := range s.msgWatchers {
		for _, sub := range w {
			subs = append(subs, sub)
		}
	}
	for _, sub := range s.qrWatchers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

// FindRoomByUser returns the room owned by userID.
func (s *Store) FindRoomByUser(ctx context.Context, userID string) (*model.ChatRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.roomsByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	room := *s.rooms[id]
	return &room, nil
}

// CreateRoom inserts a fresh room for userID. A user owns at most one room.
func (s *Store) CreateRoom(ctx context.Context, userID string) (*model.ChatRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roomsByUser[userID]; ok {
		return nil, store.ErrRoomExists
	}

	room := &model.ChatRoom{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		UpdatedAt: s.clock.Now(),
	}
	s.rooms[room.ID] = room
	s.roomsByUser[userID] = room.ID
	s.notifyRoomLocked(room.ID)

	out := *room
	return &out, nil
}

// GetRoom returns a room by ID.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*model.ChatRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *room
	return &out, nil
}

// SetTyping sets the typing flag owned by role.
func (s *Store) SetTyping(ctx context.Context, roomID string, role model.Role, typing bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	if role == model.RoleAdmin {
		room.AdminTyping = typing
	} else {
		room.UserTyping = typing
	}
	s.notifyRoomLocked(roomID)
	return nil
}

// ResetUnread zeroes the unread counter owned by viewer.
func (s *Store) ResetUnread(ctx context.Context, roomID string, viewer model.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	if viewer == model.RoleAdmin {
		room.UnreadCountForAdmin = 0
	} else {
		room.UnreadCountForUser = 0
	}
	s.notifyRoomLocked(roomID)
	return nil
}

// AppendMessage inserts a message and updates the room summary under one lock.
func (s *Store) AppendMessage(ctx context.Context, roomID string, draft *model.MessageDraft) (*model.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}

	stamp := s.stampLocked(roomID)
	msg := draft.NewMessage(uuid.Must(uuid.NewV7()).String(), roomID, &stamp)
	s.messages[roomID] = append(s.messages[roomID], msg)

	room.LastMessage = draft.Summary()
	room.LastSender = draft.Sender
	room.UpdatedAt = stamp
	if draft.Sender == model.RoleUser {
		room.UnreadCountForAdmin++
	} else {
		room.UnreadCountForUser++
	}

	s.notifyMessagesLocked(roomID)
	s.notifyRoomLocked(roomID)

	out := *msg
	return &out, nil
}

// MarkRead sets the viewer's read flag on a counterpart message.
func (s *Store) MarkRead(ctx context.Context, roomID, messageID string, viewer model.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.messageLocked(roomID, messageID)
	if err != nil {
		return err
	}
	if msg.Sender == viewer {
		return store.ErrForbidden
	}
	if msg.ReadBy(viewer) {
		return nil
	}
	if viewer == model.RoleAdmin {
		msg.ReadByAdmin = true
	} else {
		msg.ReadByUser = true
	}
	s.notifyMessagesLocked(roomID)
	return nil
}

// SoftDelete replaces the message content with the deleted placeholder.
func (s *Store) SoftDelete(ctx context.Context, roomID, messageID string, sender model.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.messageLocked(roomID, messageID)
	if err != nil {
		return err
	}
	if msg.Sender != sender {
		return store.ErrForbidden
	}
	placeholder := model.DeletedPlaceholder
	msg.Text = &placeholder
	msg.ImageURL = nil
	msg.IsDeleted = true
	s.notifyMessagesLocked(roomID)
	return nil
}

// CountMessages counts the room's messages matching filter.
func (s *Store) CountMessages(ctx context.Context, roomID string, filter model.MessageFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return 0, store.ErrNotFound
	}
	n := 0
	for _, msg := range s.messages[roomID] {
		if filter.Match(msg) {
			n++
		}
	}
	return n, nil
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]model.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, store.ErrNotFound
	}
	msgs := s.messageListLocked(roomID)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// SubscribeRoom streams one room document.
func (s *Store) SubscribeRoom(ctx context.Context, roomID string) (*store.Subscription[model.ChatRoom], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}

	id := s.nextWatcherIDLocked()
	sub := store.NewSubscription[model.ChatRoom](func() {
		s.mu.Lock()
		delete(s.roomWatchers[roomID], id)
		s.mu.Unlock()
	})
	if s.roomWatchers[roomID] == nil {
		s.roomWatchers[roomID] = make(map[uint64]*store.Subscription[model.ChatRoom])
	}
	s.roomWatchers[roomID][id] = sub
	sub.Publish(*room)

	closeOnDone(ctx, sub)
	return sub, nil
}

// SubscribeRooms streams every room, most recently updated first.
func (s *Store) SubscribeRooms(ctx context.Context) (*store.Subscription[[]model.ChatRoom], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatcherIDLocked()
	sub := store.NewSubscription[[]model.ChatRoom](func() {
		s.mu.Lock()
		delete(s.listWatchers, id)
		s.mu.Unlock()
	})
	s.listWatchers[id] = sub
	sub.Publish(s.roomListLocked())

	closeOnDone(ctx, sub)
	return sub, nil
}

// SubscribeMessages streams a room's messages in creation order.
func (s *Store) SubscribeMessages(ctx context.Context, roomID string) (*store.Subscription[[]model.ChatMessage], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, store.ErrNotFound
	}

	id := s.nextWatcherIDLocked()
	sub := store.NewSubscription[[]model.ChatMessage](func() {
		s.mu.Lock()
		delete(s.msgWatchers[roomID], id)
		s.mu.Unlock()
	})
	if s.msgWatchers[roomID] == nil {
		s.msgWatchers[roomID] = make(map[uint64]*store.Subscription[[]model.ChatMessage])
	}
	s.msgWatchers[roomID][id] = sub
	sub.Publish(s.messageListLocked(roomID))

	closeOnDone(ctx, sub)
	return sub, nil
}

// SubscribeQuickReplies streams every template ordered by sort order.
func (s *Store) SubscribeQuickReplies(ctx context.Context) (*store.Subscription[[]model.QuickReply], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatcherIDLocked()
	sub := store.NewSubscription[[]model.QuickReply](func() {
		s.mu.Lock()
		delete(s.qrWatchers, id)
		s.mu.Unlock()
	})
	s.qrWatchers[id] = sub
	sub.Publish(s.quickReplyListLocked())

	closeOnDone(ctx, sub)
	return sub, nil
}

// ListQuickReplies returns every template ordered by sort order.
func (s *Store) ListQuickReplies(ctx context.Context) ([]model.QuickReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quickReplyListLocked(), nil
}

// GetQuickReply returns a template by ID.
func (s *Store) GetQuickReply(ctx context.Context, id string) (*model.QuickReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.quickReplies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *qr
	return &out, nil
}

// CreateQuickReply inserts a template.
func (s *Store) CreateQuickReply(ctx context.Context, req *model.QuickReplyRequest) (*model.QuickReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	qr := &model.QuickReply{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Category:  req.Category,
		Text:      req.Text,
		SortOrder: req.SortOrder,
	}
	s.quickReplies[qr.ID] = qr
	s.notifyQuickRepliesLocked()

	out := *qr
	return &out, nil
}

// UpdateQuickReply replaces a template's fields.
func (s *Store) UpdateQuickReply(ctx context.Context, id string, req *model.QuickReplyRequest) (*model.QuickReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.quickReplies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	qr.Category = req.Category
	qr.Text = req.Text
	qr.SortOrder = req.SortOrder
	s.notifyQuickRepliesLocked()

	out := *qr
	return &out, nil
}

// DeleteQuickReply removes a template.
func (s *Store) DeleteQuickReply(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quickReplies[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.quickReplies, id)
	s.notifyQuickRepliesLocked()
	return nil
}

// stampLocked returns a server timestamp strictly after the room's previous one.
func (s *Store) stampLocked(roomID string) time.Time {
	now := s.clock.Now()
	if last, ok := s.lastStamp[roomID]; ok && !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	s.lastStamp[roomID] = now
	return now
}

func (s *Store) messageLocked(roomID, messageID string) (*model.ChatMessage, error) {
	for _, msg := range s.messages[roomID] {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) nextWatcherIDLocked() uint64 {
	s.nextWatcher++
	return s.nextWatcher
}

func (s *Store) roomListLocked() []model.ChatRoom {
	rooms := make([]model.ChatRoom, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, *room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt) {
			return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}

func (s *Store) messageListLocked(roomID string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(s.messages[roomID]))
	for _, msg := range s.messages[roomID] {
		msgs = append(msgs, *msg)
	}
	model.SortMessages(msgs)
	return msgs
}

func (s *Store) quickReplyListLocked() []model.QuickReply {
	list := make([]model.QuickReply, 0, len(s.quickReplies))
	for _, qr := range s.quickReplies {
		list = append(list, *qr)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].SortOrder != list[j].SortOrder {
			return list[i].SortOrder < list[j].SortOrder
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (s *Store) notifyRoomLocked(roomID string) {
	if room, ok := s.rooms[roomID]; ok {
		for _, sub := range s.roomWatchers[roomID] {
			sub.Publish(*room)
		}
	}
	for _, sub := range s.listWatchers {
		sub.Publish(s.roomListLocked())
	}
}

func (s *Store) notifyMessagesLocked(roomID string) {
	for _, sub := range s.msgWatchers[roomID] {
		sub.Publish(s.messageListLocked(roomID))
	}
}

func (s *Store) notifyQuickRepliesLocked() {
	for _, sub := range s.qrWatchers {
		sub.Publish(s.quickReplyListLocked())
	}
}

// closeOnDone ends sub when ctx is cancelled.
func closeOnDone[T any](ctx context.Context, sub *store.Subscription[T]) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
}
