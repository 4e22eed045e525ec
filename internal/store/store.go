// Package store defines the repository contracts the chat synchronizer
// runs against. Rooms and messages are shared, multi-writer documents: the
// user page and the operator pages both write them, and every operation
// here is an independent single-purpose update.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/recruit-chat/internal/model"
)

var (
	// ErrNotFound is returned when a room, message or template does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a role writes a field it does not own.
	ErrForbidden = errors.New("operation not permitted for this role")

	// ErrRoomExists is returned by CreateRoom when the user already owns a room.
	ErrRoomExists = errors.New("room already exists for user")
)

// RoomStore manages room documents.
type RoomStore interface {
	// FindRoomByUser returns the room owned by userID, or ErrNotFound.
	FindRoomByUser(ctx context.Context, userID string) (*model.ChatRoom, error)

	// CreateRoom inserts a room with zeroed counters and an empty summary.
	CreateRoom(ctx context.Context, userID string) (*model.ChatRoom, error)

	GetRoom(ctx context.Context, roomID string) (*model.ChatRoom, error)

	// SubscribeRoom streams the room document after every change.
	SubscribeRoom(ctx context.Context, roomID string) (*Subscription[model.ChatRoom], error)

	// SubscribeRooms streams every room, most recently updated first.
	SubscribeRooms(ctx context.Context) (*Subscription[[]model.ChatRoom], error)

	// SetTyping sets the typing flag owned by role.
	SetTyping(ctx context.Context, roomID string, role model.Role, typing bool) error

	// ResetUnread zeroes the unread counter owned by viewer.
	ResetUnread(ctx context.Context, roomID string, viewer model.Role) error
}

// MessageStore manages the message collection of each room.
type MessageStore interface {
	// AppendMessage inserts the message, updates the room summary and
	// increments the counterpart's unread counter as one operation.
	AppendMessage(ctx context.Context, roomID string, draft *model.MessageDraft) (*model.ChatMessage, error)

	// SubscribeMessages streams the room's messages ordered by creation time.
	SubscribeMessages(ctx context.Context, roomID string) (*Subscription[[]model.ChatMessage], error)

	// MarkRead sets the read flag owned by viewer. It never clears a flag.
	MarkRead(ctx context.Context, roomID, messageID string, viewer model.Role) error

	// SoftDelete clears the message content. Only the sender may do so.
	SoftDelete(ctx context.Context, roomID, messageID string, sender model.Role) error

	CountMessages(ctx context.Context, roomID string, filter model.MessageFilter) (int, error)

	// RecentMessages returns up to limit of the newest messages, oldest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]model.ChatMessage, error)
}

// QuickReplyStore manages operator reply templates.
type QuickReplyStore interface {
	// SubscribeQuickReplies streams every template ordered by sort order.
	SubscribeQuickReplies(ctx context.Context) (*Subscription[[]model.QuickReply], error)
	ListQuickReplies(ctx context.Context) ([]model.QuickReply, error)
	GetQuickReply(ctx context.Context, id string) (*model.QuickReply, error)
	CreateQuickReply(ctx context.Context, req *model.QuickReplyRequest) (*model.QuickReply, error)
	UpdateQuickReply(ctx context.Context, id string, req *model.QuickReplyRequest) (*model.QuickReply, error)
	DeleteQuickReply(ctx context.Context, id string) error
}

// Store is a complete backend.
type Store interface {
	RoomStore
	MessageStore
	QuickReplyStore

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
