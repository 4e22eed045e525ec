package model

import (
	"time"
)

// EventType represents the kind of room event.
type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventMessageDeleted  EventType = "message_deleted"
	EventMessagesRead    EventType = "messages_read"
	EventUnreadReset     EventType = "unread_reset"
	EventTypingChanged   EventType = "typing_changed"
	EventRoomCreated     EventType = "room_created"
)

// RoomEvent records one synchronizer write against a room.
type RoomEvent struct {
	ID         string         `json:"id"`
	RoomID     string         `json:"room_id"`
	Type       EventType      `json:"type"`
	Role       Role           `json:"role"`
	MessageIDs []string       `json:"message_ids,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Sequence   uint64         `json:"sequence,omitempty"`
}
