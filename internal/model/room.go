// Package model defines data structures for the chat synchronizer.
package model

import (
	"time"
)

// ChatRoom is the single persistent channel between one end-user and the operators.
type ChatRoom struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"userId"`
	LastMessage         string    `json:"lastMessage"`
	LastSender          Role      `json:"lastSender,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
	UnreadCountForAdmin int       `json:"unreadCountForAdmin"`
	UnreadCountForUser  int       `json:"unreadCountForUser"`
	UserTyping          bool      `json:"userTyping"`
	AdminTyping         bool      `json:"adminTyping"`
}

// UnreadFor returns the unread counter owned by viewer.
func (r *ChatRoom) UnreadFor(viewer Role) int {
	if viewer == RoleAdmin {
		return r.UnreadCountForAdmin
	}
	return r.UnreadCountForUser
}

// TypingFor returns the typing flag published by role.
func (r *ChatRoom) TypingFor(role Role) bool {
	if role == RoleAdmin {
		return r.AdminTyping
	}
	return r.UserTyping
}

// InboxEntry is one row of the operator chat list.
type InboxEntry struct {
	Room   ChatRoom `json:"room"`
	Unread int      `json:"unread"`
}

// Inbox is the operator view over every room, most recent first.
type Inbox struct {
	Rooms       []InboxEntry `json:"rooms"`
	TotalUnread int          `json:"totalUnread"`
}

// NewInbox builds an Inbox from rooms already ordered by recency.
func NewInbox(rooms []ChatRoom) *Inbox {
	inbox := &Inbox{Rooms: make([]InboxEntry, 0, len(rooms))}
	for _, room := range rooms {
		unread := room.UnreadCountForAdmin
		if unread < 0 {
			unread = 0
		}
		inbox.Rooms = append(inbox.Rooms, InboxEntry{Room: room, Unread: unread})
		inbox.TotalUnread += unread
	}
	return inbox
}
