package model

import (
	"sort"
	"strings"
	"time"
)

// DeletedPlaceholder replaces the content of a soft-deleted message.
const DeletedPlaceholder = "（削除しました）"

// ErrEmptyDraft is returned for a draft carrying neither text nor image.
var ErrEmptyDraft = invalid("message needs text or an image")

// ChatMessage is one item sent into a room.
type ChatMessage struct {
	ID       string  `json:"id"`
	RoomID   string  `json:"roomId"`
	Sender   Role    `json:"from"`
	Text     *string `json:"text"`
	ImageURL *string `json:"imageUrl"`

	// CreatedAt is assigned by the store; nil while the write is pending.
	CreatedAt *time.Time `json:"createdAt"`

	IsDeleted   bool `json:"isDeleted"`
	ReadByAdmin bool `json:"readByAdmin"`
	ReadByUser  bool `json:"readByUser"`

	// IsEdited is persisted but nothing sets it yet.
	IsEdited bool `json:"isEdited"`
}

// ReadBy returns the read flag owned by viewer.
func (m *ChatMessage) ReadBy(viewer Role) bool {
	if viewer == RoleAdmin {
		return m.ReadByAdmin
	}
	return m.ReadByUser
}

// Pending reports whether the server has not committed a timestamp yet.
func (m *ChatMessage) Pending() bool {
	return m.CreatedAt == nil
}

// DisplayText is the text a page renders for the message.
func (m *ChatMessage) DisplayText() string {
	if m.IsDeleted {
		return DeletedPlaceholder
	}
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// MessageDraft is a message about to be appended to a room.
type MessageDraft struct {
	Sender   Role    `json:"-"`
	Text     *string `json:"text,omitempty"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

// Validate trims the draft and checks that it carries content.
func (d *MessageDraft) Validate() error {
	if !d.Sender.Valid() {
		return invalid("message sender must be user or admin")
	}
	if d.Text != nil {
		t := strings.TrimSpace(*d.Text)
		if t == "" {
			d.Text = nil
		} else {
			d.Text = &t
		}
	}
	if d.ImageURL != nil && strings.TrimSpace(*d.ImageURL) == "" {
		d.ImageURL = nil
	}
	if d.Text == nil && d.ImageURL == nil {
		return ErrEmptyDraft
	}
	return nil
}

// Summary is the text stored as the room's last message.
func (d *MessageDraft) Summary() string {
	if d.Text != nil {
		return *d.Text
	}
	if d.ImageURL != nil {
		return "画像を送信しました"
	}
	return ""
}

// NewMessage builds the message a draft turns into. The sender's own read
// flag starts true; the counterpart's starts false.
func (d *MessageDraft) NewMessage(id, roomID string, createdAt *time.Time) *ChatMessage {
	return &ChatMessage{
		ID:          id,
		RoomID:      roomID,
		Sender:      d.Sender,
		Text:        d.Text,
		ImageURL:    d.ImageURL,
		CreatedAt:   createdAt,
		ReadByAdmin: d.Sender == RoleAdmin,
		ReadByUser:  d.Sender == RoleUser,
	}
}

// SortMessages orders messages by creation time ascending. Pending messages
// keep their relative order after every committed one.
func SortMessages(msgs []ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].CreatedAt, msgs[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}

// MessageFilter selects messages for counting. Nil fields match anything.
type MessageFilter struct {
	Sender      *Role `json:"sender,omitempty"`
	ReadByAdmin *bool `json:"readByAdmin,omitempty"`
	ReadByUser  *bool `json:"readByUser,omitempty"`
	Deleted     *bool `json:"deleted,omitempty"`
}

// Match reports whether msg satisfies the filter.
func (f MessageFilter) Match(msg *ChatMessage) bool {
	if f.Sender != nil && msg.Sender != *f.Sender {
		return false
	}
	if f.ReadByAdmin != nil && msg.ReadByAdmin != *f.ReadByAdmin {
		return false
	}
	if f.ReadByUser != nil && msg.ReadByUser != *f.ReadByUser {
		return false
	}
	if f.Deleted != nil && msg.IsDeleted != *f.Deleted {
		return false
	}
	return true
}

// SendMessageRequest is the body of a send request.
type SendMessageRequest struct {
	Text     *string `json:"text,omitempty"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

// SendMessageResponse is returned after a send attempt. Draft echoes the
// input back on failure so the page can keep it for a retry.
type SendMessageResponse struct {
	Message *ChatMessage        `json:"message,omitempty"`
	Draft   *SendMessageRequest `json:"draft,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// TypingRequest carries the current contents of the input box.
type TypingRequest struct {
	Text string `json:"text"`
}

// MessageCounts is the dashboard view of a room's messages.
type MessageCounts struct {
	Total           int `json:"total"`
	UnreadFromUser  int `json:"unreadFromUser"`
	UnreadFromAdmin int `json:"unreadFromAdmin"`
	Deleted         int `json:"deleted"`
}

// HeartbeatEvent keeps an idle stream open.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent is pushed to a stream when a subscription fails.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
