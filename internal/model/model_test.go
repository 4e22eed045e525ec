package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestResolveSender(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		sender  string
		isAdmin *bool
		want    Role
	}{
		{name: "from wins", from: "admin", sender: "user", isAdmin: ptr(false), want: RoleAdmin},
		{name: "from is case insensitive", from: " Admin ", want: RoleAdmin},
		{name: "sender when from empty", sender: "admin", want: RoleAdmin},
		{name: "sender user beats isAdmin", sender: "user", isAdmin: ptr(true), want: RoleUser},
		{name: "isAdmin last", isAdmin: ptr(true), want: RoleAdmin},
		{name: "unknown from falls through", from: "bot", sender: "admin", want: RoleAdmin},
		{name: "nothing set", want: RoleUser},
		{name: "isAdmin false", isAdmin: ptr(false), want: RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSender(tt.from, tt.sender, tt.isAdmin))
		})
	}
}

func TestRole_Counterpart(t *testing.T) {
	assert.Equal(t, RoleAdmin, RoleUser.Counterpart())
	assert.Equal(t, RoleUser, RoleAdmin.Counterpart())
	assert.False(t, Role("bot").Valid())
}

func TestMessageDraft_Validate(t *testing.T) {
	t.Run("trims text", func(t *testing.T) {
		d := &MessageDraft{Sender: RoleUser, Text: ptr("  hello \n")}
		require.NoError(t, d.Validate())
		assert.Equal(t, "hello", *d.Text)
	})

	t.Run("blank text and no image is empty", func(t *testing.T) {
		d := &MessageDraft{Sender: RoleUser, Text: ptr("   ")}
		err := d.Validate()
		assert.ErrorIs(t, err, ErrEmptyDraft)
		assert.Nil(t, d.Text)
	})

	t.Run("image only", func(t *testing.T) {
		d := &MessageDraft{Sender: RoleAdmin, Text: ptr(""), ImageURL: ptr("https://cdn.example/a.png")}
		require.NoError(t, d.Validate())
		assert.Nil(t, d.Text)
		assert.Equal(t, "画像を送信しました", d.Summary())
	})

	t.Run("unknown sender", func(t *testing.T) {
		d := &MessageDraft{Sender: "bot", Text: ptr("hi")}
		var verr *ValidationError
		assert.True(t, errors.As(d.Validate(), &verr))
	})
}

func TestMessageDraft_NewMessage(t *testing.T) {
	now := time.Now()

	fromUser := (&MessageDraft{Sender: RoleUser, Text: ptr("hi")}).NewMessage("m1", "r1", &now)
	assert.True(t, fromUser.ReadByUser)
	assert.False(t, fromUser.ReadByAdmin)

	fromAdmin := (&MessageDraft{Sender: RoleAdmin, Text: ptr("hi")}).NewMessage("m2", "r1", &now)
	assert.True(t, fromAdmin.ReadByAdmin)
	assert.False(t, fromAdmin.ReadByUser)
	assert.False(t, fromAdmin.IsEdited)
}

func TestSortMessages(t *testing.T) {
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := base.Add(d); return &v }

	msgs := []ChatMessage{
		{ID: "c", CreatedAt: at(2 * time.Second)},
		{ID: "pending-1"},
		{ID: "a", CreatedAt: at(0)},
		{ID: "pending-2"},
		{ID: "b", CreatedAt: at(time.Second)},
	}
	SortMessages(msgs)

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"a", "b", "c", "pending-1", "pending-2"}, ids)
}

func TestChatMessage_DisplayText(t *testing.T) {
	assert.Equal(t, DeletedPlaceholder, (&ChatMessage{Text: ptr("secret"), IsDeleted: true}).DisplayText())
	assert.Equal(t, "", (&ChatMessage{ImageURL: ptr("https://cdn.example/a.png")}).DisplayText())
	assert.True(t, (&ChatMessage{}).Pending())
}

func TestMessageFilter_Match(t *testing.T) {
	msg := &ChatMessage{Sender: RoleUser, ReadByUser: true}

	assert.True(t, MessageFilter{}.Match(msg))
	assert.True(t, MessageFilter{Sender: ptr(RoleUser), ReadByAdmin: ptr(false)}.Match(msg))
	assert.False(t, MessageFilter{Sender: ptr(RoleAdmin)}.Match(msg))
	assert.False(t, MessageFilter{Deleted: ptr(true)}.Match(msg))
}

func TestNewInbox(t *testing.T) {
	inbox := NewInbox([]ChatRoom{
		{ID: "r1", UnreadCountForAdmin: 2},
		{ID: "r2", UnreadCountForAdmin: 0, UnreadCountForUser: 5},
		{ID: "r3", UnreadCountForAdmin: -1},
	})

	require.Len(t, inbox.Rooms, 3)
	assert.Equal(t, 2, inbox.TotalUnread)
	assert.Equal(t, 0, inbox.Rooms[2].Unread)
	assert.Equal(t, 2, inbox.Rooms[0].Room.UnreadFor(RoleAdmin))
	assert.Equal(t, 5, inbox.Rooms[1].Room.UnreadFor(RoleUser))

	assert.Empty(t, NewInbox(nil).Rooms)
}

func TestQuickReplyRequest_Validate(t *testing.T) {
	req := &QuickReplyRequest{Category: " 挨拶 ", Text: "  こんにちは  "}
	require.NoError(t, req.Validate())
	assert.Equal(t, "こんにちは", req.Text)
	assert.Equal(t, "挨拶", req.Category)

	assert.Error(t, (&QuickReplyRequest{Text: " "}).Validate())
	assert.Error(t, (&QuickReplyRequest{Text: strings.Repeat("あ", 2001)}).Validate())
	assert.Error(t, (&QuickReplyRequest{Text: "ok", Category: strings.Repeat("x", 65)}).Validate())
}
