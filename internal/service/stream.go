package service

import (
	"context"
	"fmt"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/metrics"
)

// SubscribeMessages returns a live view of a room's messages ordered by
// creation time. Every update is a complete replacement of the list. The
// caller must Close the subscription when it stops displaying the room.
func (s *ChatService) SubscribeMessages(ctx context.Context, roomID string) (*store.Subscription[[]model.ChatMessage], error) {
	inner, err := s.store.SubscribeMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to messages: %w", err)
	}
	return relay(inner, "messages", orderMessages), nil
}

// SubscribeRoom returns a live view of one room document.
func (s *ChatService) SubscribeRoom(ctx context.Context, roomID string) (*store.Subscription[model.ChatRoom], error) {
	inner, err := s.store.SubscribeRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room: %w", err)
	}
	return relay(inner, "room", identity[model.ChatRoom]), nil
}

// SubscribeInbox returns the live operator chat list with unread totals.
func (s *ChatService) SubscribeInbox(ctx context.Context) (*store.Subscription[model.Inbox], error) {
	inner, err := s.store.SubscribeRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to rooms: %w", err)
	}
	return relay(inner, "inbox", func(rooms []model.ChatRoom) model.Inbox {
		return *model.NewInbox(rooms)
	}), nil
}

// SubscribeQuickReplies returns the live template list.
func (s *ChatService) SubscribeQuickReplies(ctx context.Context) (*store.Subscription[[]model.QuickReply], error) {
	inner, err := s.store.SubscribeQuickReplies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to quick replies: %w", err)
	}
	return relay(inner, "quick_replies", identity[[]model.QuickReply]), nil
}

func orderMessages(msgs []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, len(msgs))
	copy(out, msgs)
	model.SortMessages(out)
	return out
}

func identity[T any](v T) T { return v }

// relay forwards snapshots from inner through transform, tracking the
// subscription in metrics. Closing the result closes inner.
func relay[In, Out any](inner *store.Subscription[In], kind string, transform func(In) Out) *store.Subscription[Out] {
	untrack := metrics.TrackSubscription(kind)
	outer := store.NewSubscription[Out](func() {
		inner.Close()
		untrack()
	})
	go func() {
		for v := range inner.Updates() {
			if !outer.Publish(transform(v)) {
				return
			}
		}
		if err := inner.Err(); err != nil {
			outer.Fail(err)
			return
		}
		outer.Close()
	}()
	return outer
}
