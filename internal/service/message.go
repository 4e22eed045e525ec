package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/metrics"
)

// Send appends a message from role to the room. The message, the room
// summary and the counterpart's unread counter are written as one store
// operation. On success the sender's typing flag is forced idle; on
// failure the draft is left untouched for the caller to resubmit.
func (s *ChatService) Send(ctx context.Context, roomID string, draft *model.MessageDraft) (*model.ChatMessage, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ChatService.Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("room_id", roomID),
		attribute.String("role", string(draft.Sender)),
	)

	wctx, cancel := s.withTimeout(ctx)
	msg, err := s.store.AppendMessage(wctx, roomID, draft)
	cancel()
	if err != nil {
		span.RecordError(err)
		metrics.WriteFailuresTotal.WithLabelValues("append_message").Inc()
		s.logWriteFailure("append_message", roomID, draft.Sender, err)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	kind := "text"
	if msg.ImageURL != nil {
		kind = "image"
	}
	metrics.MessagesTotal.WithLabelValues(string(draft.Sender), kind).Inc()

	err = s.presence.Use(roomID, draft.Sender, func(p *TypingPublisher) error {
		return p.ForceIdle(ctx)
	})
	if err != nil {
		s.logWriteFailure("set_typing", roomID, draft.Sender, err)
	}

	recordEvent(ctx, s.journal, s.logger, roomID, model.EventMessageAppended, draft.Sender, []string{msg.ID}, map[string]any{
		"kind": kind,
	})
	return msg, nil
}

// Delete soft-deletes a message. Only its sender may delete it.
func (s *ChatService) Delete(ctx context.Context, roomID, messageID string, sender model.Role) error {
	wctx, cancel := s.withTimeout(ctx)
	err := s.store.SoftDelete(wctx, roomID, messageID, sender)
	cancel()
	if err != nil {
		if !errors.Is(err, store.ErrForbidden) && !errors.Is(err, store.ErrNotFound) {
			metrics.WriteFailuresTotal.WithLabelValues("soft_delete").Inc()
			s.logWriteFailure("soft_delete", roomID, sender, err)
		}
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.logger.Info("message deleted",
		zap.String("room_id", roomID),
		zap.String("message_id", messageID),
		zap.String("role", string(sender)),
	)
	recordEvent(ctx, s.journal, s.logger, roomID, model.EventMessageDeleted, sender, []string{messageID}, nil)
	return nil
}

// Keystroke forwards the input contents to role's typing publisher.
func (s *ChatService) Keystroke(ctx context.Context, roomID string, role model.Role, text string) error {
	err := s.presence.Use(roomID, role, func(p *TypingPublisher) error {
		return p.Keystroke(ctx, text)
	})
	if err != nil {
		s.logWriteFailure("set_typing", roomID, role, err)
		return err
	}
	return nil
}

// Counts returns the dashboard message counts of a room.
func (s *ChatService) Counts(ctx context.Context, roomID string) (*model.MessageCounts, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, admin := model.RoleUser, model.RoleAdmin
	no, yes := false, true

	var counts model.MessageCounts
	var err error
	if counts.Total, err = s.store.CountMessages(ctx, roomID, model.MessageFilter{}); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if counts.UnreadFromUser, err = s.store.CountMessages(ctx, roomID, model.MessageFilter{Sender: &user, ReadByAdmin: &no, Deleted: &no}); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if counts.UnreadFromAdmin, err = s.store.CountMessages(ctx, roomID, model.MessageFilter{Sender: &admin, ReadByUser: &no, Deleted: &no}); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if counts.Deleted, err = s.store.CountMessages(ctx, roomID, model.MessageFilter{Deleted: &yes}); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	return &counts, nil
}

// GetRoom returns a room by ID.
func (s *ChatService) GetRoom(ctx context.Context, roomID string) (*model.ChatRoom, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.GetRoom(ctx, roomID)
}
