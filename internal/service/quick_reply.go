package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
)

// ListQuickReplies returns every template ordered by sort order.
func (s *ChatService) ListQuickReplies(ctx context.Context) ([]model.QuickReply, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.ListQuickReplies(ctx)
}

// CreateQuickReply adds a template.
func (s *ChatService) CreateQuickReply(ctx context.Context, req *model.QuickReplyRequest) (*model.QuickReply, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.CreateQuickReply(ctx, req)
}

// UpdateQuickReply replaces a template.
func (s *ChatService) UpdateQuickReply(ctx context.Context, id string, req *model.QuickReplyRequest) (*model.QuickReply, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.UpdateQuickReply(ctx, id, req)
}

// DeleteQuickReply removes a template.
func (s *ChatService) DeleteQuickReply(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.DeleteQuickReply(ctx, id)
}

// SelectQuickReply puts a template into the operator's input for roomID
// and raises the admin typing flag so the operator reviews it before
// sending.
func (s *ChatService) SelectQuickReply(ctx context.Context, roomID, quickReplyID string) (*model.SelectionResponse, error) {
	qctx, cancel := s.withTimeout(ctx)
	qr, err := s.store.GetQuickReply(qctx, quickReplyID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to load quick reply: %w", err)
	}
	return s.applySelection(ctx, roomID, qr.Text)
}

func (s *ChatService) applySelection(ctx context.Context, roomID, text string) (*model.SelectionResponse, error) {
	resp := &model.SelectionResponse{Text: text}
	err := s.presence.Use(roomID, model.RoleAdmin, func(p *TypingPublisher) error {
		err := p.SelectQuickReply(ctx)
		resp.Typing = p.State() == TypingActive
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		s.logWriteFailure("set_typing", roomID, model.RoleAdmin, err)
		return resp, err
	}
	return resp, nil
}
