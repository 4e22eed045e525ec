package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

// Journal records synchronizer writes for audit and analytics.
type Journal interface {
	Record(ctx context.Context, event *model.RoomEvent) error
}

// EventReader pages through recorded events of a room.
type EventReader interface {
	Events(ctx context.Context, roomID string, afterSequence uint64, limit int) ([]model.RoomEvent, uint64, bool, error)
}

// EventPage is one page of a room's journal.
type EventPage struct {
	Events       []model.RoomEvent `json:"events"`
	LastSequence uint64            `json:"last_sequence"`
	HasMore      bool              `json:"has_more"`
}

// RoomEvents returns the journal of roomID after the given sequence. The
// page is empty when the journal cannot be read back.
func (s *ChatService) RoomEvents(ctx context.Context, roomID string, afterSequence uint64, limit int) (*EventPage, error) {
	page := &EventPage{Events: []model.RoomEvent{}, LastSequence: afterSequence}
	reader, ok := s.journal.(EventReader)
	if !ok {
		return page, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	events, last, more, err := reader.Events(ctx, roomID, afterSequence, limit)
	if err != nil {
		return nil, err
	}
	page.Events = append(page.Events, events...)
	page.LastSequence = last
	page.HasMore = more
	return page, nil
}

// NopJournal discards events.
type NopJournal struct{}

// Record implements Journal.
func (NopJournal) Record(context.Context, *model.RoomEvent) error { return nil }

// recordEvent stamps and records an event. Journal failures never fail
// the write that produced the event.
func recordEvent(ctx context.Context, j Journal, log *logger.Logger, roomID string, typ model.EventType, role model.Role, ids []string, meta map[string]any) {
	event := &model.RoomEvent{
		ID:         uuid.Must(uuid.NewV7()).String(),
		RoomID:     roomID,
		Type:       typ,
		Role:       role,
		MessageIDs: ids,
		Metadata:   meta,
		CreatedAt:  time.Now(),
	}
	if err := j.Record(ctx, event); err != nil {
		log.Warn("failed to record room event",
			zap.String("room_id", roomID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
	}
}
