package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

// ErrRoomSetup is returned when a user's room cannot be found or created.
var ErrRoomSetup = errors.New("failed to prepare chat room")

// RoomResolver finds or lazily creates the single room of each user.
type RoomResolver struct {
	rooms   store.RoomStore
	journal Journal
	timeout time.Duration
	logger  *logger.Logger
}

// NewRoomResolver creates a resolver.
func NewRoomResolver(rooms store.RoomStore, journal Journal, timeout time.Duration, log *logger.Logger) *RoomResolver {
	if journal == nil {
		journal = NopJournal{}
	}
	return &RoomResolver{
		rooms:   rooms,
		journal: journal,
		timeout: timeout,
		logger:  log,
	}
}

// Resolve returns userID's room, creating an empty one on first visit.
// Lookup and create are separate calls; when a concurrent first visit wins
// the create, the store reports ErrRoomExists and the winner is re-read.
// Failures are not retried.
func (r *RoomResolver) Resolve(ctx context.Context, userID string) (*model.ChatRoom, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrRoomSetup)
	}

	ctx, span := tracer.Start(ctx, "RoomResolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	room, err := r.find(ctx, userID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrRoomSetup, err)
	}

	room, err = r.create(ctx, userID)
	if errors.Is(err, store.ErrRoomExists) {
		r.logger.Info("room created concurrently, using existing", zap.String("user_id", userID))
		room, err = r.find(ctx, userID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrRoomSetup, err)
	}
	return room, nil
}

func (r *RoomResolver) find(ctx context.Context, userID string) (*model.ChatRoom, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.rooms.FindRoomByUser(ctx, userID)
}

func (r *RoomResolver) create(ctx context.Context, userID string) (*model.ChatRoom, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	room, err := r.rooms.CreateRoom(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("chat room created",
		zap.String("room_id", room.ID),
		zap.String("user_id", userID),
	)
	recordEvent(ctx, r.journal, r.logger, room.ID, model.EventRoomCreated, model.RoleUser, nil, map[string]any{
		"user_id": userID,
	})
	return room, nil
}
