// Package service implements the chat session synchronizer: room
// resolution, live message streams, read/unread reconciliation and typing
// presence, composed into per-viewer sessions.
package service

import (
	"context"
	"time"

	"github.com/raulk/clock"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
	"github.com/capitalize-ai/recruit-chat/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/capitalize-ai/recruit-chat/internal/service")

// Options tunes the synchronizer.
type Options struct {
	// StoreTimeout bounds every remote read and write.
	StoreTimeout time.Duration

	// TypingIdleUser and TypingIdleAdmin are the quiet periods after which
	// a typing flag falls back to idle.
	TypingIdleUser  time.Duration
	TypingIdleAdmin time.Duration

	// ReconcileConcurrency caps in-flight read-flag writes per pass.
	ReconcileConcurrency int

	Clock clock.Clock
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		StoreTimeout:         10 * time.Second,
		TypingIdleUser:       2 * time.Second,
		TypingIdleAdmin:      1200 * time.Millisecond,
		ReconcileConcurrency: 8,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.TypingIdleUser <= 0 {
		o.TypingIdleUser = d.TypingIdleUser
	}
	if o.TypingIdleAdmin <= 0 {
		o.TypingIdleAdmin = d.TypingIdleAdmin
	}
	if o.ReconcileConcurrency <= 0 {
		o.ReconcileConcurrency = d.ReconcileConcurrency
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// TypingIdle returns the quiet period for role.
func (o Options) TypingIdle(role model.Role) time.Duration {
	if role == model.RoleAdmin {
		return o.TypingIdleAdmin
	}
	return o.TypingIdleUser
}

// ChatService is the entry point the HTTP layer talks to. It owns the
// resolver, the typing presence registry and the write paths shared by
// user and admin sessions.
type ChatService struct {
	store    store.Store
	journal  Journal
	drafter  *ReplyDrafter
	resolver *RoomResolver
	presence *PresenceRegistry
	opts     Options
	logger   *logger.Logger
}

// NewChatService creates a chat service over st. A nil journal disables
// event recording.
func NewChatService(st store.Store, journal Journal, opts Options, log *logger.Logger) *ChatService {
	if journal == nil {
		journal = NopJournal{}
	}
	opts = opts.withDefaults()
	s := &ChatService{
		store:   st,
		journal: journal,
		opts:    opts,
		logger:  log,
	}
	s.resolver = NewRoomResolver(st, journal, opts.StoreTimeout, log)
	s.presence = NewPresenceRegistry(st, journal, opts, log)
	return s
}

// SetDrafter enables operator reply drafting.
func (s *ChatService) SetDrafter(d *ReplyDrafter) {
	s.drafter = d
}

// DraftingEnabled reports whether a drafter is configured.
func (s *ChatService) DraftingEnabled() bool {
	return s.drafter != nil
}

// Presence returns the typing presence registry.
func (s *ChatService) Presence() *PresenceRegistry {
	return s.presence
}

// Resolver returns the room resolver.
func (s *ChatService) Resolver() *RoomResolver {
	return s.resolver
}

// Ping checks the store.
func (s *ChatService) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Ping(ctx)
}

// Close forces every typing flag idle.
func (s *ChatService) Close(ctx context.Context) {
	s.presence.CloseAll(ctx)
}

func (s *ChatService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *ChatService) newReconciler(viewer model.Role) *Reconciler {
	return NewReconciler(viewer, s.store, s.store, s.journal, ReconcilerOptions{
		Timeout:     s.opts.StoreTimeout,
		Concurrency: s.opts.ReconcileConcurrency,
		ResetUnread: viewer == model.RoleUser,
	}, s.logger)
}

func (s *ChatService) logWriteFailure(op, roomID string, role model.Role, err error) {
	s.logger.Warn("chat write failed",
		zap.String("operation", op),
		zap.String("room_id", roomID),
		zap.String("role", string(role)),
		zap.Error(err),
	)
}
