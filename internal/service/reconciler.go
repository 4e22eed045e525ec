package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
	"github.com/capitalize-ai/recruit-chat/pkg/metrics"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	// Attempted is the number of read-flag writes issued.
	Attempted int
	Succeeded int
	Failed    int

	// MarkedIDs lists the messages whose flag was set in this pass.
	MarkedIDs []string

	// CounterReset reports whether the viewer's unread counter was zeroed.
	CounterReset bool

	// Err combines every per-item failure, or is nil.
	Err error
}

// Empty reports whether the pass issued no writes at all.
func (r *ReconcileResult) Empty() bool {
	return r.Attempted == 0 && !r.CounterReset && r.Err == nil
}

// ReconcilerOptions tunes a Reconciler.
type ReconcilerOptions struct {
	Timeout     time.Duration
	Concurrency int

	// ResetUnread zeroes the viewer's unread counter after every pass that
	// found unread messages. The user page does this; the operator page
	// resets once when the room is opened instead.
	ResetUnread bool
}

// Reconciler brings the counterpart's messages into the viewer's read
// state. It only ever touches the flag owned by its viewer, and only
// ever sets it to true.
type Reconciler struct {
	viewer   model.Role
	messages store.MessageStore
	rooms    store.RoomStore
	journal  Journal
	opts     ReconcilerOptions
	logger   *logger.Logger

	mu sync.Mutex
	// issued holds message IDs whose write is in flight or succeeded.
	issued map[string]struct{}
}

// NewReconciler creates a reconciler for viewer.
func NewReconciler(viewer model.Role, messages store.MessageStore, rooms store.RoomStore, journal Journal, opts ReconcilerOptions, log *logger.Logger) *Reconciler {
	if journal == nil {
		journal = NopJournal{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Reconciler{
		viewer:   viewer,
		messages: messages,
		rooms:    rooms,
		journal:  journal,
		opts:     opts,
		logger:   log,
		issued:   make(map[string]struct{}),
	}
}

// Viewer returns the role the reconciler acts for.
func (r *Reconciler) Viewer() model.Role {
	return r.viewer
}

// Unread returns the counterpart messages the viewer has not read yet.
// Soft-deleted and uncommitted messages are never reconciled.
func (r *Reconciler) Unread(msgs []model.ChatMessage) []model.ChatMessage {
	var out []model.ChatMessage
	for i := range msgs {
		msg := &msgs[i]
		if msg.Sender == r.viewer || msg.ReadBy(r.viewer) || msg.IsDeleted || msg.Pending() {
			continue
		}
		out = append(out, *msg)
	}
	return out
}

// Reconcile marks every unread counterpart message in msgs as read by the
// viewer. Writes are issued concurrently and independently; a failed write
// is logged and does not stop the others. Messages already handled by an
// earlier pass are skipped, so running twice over the same list writes
// nothing the second time. A failed message becomes eligible again on the
// next pass that still shows it unread.
func (r *Reconciler) Reconcile(ctx context.Context, roomID string, msgs []model.ChatMessage) *ReconcileResult {
	result := &ReconcileResult{}
	targets := r.claim(r.Unread(msgs))
	if len(targets) == 0 {
		return result
	}

	ctx, span := tracer.Start(ctx, "Reconciler.Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("room_id", roomID),
		attribute.String("viewer", string(r.viewer)),
		attribute.Int("targets", len(targets)),
	)

	start := time.Now()
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)

	for _, id := range targets {
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()
			err := r.messages.MarkRead(wctx, roomID, id, r.viewer)

			mu.Lock()
			defer mu.Unlock()
			result.Attempted++
			if err != nil {
				result.Failed++
				result.Err = multierr.Append(result.Err, err)
				r.release(id)
				r.logger.Warn("failed to mark message read",
					zap.String("room_id", roomID),
					zap.String("message_id", id),
					zap.String("role", string(r.viewer)),
					zap.Error(err),
				)
				return nil
			}
			result.Succeeded++
			result.MarkedIDs = append(result.MarkedIDs, id)
			return nil
		})
	}
	_ = g.Wait()

	if r.opts.ResetUnread {
		rctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		err := r.rooms.ResetUnread(rctx, roomID, r.viewer)
		cancel()
		if err != nil {
			result.Err = multierr.Append(result.Err, err)
			r.logger.Warn("failed to reset unread counter",
				zap.String("room_id", roomID),
				zap.String("role", string(r.viewer)),
				zap.Error(err),
			)
		} else {
			result.CounterReset = true
		}
	}

	metrics.RecordReconcile(string(r.viewer), result.Succeeded, result.Failed, time.Since(start).Seconds())
	if result.Succeeded > 0 {
		recordEvent(ctx, r.journal, r.logger, roomID, model.EventMessagesRead, r.viewer, result.MarkedIDs, nil)
	}
	if result.CounterReset {
		recordEvent(ctx, r.journal, r.logger, roomID, model.EventUnreadReset, r.viewer, nil, nil)
	}
	return result
}

// claim records targets as issued and returns the IDs not issued before.
func (r *Reconciler) claim(unread []model.ChatMessage) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, msg := range unread {
		if _, ok := r.issued[msg.ID]; ok {
			continue
		}
		r.issued[msg.ID] = struct{}{}
		ids = append(ids, msg.ID)
	}
	return ids
}

func (r *Reconciler) release(id string) {
	r.mu.Lock()
	delete(r.issued, id)
	r.mu.Unlock()
}
