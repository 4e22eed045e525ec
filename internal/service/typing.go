package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raulk/clock"
	"go.uber.org/zap"

	"github.com/capitalize-ai/recruit-chat/internal/debounce"
	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
	"github.com/capitalize-ai/recruit-chat/pkg/metrics"
)

// TypingState is the local composing state of one party in one room.
type TypingState int

const (
	TypingIdle TypingState = iota
	TypingActive
)

func (s TypingState) String() string {
	if s == TypingActive {
		return "typing"
	}
	return "idle"
}

// TypingPublisher mirrors local composing activity into the room's typing
// flag. The flag is written once when typing starts and once when it
// stops, never once per keystroke. Typing stops on send, or after the
// quiet interval passes without a keystroke.
type TypingPublisher struct {
	roomID  string
	role    model.Role
	rooms   store.RoomStore
	journal Journal
	timeout time.Duration
	logger  *logger.Logger

	debouncer *debounce.Debouncer
	onIdle    func()

	// mu is held across each transition and its write, so flag writes
	// reach the store in transition order.
	mu     sync.Mutex
	state  TypingState
	closed bool
}

// NewTypingPublisher creates an idle publisher for role in roomID.
func NewTypingPublisher(roomID string, role model.Role, rooms store.RoomStore, journal Journal, c clock.Clock, idle, timeout time.Duration, log *logger.Logger) *TypingPublisher {
	if journal == nil {
		journal = NopJournal{}
	}
	p := &TypingPublisher{
		roomID:  roomID,
		role:    role,
		rooms:   rooms,
		journal: journal,
		timeout: timeout,
		logger:  log,
	}
	p.debouncer = debounce.New(c, idle, p.quiet)
	return p
}

// State returns the current state.
func (p *TypingPublisher) State() TypingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Keystroke reports that the input now holds text. A non-empty input
// moves an idle publisher to typing immediately; every keystroke restarts
// the quiet interval.
func (p *TypingPublisher) Keystroke(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		if p.state == TypingActive {
			p.debouncer.Trigger()
		}
		return nil
	}

	p.debouncer.Trigger()
	if p.state == TypingActive {
		return nil
	}
	return p.transitionLocked(ctx, TypingActive)
}

// SelectQuickReply reports that a template was put into the input. The
// publisher moves to typing without a quiet interval, so the flag stays
// up until the text is edited or sent.
func (p *TypingPublisher) SelectQuickReply(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.debouncer.Cancel()
	if p.state == TypingActive {
		return nil
	}
	return p.transitionLocked(ctx, TypingActive)
}

// ForceIdle drops any pending timer and moves to idle. It is called after
// a successful send.
func (p *TypingPublisher) ForceIdle(ctx context.Context) error {
	p.mu.Lock()
	err := p.forceIdleLocked(ctx)
	p.mu.Unlock()

	p.idle()
	return err
}

// Close forces idle and ignores every later call.
func (p *TypingPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	err := p.forceIdleLocked(ctx)
	p.closed = true
	p.mu.Unlock()
	return err
}

func (p *TypingPublisher) forceIdleLocked(ctx context.Context) error {
	p.debouncer.Cancel()
	if p.state == TypingIdle {
		return nil
	}
	return p.transitionLocked(ctx, TypingIdle)
}

// quiet runs on the debouncer's timer once the input has gone quiet.
func (p *TypingPublisher) quiet() {
	ctx := context.Background()

	p.mu.Lock()
	var err error
	if !p.closed && p.state == TypingActive {
		err = p.transitionLocked(ctx, TypingIdle)
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("failed to clear typing flag",
			zap.String("room_id", p.roomID),
			zap.String("role", string(p.role)),
			zap.Error(err),
		)
	}
	p.idle()
}

func (p *TypingPublisher) idle() {
	if p.onIdle != nil && p.State() == TypingIdle {
		p.onIdle()
	}
}

// transitionLocked writes the flag for next. The local state only moves
// to typing when the write succeeds; moving to idle always happens so a
// failed clear is not retried by later keystrokes.
func (p *TypingPublisher) transitionLocked(ctx context.Context, next TypingState) error {
	typing := next == TypingActive
	if !typing {
		p.state = TypingIdle
	}

	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.rooms.SetTyping(wctx, p.roomID, p.role, typing); err != nil {
		metrics.WriteFailuresTotal.WithLabelValues("set_typing").Inc()
		return fmt.Errorf("failed to update typing flag: %w", err)
	}

	p.state = next
	metrics.RecordTypingWrite(string(p.role), typing)
	recordEvent(wctx, p.journal, p.logger, p.roomID, model.EventTypingChanged, p.role, nil, map[string]any{
		"typing": typing,
	})
	return nil
}
