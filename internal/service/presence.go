package service

import (
	"context"
	"sync"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/store"
	"github.com/capitalize-ai/recruit-chat/pkg/logger"
)

type presenceKey struct {
	roomID string
	role   model.Role
}

type presenceEntry struct {
	publisher *TypingPublisher
	refs      int
}

// PresenceRegistry holds one TypingPublisher per room and role, so every
// request and session acting for the same party shares one debounce
// timer. Entries are dropped once they are idle and no session holds them.
type PresenceRegistry struct {
	rooms   store.RoomStore
	journal Journal
	opts    Options
	logger  *logger.Logger

	mu      sync.Mutex
	entries map[presenceKey]*presenceEntry
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry(rooms store.RoomStore, journal Journal, opts Options, log *logger.Logger) *PresenceRegistry {
	return &PresenceRegistry{
		rooms:   rooms,
		journal: journal,
		opts:    opts.withDefaults(),
		logger:  log,
		entries: make(map[presenceKey]*presenceEntry),
	}
}

// Publisher returns the publisher for role in roomID, creating it if needed.
func (r *PresenceRegistry) Publisher(roomID string, role model.Role) *TypingPublisher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entryLocked(presenceKey{roomID, role}).publisher
}

// Use runs fn on the publisher for role in roomID. The publisher is pinned
// while fn runs, so its idle timer cannot drop it mid-call, and it is
// dropped afterwards if fn left it idle and nothing else holds it.
func (r *PresenceRegistry) Use(roomID string, role model.Role, fn func(*TypingPublisher) error) error {
	key := presenceKey{roomID, role}

	r.mu.Lock()
	e := r.entryLocked(key)
	e.refs++
	r.mu.Unlock()

	err := fn(e.publisher)

	r.mu.Lock()
	e.refs--
	r.mu.Unlock()
	r.dropIfUnused(key, e.publisher)
	return err
}

// Acquire returns the publisher and pins it until Release.
func (r *PresenceRegistry) Acquire(roomID string, role model.Role) *TypingPublisher {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entryLocked(presenceKey{roomID, role})
	e.refs++
	return e.publisher
}

// Release unpins a publisher. The last release forces it idle.
func (r *PresenceRegistry) Release(ctx context.Context, roomID string, role model.Role) error {
	key := presenceKey{roomID, role}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	e.refs--
	last := e.refs <= 0
	if last {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !last {
		return nil
	}
	return e.publisher.Close(ctx)
}

// Len returns the number of live publishers.
func (r *PresenceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll forces every publisher idle and empties the registry.
func (r *PresenceRegistry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[presenceKey]*presenceEntry)
	r.mu.Unlock()

	for _, e := range entries {
		_ = e.publisher.Close(ctx)
	}
}

func (r *PresenceRegistry) entryLocked(key presenceKey) *presenceEntry {
	if e, ok := r.entries[key]; ok {
		return e
	}
	p := NewTypingPublisher(key.roomID, key.role, r.rooms, r.journal, r.opts.Clock, r.opts.TypingIdle(key.role), r.opts.StoreTimeout, r.logger)
	e := &presenceEntry{publisher: p}
	p.onIdle = func() { r.dropIfUnused(key, p) }
	r.entries[key] = e
	return e
}

// dropIfUnused removes an idle publisher no session holds. The registry
// lock is always taken before a publisher's lock.
func (r *PresenceRegistry) dropIfUnused(key presenceKey, p *TypingPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok && e.publisher == p && e.refs == 0 && p.State() == TypingIdle {
		delete(r.entries, key)
	}
}
