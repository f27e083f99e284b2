package ws

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"zchat-signal/internal/protocol"
)

// Channel is one live session channel of an authenticated user.
type Channel interface {
	ID() string
	UserID() int64
	// Send enqueues f without blocking and reports whether it was accepted.
	Send(f protocol.Frame) bool
	Close()
}

type entry struct {
	ch       Channel
	lastSeen time.Time
}

// Registry maps each online user to their current channel. It is the only
// structure mutated by independent connection lifecycles. State is never
// persisted, so every user is offline after a restart until they reconnect.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]*entry
	logger  *slog.Logger
	now     func() time.Time
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[int64]*entry),
		logger:  logger.With("component", "registry"),
		now:     time.Now,
	}
}

// Register makes ch the user's current channel and returns the channel it
// superseded, if any. The superseded channel is left open.
func (r *Registry) Register(ch Channel) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prev Channel
	if e, ok := r.entries[ch.UserID()]; ok {
		prev = e.ch
	}
	r.entries[ch.UserID()] = &entry{ch: ch, lastSeen: r.now()}
	if prev != nil && prev.ID() != ch.ID() {
		r.logger.Info("channel superseded", "user_id", ch.UserID(), "old_channel", prev.ID(), "new_channel", ch.ID())
		return prev
	}
	return nil
}

// Lookup returns the user's current channel.
func (r *Registry) Lookup(userID int64) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// Remove drops the user's entry only if ch is still the current channel, and
// reports whether it did. A stale channel closing after a reconnect is a no-op.
func (r *Registry) Remove(ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ch.UserID()]
	if !ok || e.ch.ID() != ch.ID() {
		return false
	}
	delete(r.entries, ch.UserID())
	return true
}

// Touch records inbound traffic on ch.
func (r *Registry) Touch(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[ch.UserID()]; ok && e.ch.ID() == ch.ID() {
		e.lastSeen = r.now()
	}
}

// LastSeen returns when the user's current channel last carried traffic.
func (r *Registry) LastSeen(userID int64) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// Notify delivers f to the user's current channel. It returns false when the
// user is offline or the channel refused the frame.
func (r *Registry) Notify(userID int64, f protocol.Frame) bool {
	ch, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return ch.Send(f)
}

// Online returns the ids of every registered user in ascending order.
func (r *Registry) Online() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
