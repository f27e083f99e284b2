// Package client is the client side of a session channel: the channel
// itself, the single-slot call admission guard, and a call agent that
// drives both ends of the call protocol.
package client

import (
	"errors"
	"sync"

	"zchat-signal/internal/domain"
)

// ErrBusy is returned by Guard.Push while another call occupies the slot.
var ErrBusy = errors.New("a call is already in progress")

// Entry describes the call holding the guard.
type Entry struct {
	CallID    string
	PeerID    int64
	Kind      domain.CallKind
	Outgoing  bool
	Connected bool
}

// Guard admits at most one call at a time on a client.
type Guard struct {
	mu  sync.Mutex
	cur *Entry
}

// Push occupies the slot with e, or fails with ErrBusy.
func (g *Guard) Push(e Entry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur != nil {
		return ErrBusy
	}
	g.cur = &e
	return nil
}

// Reset frees the slot. It is safe to call on an empty guard.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.cur = nil
	g.mu.Unlock()
}

func (g *Guard) Current() (Entry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil {
		return Entry{}, false
	}
	return *g.cur, true
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil {
		return 0
	}
	return 1
}

// update replaces the entry of the call currently holding the slot.
func (g *Guard) update(callID string, fn func(*Entry)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil || g.cur.CallID != callID {
		return false
	}
	fn(g.cur)
	return true
}

// release frees the slot only if callID holds it.
func (g *Guard) release(callID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cur == nil || g.cur.CallID != callID {
		return false
	}
	g.cur = nil
	return true
}
