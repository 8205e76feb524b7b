package feed

import (
	"sync/atomic"

	"github.com/rx3lixir/tunebox/internal/room"
)

// Subscription is one filtered view of the change feed. Close must be
// called exactly once per successful Subscribe, on teardown, to avoid
// leaking a live subscription per page visit.
type Subscription struct {
	id       uint64
	roomID   string
	onRoom   func(room.Room)
	onError  func(error)
	listener *Listener
	closed   atomic.Bool
}

// RoomID returns the id this subscription is filtered to
func (s *Subscription) RoomID() string {
	return s.roomID
}

// Connected reports whether pushes are currently flowing. Any state other
// than a live LISTEN connection collapses to false.
func (s *Subscription) Connected() bool {
	return !s.closed.Load() && s.listener.Connected()
}

// Close releases the subscription. Safe to call once; later calls are no-ops.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.listener.unregister <- s
	}
}
