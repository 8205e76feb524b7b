package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rx3lixir/tunebox/internal/room"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

// Role determines how a session attaches to a room
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Feed is the slice of the change feed a synchronizer needs. Satisfied by
// an adapter over feed.Listener.
type Feed interface {
	Subscribe(roomID string, onRoom func(room.Room), onError func(error)) Subscription
}

// Subscription is one open feed handle
type Subscription interface {
	Connected() bool
	Close()
}

// Options carries the per-session identity and callbacks
type Options struct {
	RoomID string
	Role   Role
	HostID uuid.UUID

	// OnRoom receives every pushed snapshot after it has been applied to
	// local state
	OnRoom func(room.Room)

	// OnError receives a human-readable message alongside the underlying
	// error. Store failures never propagate past the synchronizer through
	// any other path.
	OnError func(msg string, err error)
}

// Synchronizer bridges one session's intents to store writes and mirrors
// pushed snapshots back. It owns its own feed subscription and holds no
// process-wide state.
//
// All methods are expected to run on the session's event goroutine; the
// snapshot mutex only covers reads from other goroutines (status probes).
type Synchronizer struct {
	store room.Store
	feed  Feed
	log   *logger.Logger
	opts  Options

	mu      sync.Mutex
	current *room.Room

	loading atomic.Bool
	sub     Subscription
	closed  atomic.Bool
}

func New(store room.Store, feed Feed, log *logger.Logger, opts Options) *Synchronizer {
	s := &Synchronizer{
		store: store,
		feed:  feed,
		log:   log,
		opts:  opts,
	}
	s.loading.Store(true)
	return s
}

// Initialize performs the initial fetch-or-create and opens the feed
// subscription. The two steps are not atomic: a write landing between the
// fetch and the subscribe is only observed via the next push.
func (s *Synchronizer) Initialize(ctx context.Context) error {
	defer s.loading.Store(false)

	var (
		snapshot *room.Room
		err      error
	)

	switch s.opts.Role {
	case RoleHost:
		snapshot = &room.Room{ID: s.opts.RoomID, HostID: s.opts.HostID}
		if err = s.store.UpsertRoom(ctx, snapshot, ""); err != nil {
			if errors.Is(err, room.ErrNotHost) {
				s.reportError("this room belongs to another host", err)
			} else {
				s.reportError("failed to create the room", err)
			}
			return err
		}

	case RoleParticipant:
		snapshot, err = s.store.GetRoomByID(ctx, s.opts.RoomID)
		if err != nil {
			if errors.Is(err, room.ErrRoomNotFound) {
				s.reportError("room not found", err)
			} else {
				s.reportError("failed to load the room", err)
			}
			return err
		}

	default:
		err = fmt.Errorf("unknown role %q", s.opts.Role)
		s.reportError("failed to join the room", err)
		return err
	}

	s.setCurrent(*snapshot)

	s.sub = s.feed.Subscribe(s.opts.RoomID, s.handlePush, s.handleFeedError)

	s.log.Info("session initialized",
		"room_id", s.opts.RoomID,
		"role", s.opts.Role,
	)

	return nil
}

// UpdateRoom overwrites every mutable field of the stored document with the
// caller's value. Last writer wins in full; local state is not touched here,
// it converges via the push this write triggers.
func (s *Synchronizer) UpdateRoom(ctx context.Context, r *room.Room) error {
	r.ID = s.opts.RoomID

	if err := s.store.UpdateRoom(ctx, r); err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			s.reportError("room no longer exists", err)
		} else {
			s.reportError("failed to update the room", err)
		}
		return err
	}

	return nil
}

// AddParticipant logs the join and bumps the counter. The two writes are not
// transactional; overlapping joins can drift the counter.
func (s *Synchronizer) AddParticipant(ctx context.Context, name string) error {
	p := &room.Participant{RoomID: s.opts.RoomID, UserName: name}
	if err := s.store.AddParticipantLog(ctx, p); err != nil {
		s.reportError("failed to join the room", err)
		return err
	}

	if err := s.store.AdjustParticipants(ctx, s.opts.RoomID, 1); err != nil {
		s.reportError("failed to update the participant count", err)
		return err
	}

	return nil
}

// RemoveParticipant marks the membership inactive and drops the counter
func (s *Synchronizer) RemoveParticipant(ctx context.Context, name string) error {
	if err := s.store.DeactivateParticipantLog(ctx, s.opts.RoomID, name); err != nil {
		s.reportError("failed to leave the room", err)
		return err
	}

	if err := s.store.AdjustParticipants(ctx, s.opts.RoomID, -1); err != nil {
		s.reportError("failed to update the participant count", err)
		return err
	}

	return nil
}

// Room returns the last snapshot received from the initial fetch or a push,
// or nil before initialization completes
func (s *Synchronizer) Room() *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	snapshot := *s.current
	return &snapshot
}

// Connected mirrors the feed subscription status
func (s *Synchronizer) Connected() bool {
	return s.sub != nil && s.sub.Connected()
}

// Loading reports whether the initial fetch/subscribe sequence is still
// in flight
func (s *Synchronizer) Loading() bool {
	return s.loading.Load()
}

// Close releases the feed subscription. Safe to call more than once.
func (s *Synchronizer) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.sub != nil {
		s.sub.Close()
	}
}

func (s *Synchronizer) handlePush(r room.Room) {
	s.setCurrent(r)

	if s.opts.OnRoom != nil {
		s.opts.OnRoom(r)
	}
}

func (s *Synchronizer) handleFeedError(err error) {
	s.reportError("connection to the room was lost", err)
}

func (s *Synchronizer) setCurrent(r room.Room) {
	s.mu.Lock()
	s.current = &r
	s.mu.Unlock()
}

func (s *Synchronizer) reportError(msg string, err error) {
	s.log.Error(msg, "room_id", s.opts.RoomID, "error", err)

	if s.opts.OnError != nil {
		s.opts.OnError(msg, err)
	}
}
