package room

import (
	"context"
	"errors"
	"time"
)

// ErrRoomNotFound signals a normal absence, not a failure
var ErrRoomNotFound = errors.New("room not found")

// ErrNotHost is returned when an upsert presents a host id that does not
// match the one the room was created with
var ErrNotHost = errors.New("host id does not match room owner")

type Store interface {
	// UpsertRoom creates the room with default field values, or adopts the
	// existing document when the presented host id matches, populating the
	// passed room with the stored state. A mismatched host id returns
	// ErrNotHost and leaves the stored document untouched.
	UpsertRoom(ctx context.Context, room *Room, passwordHash string) error
	GetRoomByID(ctx context.Context, roomID string) (*Room, error)

	// UpdateRoom overwrites every mutable field from the caller-supplied
	// document. Last writer wins at document granularity.
	UpdateRoom(ctx context.Context, room *Room) error

	// AdjustParticipants applies a counter delta, floored at zero. Kept as
	// a single operation so the non-transactional join/leave bookkeeping has
	// one swap-in point for an atomic implementation.
	AdjustParticipants(ctx context.Context, roomID string, delta int) error

	AddParticipantLog(ctx context.Context, p *Participant) error
	DeactivateParticipantLog(ctx context.Context, roomID, userName string) error

	GetPasswordHash(ctx context.Context, roomID string) (string, error)
	ListRooms(ctx context.Context, limit int) ([]RoomSummary, error)

	// SweepStale deletes rooms whose queue is empty and whose last update is
	// older than the cutoff. Rooms with queued songs are always retained.
	SweepStale(ctx context.Context, olderThan time.Time) (int64, error)
}
