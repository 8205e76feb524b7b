package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rx3lixir/tunebox/internal/room"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

// memStore is an in-memory Store with the same write semantics as the
// Postgres implementation: full-document overwrite, counter floored at zero,
// upsert that adopts instead of clobbering.
type memStore struct {
	rooms        map[string]room.Room
	participants []room.Participant
}

func newMemStore() *memStore {
	return &memStore{rooms: make(map[string]room.Room)}
}

func (m *memStore) UpsertRoom(ctx context.Context, r *room.Room, passwordHash string) error {
	existing, ok := m.rooms[r.ID]
	if ok {
		if existing.HostID != r.HostID {
			return room.ErrNotHost
		}
		existing.UpdatedAt = time.Now()
		m.rooms[r.ID] = existing
		*r = existing
		return nil
	}

	r.CurrentSong = nil
	r.IsPlaying = false
	r.Queue = []room.Song{}
	r.Participants = 1
	r.CurrentTime = 0
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.rooms[r.ID] = *r
	return nil
}

func (m *memStore) GetRoomByID(ctx context.Context, roomID string) (*room.Room, error) {
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, room.ErrRoomNotFound
	}
	return &r, nil
}

func (m *memStore) UpdateRoom(ctx context.Context, r *room.Room) error {
	stored, ok := m.rooms[r.ID]
	if !ok {
		return room.ErrRoomNotFound
	}
	stored.CurrentSong = r.CurrentSong
	stored.IsPlaying = r.IsPlaying
	stored.Queue = r.Queue
	if stored.Queue == nil {
		stored.Queue = []room.Song{}
	}
	stored.Participants = r.Participants
	stored.CurrentTime = r.CurrentTime
	stored.UpdatedAt = time.Now()
	m.rooms[r.ID] = stored
	return nil
}

func (m *memStore) AdjustParticipants(ctx context.Context, roomID string, delta int) error {
	r, ok := m.rooms[roomID]
	if !ok {
		return room.ErrRoomNotFound
	}
	r.Participants += delta
	if r.Participants < 0 {
		r.Participants = 0
	}
	m.rooms[roomID] = r
	return nil
}

func (m *memStore) AddParticipantLog(ctx context.Context, p *room.Participant) error {
	p.ID = int64(len(m.participants) + 1)
	p.JoinedAt = time.Now()
	p.IsActive = true
	m.participants = append(m.participants, *p)
	return nil
}

func (m *memStore) DeactivateParticipantLog(ctx context.Context, roomID, userName string) error {
	for i := range m.participants {
		if m.participants[i].RoomID == roomID && m.participants[i].UserName == userName {
			m.participants[i].IsActive = false
		}
	}
	return nil
}

func (m *memStore) GetPasswordHash(ctx context.Context, roomID string) (string, error) {
	if _, ok := m.rooms[roomID]; !ok {
		return "", room.ErrRoomNotFound
	}
	return "", nil
}

func (m *memStore) ListRooms(ctx context.Context, limit int) ([]room.RoomSummary, error) {
	return nil, nil
}

func (m *memStore) SweepStale(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	for id, r := range m.rooms {
		if len(r.Queue) == 0 && r.UpdatedAt.Before(olderThan) {
			delete(m.rooms, id)
			n++
		}
	}
	return n, nil
}

// memFeed replays the store's current document on subscribe, the way a real
// resubscribe observes the stored state rather than a stale cache
type memFeed struct {
	store *memStore
	subs  []*memSub
}

type memSub struct {
	roomID string
	onRoom func(room.Room)
	live   bool
}

func (f *memFeed) Subscribe(roomID string, onRoom func(room.Room), onError func(error)) Subscription {
	sub := &memSub{roomID: roomID, onRoom: onRoom, live: true}
	f.subs = append(f.subs, sub)
	return sub
}

func (s *memSub) Connected() bool { return s.live }
func (s *memSub) Close()          { s.live = false }

// push simulates a change-feed delivery of the stored document
func (f *memFeed) push(roomID string) {
	r, ok := f.store.rooms[roomID]
	if !ok {
		return
	}
	for _, sub := range f.subs {
		if sub.live && sub.roomID == roomID {
			sub.onRoom(r)
		}
	}
}

func newTestSync(t *testing.T, store *memStore, opts Options) (*Synchronizer, *memFeed) {
	t.Helper()
	f := &memFeed{store: store}
	log := logger.Must(logger.New(logger.Config{Env: "test"}))
	return New(store, f, log, opts), f
}

func TestInitializeHostCreatesRoom(t *testing.T) {
	store := newMemStore()
	hostID := uuid.New()
	s, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: hostID})

	if !s.Loading() {
		t.Error("synchronizer should report loading before Initialize")
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if s.Loading() {
		t.Error("loading should clear after Initialize")
	}

	r := s.Room()
	if r == nil {
		t.Fatal("no snapshot after host initialize")
	}
	if r.HostID != hostID || r.Participants != 1 || len(r.Queue) != 0 {
		t.Errorf("unexpected created room: %+v", r)
	}
	if !s.Connected() {
		t.Error("feed subscription should be open")
	}
}

func TestInitializeHostReloadAdoptsRoom(t *testing.T) {
	store := newMemStore()
	hostID := uuid.New()

	first, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: hostID})
	if err := first.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	store.rooms["party"] = withQueue(store.rooms["party"], "keep-me")

	again, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: hostID})
	if err := again.Initialize(context.Background()); err != nil {
		t.Fatalf("reload Initialize: %v", err)
	}

	if got := again.Room(); len(got.Queue) != 1 || got.Queue[0].ID != "keep-me" {
		t.Errorf("host reload clobbered the live queue: %+v", got)
	}
}

func TestInitializeHostMismatchRejected(t *testing.T) {
	store := newMemStore()

	owner, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: uuid.New()})
	if err := owner.Initialize(context.Background()); err != nil {
		t.Fatalf("owner Initialize: %v", err)
	}

	var reported string
	intruder, _ := newTestSync(t, store, Options{
		RoomID: "party",
		Role:   RoleHost,
		HostID: uuid.New(),
		OnError: func(msg string, err error) {
			reported = msg
		},
	})
	if err := intruder.Initialize(context.Background()); err == nil {
		t.Fatal("expected an error for a foreign host id")
	}
	if reported == "" {
		t.Error("error callback was not invoked")
	}
}

func TestRejectedAdoptionLeavesRoomUntouched(t *testing.T) {
	store := newMemStore()

	owner, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: uuid.New()})
	if err := owner.Initialize(context.Background()); err != nil {
		t.Fatalf("owner Initialize: %v", err)
	}
	before := store.rooms["party"]

	// Repeated foreign-host attempts must not refresh updated_at, or an
	// abandoned room would never age out of the sweep.
	for i := 0; i < 3; i++ {
		intruder, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: uuid.New()})
		if err := intruder.Initialize(context.Background()); err == nil {
			t.Fatal("expected an error for a foreign host id")
		}
	}

	after := store.rooms["party"]
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("rejected adoption bumped updated_at")
	}
	if after.HostID != before.HostID {
		t.Error("rejected adoption changed ownership")
	}
}

func TestInitializeParticipantMissingRoom(t *testing.T) {
	store := newMemStore()

	var reported string
	s, _ := newTestSync(t, store, Options{
		RoomID: "nowhere",
		Role:   RoleParticipant,
		OnError: func(msg string, err error) {
			reported = msg
		},
	})

	if err := s.Initialize(context.Background()); err == nil {
		t.Fatal("expected room not found")
	}
	if reported != "room not found" {
		t.Errorf("reported %q, want the not-found message", reported)
	}
	if s.Room() != nil {
		t.Error("no snapshot should be exposed after a failed initialize")
	}
}

func TestLocalStateUpdatesOnlyOnPush(t *testing.T) {
	store := newMemStore()
	s, f := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: uuid.New()})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	next := *s.Room()
	next.IsPlaying = true
	if err := s.UpdateRoom(context.Background(), &next); err != nil {
		t.Fatalf("UpdateRoom: %v", err)
	}

	// The write landed in the store but must not touch local state yet.
	if s.Room().IsPlaying {
		t.Error("local snapshot changed before the push arrived")
	}

	f.push("party")
	if !s.Room().IsPlaying {
		t.Error("push delivery did not update local state")
	}
}

func TestUpdateRoomIdempotent(t *testing.T) {
	store := newMemStore()
	s, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: uuid.New()})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	doc := *s.Room()
	doc.IsPlaying = true
	doc.Queue = []room.Song{{ID: "s1", VideoID: "abc"}}
	doc.CurrentTime = 12.5

	for i := 0; i < 2; i++ {
		if err := s.UpdateRoom(context.Background(), &doc); err != nil {
			t.Fatalf("UpdateRoom #%d: %v", i+1, err)
		}
	}

	stored := store.rooms["party"]
	if !stored.IsPlaying || stored.CurrentTime != 12.5 || len(stored.Queue) != 1 {
		t.Errorf("stored document drifted across identical writes: %+v", stored)
	}
}

func TestUpdateRoomLastWriterWinsInFull(t *testing.T) {
	store := newMemStore()
	s, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: uuid.New()})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	base := *s.Room()

	// Writer A appends to the queue; writer B, working from the same base,
	// toggles playback. B lands second and wins in full: A's queue entry
	// is gone. Documents the accepted trade-off.
	withSong := base
	withSong.Queue = []room.Song{{ID: "s1", VideoID: "abc"}}
	if err := s.UpdateRoom(context.Background(), &withSong); err != nil {
		t.Fatalf("writer A: %v", err)
	}

	toggled := base
	toggled.IsPlaying = true
	if err := s.UpdateRoom(context.Background(), &toggled); err != nil {
		t.Fatalf("writer B: %v", err)
	}

	stored := store.rooms["party"]
	if !stored.IsPlaying {
		t.Error("later write's field set did not survive")
	}
	if len(stored.Queue) != 0 {
		t.Error("earlier write's queue entry survived a full overwrite")
	}
}

func TestSequentialParticipantCounter(t *testing.T) {
	store := newMemStore()
	s, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: uuid.New()})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ctx := context.Background()
	names := []string{"ann", "ben", "cal"}
	for _, n := range names {
		if err := s.AddParticipant(ctx, n); err != nil {
			t.Fatalf("AddParticipant(%s): %v", n, err)
		}
	}
	// host's initial 1 + three joins
	if got := store.rooms["party"].Participants; got != 4 {
		t.Fatalf("counter = %d after 3 joins, want 4", got)
	}

	for _, n := range names {
		if err := s.RemoveParticipant(ctx, n); err != nil {
			t.Fatalf("RemoveParticipant(%s): %v", n, err)
		}
	}
	if got := store.rooms["party"].Participants; got != 1 {
		t.Fatalf("counter = %d after symmetric leaves, want 1", got)
	}

	// Over-removal floors at zero instead of going negative.
	for i := 0; i < 3; i++ {
		if err := s.RemoveParticipant(ctx, "ghost"); err != nil {
			t.Fatalf("RemoveParticipant(ghost): %v", err)
		}
	}
	if got := store.rooms["party"].Participants; got != 0 {
		t.Fatalf("counter = %d, want floor at 0", got)
	}
}

func TestResubscribeSeesCurrentDocument(t *testing.T) {
	store := newMemStore()
	hostID := uuid.New()

	s, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: hostID})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.Close()
	if s.Connected() {
		t.Error("closed synchronizer should report disconnected")
	}

	// The document moves on while nobody is subscribed.
	store.rooms["party"] = withQueue(store.rooms["party"], "added-offline")

	rejoined, _ := newTestSync(t, store, Options{RoomID: "party", Role: RoleParticipant})
	if err := rejoined.Initialize(context.Background()); err != nil {
		t.Fatalf("rejoin Initialize: %v", err)
	}

	got := rejoined.Room()
	if len(got.Queue) != 1 || got.Queue[0].ID != "added-offline" {
		t.Errorf("rejoin returned a stale document: %+v", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	store := newMemStore()
	s, f := newTestSync(t, store, Options{RoomID: "party", Role: RoleHost, HostID: uuid.New()})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s.Close()
	s.Close()

	if f.subs[0].live {
		t.Error("subscription left open after Close")
	}
}

func withQueue(r room.Room, songID string) room.Room {
	r.Queue = append(r.Queue, room.Song{ID: songID, VideoID: "vid-" + songID})
	r.UpdatedAt = time.Now()
	return r
}
