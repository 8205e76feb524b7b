package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/rx3lixir/tunebox/internal/feed"
	"github.com/rx3lixir/tunebox/internal/room"
	roomsync "github.com/rx3lixir/tunebox/internal/sync"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

// feedAdapter narrows the concrete listener to the synchronizer's Feed
// interface
type feedAdapter struct {
	listener *feed.Listener
}

func (a feedAdapter) Subscribe(roomID string, onRoom func(room.Room), onError func(error)) roomsync.Subscription {
	return a.listener.Subscribe(roomID, onRoom, onError)
}

// Manager tracks live sessions and hands each new connection its
// dependencies
type Manager struct {
	store room.Store
	feed  roomsync.Feed
	log   *logger.Logger

	sessions sync.Map // *Session -> struct{}
}

func NewManager(store room.Store, listener *feed.Listener, log *logger.Logger) *Manager {
	return &Manager{
		store: store,
		feed:  feedAdapter{listener: listener},
		log:   log,
	}
}

// ServeSession upgrades the request and runs the session until the
// connection drops
func (m *Manager) ServeSession(w http.ResponseWriter, r *http.Request, roomID string, role roomsync.Role, name string, hostID uuid.UUID) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // tighten in prod!
	})
	if err != nil {
		return err
	}

	session := newSession(roomID, role, name, hostID, conn, m)
	m.sessions.Store(session, struct{}{})

	m.log.Info("session opened",
		"room_id", roomID,
		"role", role,
		"name", name,
	)

	session.run(r.Context())
	return nil
}

func (m *Manager) remove(s *Session) {
	m.sessions.Delete(s)
}

// SessionCount returns the number of live sessions per room
func (m *Manager) SessionCount() map[string]int {
	counts := make(map[string]int)
	m.sessions.Range(func(key, _ any) bool {
		s := key.(*Session)
		counts[s.roomID]++
		return true
	})
	return counts
}

// Shutdown closes every live session
func (m *Manager) Shutdown(ctx context.Context) {
	m.sessions.Range(func(key, _ any) bool {
		key.(*Session).teardown()
		return true
	})
}
