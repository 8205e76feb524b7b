package feed

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rx3lixir/tunebox/internal/room"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

const (
	channelName = "room_changes"

	// Wait before re-acquiring a listening connection after a transport error
	reconnectWait = 2 * time.Second
)

// FetchRow re-reads a room as an untyped document, used when a NOTIFY
// payload was too large and arrived id-only
type FetchRow func(ctx context.Context, roomID string) (map[string]any, error)

// Metrics is a point-in-time snapshot of listener activity, served on the
// health surface
type Metrics struct {
	Connected           bool      `json:"connected"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	Delivered           int64     `json:"delivered"`
	Refetched           int64     `json:"refetched"`
	Dropped             int64     `json:"dropped"`
	LastActivity        time.Time `json:"last_activity"`
}

// Listener multiplexes one LISTEN connection into per-room subscriptions.
// All subscription state is owned by the Run loop; callers talk to it
// through channels only.
type Listener struct {
	pool  *pgxpool.Pool
	fetch FetchRow
	log   *logger.Logger

	register      chan *Subscription
	unregister    chan *Subscription
	notifications chan string
	transportErrs chan error

	subs      map[string]map[uint64]*Subscription
	nextID    atomic.Uint64
	connected atomic.Bool

	// Counters are atomic so Metrics() can be read outside the run loop.
	active       atomic.Int64
	delivered    atomic.Int64
	refetched    atomic.Int64
	dropped      atomic.Int64
	lastActivity atomic.Int64 // unix nanoseconds
}

func NewListener(pool *pgxpool.Pool, fetch FetchRow, log *logger.Logger) *Listener {
	l := &Listener{
		pool:          pool,
		fetch:         fetch,
		log:           log,
		register:      make(chan *Subscription, 16),
		unregister:    make(chan *Subscription, 16),
		notifications: make(chan string, 256),
		transportErrs: make(chan error, 16),
		subs:          make(map[string]map[uint64]*Subscription),
	}
	l.lastActivity.Store(time.Now().UnixNano())
	return l
}

// Metrics returns a snapshot of listener activity, safe to call from any
// goroutine
func (l *Listener) Metrics() Metrics {
	return Metrics{
		Connected:           l.connected.Load(),
		ActiveSubscriptions: int(l.active.Load()),
		Delivered:           l.delivered.Load(),
		Refetched:           l.refetched.Load(),
		Dropped:             l.dropped.Load(),
		LastActivity:        time.Unix(0, l.lastActivity.Load()),
	}
}

// Run is the main event loop - handles ALL subscription state sequentially.
// Blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	if l.pool != nil {
		go l.listenLoop(ctx)
	}

	for {
		select {
		case sub := <-l.register:
			l.handleRegister(sub)

		case sub := <-l.unregister:
			l.handleUnregister(sub)

		case payload := <-l.notifications:
			l.dispatch(ctx, payload)

		case err := <-l.transportErrs:
			l.handleTransportError(err)

		case <-ctx.Done():
			return
		}
	}
}

// Connected reports whether the LISTEN connection is live. Every state
// other than an established subscription collapses to false.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Subscribe opens a filtered feed for one room id. The onRoom callback
// receives every change event as a fully-typed Room snapshot; transport
// failures are reported through onError only, never as a panic or a
// surfaced error.
func (l *Listener) Subscribe(roomID string, onRoom func(room.Room), onError func(error)) *Subscription {
	sub := &Subscription{
		id:       l.nextID.Add(1),
		roomID:   roomID,
		onRoom:   onRoom,
		onError:  onError,
		listener: l,
	}
	l.register <- sub
	return sub
}

func (l *Listener) handleRegister(sub *Subscription) {
	byID, ok := l.subs[sub.roomID]
	if !ok {
		byID = make(map[uint64]*Subscription)
		l.subs[sub.roomID] = byID
	}
	byID[sub.id] = sub
	l.active.Add(1)

	l.log.Debug("feed subscription opened",
		"room_id", sub.roomID,
		"subscription_id", sub.id,
	)
}

func (l *Listener) handleUnregister(sub *Subscription) {
	byID, ok := l.subs[sub.roomID]
	if !ok {
		return
	}
	if _, ok := byID[sub.id]; !ok {
		return
	}
	delete(byID, sub.id)
	if len(byID) == 0 {
		delete(l.subs, sub.roomID)
	}
	l.active.Add(-1)

	l.log.Debug("feed subscription closed",
		"room_id", sub.roomID,
		"subscription_id", sub.id,
	)
}

func (l *Listener) handleTransportError(err error) {
	for _, byID := range l.subs {
		for _, sub := range byID {
			if sub.onError != nil {
				sub.onError(err)
			}
		}
	}
}

// changePayload mirrors what the rooms trigger emits on the channel
type changePayload struct {
	Op        string         `json:"op"`
	Room      map[string]any `json:"room"`
	ID        string         `json:"id"`
	Truncated bool           `json:"truncated"`
}

// dispatch decodes one raw payload and delivers a typed snapshot to every
// subscription filtered to that room id
func (l *Listener) dispatch(ctx context.Context, payload string) {
	var p changePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		l.log.Warn("discarding malformed feed payload", "error", err)
		l.dropped.Add(1)
		return
	}

	row := p.Room
	if p.Truncated && l.fetch != nil {
		fetched, err := l.fetch(ctx, p.ID)
		if err != nil {
			// Deleted in the meantime, or a transient read failure.
			// Deliver an id-only snapshot rather than nothing.
			l.log.Warn("failed to refetch truncated payload",
				"room_id", p.ID,
				"error", err,
			)
			fetched = map[string]any{"id": p.ID}
		}
		row = fetched
		l.refetched.Add(1)
	}
	if row == nil {
		row = map[string]any{"id": p.ID}
	}

	snapshot := room.DecodeRow(row)
	if snapshot.ID == "" {
		snapshot.ID = p.ID
	}

	byID, ok := l.subs[snapshot.ID]
	if !ok {
		return
	}

	l.lastActivity.Store(time.Now().UnixNano())
	for _, sub := range byID {
		sub.onRoom(snapshot)
		l.delivered.Add(1)
	}
}

// listenLoop owns the dedicated LISTEN connection and forwards raw payloads
// into the run loop, re-acquiring the connection after failures
func (l *Listener) listenLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			l.failTransport(err)
			sleepCtx(ctx, reconnectWait)
			continue
		}

		if _, err := conn.Exec(ctx, "LISTEN "+channelName); err != nil {
			conn.Release()
			l.failTransport(err)
			sleepCtx(ctx, reconnectWait)
			continue
		}

		l.connected.Store(true)
		l.log.Info("change feed listening", "channel", channelName)

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				conn.Release()
				l.failTransport(err)
				break
			}

			select {
			case l.notifications <- notification.Payload:
			default:
				l.log.Warn("feed notification buffer full, dropping payload")
			}
		}

		if ctx.Err() != nil {
			return
		}
		sleepCtx(ctx, reconnectWait)
	}
}

// failTransport flips connected off and reports the error to subscribers.
// Fails silently into a disconnected state: nothing is surfaced to callers
// beyond their error callback.
func (l *Listener) failTransport(err error) {
	l.connected.Store(false)
	select {
	case l.transportErrs <- err:
	default:
	}
	l.log.Warn("change feed disconnected", "error", err)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
