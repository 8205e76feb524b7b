package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/rx3lixir/tunebox/internal/playback"
	"github.com/rx3lixir/tunebox/internal/room"
	roomsync "github.com/rx3lixir/tunebox/internal/sync"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer; intents are small
	maxMessageSize = 64 * 1024

	// Budget for the leave bookkeeping after the socket is gone
	teardownTimeout = 5 * time.Second
)

// Inbound events for the session loop. Everything the session reacts to,
// from either the socket or the change feed, arrives as one of these.
type sessionEvent any

type inboundEvent struct{ msg clientMessage }
type pushEvent struct{ room room.Room }
type feedErrorEvent struct{ msg string }
type readClosedEvent struct{}

// Session is one connected browser. It owns a synchronizer, and for the
// host role a playback controller fed by the host player's reported ticks.
// One goroutine (run) consumes all session events, so the synchronizer and
// controller never see concurrent calls.
type Session struct {
	roomID string
	role   roomsync.Role
	name   string
	hostID uuid.UUID

	conn    *websocket.Conn
	manager *Manager
	log     *logger.Logger

	sync *roomsync.Synchronizer
	ctrl *playback.Controller

	events chan sessionEvent
	send   chan *Message

	cancel    context.CancelFunc
	joined    bool
	closeOnce sync.Once
}

func newSession(roomID string, role roomsync.Role, name string, hostID uuid.UUID, conn *websocket.Conn, m *Manager) *Session {
	return &Session{
		roomID:  roomID,
		role:    role,
		name:    name,
		hostID:  hostID,
		conn:    conn,
		manager: m,
		log:     m.log,
		events:  make(chan sessionEvent, 64),
		send:    make(chan *Message, 256),
	}
}

// run drives the whole session lifecycle and blocks until the connection
// drops or ctx is cancelled
func (s *Session) run(parentCtx context.Context) {
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	defer s.teardown()

	s.sync = roomsync.New(s.manager.store, s.manager.feed, s.log, roomsync.Options{
		RoomID: s.roomID,
		Role:   s.role,
		HostID: s.hostID,
		OnRoom: func(r room.Room) { s.enqueueEvent(pushEvent{room: r}) },
		OnError: func(msg string, err error) {
			s.enqueueEvent(feedErrorEvent{msg: msg})
		},
	})

	if s.role == roomsync.RoleHost {
		player := &remotePlayer{session: s}
		s.ctrl = playback.NewController(player, s.log,
			func(r room.Room) {
				// Controller intents become store writes; the result comes
				// back through the feed like any other client's write.
				if err := s.sync.UpdateRoom(ctx, &r); err != nil {
					s.log.Warn("controller update rejected", "room_id", s.roomID, "error", err)
				}
			},
			func(msg string) { s.enqueue(NewError(msg)) },
		)
	}

	go s.writePump(ctx)

	if err := s.sync.Initialize(ctx); err != nil {
		s.refuse(initializeMessage(err))
		return
	}

	if s.role == roomsync.RoleParticipant && s.name != "" {
		if err := s.sync.AddParticipant(ctx, s.name); err != nil {
			s.log.Warn("join bookkeeping failed",
				"room_id", s.roomID,
				"name", s.name,
				"error", err)
		} else {
			s.joined = true
		}
	}

	if snapshot := s.sync.Room(); snapshot != nil {
		s.enqueue(NewRoomSnapshot(*snapshot))
		if s.ctrl != nil {
			s.ctrl.HandleEvent(playback.RoomPushed{Room: *snapshot})
		}
	}
	s.enqueue(NewConnectionStatus(s.sync.Connected(), s.sync.Loading()))

	go s.readPump(ctx)

	for {
		select {
		case ev := <-s.events:
			switch e := ev.(type) {
			case inboundEvent:
				s.handleInbound(ctx, e.msg)
			case pushEvent:
				s.enqueue(NewRoomSnapshot(e.room))
				if s.ctrl != nil {
					s.ctrl.HandleEvent(playback.RoomPushed{Room: e.room})
				}
			case feedErrorEvent:
				s.enqueue(NewError(e.msg))
				s.enqueue(NewConnectionStatus(s.sync.Connected(), s.sync.Loading()))
			case readClosedEvent:
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) handleInbound(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case MessageTypeUpdateRoom:
		var r room.Room
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			s.enqueue(NewError("malformed room update"))
			return
		}
		if r.Queue == nil {
			r.Queue = []room.Song{}
		}
		// Errors already reach the client through the synchronizer's
		// error callback.
		_ = s.sync.UpdateRoom(ctx, &r)

	case MessageTypeAddParticipant:
		var p ParticipantData
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.Name == "" {
			s.enqueue(NewError("participant name is required"))
			return
		}
		_ = s.sync.AddParticipant(ctx, p.Name)

	case MessageTypeRemoveParticipant:
		var p ParticipantData
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.Name == "" {
			s.enqueue(NewError("participant name is required"))
			return
		}
		_ = s.sync.RemoveParticipant(ctx, p.Name)

	case MessageTypePlayPause, MessageTypeSeek, MessageTypeSkip,
		MessageTypePlayerReady, MessageTypePlayerError,
		MessageTypePlayerEnded, MessageTypeTick:
		s.handlePlayerMessage(msg)

	default:
		s.enqueue(NewError("unknown message type"))
	}
}

// handlePlayerMessage feeds the playback controller. Only the host session
// has one; playback messages from participants are rejected.
func (s *Session) handlePlayerMessage(msg clientMessage) {
	if s.ctrl == nil {
		s.enqueue(NewError("only the host controls playback"))
		return
	}

	switch msg.Type {
	case MessageTypePlayPause:
		s.ctrl.HandleEvent(playback.PlayPauseIntent{})

	case MessageTypeSeek:
		var d SeekData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			s.enqueue(NewError("malformed seek"))
			return
		}
		s.ctrl.HandleEvent(playback.SeekIntent{Seconds: d.Seconds})

	case MessageTypeSkip:
		s.ctrl.HandleEvent(playback.SkipIntent{})

	case MessageTypePlayerReady:
		s.ctrl.HandleEvent(playback.PlayerReady{})

	case MessageTypePlayerError:
		var d PlayerErrorData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			s.enqueue(NewError("malformed player error"))
			return
		}
		s.ctrl.HandleEvent(playback.PlayerError{Code: d.Code})

	case MessageTypePlayerEnded:
		s.ctrl.HandleEvent(playback.PlayerEnded{})

	case MessageTypeTick:
		var d TickData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		s.ctrl.HandleEvent(playback.Tick{
			Position: d.Position,
			Duration: d.Duration,
			Now:      time.Now(),
		})
	}
}

// readPump pumps messages from the WebSocket connection into the event loop
func (s *Session) readPump(ctx context.Context) {
	defer s.enqueueEvent(readClosedEvent{})

	s.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				s.log.Debug("client disconnected normally",
					"room_id", s.roomID,
					"role", s.role,
				)
			} else if ctx.Err() == nil {
				s.log.Warn("websocket read error",
					"room_id", s.roomID,
					"role", s.role,
					"error", err,
				)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.enqueue(NewError("malformed message"))
			continue
		}

		s.enqueueEvent(inboundEvent{msg: msg})
	}
}

// writePump pumps outbound messages to the WebSocket connection
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close(websocket.StatusNormalClosure, "")
		// A dead writer means a dead session; unblock the run loop.
		s.cancel()
	}()

	for {
		select {
		case message := <-s.send:
			data, err := message.ToJSON()
			if err != nil {
				s.log.Error("failed to encode message", "error", err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err = s.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()

			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("failed to write message",
						"room_id", s.roomID,
						"error", err,
					)
				}
				return
			}

		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Ping(writeCtx)
			cancel()

			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// refuse delivers a session-fatal error and closes the socket with a
// non-normal status. The frame is written synchronously on a fresh context:
// teardown cancels the session context right after, which would kill a
// queued write before it reaches the wire, and the client must be able to
// tell "room not found" from a transport failure.
func (s *Session) refuse(msg string) {
	writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	data, err := NewError(msg).ToJSON()
	if err != nil {
		return
	}
	if err := s.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		s.log.Warn("failed to deliver refusal",
			"room_id", s.roomID,
			"error", err,
		)
		return
	}

	s.conn.Close(websocket.StatusPolicyViolation, msg)
}

// enqueue queues an outbound message, dropping it if the client cannot
// keep up
func (s *Session) enqueue(msg *Message) {
	select {
	case s.send <- msg:
	default:
		s.log.Warn("send buffer full, dropping message",
			"room_id", s.roomID,
			"type", msg.Type,
		)
	}
}

// enqueueEvent queues an inbound event for the run loop. Dropping is safe:
// pushes are snapshots, not deltas, so the next one supersedes a lost one.
func (s *Session) enqueueEvent(ev sessionEvent) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event buffer full, dropping event", "room_id", s.roomID)
	}
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.sync == nil {
			s.manager.remove(s)
			s.conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		s.sync.Close()

		if s.joined {
			ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()

			if err := s.sync.RemoveParticipant(ctx, s.name); err != nil {
				s.log.Warn("leave bookkeeping failed",
					"room_id", s.roomID,
					"name", s.name,
					"error", err)
			}
		}

		s.manager.remove(s)
		s.conn.Close(websocket.StatusNormalClosure, "")

		s.log.Info("session closed",
			"room_id", s.roomID,
			"role", s.role,
		)
	})
}

// initializeMessage picks the client-facing message for a failed initialize
func initializeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, room.ErrRoomNotFound) {
		return "room not found"
	}
	if errors.Is(err, room.ErrNotHost) {
		return "this room belongs to another host"
	}
	return "failed to join the room"
}

// remotePlayer forwards playback commands to the host's actual player over
// the socket
type remotePlayer struct {
	session *Session
}

func (p *remotePlayer) Load(videoID string, startAt float64) {
	p.session.enqueue(NewPlayerCommand("load", videoID, startAt))
}

func (p *remotePlayer) Play() {
	p.session.enqueue(NewPlayerCommand("play", "", 0))
}

func (p *remotePlayer) Pause() {
	p.session.enqueue(NewPlayerCommand("pause", "", 0))
}

func (p *remotePlayer) Seek(seconds float64) {
	p.session.enqueue(NewPlayerCommand("seek", "", seconds))
}
