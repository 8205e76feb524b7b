package playback

import (
	"time"

	"github.com/rx3lixir/tunebox/internal/room"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

// State of the controller's transport state machine
type State int

const (
	StateUninitialized State = iota
	StateReady
	StatePlaying
	StatePaused
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// endWindow is how close (seconds) the sampled position must get to the
	// detected duration before the song counts as ending
	endWindow = 0.5

	// gracePeriod is how long an ending song may linger before the queue
	// advances on its own
	gracePeriod = 5 * time.Second
)

// Event is the single inbound stream the controller consumes: pushed room
// snapshots, player signals, position samples and user intents all arrive
// through HandleEvent on one goroutine.
type Event interface{ isEvent() }

// PlayerReady signals the playback surface finished initializing
type PlayerReady struct{}

// PlayerError carries a surface error code
type PlayerError struct{ Code int }

// PlayerEnded signals the surface ran out of media
type PlayerEnded struct{}

// RoomPushed delivers a snapshot from the change feed
type RoomPushed struct{ Room room.Room }

// Tick is one position sample, taken at a fixed cadence while playing
type Tick struct {
	Position float64
	Duration float64
	Now      time.Time
}

// PlayPauseIntent toggles transport state
type PlayPauseIntent struct{}

// SeekIntent is a user scrub, issued on release only
type SeekIntent struct{ Seconds float64 }

// SkipIntent advances the queue immediately
type SkipIntent struct{}

func (PlayerReady) isEvent()     {}
func (PlayerError) isEvent()     {}
func (PlayerEnded) isEvent()     {}
func (RoomPushed) isEvent()      {}
func (Tick) isEvent()            {}
func (PlayPauseIntent) isEvent() {}
func (SeekIntent) isEvent()      {}
func (SkipIntent) isEvent()      {}

// Controller keeps one playback surface consistent with the room document
// and turns local player events into full-document update intents. It never
// mutates its own room copy from an intent; intents are pushed through the
// update callback and converge back via RoomPushed.
//
// Not safe for concurrent use; feed it from a single event goroutine.
type Controller struct {
	player  Player
	log     *logger.Logger
	push    func(room.Room)
	onError func(msg string)

	state   State
	room    room.Room
	hasRoom bool

	localTime float64

	// Grace deadline for auto-advance. Zero means inactive; any song change
	// cancels it.
	graceDeadline time.Time
}

func NewController(player Player, log *logger.Logger, push func(room.Room), onError func(msg string)) *Controller {
	return &Controller{
		player:  player,
		log:     log,
		push:    push,
		onError: onError,
		state:   StateUninitialized,
	}
}

// State returns the current transport state
func (c *Controller) State() State {
	return c.state
}

// LocalTime returns the last sampled playback position
func (c *Controller) LocalTime() float64 {
	return c.localTime
}

// HandleEvent is the single state-transition function. Every inbound signal
// goes through here.
func (c *Controller) HandleEvent(ev Event) {
	switch e := ev.(type) {
	case PlayerReady:
		c.handleReady()
	case PlayerError:
		c.handleError(e.Code)
	case PlayerEnded:
		c.handleEnded()
	case RoomPushed:
		c.handleRoom(e.Room)
	case Tick:
		c.handleTick(e)
	case PlayPauseIntent:
		c.handlePlayPause()
	case SeekIntent:
		c.handleSeek(e.Seconds)
	case SkipIntent:
		c.advance()
	}
}

func (c *Controller) handleReady() {
	c.state = StateReady

	if !c.hasRoom || c.room.CurrentSong == nil {
		return
	}

	// Resume near the room's last known position.
	c.player.Load(c.room.CurrentSong.VideoID, c.room.CurrentTime)
	c.localTime = c.room.CurrentTime

	if c.room.IsPlaying {
		c.player.Play()
		c.state = StatePlaying
	}
}

func (c *Controller) handleError(code int) {
	msg := ErrorMessage(code)
	c.log.Warn("player error", "code", code, "message", msg)

	// Error is not terminal: the next valid event moves the machine on.
	c.state = StateError

	if c.onError != nil {
		c.onError(msg)
	}
}

func (c *Controller) handleEnded() {
	if !c.hasRoom {
		return
	}
	c.advance()
}

func (c *Controller) handleRoom(r room.Room) {
	prev := c.room
	c.room = r
	c.hasRoom = true

	if c.state == StateUninitialized {
		return
	}

	if songID(r.CurrentSong) != songID(prev.CurrentSong) {
		c.cancelGrace()
		c.localTime = 0

		if r.CurrentSong == nil {
			if c.state == StatePlaying {
				c.player.Pause()
			}
			c.state = StateReady
			return
		}

		c.player.Load(r.CurrentSong.VideoID, 0)
		if r.IsPlaying {
			c.player.Play()
			c.state = StatePlaying
		} else {
			c.state = StateReady
		}
		return
	}

	if r.CurrentSong == nil {
		return
	}

	if r.IsPlaying && c.state != StatePlaying {
		c.player.Play()
		c.state = StatePlaying
	} else if !r.IsPlaying && c.state == StatePlaying {
		c.player.Pause()
		c.state = StatePaused
	}
}

func (c *Controller) handleTick(t Tick) {
	if c.state != StatePlaying {
		return
	}

	c.localTime = t.Position

	if !c.graceDeadline.IsZero() {
		if !t.Now.Before(c.graceDeadline) {
			c.advance()
		}
		return
	}

	if c.room.HasNext() && t.Duration > 0 && t.Duration-t.Position <= endWindow {
		c.graceDeadline = t.Now.Add(gracePeriod)
	}
}

func (c *Controller) handlePlayPause() {
	if !c.hasRoom || c.room.CurrentSong == nil {
		return
	}

	next := c.room
	next.IsPlaying = !next.IsPlaying
	next.CurrentTime = c.localTime
	c.push(next)
}

func (c *Controller) handleSeek(seconds float64) {
	if !c.hasRoom || c.room.CurrentSong == nil {
		return
	}

	c.player.Seek(seconds)
	c.localTime = seconds

	next := c.room
	next.CurrentTime = seconds
	c.push(next)
}

// advance promotes the queue head to the current song, or clears playback
// when nothing is left. The result is pushed as a full-document update and
// takes effect locally only when it comes back through the feed.
func (c *Controller) advance() {
	if !c.hasRoom {
		return
	}
	c.cancelGrace()

	next := c.room
	next.CurrentTime = 0

	if len(next.Queue) > 0 {
		head := next.Queue[0]
		next.CurrentSong = &head
		next.Queue = append([]room.Song{}, next.Queue[1:]...)
		next.IsPlaying = true
	} else {
		next.CurrentSong = nil
		next.IsPlaying = false
		next.Queue = []room.Song{}
	}

	c.push(next)
}

func (c *Controller) cancelGrace() {
	c.graceDeadline = time.Time{}
}

func songID(s *room.Song) string {
	if s == nil {
		return ""
	}
	return s.ID
}
