package ws

import (
	"encoding/json"

	"github.com/rx3lixir/tunebox/internal/room"
)

// MessageType defines the type of a WebSocket message
type MessageType string

// Inbound message types (client → server)
const (
	MessageTypeUpdateRoom        MessageType = "update_room"
	MessageTypeAddParticipant    MessageType = "add_participant"
	MessageTypeRemoveParticipant MessageType = "remove_participant"
	MessageTypePlayPause         MessageType = "play_pause"
	MessageTypeSeek              MessageType = "seek"
	MessageTypeSkip              MessageType = "skip"
	MessageTypePlayerReady       MessageType = "player_ready"
	MessageTypePlayerError       MessageType = "player_error"
	MessageTypePlayerEnded       MessageType = "player_ended"
	MessageTypeTick              MessageType = "tick"
)

// Outbound message types (server → client)
const (
	MessageTypeRoomSnapshot     MessageType = "room_snapshot"
	MessageTypePlayerCommand    MessageType = "player_command"
	MessageTypeConnectionStatus MessageType = "connection_status"
	MessageTypeError            MessageType = "error"
)

// Message is the outbound envelope
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data,omitempty"`
}

// clientMessage is the inbound envelope; data stays raw until the type is
// known
type clientMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParticipantData names a joining or leaving participant
type ParticipantData struct {
	Name string `json:"name"`
}

// SeekData carries a scrub target in seconds
type SeekData struct {
	Seconds float64 `json:"seconds"`
}

// PlayerErrorData carries a playback-surface error code
type PlayerErrorData struct {
	Code int `json:"code"`
}

// TickData is one position sample from the host's player
type TickData struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

// PlayerCommandData tells the host's playback surface what to do
type PlayerCommandData struct {
	Command string  `json:"command"`
	VideoID string  `json:"videoId,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
}

// ConnectionStatusData mirrors the synchronizer's status flags
type ConnectionStatusData struct {
	Connected bool `json:"connected"`
	Loading   bool `json:"loading"`
}

// ErrorData carries a human-readable failure message
type ErrorData struct {
	Message string `json:"message"`
}

// NewRoomSnapshot wraps a room document for delivery
func NewRoomSnapshot(r room.Room) *Message {
	return &Message{Type: MessageTypeRoomSnapshot, Data: r}
}

// NewPlayerCommand builds a player command message
func NewPlayerCommand(command, videoID string, seconds float64) *Message {
	return &Message{
		Type: MessageTypePlayerCommand,
		Data: PlayerCommandData{Command: command, VideoID: videoID, Seconds: seconds},
	}
}

// NewConnectionStatus builds a status message
func NewConnectionStatus(connected, loading bool) *Message {
	return &Message{
		Type: MessageTypeConnectionStatus,
		Data: ConnectionStatusData{Connected: connected, Loading: loading},
	}
}

// NewError builds an error message
func NewError(message string) *Message {
	return &Message{Type: MessageTypeError, Data: ErrorData{Message: message}}
}

// ToJSON converts a message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
