package room

import (
	"time"

	"github.com/google/uuid"
)

// Song is one queue entry. IDs are client-generated and only need to be
// unique within a single queue.
type Song struct {
	ID        string `json:"id"`
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Duration  string `json:"duration"` // pre-formatted, e.g. "4:13"
	AddedBy   string `json:"addedBy"`
	AddedAt   string `json:"addedAt"`
}

// Room is the single shared mutable document all clients converge on.
// The participants field is an approximate counter, not a strong count.
type Room struct {
	ID           string    `json:"id"`
	HostID       uuid.UUID `json:"host_id"`
	CurrentSong  *Song     `json:"current_song,omitempty"`
	IsPlaying    bool      `json:"is_playing"`
	Queue        []Song    `json:"queue"`
	Participants int       `json:"participants"`
	CurrentTime  float64   `json:"current_time"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasNext reports whether another queue entry is waiting to be promoted
func (r *Room) HasNext() bool {
	return len(r.Queue) > 0
}

// Participant is one row of the append-only membership log. Only its
// aggregate effect (the room counter) feeds back into the Room document.
type Participant struct {
	ID       int64     `json:"id"`
	RoomID   string    `json:"room_id"`
	UserName string    `json:"user_name"`
	JoinedAt time.Time `json:"joined_at"`
	IsActive bool      `json:"is_active"`
}

type CreateRoomRequest struct {
	ID        string `json:"id"`
	Password  string `json:"password,omitempty"`
	HostToken string `json:"host_token,omitempty"`
}

type CreateRoomResponse struct {
	Room      Room   `json:"room"`
	HostToken string `json:"host_token"`
}

type JoinRoomRequest struct {
	Password string `json:"password,omitempty"`
}

type JoinRoomResponse struct {
	Success bool `json:"success"`
}

// RoomSummary is the discovery-list projection of a room
type RoomSummary struct {
	ID           string    `json:"id"`
	HostID       uuid.UUID `json:"host_id"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ListRoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
	Count int           `json:"count"`
}
