package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool}
}

// UpsertRoom creates the room or adopts the existing one. The conflict arm
// is guarded by a host check: a foreign host id matches no row, so a
// rejected attempt leaves the room untouched and cannot keep an abandoned
// room alive past the sweep. An adopting host never clobbers a live queue;
// a non-empty password presented on adoption replaces the stored hash.
func (s *PostgresStore) UpsertRoom(ctx context.Context, room *Room, passwordHash string) error {
	query := `
		INSERT INTO rooms (id, host_id, current_song, is_playing, queue, participants, "current_time", password_hash, created_at, updated_at)
		VALUES ($1, $2, NULL, FALSE, '[]'::jsonb, 1, 0, NULLIF($3, ''), now(), now())
		ON CONFLICT (id) DO UPDATE
		SET updated_at = now(),
		    password_hash = COALESCE(NULLIF($3, ''), rooms.password_hash)
		WHERE rooms.host_id = EXCLUDED.host_id
		RETURNING host_id, current_song, is_playing, queue, participants, "current_time", created_at, updated_at
	`

	var currentSong, queue []byte
	err := s.pool.QueryRow(ctx, query, room.ID, room.HostID, passwordHash).Scan(
		&room.HostID,
		&currentSong,
		&room.IsPlaying,
		&queue,
		&room.Participants,
		&room.CurrentTime,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The id exists and belongs to someone else; nothing was written.
			return ErrNotHost
		}
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to upsert room: %w", err)
	}

	return unmarshalSongs(currentSong, queue, room)
}

// GetRoomByID retrieves a room by its ID
func (s *PostgresStore) GetRoomByID(ctx context.Context, roomID string) (*Room, error) {
	query := `
		SELECT id, host_id, current_song, is_playing, queue, participants, "current_time", created_at, updated_at
		FROM rooms
		WHERE id = $1
	`

	room := &Room{}
	var currentSong, queue []byte
	err := s.pool.QueryRow(ctx, query, roomID).Scan(
		&room.ID,
		&room.HostID,
		&currentSong,
		&room.IsPlaying,
		&queue,
		&room.Participants,
		&room.CurrentTime,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	if err := unmarshalSongs(currentSong, queue, room); err != nil {
		return nil, err
	}

	return room, nil
}

// UpdateRoom performs a full-document overwrite of the mutable fields.
// An absent current song is written as explicit NULL, not left unchanged.
func (s *PostgresStore) UpdateRoom(ctx context.Context, room *Room) error {
	query := `
		UPDATE rooms
		SET current_song = $2,
		    is_playing = $3,
		    queue = $4,
		    participants = $5,
		    "current_time" = $6,
		    updated_at = now()
		WHERE id = $1
	`

	var currentSong any
	if room.CurrentSong != nil {
		data, err := json.Marshal(room.CurrentSong)
		if err != nil {
			return fmt.Errorf("failed to marshal current song: %w", err)
		}
		currentSong = data
	}

	if room.Queue == nil {
		room.Queue = []Song{}
	}
	queue, err := json.Marshal(room.Queue)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	result, err := s.pool.Exec(ctx, query,
		room.ID,
		currentSong,
		room.IsPlaying,
		queue,
		room.Participants,
		room.CurrentTime,
	)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to update room: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRoomNotFound
	}

	return nil
}

// AdjustParticipants applies a counter delta in a single statement,
// floored at zero
func (s *PostgresStore) AdjustParticipants(ctx context.Context, roomID string, delta int) error {
	query := `
		UPDATE rooms
		SET participants = GREATEST(0, participants + $2),
		    updated_at = now()
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query, roomID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust participants: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRoomNotFound
	}

	return nil
}

// AddParticipantLog appends one membership event to the log
func (s *PostgresStore) AddParticipantLog(ctx context.Context, p *Participant) error {
	query := `
		INSERT INTO participants (room_id, user_name, joined_at, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id
	`

	p.JoinedAt = time.Now()
	p.IsActive = true

	err := s.pool.QueryRow(ctx, query, p.RoomID, p.UserName, p.JoinedAt).Scan(&p.ID)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return nil
}

// DeactivateParticipantLog soft-deletes the membership rows for a user name
func (s *PostgresStore) DeactivateParticipantLog(ctx context.Context, roomID, userName string) error {
	query := `
		UPDATE participants
		SET is_active = FALSE
		WHERE room_id = $1 AND user_name = $2
	`

	if _, err := s.pool.Exec(ctx, query, roomID, userName); err != nil {
		return fmt.Errorf("failed to deactivate participant: %w", err)
	}

	return nil
}

// GetPasswordHash returns the room's bcrypt hash, or empty when the room
// admits anyone
func (s *PostgresStore) GetPasswordHash(ctx context.Context, roomID string) (string, error) {
	query := `SELECT COALESCE(password_hash, '') FROM rooms WHERE id = $1`

	var hash string
	err := s.pool.QueryRow(ctx, query, roomID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRoomNotFound
		}
		return "", fmt.Errorf("failed to get password hash: %w", err)
	}

	return hash, nil
}

// ListRooms returns up to limit rooms, most recently updated first
func (s *PostgresStore) ListRooms(ctx context.Context, limit int) ([]RoomSummary, error) {
	query := `
		SELECT id, host_id, participants, created_at, updated_at
		FROM rooms
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []RoomSummary{}
	for rows.Next() {
		var r RoomSummary
		if err := rows.Scan(&r.ID, &r.HostID, &r.Participants, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}

	return rooms, nil
}

// SweepStale deletes idle rooms: empty queue and no update since the cutoff
func (s *PostgresStore) SweepStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM rooms
		WHERE queue = '[]'::jsonb AND updated_at < $1
	`

	result, err := s.pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep rooms: %w", err)
	}

	return result.RowsAffected(), nil
}

// FetchRow reads one room as an untyped JSON document, used by the change
// feed to recover payloads too large for NOTIFY
func (s *PostgresStore) FetchRow(ctx context.Context, roomID string) (map[string]any, error) {
	query := `SELECT row_to_json(r)::text FROM rooms r WHERE id = $1`

	var raw string
	err := s.pool.QueryRow(ctx, query, roomID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to fetch room row: %w", err)
	}

	row := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, fmt.Errorf("failed to decode room row: %w", err)
	}

	return row, nil
}

func unmarshalSongs(currentSong, queue []byte, room *Room) error {
	room.Queue = []Song{}
	room.CurrentSong = nil

	if len(currentSong) > 0 && string(currentSong) != "null" {
		song := &Song{}
		if err := json.Unmarshal(currentSong, song); err != nil {
			return fmt.Errorf("failed to unmarshal current song: %w", err)
		}
		room.CurrentSong = song
	}

	if len(queue) > 0 {
		if err := json.Unmarshal(queue, &room.Queue); err != nil {
			return fmt.Errorf("failed to unmarshal queue: %w", err)
		}
	}

	return nil
}

var _ Store = (*PostgresStore)(nil)
