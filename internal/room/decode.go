package room

import (
	"time"

	"github.com/google/uuid"
)

// DecodeRow converts an untyped store payload into a typed Room. It is total:
// any field that is absent or malformed falls back to a zero-ish default
// (empty queue, 0 participants, 0 playback time, not playing). The store is
// schema-flexible and must never be trusted to match the typed shape exactly,
// so this is the only place untyped data enters the system.
func DecodeRow(row map[string]any) Room {
	r := Room{Queue: []Song{}}

	r.ID, _ = row["id"].(string)

	if s, ok := row["host_id"].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			r.HostID = id
		}
	}

	if v, ok := row["is_playing"].(bool); ok {
		r.IsPlaying = v
	}

	r.Participants = asInt(row["participants"])
	if r.Participants < 0 {
		r.Participants = 0
	}
	r.CurrentTime = asFloat(row["current_time"])

	if m, ok := row["current_song"].(map[string]any); ok {
		song := decodeSong(m)
		r.CurrentSong = &song
	}

	if list, ok := row["queue"].([]any); ok {
		for _, entry := range list {
			if m, ok := entry.(map[string]any); ok {
				r.Queue = append(r.Queue, decodeSong(m))
			}
		}
	}

	r.CreatedAt = asTime(row["created_at"])
	r.UpdatedAt = asTime(row["updated_at"])

	return r
}

func decodeSong(m map[string]any) Song {
	var s Song
	s.ID, _ = m["id"].(string)
	s.VideoID, _ = m["videoId"].(string)
	s.Title, _ = m["title"].(string)
	s.Thumbnail, _ = m["thumbnail"].(string)
	s.Duration, _ = m["duration"].(string)
	s.AddedBy, _ = m["addedBy"].(string)
	s.AddedAt, _ = m["addedAt"].(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
