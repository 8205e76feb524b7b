package playback

// Player is the playback surface the controller drives. Implementations
// forward commands to whatever renders the video; the controller never
// waits on them.
type Player interface {
	// Load points the surface at a new catalog reference, starting at the
	// given offset in seconds
	Load(videoID string, startAt float64)
	Play()
	Pause()
	Seek(seconds float64)
}

// Error codes reported by the playback surface
const (
	errCodeInvalidReference = 2
	errCodePlayerFailure    = 5
	errCodeNotFound         = 100
	errCodeNoEmbedding      = 101
	errCodeNoEmbeddingAlt   = 150
)

// ErrorMessage maps a playback-surface error code to its fixed
// human-readable category
func ErrorMessage(code int) string {
	switch code {
	case errCodeInvalidReference:
		return "invalid video reference"
	case errCodePlayerFailure:
		return "the player failed to play this video"
	case errCodeNotFound:
		return "video not found"
	case errCodeNoEmbedding, errCodeNoEmbeddingAlt:
		return "this video cannot be played in an embedded player"
	default:
		return "playback failed"
	}
}
