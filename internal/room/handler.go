package room

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rx3lixir/tunebox/pkg/httputil"
	"github.com/rx3lixir/tunebox/pkg/jwt"
	"github.com/rx3lixir/tunebox/pkg/logger"
	"github.com/rx3lixir/tunebox/pkg/password"
)

const roomListLimit = 50

// Room ids are short, human-shareable and end up in URLs and QR codes
var roomIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)

type Handler struct {
	store      Store
	jwtService *jwt.Service
	log        *logger.Logger
	dbTimeout  time.Duration
}

func NewHandler(store Store, jwtService *jwt.Service, log *logger.Logger, dbTimeout time.Duration) *Handler {
	if dbTimeout == 0 {
		dbTimeout = time.Second * 5
	}
	return &Handler{store, jwtService, log, dbTimeout}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", httputil.Handler(h.HandleCreateRoom, h.log.Logger))
	r.Get("/", httputil.Handler(h.HandleListRooms, h.log.Logger))
	r.Get("/{roomID}", httputil.Handler(h.HandleGetRoom, h.log.Logger))
	r.Post("/{roomID}/join", httputil.Handler(h.HandleJoinRoom, h.log.Logger))
}

func (h *Handler) dbCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.dbTimeout)
}

// HandleCreateRoom creates a room, or adopts an existing one when the caller
// presents a host token for it. The response carries a fresh host token the
// browser keeps so a reload resumes ownership instead of duplicating the room.
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) error {
	req := new(CreateRoomRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	if !roomIDPattern.MatchString(req.ID) {
		return httputil.BadRequest("Room ID must be 3-64 url-safe characters")
	}

	hostID := uuid.New()
	if req.HostToken != "" {
		claims, err := h.jwtService.ValidateHostToken(req.HostToken)
		if err != nil {
			h.log.Warn("rejected host token on room create",
				"room_id", req.ID,
				"error", err)
			return httputil.Unauthorized("Invalid host token")
		}
		if claims.RoomID != req.ID {
			return httputil.Forbidden("Host token is for a different room")
		}
		hostID = claims.HostID
	}

	passwordHash := ""
	if req.Password != "" {
		hash, err := password.Hash(req.Password)
		if err != nil {
			return httputil.Internal(err)
		}
		passwordHash = hash
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	room := &Room{ID: req.ID, HostID: hostID}
	if err := h.store.UpsertRoom(ctx, room, passwordHash); err != nil {
		if errors.Is(err, ErrNotHost) {
			h.log.Warn("room adoption blocked - host id mismatch",
				"room_id", req.ID)
			return httputil.Forbidden("Room already has a different host")
		}
		h.log.Error("failed to upsert room",
			"room_id", req.ID,
			"error", err)
		return httputil.Internal(err)
	}

	token, err := h.jwtService.GenerateHostToken(room.HostID, room.ID)
	if err != nil {
		h.log.Error("failed to issue host token",
			"room_id", room.ID,
			"error", err)
		return httputil.Internal(err)
	}

	h.log.Info("room created",
		"room_id", room.ID,
		"host_id", room.HostID)

	return httputil.RespondJSON(w, http.StatusCreated, CreateRoomResponse{
		Room:      *room,
		HostToken: token,
	})
}

// HandleGetRoom fetches one room. Absence is a normal outcome, reported as
// 404 without an error log.
func (h *Handler) HandleGetRoom(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	room, err := h.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return httputil.NotFound("Room not found")
		}
		h.log.Error("failed to retrieve room",
			"room_id", roomID,
			"error", err)
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, room)
}

// HandleListRooms returns up to 50 rooms for the discovery page,
// most recently updated first
func (h *Handler) HandleListRooms(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := h.dbCtx(r)
	defer cancel()

	rooms, err := h.store.ListRooms(ctx, roomListLimit)
	if err != nil {
		h.log.Error("failed to list rooms", "error", err)
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, ListRoomsResponse{
		Rooms: rooms,
		Count: len(rooms),
	})
}

// HandleJoinRoom is the password gate. Rooms without a password admit anyone.
func (h *Handler) HandleJoinRoom(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	req := new(JoinRoomRequest)
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, req); err != nil {
			return err
		}
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	hash, err := h.store.GetPasswordHash(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return httputil.NotFound("Room not found")
		}
		h.log.Error("failed to check room password",
			"room_id", roomID,
			"error", err)
		return httputil.Internal(err)
	}

	if hash != "" && !password.Verify(req.Password, hash) {
		return httputil.Unauthorized("Wrong room password")
	}

	return httputil.RespondJSON(w, http.StatusOK, JoinRoomResponse{Success: true})
}
