package ws

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	roomsync "github.com/rx3lixir/tunebox/internal/sync"
	"github.com/rx3lixir/tunebox/pkg/jwt"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

type Handler struct {
	manager    *Manager
	jwtService *jwt.Service
	log        *logger.Logger
}

func NewHandler(manager *Manager, jwtService *jwt.Service, log *logger.Logger) *Handler {
	return &Handler{
		manager:    manager,
		jwtService: jwtService,
		log:        log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleConnection)
}

// HandleConnection validates the session parameters and upgrades. Hosts
// must present the host token issued at room creation; participants only
// need a display name.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id parameter required", http.StatusBadRequest)
		return
	}

	role := roomsync.Role(r.URL.Query().Get("role"))
	if role != roomsync.RoleHost && role != roomsync.RoleParticipant {
		http.Error(w, "role must be host or participant", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))

	var hostID uuid.UUID
	if role == roomsync.RoleHost {
		token := r.Header.Get("Authorization")
		if token != "" {
			token = strings.TrimPrefix(token, "Bearer ")
		}
		// Browsers cannot set headers on WebSocket upgrades.
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, "Missing host token", http.StatusUnauthorized)
			return
		}

		claims, err := h.jwtService.ValidateHostToken(token)
		if err != nil {
			http.Error(w, "Invalid or expired host token", http.StatusUnauthorized)
			return
		}
		if claims.RoomID != roomID {
			http.Error(w, "Host token is for a different room", http.StatusForbidden)
			return
		}
		hostID = claims.HostID
	} else if name == "" {
		http.Error(w, "name parameter required for participants", http.StatusBadRequest)
		return
	}

	h.log.Info("establishing websocket connection",
		"room_id", roomID,
		"role", role,
		"name", name,
	)

	if err := h.manager.ServeSession(w, r, roomID, role, name, hostID); err != nil {
		h.log.Warn("websocket upgrade failed",
			"room_id", roomID,
			"error", err,
		)
	}
}
