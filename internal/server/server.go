package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rx3lixir/tunebox/internal/feed"
	"github.com/rx3lixir/tunebox/internal/room"
	"github.com/rx3lixir/tunebox/internal/search"
	"github.com/rx3lixir/tunebox/internal/ws"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

// Deps bundles everything the router mounts
type Deps struct {
	RoomHandler   *room.Handler
	SearchHandler *search.Handler
	WSHandler     *ws.Handler
	Health        HealthStatus
	FeedMetrics   func() feed.Metrics
	SessionCounts func() map[string]int
	Log           *logger.Logger
}

type Server struct {
	log        *logger.Logger
	httpServer *http.Server
}

func New(addr string, deps Deps) *Server {
	s := &Server{
		log: deps.Log,
	}

	router := setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.log.Info(
		"Starting HTTP server",
		"addr", s.httpServer.Addr,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(
		"Server shutting down gracefully...",
		"addr", s.httpServer.Addr,
	)
	return s.httpServer.Shutdown(ctx)
}
