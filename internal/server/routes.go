package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func setupRoutes(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"}, // tighten in prod!
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/rooms", deps.RoomHandler.RegisterRoutes)

		// /search and /videos/{videoID}
		deps.SearchHandler.RegisterRoutes(r)

		r.Route("/ws", deps.WSHandler.RegisterRoutes)

		r.Get("/health", handleHealth(deps))
	})

	return r
}
