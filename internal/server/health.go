package server

import (
	"encoding/json"
	"net/http"

	"github.com/rx3lixir/tunebox/internal/feed"
)

// HealthStatus reports which pieces of configuration are present. The UI
// uses it to render a configuration warning; nothing else consumes it.
type HealthStatus struct {
	SearchCredentials bool `json:"search_credentials"`
	Database          bool `json:"database"`
	ObjectStorage     bool `json:"object_storage"`
	Cache             bool `json:"cache"`
}

// Configured reports whether the required pieces are present. Object
// storage and the cache are optional.
func (h HealthStatus) Configured() bool {
	return h.SearchCredentials && h.Database
}

type healthResponse struct {
	Status   string         `json:"status"`
	Config   HealthStatus   `json:"config"`
	Feed     *feed.Metrics  `json:"feed,omitempty"`
	Sessions map[string]int `json:"sessions,omitempty"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Config: deps.Health}
		if !deps.Health.Configured() {
			resp.Status = "misconfigured"
		}
		if deps.FeedMetrics != nil {
			m := deps.FeedMetrics()
			resp.Feed = &m
		}
		if deps.SessionCounts != nil {
			resp.Sessions = deps.SessionCounts()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
