package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rx3lixir/tunebox/pkg/logger"
)

func newTestClient(t *testing.T, keys []string, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logger.Must(logger.New(logger.Config{Env: "test"}))
	c := NewClient(keys, 10, log)
	c.baseURL = srv.URL
	c.httpClient = srv.Client()
	return c, srv
}

func TestRoundRobinExhaustionSurfacesQuotaError(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, []string{"key-a", "key-b"}, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.Search(context.Background(), "some song", 5)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}

	// 2 credentials, 5 attempts each.
	if attempts != 10 {
		t.Errorf("made %d attempts, want 10", attempts)
	}
}

func TestRoundRobinAdvancesPastRejectedCredential(t *testing.T) {
	var keysSeen []string
	c, _ := newTestClient(t, []string{"dead-key", "live-key"}, func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		keysSeen = append(keysSeen, key)

		if key == "dead-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		switch r.URL.Path {
		case "/search":
			w.Write([]byte(`{"items":[{"id":{"videoId":"abc123"},"snippet":{"title":"Found It","thumbnails":{"medium":{"url":"http://img/abc"}}}}]}`))
		case "/videos":
			w.Write([]byte(`{"items":[{"id":"abc123","contentDetails":{"duration":"PT3M25S"}}]}`))
		}
	})

	results, err := c.Search(context.Background(), "some song", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("results = %+v, want one hit", results)
	}
	got := results[0]
	if got.VideoID != "abc123" || got.Title != "Found It" || got.Thumbnail != "http://img/abc" {
		t.Errorf("unexpected result: %+v", got)
	}
	if got.Duration != "3:25" {
		t.Errorf("duration = %q, want 3:25", got.Duration)
	}

	if keysSeen[0] != "dead-key" || keysSeen[1] != "live-key" {
		t.Errorf("rotation order wrong: %v", keysSeen)
	}
}

func TestVideoDetailsNotFound(t *testing.T) {
	c, _ := newTestClient(t, []string{"key"}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	})

	_, err := c.VideoDetails(context.Background(), "missing")
	if !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("err = %v, want ErrVideoNotFound", err)
	}
}

func TestVideoDetails(t *testing.T) {
	c, _ := newTestClient(t, []string{"key"}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"items":[{"id":"xyz","snippet":{"title":"Long One","thumbnails":{"default":{"url":"http://img/xyz"}}},"contentDetails":{"duration":"PT1H2M3S"}}]}`))
	})

	got, err := c.VideoDetails(context.Background(), "xyz")
	if err != nil {
		t.Fatalf("VideoDetails: %v", err)
	}
	if got.VideoID != "xyz" || got.Title != "Long One" {
		t.Errorf("unexpected result: %+v", got)
	}
	if got.Thumbnail != "http://img/xyz" {
		t.Errorf("thumbnail fallback to default failed: %q", got.Thumbnail)
	}
	if got.Duration != "1:02:03" {
		t.Errorf("duration = %q, want 1:02:03", got.Duration)
	}
}

func TestSearchSurvivesDurationLookupFailure(t *testing.T) {
	c, _ := newTestClient(t, []string{"key"}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			w.Write([]byte(`{"items":[{"id":{"videoId":"abc"},"snippet":{"title":"No Duration"}}]}`))
		case "/videos":
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	results, err := c.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Duration != "" {
		t.Errorf("results = %+v, want one hit with empty duration", results)
	}
}

func TestNonQuotaStatusFailsImmediately(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, []string{"key-a", "key-b"}, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Search(context.Background(), "q", 5)
	if err == nil || errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want a plain provider error", err)
	}
	if attempts != 1 {
		t.Errorf("made %d attempts, want 1 (no rotation on non-quota failures)", attempts)
	}
}

func TestFormatISODuration(t *testing.T) {
	tests := []struct {
		iso  string
		want string
	}{
		{"PT3M25S", "3:25"},
		{"PT1H2M3S", "1:02:03"},
		{"PT45S", "0:45"},
		{"PT2H", "2:00:00"},
		{"PT10M", "10:00"},
		{"", "0:00"},
		{"garbage", "0:00"},
	}
	for _, tt := range tests {
		if got := formatISODuration(tt.iso); got != tt.want {
			t.Errorf("formatISODuration(%q) = %q, want %q", tt.iso, got, tt.want)
		}
	}
}
