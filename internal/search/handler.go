package search

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rx3lixir/tunebox/pkg/httputil"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

// ThumbnailMirror rewrites a provider thumbnail URL to a mirrored copy.
// Implementations are best-effort and return the source URL on failure.
type ThumbnailMirror interface {
	MirrorURL(ctx context.Context, name, srcURL string) string
}

type Handler struct {
	client *Client
	cache  *Cache
	thumbs ThumbnailMirror
	log    *logger.Logger
}

func NewHandler(client *Client, cache *Cache, thumbs ThumbnailMirror, log *logger.Logger) *Handler {
	return &Handler{
		client: client,
		cache:  cache,
		thumbs: thumbs,
		log:    log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/search", httputil.Handler(h.HandleSearch, h.log.Logger))
	r.Get("/videos/{videoID}", httputil.Handler(h.HandleVideoDetails, h.log.Logger))
}

// HandleSearch runs a keyword search against the catalog provider, serving
// repeats from the cache to stretch quota
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) error {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		return httputil.BadRequest("Query parameter q is required")
	}

	maxResults := 0
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return httputil.BadRequest("maxResults must be a positive integer")
		}
		maxResults = n
	}

	key := SearchKey(query, maxResults)
	if results, ok := h.cache.GetResults(r.Context(), key); ok {
		return httputil.RespondJSON(w, http.StatusOK, SearchResponse{Results: results})
	}

	results, err := h.client.Search(r.Context(), query, maxResults)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return httputil.TooManyRequests("Search quota exceeded, try again later")
		}
		h.log.Error("search failed", "query", query, "error", err)
		return httputil.Internal(err)
	}

	h.cache.SetResults(r.Context(), key, results)

	return httputil.RespondJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// HandleVideoDetails resolves a single catalog entry. The thumbnail is
// mirrored into object storage so it keeps rendering from the queue.
func (h *Handler) HandleVideoDetails(w http.ResponseWriter, r *http.Request) error {
	videoID, err := httputil.URLParam(r, "videoID")
	if err != nil {
		return err
	}

	key := VideoKey(videoID)
	if cached, ok := h.cache.GetResults(r.Context(), key); ok && len(cached) == 1 {
		return httputil.RespondJSON(w, http.StatusOK, cached[0])
	}

	result, err := h.client.VideoDetails(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			return httputil.NotFound("Video not found")
		}
		if errors.Is(err, ErrQuotaExceeded) {
			return httputil.TooManyRequests("Search quota exceeded, try again later")
		}
		h.log.Error("video lookup failed", "video_id", videoID, "error", err)
		return httputil.Internal(err)
	}

	if h.thumbs != nil {
		result.Thumbnail = h.thumbs.MirrorURL(r.Context(), videoID, result.Thumbnail)
	}

	h.cache.SetResults(r.Context(), key, []VideoResult{*result})

	return httputil.RespondJSON(w, http.StatusOK, result)
}
