package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rx3lixir/tunebox/pkg/logger"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"

	// attemptsPerKey bounds the credential round-robin: every key gets this
	// many chances before the call surfaces quota exhaustion
	attemptsPerKey = 5
)

var (
	// ErrQuotaExceeded means every configured credential was rejected
	ErrQuotaExceeded = errors.New("search quota exceeded on all credentials")

	// ErrVideoNotFound is a normal absence, not a failure
	ErrVideoNotFound = errors.New("video not found")
)

// Client talks to the video catalog provider, rotating through multiple API
// credentials. A quota rejection on one credential advances to the next
// instead of failing the call.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger

	keys       []string
	next       atomic.Uint64
	baseURL    string
	maxResults int
}

func NewClient(keys []string, maxResults int, log *logger.Logger) *Client {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
		keys:       keys,
		baseURL:    defaultBaseURL,
		maxResults: maxResults,
	}
}

// Search runs a keyword search and resolves durations for the hits in one
// follow-up batch call
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]VideoResult, error) {
	if maxResults <= 0 || maxResults > 50 {
		maxResults = c.maxResults
	}

	params := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"q":          {query},
		"maxResults": {strconv.Itoa(maxResults)},
	}

	var list searchListResponse
	if err := c.getJSON(ctx, "/search", params, &list); err != nil {
		return nil, err
	}

	results := make([]VideoResult, 0, len(list.Items))
	ids := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		if item.ID.VideoID == "" {
			continue
		}
		ids = append(ids, item.ID.VideoID)
		results = append(results, VideoResult{
			VideoID:   item.ID.VideoID,
			Title:     item.Snippet.Title,
			Thumbnail: item.Snippet.thumbnailURL(),
		})
	}
	if len(results) == 0 {
		return results, nil
	}

	durations, err := c.durationsByID(ctx, ids)
	if err != nil {
		// Results without durations are still usable.
		c.log.Warn("failed to resolve durations", "error", err)
		return results, nil
	}
	for i := range results {
		results[i].Duration = durations[results[i].VideoID]
	}

	return results, nil
}

// VideoDetails looks up a single catalog entry by id
func (c *Client) VideoDetails(ctx context.Context, videoID string) (*VideoResult, error) {
	params := url.Values{
		"part": {"snippet,contentDetails"},
		"id":   {videoID},
	}

	var list videoListResponse
	if err := c.getJSON(ctx, "/videos", params, &list); err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, ErrVideoNotFound
	}

	item := list.Items[0]
	return &VideoResult{
		VideoID:   item.ID,
		Title:     item.Snippet.Title,
		Thumbnail: item.Snippet.thumbnailURL(),
		Duration:  formatISODuration(item.ContentDetails.Duration),
	}, nil
}

func (c *Client) durationsByID(ctx context.Context, ids []string) (map[string]string, error) {
	params := url.Values{
		"part": {"contentDetails"},
		"id":   {strings.Join(ids, ",")},
	}

	var list videoListResponse
	if err := c.getJSON(ctx, "/videos", params, &list); err != nil {
		return nil, err
	}

	durations := make(map[string]string, len(list.Items))
	for _, item := range list.Items {
		durations[item.ID] = formatISODuration(item.ContentDetails.Duration)
	}
	return durations, nil
}

// getJSON performs one provider call, rotating credentials on quota
// rejections. Only a 403 advances the rotation; transport failures and
// other statuses fail the call immediately.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if len(c.keys) == 0 {
		return errors.New("no search credentials configured")
	}

	total := attemptsPerKey * len(c.keys)
	for attempt := 0; attempt < total; attempt++ {
		key := c.keys[int(c.next.Add(1)-1)%len(c.keys)]

		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("key", key)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return fmt.Errorf("failed to build provider request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("provider request failed: %w", err)
		}

		if resp.StatusCode == http.StatusForbidden {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.log.Warn("search credential rejected, rotating",
				"attempt", attempt+1,
				"of", total,
			)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("provider returned status %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
		return nil
	}

	return ErrQuotaExceeded
}

// formatISODuration turns an ISO-8601 duration (PT1H2M3S) into the
// pre-formatted display form the queue stores ("1:02:03", "4:05").
// Malformed input renders as "0:00".
func formatISODuration(iso string) string {
	rest, ok := strings.CutPrefix(iso, "PT")
	if !ok {
		return "0:00"
	}

	var hours, minutes, seconds int
	num := 0
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
		case r == 'H':
			hours, num = num, 0
		case r == 'M':
			minutes, num = num, 0
		case r == 'S':
			seconds, num = num, 0
		default:
			return "0:00"
		}
	}

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
