// Package feed pulls listings from the marketplace listing feed.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"listingqty/internal"
	"listingqty/internal/cleaner"
	"listingqty/internal/config"
	"listingqty/internal/logging"
)

const maxAttempts = 5

var ErrMissingToken = errors.New("missing FEED_API_TOKEN")

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *zap.Logger
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type scrollPayload struct {
	Listings []map[string]any `json:"listings"`
	ScrollID *string          `json:"scrollId"`
	Total    *int             `json:"total"`
}

func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.FeedTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.FeedRateLimitRPS),
		logger:     logging.OrNop(logger),
	}
}

// ScrollAll walks the whole feed.
func (c *Client) ScrollAll(ctx context.Context) ([]internal.FeedListing, error) {
	return c.scroll(ctx, map[string]string{})
}

// ScrollUpdated walks listings changed in the last hours.
func (c *Client) ScrollUpdated(ctx context.Context, hours int) ([]internal.FeedListing, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("lookback must be positive, got %d hours", hours)
	}
	return c.scroll(ctx, map[string]string{"updatedSinceHours": strconv.Itoa(hours)})
}

func (c *Client) scroll(ctx context.Context, params map[string]string) ([]internal.FeedListing, error) {
	all := make([]internal.FeedListing, 0)
	seen := map[string]struct{}{}
	var scrollID string

	for {
		query := map[string]string{"pageSize": strconv.Itoa(c.cfg.FeedScrollPageSize)}
		for k, v := range params {
			query[k] = v
		}
		if scrollID != "" {
			query["scrollId"] = scrollID
		}

		body, err := c.fetchJSON(ctx, "listings/scroll", query)
		if err != nil {
			return nil, err
		}

		var payload scrollPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode scroll page: %w", err)
		}

		for _, raw := range payload.Listings {
			listing, err := toFeedListing(raw)
			if err != nil {
				c.logger.Debug("feed listing skipped", zap.Error(err))
				continue
			}
			all = append(all, listing)
		}

		if payload.ScrollID == nil || *payload.ScrollID == "" || len(payload.Listings) == 0 {
			break
		}
		if _, ok := seen[*payload.ScrollID]; ok {
			break
		}
		seen[*payload.ScrollID] = struct{}{}
		scrollID = *payload.ScrollID
	}

	return all, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.FeedAPIToken) == "" {
		return nil, ErrMissingToken
	}

	baseURL := strings.TrimRight(c.cfg.FeedAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.FeedAPIToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				c.logger.Warn("feed request retry",
					zap.String("endpoint", endpoint),
					zap.Int("status", resp.StatusCode),
					zap.Int("attempt", attempt),
					zap.Duration("backoff", backoff))
				if err := sleepCtx(ctx, backoff); err != nil {
					return nil, err
				}
				lastErr = fmt.Errorf("feed status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("feed api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("feed api unsuccessful: %s %s", apiResp.Message, string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("feed request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// leadingFields open every feed record, in this order.
var leadingFields = []string{"title", "description"}

func toFeedListing(raw map[string]any) (internal.FeedListing, error) {
	id, ok := toID(raw["id"])
	if !ok {
		return internal.FeedListing{}, errors.New("missing id")
	}
	title, _ := raw["title"].(string)
	title = strings.TrimSpace(title)
	if title == "" {
		return internal.FeedListing{}, fmt.Errorf("listing %s: empty title", id)
	}

	var rec cleaner.Record
	for _, key := range leadingFields {
		if v, ok := toScalar(raw[key]); ok {
			rec.Set(key, v)
		}
	}
	rest := make([]string, 0, len(raw))
	for key := range raw {
		if key == "id" || key == "updatedAt" || contains(leadingFields, key) {
			continue
		}
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		if v, ok := toScalar(raw[key]); ok {
			rec.Set(key, v)
		}
	}

	rawJSON, _ := json.Marshal(raw)
	return internal.FeedListing{
		ExternalID: id,
		Title:      title,
		Record:     rec,
		UpdatedAt:  toStringPtr(raw["updatedAt"]),
		RawJSON:    string(rawJSON),
	}, nil
}

func toID(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// toScalar renders strings, numbers and booleans; nested values are skipped.
func toScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func toStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
