package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const BaseURL = "https://www.strava.com/api/v3"

// pageSize is the largest per_page Strava accepts
const pageSize = 100

// maxErrorBody caps how much of a failed response is kept in APIError
const maxErrorBody = 4 << 10

// Client reads one athlete's activities from the Strava API
type Client struct {
	baseURL string
	http    *http.Client
	limiter *RateLimiter
}

// NewClient creates a client authorized by tokenSource. Clients for different
// users should share one limiter because Strava meters the application.
func NewClient(tokenSource oauth2.TokenSource, limiter *RateLimiter) *Client {
	if limiter == nil {
		limiter = NewRateLimiter()
	}
	return &Client{
		baseURL: BaseURL,
		http:    oauth2.NewClient(context.Background(), tokenSource),
		limiter: limiter,
	}
}

// WithBaseURL points the client at another API root
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// APIError is a non-200 Strava response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava API error %d: %s", e.StatusCode, e.Body)
}

// GetActivities fetches one page of activities started after 'after' (zero means all)
func (c *Client) GetActivities(ctx context.Context, after time.Time, page, perPage int) ([]Activity, error) {
	params := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}

	var activities []Activity
	if err := c.getJSON(ctx, "/athlete/activities", params, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// GetAllActivities pages through every activity after 'after'.
// On error the pages fetched so far are returned with it.
func (c *Client) GetAllActivities(ctx context.Context, after time.Time, onProgress func(fetched int)) ([]Activity, error) {
	var all []Activity
	for page := 1; ; page++ {
		batch, err := c.GetActivities(ctx, after, page, pageSize)
		if err != nil {
			return all, fmt.Errorf("fetching page %d: %w", page, err)
		}
		all = append(all, batch...)
		if len(batch) > 0 && onProgress != nil {
			onProgress(len(all))
		}
		if len(batch) < pageSize {
			return all, nil
		}
	}
}

// RateLimitStatus returns the requests left in the short and daily windows
func (c *Client) RateLimitStatus() (shortRemaining, dailyRemaining int) {
	return c.limiter.Status()
}

// getJSON waits for the limiter, issues a GET and decodes a 200 body into dst
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.limiter.UpdateFromHeaders(resp.Header)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
