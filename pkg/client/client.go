// Package client is a small HTTP client for the scoreboard API.
//
// Submit retries transient failures (429, 503) with exponential backoff up to
// a fixed attempt cap before surfacing the failure; the retry loop is an
// explicit bounded loop, never recursion.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/frostline/scoreboard/internal/domain/model"
)

// Default retry schedule.
const (
	defaultMaxAttempts  = 4
	defaultRetryBackoff = 200 * time.Millisecond
)

// Client talks to a scoreboard service instance.
type Client struct {
	baseURL string
	http    *http.Client

	maxAttempts  int
	retryBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithMaxAttempts caps Submit retries (including the first attempt).
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the initial backoff; it doubles per attempt.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 10 * time.Second},
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitResult is the response body of a successful submission.
type SubmitResult struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Scores  []model.ScoreRecord `json:"scores"`
}

// Submit posts a score, retrying on 429 and 503.
func (c *Client) Submit(ctx context.Context, name string, score int, gameTime *int) (*SubmitResult, error) {
	body := map[string]any{"name": name, "score": score}
	if gameTime != nil {
		body["time"] = *gameTime
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	backoff := c.retryBackoff
	var lastStatus int
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scores", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("submit score: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var result SubmitResult
			err := json.NewDecoder(resp.Body).Decode(&result)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
			return &result, nil
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			// Transient; fall through to the next attempt.
			lastStatus = resp.StatusCode
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		default:
			status := resp.StatusCode
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("submit score: unexpected status %d", status)
		}
	}
	return nil, fmt.Errorf("submit score: gave up after %d attempts (last status %d)", c.maxAttempts, lastStatus)
}

// Scores fetches the leaderboard. With all set, every record is returned
// instead of the top-10-per-category view.
func (c *Client) Scores(ctx context.Context, all bool) ([]model.ScoreRecord, error) {
	url := c.baseURL + "/scores"
	if all {
		url += "?all=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch scores: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch scores: unexpected status %d", resp.StatusCode)
	}
	var records []model.ScoreRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return records, nil
}
