// Package onshape is a minimal client for the Onshape REST API. Every
// outbound request is signed with the API key pair; see Signer for the
// canonical string contract.
package onshape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/partforge/partforge/pkg/apperr"
)

// DefaultBaseURL is the public Onshape endpoint.
const DefaultBaseURL = "https://cad.onshape.com"

const maxResponseBytes = 4 << 20

// Config holds client construction options.
type Config struct {
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      zerolog.Logger
}

// Client calls the platform REST API. Transport failures are retried with
// bounded exponential backoff: MaxAttempts total attempts (default 3) with
// RetryDelay doubling between them (default 1s, 2s). Platform rejections
// are never retried.
type Client struct {
	baseURL     string
	signer      *Signer
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
	logger      zerolog.Logger
}

// NewClient validates credentials and returns a ready client. Credential
// problems surface here as configuration errors, before any network I/O.
func NewClient(cfg Config) (*Client, error) {
	signer, err := NewSigner(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		signer:      signer,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      cfg.Logger.With().Str("component", "onshape").Logger(),
	}, nil
}

// request signs and performs one API call, decoding the JSON response into
// out when out is non-nil. Each retry attempt is signed fresh so nonces
// are never reused.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}
	rawQuery := ""
	if len(query) > 0 {
		rawQuery = query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		err := c.do(ctx, method, path, rawQuery, payload, out)
		if err == nil {
			return nil
		}
		if !apperr.IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt < c.maxAttempts-1 {
			delay := c.retryDelay * time.Duration(1<<attempt)
			c.logger.Warn().
				Err(err).
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("transport failure, retrying")
			select {
			case <-ctx.Done():
				return apperr.Wrap(apperr.KindTransport, ctx.Err(), "%s %s aborted", method, path)
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path, rawQuery string, payload []byte, out interface{}) error {
	const contentType = "application/json"

	headers, err := c.signer.Sign(method, path, rawQuery, contentType, payload)
	if err != nil {
		return err
	}

	target := c.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	var reqBody io.Reader
	if len(payload) > 0 {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, err, "reading %s %s response", method, path)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("platform request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Platform(resp.StatusCode, truncate(string(respBody), 1024), "%s %s rejected", method, path)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// Ping verifies connectivity and credentials with a cheap read call.
func (c *Client) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("limit", "1")
	return c.request(ctx, http.MethodGet, "/api/v10/documents", query, nil, nil)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}
