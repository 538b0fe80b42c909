// Package esi fetches full killmail documents from EVE Swagger Interface.
package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/zkbstore/internal/killmail"
)

// DefaultBaseURL is the public ESI endpoint.
const DefaultBaseURL = "https://esi.evetech.net/latest"

// maxBodySize bounds a killmail response. Real documents are a few KiB.
const maxBodySize = 4 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the ESI root; killmails are fetched from
	// {BaseURL}/killmails/{id}/{hash}/.
	BaseURL string

	// UserAgent identifies the caller to ESI.
	UserAgent string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxAttempts is the number of attempts before a transient failure
	// is surfaced. Values below 1 mean 1.
	MaxAttempts int

	// InitialBackoff is the wait after the first failed attempt; each
	// further wait doubles up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// HTTPClient is used for requests. Defaults to a client without a
	// global timeout (Timeout is applied per attempt).
	HTTPClient *http.Client

	Logger *slog.Logger
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		BaseURL:        DefaultBaseURL,
		UserAgent:      "zkbstore",
		Timeout:        10 * time.Second,
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// Client is the Enricher: it turns an event into its full Record.
type Client struct {
	opts   Options
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client. Zero fields of opts fall back to DefaultOptions.
func New(opts Options) *Client {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{opts: opts, http: httpClient, logger: logger}
}

// Fetch retrieves the killmail named by ev.
//
// Network errors, timeouts, 5xx, 420 and 429 responses are retried with
// exponential backoff; when attempts run out a TransientError is returned.
// Other 4xx responses and bodies that are not JSON are PermanentErrors and
// are never retried. Cancelling ctx aborts the fetch with a TransientError.
func (c *Client) Fetch(ctx context.Context, ev killmail.Event) (killmail.Record, error) {
	hash, err := killmail.NormalizeHash(ev.Hash)
	if err != nil {
		return killmail.Record{}, killmail.NewPermanent(killmail.StageEnrich, ev.KillmailID, "invalid hash", err)
	}
	if ev.KillmailID <= 0 {
		return killmail.Record{}, killmail.NewPermanent(killmail.StageEnrich, ev.KillmailID, "invalid killmail id", nil)
	}

	url := fmt.Sprintf("%s/killmails/%d/%s/", c.opts.BaseURL, ev.KillmailID, hash)
	backoff := c.opts.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Debug("retrying killmail fetch",
				"killmail_id", ev.KillmailID,
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr,
			)
			if err := sleep(ctx, backoff); err != nil {
				return killmail.Record{}, killmail.NewTransient(killmail.StageEnrich, ev.KillmailID, "fetch cancelled", err)
			}
			backoff = min(backoff*2, c.opts.MaxBackoff)
		}

		body, err := c.fetchOnce(ctx, ev.KillmailID, url)
		if err == nil {
			if !json.Valid(body) {
				return killmail.Record{}, killmail.NewPermanent(killmail.StageEnrich, ev.KillmailID, "response is not JSON", nil)
			}
			return killmail.Record{KillmailID: ev.KillmailID, Hash: hash, Body: body}, nil
		}
		if killmail.IsPermanent(err) {
			return killmail.Record{}, err
		}
		if ctx.Err() != nil {
			return killmail.Record{}, killmail.NewTransient(killmail.StageEnrich, ev.KillmailID, "fetch cancelled", ctx.Err())
		}
		lastErr = err
	}

	return killmail.Record{}, killmail.NewTransient(killmail.StageEnrich, ev.KillmailID,
		fmt.Sprintf("gave up after %d attempts", c.opts.MaxAttempts), lastErr)
}

// fetchOnce performs a single GET bounded by the per-attempt timeout.
func (c *Client) fetchOnce(ctx context.Context, killmailID int64, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, killmail.NewPermanent(killmail.StageEnrich, killmailID, "build request", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, killmail.NewTransient(killmail.StageEnrich, killmailID, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, killmail.NewTransient(killmail.StageEnrich, killmailID, "read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case retryableStatus(resp.StatusCode):
		return nil, killmail.NewTransient(killmail.StageEnrich, killmailID,
			"unexpected status", &StatusError{Code: resp.StatusCode})
	default:
		return nil, killmail.NewPermanent(killmail.StageEnrich, killmailID,
			"unexpected status", &StatusError{Code: resp.StatusCode})
	}
}

// StatusError carries a non-200 HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d %s", e.Code, http.StatusText(e.Code))
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// retryableStatus reports whether a response status is worth retrying.
// 420 is ESI's error-limit status.
func retryableStatus(code int) bool {
	return code >= 500 || code == 420 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
