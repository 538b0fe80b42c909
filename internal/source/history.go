package source

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/zkbstore/internal/killmail"
)

// DefaultHistoryURL is the root of zKillboard's daily history listings.
const DefaultHistoryURL = "https://zkillboard.com/api/history"

// HistoryOptions configures a History source.
type HistoryOptions struct {
	BaseURL string

	// First and Last are the inclusive day range, in UTC.
	First time.Time
	Last  time.Time

	// Concurrency is the number of days fetched at once.
	Concurrency int

	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// History replays zKillboard daily listings, newest day first and, within
// a day, highest killmail id first.
type History struct {
	opts   HistoryOptions
	logger *slog.Logger
}

// NewHistory creates a History source.
func NewHistory(opts HistoryOptions) (*History, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultHistoryURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.First = truncateDay(opts.First)
	opts.Last = truncateDay(opts.Last)
	if opts.First.IsZero() || opts.Last.IsZero() {
		return nil, fmt.Errorf("history: first and last day are required")
	}
	if opts.Last.Before(opts.First) {
		return nil, fmt.Errorf("history: last day %s is before first day %s",
			opts.Last.Format(time.DateOnly), opts.First.Format(time.DateOnly))
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 3
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &History{opts: opts, logger: logger}, nil
}

// Days returns the days to replay, newest first.
func (h *History) Days() []time.Time {
	var days []time.Time
	for d := h.opts.Last; !d.Before(h.opts.First); d = d.AddDate(0, 0, -1) {
		days = append(days, d)
	}
	return days
}

// Run fetches days in batches of Concurrency and emits their events in
// order. A day that cannot be fetched is logged and skipped.
func (h *History) Run(ctx context.Context, out chan<- killmail.Event) error {
	days := h.Days()
	for start := 0; start < len(days); start += h.opts.Concurrency {
		batch := days[start:min(start+h.opts.Concurrency, len(days))]

		results := make([][]killmail.Event, len(batch))
		var wg sync.WaitGroup
		for i, day := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				events, err := h.fetchDay(ctx, day)
				if err != nil {
					h.logger.Warn("skipping history day",
						"day", day.Format(time.DateOnly),
						"error", err,
					)
					return
				}
				results[i] = events
			}()
		}
		wg.Wait()

		for i, events := range results {
			h.logger.Info("replaying history day",
				"day", batch[i].Format(time.DateOnly),
				"events", len(events),
			)
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return nil
}

// fetchDay retrieves {BaseURL}/YYYYMMDD.json, a map of id to hash.
func (h *History) fetchDay(ctx context.Context, day time.Time) ([]killmail.Event, error) {
	url := fmt.Sprintf("%s/%s.json", h.opts.BaseURL, day.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if h.opts.UserAgent != "" {
		req.Header.Set("User-Agent", h.opts.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, killmail.NewConnectivity(killmail.StageSource, "fetch history", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch history %s: status %d", day.Format(time.DateOnly), resp.StatusCode)
	}

	var listing map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", day.Format(time.DateOnly), err)
	}

	events := make([]killmail.Event, 0, len(listing))
	for idText, hash := range listing {
		id, err := strconv.ParseInt(idText, 10, 64)
		if err != nil || id <= 0 {
			h.logger.Warn("dropping history entry", "day", day.Format(time.DateOnly), "killmail_id", idText)
			continue
		}
		hash, err := killmail.NormalizeHash(hash)
		if err != nil {
			h.logger.Warn("dropping history entry", "killmail_id", id, "error", err)
			continue
		}
		events = append(events, killmail.Event{KillmailID: id, Hash: hash})
	}

	slices.SortFunc(events, func(a, b killmail.Event) int {
		return cmp.Compare(b.KillmailID, a.KillmailID)
	})
	return events, nil
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
