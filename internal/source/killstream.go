package source

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/zkbstore/internal/killmail"
)

// DefaultKillstreamURL is zKillboard's public websocket.
const DefaultKillstreamURL = "wss://zkillboard.com/websocket/"

const writeTimeout = 10 * time.Second

// KillstreamOptions configures a Killstream.
type KillstreamOptions struct {
	URL     string
	Channel string // subscription channel, "killstream" by default

	// ReadTimeout is how long a connection may stay silent before it is
	// considered dead and replaced.
	ReadTimeout time.Duration

	// MinBackoff and MaxBackoff bound the wait between reconnects.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	UserAgent string
	Dialer    *websocket.Dialer
	Logger    *slog.Logger
}

// Killstream follows the zKillboard websocket feed.
type Killstream struct {
	opts   KillstreamOptions
	logger *slog.Logger
}

// NewKillstream creates a Killstream. Zero options get defaults.
func NewKillstream(opts KillstreamOptions) *Killstream {
	if opts.URL == "" {
		opts.URL = DefaultKillstreamURL
	}
	if opts.Channel == "" {
		opts.Channel = "killstream"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * time.Minute
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(opts.MinBackoff, time.Minute)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Killstream{opts: opts, logger: logger}
}

// Run streams events to out until ctx is cancelled. Disconnects are logged
// and followed by a reconnect; they never end Run.
func (k *Killstream) Run(ctx context.Context, out chan<- killmail.Event) error {
	backoff := k.opts.MinBackoff
	for {
		delivered, err := k.session(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if delivered > 0 {
			backoff = k.opts.MinBackoff
		}

		k.logger.Warn("killstream disconnected",
			"url", k.opts.URL,
			"delivered", delivered,
			"retry_in", backoff,
			"error", err,
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, k.opts.MaxBackoff)
	}
}

// session runs one connection and returns the number of events delivered.
func (k *Killstream) session(ctx context.Context, out chan<- killmail.Event) (int, error) {
	hdr := http.Header{}
	if k.opts.UserAgent != "" {
		hdr.Set("User-Agent", k.opts.UserAgent)
	}

	conn, _, err := k.opts.Dialer.DialContext(ctx, k.opts.URL, hdr)
	if err != nil {
		return 0, killmail.NewConnectivity(killmail.StageSource, "dial", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	sub := map[string]string{"action": "sub", "channel": k.opts.Channel}
	if err := conn.WriteJSON(sub); err != nil {
		return 0, killmail.NewConnectivity(killmail.StageSource, "subscribe", err)
	}
	k.logger.Info("killstream subscribed", "url", k.opts.URL, "channel", k.opts.Channel)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(k.opts.ReadTimeout))
	})

	delivered := 0
	for {
		conn.SetReadDeadline(time.Now().Add(k.opts.ReadTimeout))
		op, data, err := conn.ReadMessage()
		if err != nil {
			return delivered, killmail.NewConnectivity(killmail.StageSource, "read", err)
		}
		if op != websocket.TextMessage {
			continue
		}

		ev, err := DecodeEnvelope(data)
		if err != nil {
			k.logger.Warn("dropping malformed killstream message",
				"error", err,
				"size", len(data),
			)
			continue
		}

		select {
		case out <- ev:
			delivered++
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}
