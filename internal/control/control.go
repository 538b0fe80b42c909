// Package control carries out-of-band commands to running instances over
// Redis pub/sub.
//
// A running pipeline listens on a channel (zkb/commands by default); the
// quit command cancels its context, the same way SIGINT does.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/zkbstore/internal/killmail"
)

// DefaultChannel is the pub/sub channel commands are published on.
const DefaultChannel = "zkb/commands"

// Command is a control message payload.
type Command string

const (
	// Quit asks every listening instance to stop.
	Quit Command = "quit"
)

// ParseCommand normalizes a payload. Unknown payloads return false.
func ParseCommand(payload string) (Command, bool) {
	switch Command(strings.ToLower(strings.TrimSpace(payload))) {
	case Quit:
		return Quit, true
	default:
		return "", false
	}
}

// Connect parses a redis:// URL and returns a client.
func Connect(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("control: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Listener waits for commands on one channel.
type Listener struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewListener creates a Listener. An empty channel means DefaultChannel.
func NewListener(client *redis.Client, channel string, logger *slog.Logger) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{client: client, channel: channel, logger: logger}
}

// Listen subscribes and calls stop when a quit command arrives. It returns
// nil after quit or when ctx is done, and a ConnectivityError if the
// subscription cannot be established. Callers treat that error as a lost
// control channel, not as a reason to stop ingesting.
func (l *Listener) Listen(ctx context.Context, stop context.CancelFunc) error {
	sub := l.client.Subscribe(ctx, l.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return killmail.NewConnectivity(killmail.StageControl, "subscribe "+l.channel, err)
	}
	l.logger.Info("listening for commands", "channel", l.channel)

	return l.watch(ctx, sub.Channel(), stop)
}

// watch dispatches messages until quit, ctx cancellation or channel close.
func (l *Listener) watch(ctx context.Context, msgs <-chan *redis.Message, stop context.CancelFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			cmd, known := ParseCommand(msg.Payload)
			if !known {
				l.logger.Warn("ignoring unknown command", "channel", msg.Channel, "payload", msg.Payload)
				continue
			}
			l.logger.Info("command received", "channel", msg.Channel, "command", string(cmd))
			if cmd == Quit {
				stop()
				return nil
			}
		}
	}
}

// Publish sends cmd on channel and returns the number of listeners that
// received it.
func Publish(ctx context.Context, client *redis.Client, channel string, cmd Command) (int64, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	n, err := client.Publish(ctx, channel, string(cmd)).Result()
	if err != nil {
		return 0, killmail.NewConnectivity(killmail.StageControl, "publish "+channel, err)
	}
	return n, nil
}
