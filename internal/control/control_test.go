package control

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zkbstore/internal/killmail"
)

func quietListener() *Listener {
	return NewListener(nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    Command
		ok      bool
	}{
		{"quit", Quit, true},
		{" QUIT\n", Quit, true},
		{"Quit", Quit, true},
		{"restart", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, ok := ParseCommand(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatch_QuitCancels(t *testing.T) {
	l := quietListener()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := make(chan *redis.Message, 3)
	msgs <- &redis.Message{Channel: DefaultChannel, Payload: "hello"}
	msgs <- &redis.Message{Channel: DefaultChannel, Payload: "quit"}
	msgs <- &redis.Message{Channel: DefaultChannel, Payload: "never read"}

	require.NoError(t, l.watch(ctx, msgs, cancel))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Len(t, msgs, 1, "watch stops at quit")
}

func TestWatch_ReturnsOnContextDone(t *testing.T) {
	l := quietListener()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	stopped := false
	err := l.watch(ctx, make(chan *redis.Message), func() { stopped = true })
	assert.NoError(t, err)
	assert.False(t, stopped)
}

func TestWatch_ClosedChannel(t *testing.T) {
	l := quietListener()
	msgs := make(chan *redis.Message)
	close(msgs)

	assert.NoError(t, l.watch(context.Background(), msgs, func() {}))
}

func TestConnect(t *testing.T) {
	client, err := Connect("redis://:secret@localhost:6390/2")
	require.NoError(t, err)
	defer client.Close()

	opts := client.Options()
	assert.Equal(t, "localhost:6390", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)

	_, err = Connect("http://localhost")
	assert.Error(t, err)
}

func TestListen_UnreachableIsConnectivity(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewListener(client, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := l.Listen(ctx, func() {})
	require.Error(t, err)
	assert.True(t, killmail.IsConnectivity(err))
}

// TestListen_Redis runs against a real server when ZKB_TEST_REDIS_URL is set.
func TestListen_Redis(t *testing.T) {
	url := os.Getenv("ZKB_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ZKB_TEST_REDIS_URL not set")
	}
	client, err := Connect(url)
	require.NoError(t, err)
	defer client.Close()

	channel := "zkb/test/" + time.Now().Format("150405.000000")
	l := NewListener(client, channel, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Listen(ctx, cancel) }()

	require.Eventually(t, func() bool {
		n, err := Publish(context.Background(), client, channel, Quit)
		return err == nil && n > 0
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, <-done)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
