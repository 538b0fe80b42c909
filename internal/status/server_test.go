package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zkbstore/internal/killmail"
	"github.com/roach88/zkbstore/internal/pipeline"
	"github.com/roach88/zkbstore/internal/store"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Persist(context.Background(), killmail.MustFingerprint(fmt.Sprintf("%040x", 100)),
		killmail.Header{KillmailID: 100, KillmailTime: "2021-10-01T00:00:00Z", SolarSystemID: 30000142},
		[]killmail.Participant{
			{CharacterID: killmail.Int64(1), ShipTypeID: killmail.Int64(99), Damage: 500, IsVictim: true},
			{CharacterID: killmail.Int64(2), Damage: 500},
		})
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

type fixedCounters pipeline.Snapshot

func (f fixedCounters) Snapshot() pipeline.Snapshot { return pipeline.Snapshot(f) }

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) Ping(context.Context) error { return errors.New("database is locked") }
func (brokenStore) Stats(context.Context) (killmail.Counts, error) {
	return killmail.Counts{}, errors.New("database is locked")
}
func (brokenStore) KillmailByID(context.Context, int64) (killmail.Detail, error) {
	return killmail.Detail{}, errors.New("database is locked")
}

func TestHealth(t *testing.T) {
	w := get(t, NewRouter(brokenStore{}, nil), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReady(t *testing.T) {
	w := get(t, NewRouter(seededStore(t), nil), "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())

	w = get(t, NewRouter(brokenStore{}, nil), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not_ready")
}

func TestStats(t *testing.T) {
	r := NewRouter(seededStore(t), fixedCounters{Received: 3, Stored: 1, Seen: 2})

	w := get(t, r, "/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Store    killmail.Counts   `json:"store"`
		Pipeline pipeline.Snapshot `json:"pipeline"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, killmail.Counts{Killmails: 1, Participants: 2, Hashes: 1}, body.Store)
	assert.Equal(t, int64(3), body.Pipeline.Received)
	assert.Equal(t, int64(2), body.Pipeline.Seen)
}

func TestStats_WithoutPipeline(t *testing.T) {
	w := get(t, NewRouter(seededStore(t), nil), "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "pipeline")
}

func TestStats_StoreFailure(t *testing.T) {
	w := get(t, NewRouter(brokenStore{}, nil), "/stats")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestKillmailByID(t *testing.T) {
	r := NewRouter(seededStore(t), nil)

	w := get(t, r, "/killmails/100")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"header": {"killmail_id": 100, "killmail_time": "2021-10-01T00:00:00Z", "solar_system_id": 30000142},
		"participants": [
			{"character_id": 1, "corporation_id": null, "alliance_id": null, "ship_type_id": 99, "damage": 500, "is_victim": true},
			{"character_id": 2, "corporation_id": null, "alliance_id": null, "ship_type_id": null, "damage": 500, "is_victim": false}
		]
	}`, w.Body.String())
}

func TestKillmailByID_Errors(t *testing.T) {
	r := NewRouter(seededStore(t), nil)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/killmails/101").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/killmails/abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/killmails/-1").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, NewRouter(brokenStore{}, nil), "/killmails/1").Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, addr, NewRouter(brokenStore{}, nil), slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
