package pgstore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zkbstore/internal/killmail"
)

// openTestStore connects to ZKB_TEST_POSTGRES_URL and empties the tables.
// Tests are skipped when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("ZKB_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ZKB_TEST_POSTGRES_URL not set")
	}

	s, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.pool.Exec(context.Background(), `TRUNCATE participants, killmails, hashes`)
	require.NoError(t, err)
	return s
}

func fingerprint(seed int64) killmail.Fingerprint {
	return killmail.MustFingerprint(fmt.Sprintf("%040x", seed))
}

func scenario(id int64) (killmail.Header, []killmail.Participant) {
	return killmail.Header{KillmailID: id, KillmailTime: "2021-10-01T00:00:00Z", SolarSystemID: 30000142},
		[]killmail.Participant{
			{CharacterID: killmail.Int64(1), ShipTypeID: killmail.Int64(99), Damage: 500, IsVictim: true},
			{CharacterID: killmail.Int64(2), Damage: 500},
		}
}

func TestPersist_Scenario100(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h, parts := scenario(100)

	outcome, err := s.Persist(ctx, fingerprint(0xAB), h, parts)
	require.NoError(t, err)
	assert.Equal(t, killmail.OutcomeStored, outcome)

	d, err := s.KillmailByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, h, d.Header)
	assert.Equal(t, parts, d.Participants)

	c, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, killmail.Counts{Killmails: 1, Participants: 2, Hashes: 1}, c)
}

func TestPersist_Redelivery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h, parts := scenario(100)

	_, err := s.Persist(ctx, fingerprint(0xAB), h, parts)
	require.NoError(t, err)

	outcome, err := s.Persist(ctx, fingerprint(0xAB), h, parts)
	require.NoError(t, err)
	assert.Equal(t, killmail.OutcomeDuplicate, outcome)

	outcome, err = s.Persist(ctx, fingerprint(0xAC), h, parts)
	require.NoError(t, err)
	assert.Equal(t, killmail.OutcomeHeaderExists, outcome)

	c, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, killmail.Counts{Killmails: 1, Participants: 2, Hashes: 2}, c)
}

func TestPersist_ConcurrentSameFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h, parts := scenario(7)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Persist(ctx, fingerprint(7), h, parts)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, killmail.Counts{Killmails: 1, Participants: 2, Hashes: 1}, c)
}

func TestSeen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seen, err := s.Seen(ctx, fingerprint(1))
	require.NoError(t, err)
	assert.False(t, seen)

	h, parts := scenario(1)
	_, err = s.Persist(ctx, fingerprint(1), h, parts)
	require.NoError(t, err)

	seen, err = s.Seen(ctx, fingerprint(1))
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestKillmailByID_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.KillmailByID(context.Background(), 1)
	assert.ErrorIs(t, err, killmail.ErrNotFound)
}

func TestClassifyWriteError(t *testing.T) {
	s := openTestStore(t)

	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO participants (killmail_id, character_id, damage, is_victim)
		VALUES (404, 1, 0, 1)
	`)
	require.Error(t, err)
	assert.True(t, killmail.IsIntegrity(classifyWriteError(404, "insert participant 0", err)))
}

func TestVictimFlag(t *testing.T) {
	assert.Equal(t, 1, victimFlag(true))
	assert.Equal(t, 0, victimFlag(false))
}
