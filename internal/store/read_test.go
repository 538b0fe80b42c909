package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zkbstore/internal/killmail"
)

func seedReadStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	ctx := context.Background()

	// Character 1 loses a ship at 00:xx, character 2 kills at 00:xx and 13:xx,
	// then loses one at 13:xx.
	h1, p1 := scenarioKillmail(100)
	_, err := s.Persist(ctx, testFingerprint(100), h1, p1)
	require.NoError(t, err)

	h2 := killmail.Header{KillmailID: 101, KillmailTime: "2021-10-01T13:05:00Z", SolarSystemID: 30002187}
	p2 := []killmail.Participant{
		{CharacterID: killmail.Int64(3), Damage: 900, IsVictim: true},
		{CharacterID: killmail.Int64(2), Damage: 900},
	}
	_, err = s.Persist(ctx, testFingerprint(101), h2, p2)
	require.NoError(t, err)

	h3 := killmail.Header{KillmailID: 102, KillmailTime: "2021-10-01T13:40:00Z", SolarSystemID: 30002187}
	p3 := []killmail.Participant{
		{CharacterID: killmail.Int64(2), Damage: 50, IsVictim: true},
		{CorporationID: killmail.Int64(1000125), Damage: 50},
	}
	_, err = s.Persist(ctx, testFingerprint(102), h3, p3)
	require.NoError(t, err)

	return s
}

func TestStats(t *testing.T) {
	s := seedReadStore(t)

	c, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, killmail.Counts{Killmails: 3, Participants: 6, Hashes: 3}, c)
}

func TestStats_Empty(t *testing.T) {
	s := createTestStore(t)

	c, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, killmail.Counts{}, c)
}

func TestKillmailByID(t *testing.T) {
	s := seedReadStore(t)

	d, err := s.KillmailByID(context.Background(), 102)
	require.NoError(t, err)

	assert.Equal(t, killmail.Header{KillmailID: 102, KillmailTime: "2021-10-01T13:40:00Z", SolarSystemID: 30002187}, d.Header)
	require.Len(t, d.Participants, 2)
	assert.True(t, d.Participants[0].IsVictim, "victim first")
	assert.Equal(t, killmail.Int64(2), d.Participants[0].CharacterID)
	assert.Nil(t, d.Participants[1].CharacterID)
	assert.Equal(t, killmail.Int64(1000125), d.Participants[1].CorporationID)
	assert.Nil(t, d.Participants[1].AllianceID)
}

func TestKillmailByID_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.KillmailByID(context.Background(), 1)
	assert.ErrorIs(t, err, killmail.ErrNotFound)
}

func TestWinLoss(t *testing.T) {
	s := seedReadStore(t)
	ctx := context.Background()

	wl, err := s.WinLoss(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, WinLoss{Kills: 2, Losses: 1}, wl)

	wl, err = s.WinLoss(ctx, 999)
	require.NoError(t, err)
	assert.Equal(t, WinLoss{}, wl)
}

func TestHourlyActivity(t *testing.T) {
	s := seedReadStore(t)

	buckets, err := s.HourlyActivity(context.Background(), 2)
	require.NoError(t, err)

	var want [24]int64
	want[0] = 1
	want[13] = 2
	assert.Equal(t, want, buckets)
}
