package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/zkbstore/internal/killmail"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testFingerprint derives a valid fingerprint from an integer seed.
func testFingerprint(seed int64) killmail.Fingerprint {
	return killmail.MustFingerprint(fmt.Sprintf("%040x", seed))
}

// scenarioKillmail is the event-100 killmail: victim character 1 in ship 99,
// one attacker character 2, 500 damage each way.
func scenarioKillmail(id int64) (killmail.Header, []killmail.Participant) {
	h := killmail.Header{
		KillmailID:    id,
		KillmailTime:  "2021-10-01T00:00:00Z",
		SolarSystemID: 30000142,
	}
	parts := []killmail.Participant{
		{CharacterID: killmail.Int64(1), ShipTypeID: killmail.Int64(99), Damage: 500, IsVictim: true},
		{CharacterID: killmail.Int64(2), Damage: 500},
	}
	return h, parts
}

// tableCounts returns row counts for all three tables.
func tableCounts(t *testing.T, s *Store) killmail.Counts {
	t.Helper()
	var c killmail.Counts
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM killmails`).Scan(&c.Killmails))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM participants`).Scan(&c.Participants))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM hashes`).Scan(&c.Hashes))
	return c
}
