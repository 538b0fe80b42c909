package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/zkbstore/internal/killmail"
)

// MemoryStore is an in-memory pipeline.Store with the same outcomes as the
// SQLite store. A single mutex plays the role of the write transaction.
type MemoryStore struct {
	mu           sync.Mutex
	headers      map[int64]killmail.Header
	participants map[int64][]killmail.Participant
	hashes       map[killmail.Fingerprint]struct{}

	// PersistErr, when set, is returned by every Persist without writing.
	PersistErr error

	persistCalls int
	seenCalls    int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		headers:      make(map[int64]killmail.Header),
		participants: make(map[int64][]killmail.Participant),
		hashes:       make(map[killmail.Fingerprint]struct{}),
	}
}

// Seen reports whether fp is recorded.
func (m *MemoryStore) Seen(ctx context.Context, fp killmail.Fingerprint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seenCalls++
	_, ok := m.hashes[fp]
	return ok, nil
}

// Persist records header, participants and fp atomically.
func (m *MemoryStore) Persist(ctx context.Context, fp killmail.Fingerprint, h killmail.Header, participants []killmail.Participant) (killmail.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if n := killmail.CountVictims(participants); n != 1 {
		return 0, killmail.NewPermanent(killmail.StagePersist, h.KillmailID,
			fmt.Sprintf("want exactly one victim, got %d", n), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistCalls++

	if m.PersistErr != nil {
		return 0, m.PersistErr
	}
	if _, ok := m.hashes[fp]; ok {
		return killmail.OutcomeDuplicate, nil
	}

	outcome := killmail.OutcomeStored
	if _, ok := m.headers[h.KillmailID]; ok {
		outcome = killmail.OutcomeHeaderExists
	} else {
		m.headers[h.KillmailID] = h
		m.participants[h.KillmailID] = dedupParticipants(participants)
	}
	m.hashes[fp] = struct{}{}
	return outcome, nil
}

// dedupParticipants keeps the first row per (character_id, is_victim).
// Rows without a character never collide.
func dedupParticipants(in []killmail.Participant) []killmail.Participant {
	type key struct {
		character int64
		victim    bool
	}
	seen := make(map[key]bool)
	out := make([]killmail.Participant, 0, len(in))
	for _, p := range in {
		if p.CharacterID != nil {
			k := key{*p.CharacterID, p.IsVictim}
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, p)
	}
	return out
}

// Record marks fp as seen without writing rows, as if another instance
// had stored it.
func (m *MemoryStore) Record(fp killmail.Fingerprint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[fp] = struct{}{}
}

// Counts returns row counts in the shape of the SQL stores.
func (m *MemoryStore) Counts() killmail.Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := killmail.Counts{
		Killmails: int64(len(m.headers)),
		Hashes:    int64(len(m.hashes)),
	}
	for _, ps := range m.participants {
		c.Participants += int64(len(ps))
	}
	return c
}

// Header returns the stored header for id.
func (m *MemoryStore) Header(id int64) (killmail.Header, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.headers[id]
	return h, ok
}

// Participants returns the stored participants for id.
func (m *MemoryStore) Participants(id int64) []killmail.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]killmail.Participant(nil), m.participants[id]...)
}

// HasFingerprint reports whether fp is recorded.
func (m *MemoryStore) HasFingerprint(fp killmail.Fingerprint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.hashes[fp]
	return ok
}

// PersistCalls returns how many times Persist reached the write step.
func (m *MemoryStore) PersistCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistCalls
}

// SeenCalls returns how many times Seen was called.
func (m *MemoryStore) SeenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seenCalls
}
