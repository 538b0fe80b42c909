// Package source adapts zKillboard feeds into killmail events.
//
// Killstream follows the live websocket feed and reconnects on failure.
// History replays zKillboard's daily id/hash listings for backfills.
// Slice emits a fixed list and is used by tests and replays.
package source

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/zkbstore/internal/killmail"
)

// envelope is the killstream message shape. Older feeds put the hash at
// the top level; the current one nests it under "zkb".
type envelope struct {
	KillmailID int64  `json:"killmail_id"`
	Hash       string `json:"hash"`
	ZKB        struct {
		Hash string `json:"hash"`
	} `json:"zkb"`
}

// DecodeEnvelope extracts the killmail id and content hash from a raw
// killstream message.
func DecodeEnvelope(data []byte) (killmail.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return killmail.Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.KillmailID <= 0 {
		return killmail.Event{}, fmt.Errorf("decode envelope: killmail_id missing")
	}

	hash := env.ZKB.Hash
	if hash == "" {
		hash = env.Hash
	}
	hash, err := killmail.NormalizeHash(hash)
	if err != nil {
		return killmail.Event{}, fmt.Errorf("decode envelope: killmail %d: %w", env.KillmailID, err)
	}

	raw := make([]byte, len(data))
	copy(raw, data)
	return killmail.Event{KillmailID: env.KillmailID, Hash: hash, Raw: raw}, nil
}
