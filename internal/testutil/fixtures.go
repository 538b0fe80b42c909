package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/zkbstore/internal/killmail"
)

// Victim describes the victim of a fixture killmail.
type Victim struct {
	CharacterID   *int64 `json:"character_id,omitempty"`
	CorporationID *int64 `json:"corporation_id,omitempty"`
	AllianceID    *int64 `json:"alliance_id,omitempty"`
	ShipTypeID    *int64 `json:"ship_type_id,omitempty"`
	DamageTaken   int64  `json:"damage_taken"`
}

// Attacker describes one attacker of a fixture killmail.
type Attacker struct {
	CharacterID   *int64 `json:"character_id,omitempty"`
	CorporationID *int64 `json:"corporation_id,omitempty"`
	AllianceID    *int64 `json:"alliance_id,omitempty"`
	ShipTypeID    *int64 `json:"ship_type_id,omitempty"`
	DamageDone    int64  `json:"damage_done"`
	FinalBlow     bool   `json:"final_blow"`
	IsVictim      bool   `json:"is_victim,omitempty"`
}

// Killmail is an ESI killmail document builder.
type Killmail struct {
	KillmailID    int64      `json:"killmail_id"`
	KillmailTime  string     `json:"killmail_time"`
	SolarSystemID int64      `json:"solar_system_id"`
	Victim        Victim     `json:"victim"`
	Attackers     []Attacker `json:"attackers"`
}

// JSON encodes the document. Panics on failure (fixtures are static).
func (k Killmail) JSON() []byte {
	b, err := json.Marshal(k)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal fixture: %v", err))
	}
	return b
}

// Scenario returns the reference killmail: victim character 1 in ship 99
// taking 500 damage from attacker character 2 in system 30000142.
func Scenario(id int64) Killmail {
	return Killmail{
		KillmailID:    id,
		KillmailTime:  "2021-10-01T00:00:00Z",
		SolarSystemID: 30000142,
		Victim: Victim{
			CharacterID: killmail.Int64(1),
			ShipTypeID:  killmail.Int64(99),
			DamageTaken: 500,
		},
		Attackers: []Attacker{
			{CharacterID: killmail.Int64(2), DamageDone: 500, FinalBlow: true},
		},
	}
}

// Hash returns a valid ESI hash derived from seed.
func Hash(seed int64) string {
	return fmt.Sprintf("%040x", seed)
}

// Event returns an event for id whose hash is derived from id.
func Event(id int64) killmail.Event {
	return killmail.Event{KillmailID: id, Hash: Hash(id)}
}

// Fingerprint returns the fingerprint of Event(id).
func Fingerprint(id int64) killmail.Fingerprint {
	return killmail.MustFingerprint(Hash(id))
}

// OK is a scripted success response carrying k.
func OK(k Killmail) Response {
	return Response{Body: k.JSON()}
}
