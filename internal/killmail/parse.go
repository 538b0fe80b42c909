package killmail

import (
	"encoding/json"
	"fmt"
	"time"
)

// esiKillmail mirrors the ESI killmail document. Required numeric fields are
// pointers so a missing field can be told apart from a zero value.
type esiKillmail struct {
	KillmailID    *int64        `json:"killmail_id"`
	KillmailTime  string        `json:"killmail_time"`
	SolarSystemID *int64        `json:"solar_system_id"`
	Victim        *esiVictim    `json:"victim"`
	Attackers     []esiAttacker `json:"attackers"`
}

type esiVictim struct {
	AllianceID    *int64 `json:"alliance_id"`
	CharacterID   *int64 `json:"character_id"`
	CorporationID *int64 `json:"corporation_id"`
	DamageTaken   *int64 `json:"damage_taken"`
	ShipTypeID    *int64 `json:"ship_type_id"`
}

// esiAttacker carries an optional is_victim marker. ESI never sets it, but
// re-published feeds sometimes flatten the victim into the attacker list.
type esiAttacker struct {
	AllianceID    *int64 `json:"alliance_id"`
	CharacterID   *int64 `json:"character_id"`
	CorporationID *int64 `json:"corporation_id"`
	DamageDone    *int64 `json:"damage_done"`
	ShipTypeID    *int64 `json:"ship_type_id"`
	IsVictim      bool   `json:"is_victim"`
}

// Parse validates a full record and decomposes it into a header and its
// participants. Participants keep source order: the victim first, then the
// attackers as listed.
//
// Every failure is a KindPermanent error at StageNormalize.
func Parse(rec Record) (Header, []Participant, error) {
	fail := func(format string, args ...any) (Header, []Participant, error) {
		return Header{}, nil, NewPermanent(StageNormalize, rec.KillmailID, fmt.Sprintf(format, args...), nil)
	}

	var doc esiKillmail
	if err := json.Unmarshal(rec.Body, &doc); err != nil {
		return Header{}, nil, NewPermanent(StageNormalize, rec.KillmailID, "decode record", err)
	}

	if doc.KillmailID == nil {
		return fail("killmail_id missing")
	}
	if rec.KillmailID != 0 && *doc.KillmailID != rec.KillmailID {
		return fail("killmail_id %d does not match requested %d", *doc.KillmailID, rec.KillmailID)
	}

	ts, err := time.Parse(time.RFC3339, doc.KillmailTime)
	if err != nil {
		return fail("killmail_time %q is not a valid RFC 3339 time", doc.KillmailTime)
	}

	if doc.SolarSystemID == nil {
		return fail("solar_system_id missing")
	}

	header := Header{
		KillmailID:    *doc.KillmailID,
		KillmailTime:  ts.UTC().Format(time.RFC3339),
		SolarSystemID: *doc.SolarSystemID,
	}

	participants := make([]Participant, 0, len(doc.Attackers)+1)

	if doc.Victim != nil {
		if doc.Victim.DamageTaken == nil {
			return fail("victim damage_taken missing")
		}
		if *doc.Victim.DamageTaken < 0 {
			return fail("victim damage_taken %d is negative", *doc.Victim.DamageTaken)
		}
		participants = append(participants, Participant{
			CharacterID:   doc.Victim.CharacterID,
			CorporationID: doc.Victim.CorporationID,
			AllianceID:    doc.Victim.AllianceID,
			ShipTypeID:    doc.Victim.ShipTypeID,
			Damage:        *doc.Victim.DamageTaken,
			IsVictim:      true,
		})
	}

	for i, a := range doc.Attackers {
		if a.DamageDone == nil {
			return fail("attacker[%d] damage_done missing", i)
		}
		if *a.DamageDone < 0 {
			return fail("attacker[%d] damage_done %d is negative", i, *a.DamageDone)
		}
		participants = append(participants, Participant{
			CharacterID:   a.CharacterID,
			CorporationID: a.CorporationID,
			AllianceID:    a.AllianceID,
			ShipTypeID:    a.ShipTypeID,
			Damage:        *a.DamageDone,
			IsVictim:      a.IsVictim,
		})
	}

	if n := CountVictims(participants); n != 1 {
		return fail("want exactly one victim, got %d", n)
	}

	return header, participants, nil
}

// CountVictims returns the number of participants flagged as victim.
func CountVictims(participants []Participant) int {
	n := 0
	for _, p := range participants {
		if p.IsVictim {
			n++
		}
	}
	return n
}
