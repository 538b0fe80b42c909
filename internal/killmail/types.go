package killmail

// Event is a raw announcement taken from an event source.
//
// Hash is the ESI content hash published alongside the id. It is the only
// part of the event the fingerprint is derived from.
type Event struct {
	KillmailID int64  `json:"killmail_id"`
	Hash       string `json:"hash"`
	Raw        []byte `json:"-"` // Envelope bytes as received
}

// Record is the full killmail document returned by the content source.
// Body holds the undecoded JSON; Parse validates and decomposes it.
type Record struct {
	KillmailID int64  `json:"killmail_id"`
	Hash       string `json:"hash"`
	Body       []byte `json:"-"`
}

// Header is the killmails row.
type Header struct {
	KillmailID    int64  `json:"killmail_id"`
	KillmailTime  string `json:"killmail_time"` // RFC 3339, UTC
	SolarSystemID int64  `json:"solar_system_id"`
}

// Participant is a participants row. Optional ids are nil when the source
// omits them (NPC attackers, structures, characters without alliance).
type Participant struct {
	CharacterID   *int64 `json:"character_id"`
	CorporationID *int64 `json:"corporation_id"`
	AllianceID    *int64 `json:"alliance_id"`
	ShipTypeID    *int64 `json:"ship_type_id"`
	Damage        int64  `json:"damage"`
	IsVictim      bool   `json:"is_victim"`
}

// Outcome reports what a successful Persist did.
type Outcome int

const (
	// OutcomeStored means header, participants and dedup record were committed.
	OutcomeStored Outcome = iota + 1
	// OutcomeDuplicate means the fingerprint was already recorded; nothing changed.
	OutcomeDuplicate
	// OutcomeHeaderExists means the header id was already present under a
	// different fingerprint. Only the dedup record was written.
	OutcomeHeaderExists
)

// String returns the snake_case name used in logs and status output.
func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeHeaderExists:
		return "header_exists"
	default:
		return "unknown"
	}
}

// Int64 returns a pointer to v. Used for optional participant ids.
func Int64(v int64) *int64 {
	return &v
}

// Detail is a persisted killmail read back with its participants,
// victim first.
type Detail struct {
	Header       Header        `json:"header"`
	Participants []Participant `json:"participants"`
}

// Counts holds table row counts of a store.
type Counts struct {
	Killmails    int64 `json:"killmails" db:"killmails"`
	Participants int64 `json:"participants" db:"participants"`
	Hashes       int64 `json:"hashes" db:"hashes"`
}
