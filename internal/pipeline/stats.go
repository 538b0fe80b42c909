package pipeline

import (
	"sync/atomic"

	"github.com/roach88/zkbstore/internal/killmail"
)

// Stats counts what happened to events. All methods are safe for
// concurrent use.
type Stats struct {
	received     atomic.Int64
	seen         atomic.Int64
	stored       atomic.Int64
	duplicates   atomic.Int64
	headerExists atomic.Int64
	transient    atomic.Int64
	permanent    atomic.Int64
	integrity    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Received     int64 `json:"received"`
	Seen         int64 `json:"seen"`          // skipped by the gate
	Stored       int64 `json:"stored"`        // committed as new
	Duplicates   int64 `json:"duplicates"`    // caught at commit time
	HeaderExists int64 `json:"header_exists"` // fingerprint recorded, header kept
	Transient    int64 `json:"transient"`
	Permanent    int64 `json:"permanent"`
	Integrity    int64 `json:"integrity"`
	Failed       int64 `json:"failed"`  // any other error
	Dropped      int64 `json:"dropped"` // abandoned on shutdown
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Received:     s.received.Load(),
		Seen:         s.seen.Load(),
		Stored:       s.stored.Load(),
		Duplicates:   s.duplicates.Load(),
		HeaderExists: s.headerExists.Load(),
		Transient:    s.transient.Load(),
		Permanent:    s.permanent.Load(),
		Integrity:    s.integrity.Load(),
		Failed:       s.failed.Load(),
		Dropped:      s.dropped.Load(),
	}
}

func (s *Stats) recordOutcome(o killmail.Outcome) {
	switch o {
	case killmail.OutcomeStored:
		s.stored.Add(1)
	case killmail.OutcomeDuplicate:
		s.duplicates.Add(1)
	case killmail.OutcomeHeaderExists:
		s.headerExists.Add(1)
	}
}

func (s *Stats) recordError(err error) {
	switch killmail.KindOf(err) {
	case killmail.KindTransient:
		s.transient.Add(1)
	case killmail.KindPermanent:
		s.permanent.Add(1)
	case killmail.KindIntegrity:
		s.integrity.Add(1)
	default:
		s.failed.Add(1)
	}
}
