package testutil

import "sync/atomic"

// FixedRunID hands out the same run id every time and counts the calls.
//
// Implements pipeline.RunIDGenerator, so log output of a test run carries a
// predictable run_id.
type FixedRunID struct {
	id    string
	calls atomic.Int64
}

// NewFixedRunID creates a generator for id. An empty id becomes "test-run".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunID) Generate() string {
	g.calls.Add(1)
	return g.id
}

// Calls returns how many runs were started.
func (g *FixedRunID) Calls() int64 {
	return g.calls.Load()
}
