package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/zkbstore/internal/killmail"
)

// Response is one scripted Fetch result. Exactly one of Body and Err is
// normally set.
type Response struct {
	Body []byte
	Err  error
}

// ScriptedEnricher answers Fetch from per-id scripts. Each call consumes
// the next response; the last response repeats once the script runs out.
// Ids without a script get a permanent not-found error.
type ScriptedEnricher struct {
	mu      sync.Mutex
	scripts map[int64][]Response
	calls   map[int64]int

	// Entered, when non-nil, receives each event as Fetch starts.
	Entered chan killmail.Event

	// Block, when non-nil, makes every Fetch wait for it to close or for
	// ctx to be cancelled.
	Block chan struct{}
}

// NewScriptedEnricher creates an enricher with no scripts.
func NewScriptedEnricher() *ScriptedEnricher {
	return &ScriptedEnricher{
		scripts: make(map[int64][]Response),
		calls:   make(map[int64]int),
	}
}

// Script sets the responses for id.
func (e *ScriptedEnricher) Script(id int64, responses ...Response) *ScriptedEnricher {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[id] = responses
	return e
}

// Fetch returns the next scripted response for ev.KillmailID.
func (e *ScriptedEnricher) Fetch(ctx context.Context, ev killmail.Event) (killmail.Record, error) {
	if e.Entered != nil {
		e.Entered <- ev
	}
	if e.Block != nil {
		select {
		case <-e.Block:
		case <-ctx.Done():
			return killmail.Record{}, killmail.NewTransient(killmail.StageEnrich, ev.KillmailID, "fetch cancelled", ctx.Err())
		}
	}

	e.mu.Lock()
	script := e.scripts[ev.KillmailID]
	n := e.calls[ev.KillmailID]
	e.calls[ev.KillmailID] = n + 1
	e.mu.Unlock()

	if len(script) == 0 {
		return killmail.Record{}, killmail.NewPermanent(killmail.StageEnrich, ev.KillmailID,
			"killmail not found", fmt.Errorf("status 404"))
	}
	resp := script[min(n, len(script)-1)]
	if resp.Err != nil {
		return killmail.Record{}, resp.Err
	}
	return killmail.Record{KillmailID: ev.KillmailID, Hash: ev.Hash, Body: resp.Body}, nil
}

// Calls returns how many times id was fetched.
func (e *ScriptedEnricher) Calls(id int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}
