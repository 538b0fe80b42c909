package source

import (
	"context"

	"github.com/roach88/zkbstore/internal/killmail"
)

// Slice emits its events in order and returns.
type Slice []killmail.Event

// Run sends every event to out. It returns ctx.Err() if cancelled first.
func (s Slice) Run(ctx context.Context, out chan<- killmail.Event) error {
	for _, ev := range s {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
