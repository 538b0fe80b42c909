// Package pipeline moves killmails from a source into a store.
//
// Every event travels EventSource -> Deduplicator -> Enricher -> Normalizer
// -> Store. A fixed pool of workers pulls events from one channel fed by the
// source goroutine; each worker owns an event from fingerprinting to the
// persist decision.
//
// # Exactly-once
//
// The Gate answers "already seen?" from the store. A positive answer skips
// the event. A negative answer is only a hint: the store re-checks the
// fingerprint inside the persist transaction, and its UNIQUE constraint
// turns a lost race into OutcomeDuplicate.
//
// # Failures
//
// No failure stops a worker. Transient and permanent failures are logged
// with killmail_id, fingerprint, stage, seq and run_id and the event is
// dropped without recording its fingerprint, so a later delivery can still
// store it.
//
// # Cancellation
//
// Cancelling the context stops the source and stops workers from taking
// new events. A persist already in progress runs to commit or rollback
// under its own timeout.
package pipeline
