// Package store provides SQLite-backed durable storage for killmails.
//
// Three tables make up the store:
//   - killmails: one write-once header row per killmail id
//   - participants: victim and attackers, UNIQUE(killmail_id, character_id, is_victim)
//   - hashes: dedup records, one per content fingerprint, UNIQUE(hash)
//
// # Exactly-once writes
//
// Persist re-checks the fingerprint, writes the header, its participants and
// the dedup record in a single immediate transaction. A fingerprint is only
// ever recorded together with the rows it stands for, so a failure anywhere
// before commit leaves the event eligible for redelivery. Two writers racing
// on the same fingerprint are serialized by the UNIQUE index on hashes.hash;
// the loser rolls back and reports OutcomeDuplicate.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Take the write lock at BEGIN
//
// Fingerprints are computed by internal/killmail using RFC 8785 canonical
// JSON and BLAKE3 with domain separation.
package store
