// Package killmail provides the foundational types of the ingestion pipeline.
//
// This package contains the event, record, header and participant types, the
// content fingerprint, canonical JSON encoding, the error taxonomy and the
// normalizer that turns a full ESI record into relational rows. All other
// internal packages import killmail; killmail imports nothing internal.
//
// Key design constraints:
//   - Fingerprints are content identity, never derived from the killmail id
//   - Headers and participants are write-once values
//   - Integers are int64 throughout, JSON tags are snake_case
//   - Errors carry a Kind so callers never match on error strings
package killmail
