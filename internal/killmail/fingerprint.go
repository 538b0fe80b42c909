package killmail

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// DomainKillmail is the domain prefix for killmail fingerprints.
// The version suffix allows a future change of the fingerprint input.
const DomainKillmail = "zkb/killmail/v1"

// FingerprintSize is the length of a fingerprint in bytes.
const FingerprintSize = 32

// esiHashLen is the length of an ESI killmail hash in hex characters (SHA-1).
const esiHashLen = 40

// Fingerprint is the content identity of a killmail: the dedup record key.
type Fingerprint [FingerprintSize]byte

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Bytes returns the fingerprint as a slice for BLOB columns.
func (f Fingerprint) Bytes() []byte {
	return f[:]
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// hashWithDomain computes BLAKE3-256 with domain separation.
// Format: BLAKE3(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) Fingerprint {
	h := blake3.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

// NormalizeHash validates an ESI hash and returns it in lowercase.
func NormalizeHash(hash string) (string, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if len(hash) != esiHashLen {
		return "", fmt.Errorf("hash %q: want %d hex characters, got %d", hash, esiHashLen, len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return "", fmt.Errorf("hash %q: %w", hash, err)
	}
	return hash, nil
}

// FingerprintOf computes the fingerprint for an ESI content hash.
//
// The killmail id is deliberately not part of the input: the ESI hash is a
// digest of the killmail body, so equal content always maps to the same
// fingerprint no matter which feed announced it.
func FingerprintOf(hash string) (Fingerprint, error) {
	normalized, err := NormalizeHash(hash)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint: %w", err)
	}

	canonical, err := MarshalCanonical(map[string]any{"hash": normalized})
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint: %w", err)
	}

	return hashWithDomain(DomainKillmail, canonical), nil
}

// MustFingerprint is like FingerprintOf but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(hash string) Fingerprint {
	f, err := FingerprintOf(hash)
	if err != nil {
		panic(err)
	}
	return f
}

// FingerprintFromBytes converts a stored BLOB back into a Fingerprint.
func FingerprintFromBytes(b []byte) (Fingerprint, error) {
	var f Fingerprint
	if len(b) != FingerprintSize {
		return f, fmt.Errorf("fingerprint: want %d bytes, got %d", FingerprintSize, len(b))
	}
	copy(f[:], b)
	return f, nil
}
