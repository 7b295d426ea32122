package model

import (
	"encoding/hex"
	"strings"
	"time"

	"vitarp-go/internal/domain/console"
)

// KeySize is the length of both per-console secrets.
const KeySize = 16

// Credentials is the long-lived pairing result for one console. The store
// owns the canonical copy; the session engine borrows immutable snapshots.
type Credentials struct {
	HostID       string
	IP           string
	Nickname     string
	Target       console.Generation
	KeyType      string
	RegistKey    [KeySize]byte // opaque registration key
	RegistHex8   string        // canonical 8-hex-digit view of RegistKey
	MorningKey   [KeySize]byte // downstream encryption seed
	WakeCred     string        // short credential carried in wake packets
	AccountID    string        // base64 account id used during pairing
	Valid        bool
	RegisteredAt time.Time
}

// DeriveHex8 computes the canonical 8-hex view of a registration key.
//
// Two derivation branches exist in the wild and both must be preserved: when
// the first 8 key bytes are already ASCII hex digits they are used directly
// (lowercased); otherwise the first 4 bytes are hex-encoded.
func DeriveHex8(key [KeySize]byte) string {
	if isASCIIHex(key[:8]) {
		return strings.ToLower(string(key[:8]))
	}
	return hex.EncodeToString(key[:4])
}

func isASCIIHex(b []byte) bool {
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Normalize fills the derived fields from the raw key material.
func (c *Credentials) Normalize() {
	c.RegistHex8 = DeriveHex8(c.RegistKey)
	c.WakeCred = c.RegistHex8
}

// Validate reports whether the credentials satisfy the validity invariants:
// a non-zero registration key, a lowercase 8-hex view, and an account id.
func (c *Credentials) Validate() bool {
	if !c.Valid {
		return false
	}
	if c.RegistKey == ([KeySize]byte{}) {
		return false
	}
	if len(c.RegistHex8) != 8 || c.RegistHex8 != strings.ToLower(c.RegistHex8) {
		return false
	}
	if !isASCIIHex([]byte(c.RegistHex8)) {
		return false
	}
	return c.AccountID != ""
}

// NeedsRepair reports whether a valid record is missing its derived views.
// Such records can often be repaired in place from the raw key.
func (c *Credentials) NeedsRepair() bool {
	return c.Valid && (c.RegistHex8 == "" || c.WakeCred == "")
}

// Repair attempts the in-place derivation. It fails when the raw key is all
// zeroes, in which case the console must be re-paired.
func (c *Credentials) Repair() bool {
	if c.RegistKey == ([KeySize]byte{}) {
		return false
	}
	c.Normalize()
	return true
}
