package identity

import (
	"encoding/base64"
	"encoding/binary"

	"vitarp-go/internal/platform/errors"
)

// Identity is the user account id a console authorizes Remote Play against.
// It has three equivalent forms: a decimal u64, the 8 little-endian bytes of
// that integer, and the base64 encoding of those bytes. Conversions between
// the forms are exact inverses.
//
// The zero value is legal but treated as "unset" by higher layers.
type Identity struct {
	value uint64
}

// FromDecimal builds an Identity from its integer form.
func FromDecimal(v uint64) Identity {
	return Identity{value: v}
}

// FromLE8 builds an Identity from the 8-byte little-endian form.
func FromLE8(b [8]byte) Identity {
	return Identity{value: binary.LittleEndian.Uint64(b[:])}
}

// FromBase64 parses the stable string form.
func FromBase64(s string) (Identity, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Identity{}, errors.Wrap(errors.KindInvalidData, "identity.from_base64",
			"malformed account id", err)
	}
	if len(raw) != 8 {
		return Identity{}, errors.New(errors.KindInvalidData, "identity.from_base64",
			"account id must decode to 8 bytes")
	}
	var b [8]byte
	copy(b[:], raw)
	return FromLE8(b), nil
}

// Decimal returns the integer form.
func (id Identity) Decimal() uint64 {
	return id.value
}

// LE8 returns the 8-byte little-endian form.
func (id Identity) LE8() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id.value)
	return b
}

// Base64 returns the stable string form (always 12 characters).
func (id Identity) Base64() string {
	b := id.LE8()
	return base64.StdEncoding.EncodeToString(b[:])
}

// IsSet reports whether the identity carries a real account id.
func (id Identity) IsSet() bool {
	return id.value != 0
}

// ValidateBase64 reports whether s is a well-formed base64 account id:
// valid charset and a decoded length of exactly 8 bytes.
func ValidateBase64(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	return err == nil && len(raw) == 8
}
