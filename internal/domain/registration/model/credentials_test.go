package model

import (
	"testing"

	"vitarp-go/internal/domain/console"
)

func keyFrom(prefix string) [KeySize]byte {
	var key [KeySize]byte
	copy(key[:], prefix)
	for i := len(prefix); i < KeySize; i++ {
		key[i] = byte(i + 1)
	}
	return key
}

func TestDeriveHex8ASCIIBranch(t *testing.T) {
	// First 8 bytes are ASCII hex: used directly, lowercased.
	if got := DeriveHex8(keyFrom("1A2B3C4D")); got != "1a2b3c4d" {
		t.Errorf("ascii branch: got %q", got)
	}
	if got := DeriveHex8(keyFrom("deadbeef")); got != "deadbeef" {
		t.Errorf("ascii branch lowercase: got %q", got)
	}
}

func TestDeriveHex8BinaryBranch(t *testing.T) {
	// 'Z' is not a hex digit, so the first 4 bytes are hex-encoded.
	key := keyFrom("Zzzzzzzz")
	want := "5a7a7a7a" // hex of 'Z','z','z','z'
	if got := DeriveHex8(key); got != want {
		t.Errorf("binary branch: got %q, want %q", got, want)
	}
}

func validCredentials() Credentials {
	c := Credentials{
		HostID:    "host-1",
		IP:        "192.168.1.42",
		Nickname:  "Living Room PS5",
		Target:    console.GenPS5,
		RegistKey: keyFrom("1a2b3c4d"),
		AccountID: "nD1Ho0mY7wY=",
		Valid:     true,
	}
	c.Normalize()
	return c
}

func TestValidateInvariants(t *testing.T) {
	c := validCredentials()
	if !c.Validate() {
		t.Fatal("well-formed credentials should validate")
	}
	if c.WakeCred != c.RegistHex8 {
		t.Errorf("wake credential should equal hex8 view: %q != %q", c.WakeCred, c.RegistHex8)
	}

	zeroKey := c
	zeroKey.RegistKey = [KeySize]byte{}
	if zeroKey.Validate() {
		t.Error("zero registration key must not validate")
	}

	noAccount := validCredentials()
	noAccount.AccountID = ""
	if noAccount.Validate() {
		t.Error("missing account id must not validate")
	}

	upper := validCredentials()
	upper.RegistHex8 = "1A2B3C4D"
	if upper.Validate() {
		t.Error("uppercase hex8 view must not validate")
	}

	invalid := validCredentials()
	invalid.Valid = false
	if invalid.Validate() {
		t.Error("cleared validity flag must not validate")
	}
}

func TestRepair(t *testing.T) {
	c := validCredentials()
	c.RegistHex8 = ""
	c.WakeCred = ""
	if !c.NeedsRepair() {
		t.Fatal("missing derived views should need repair")
	}
	if !c.Repair() {
		t.Fatal("repair should succeed with raw key present")
	}
	if !c.Validate() {
		t.Error("repaired credentials should validate")
	}

	broken := Credentials{Valid: true}
	if broken.Repair() {
		t.Error("repair must fail on a zero key")
	}
}
