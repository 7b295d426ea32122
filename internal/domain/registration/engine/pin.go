package engine

import (
	"strings"

	"vitarp-go/internal/platform/errors"
)

// PINLength is the number of digit slots in a pairing code.
const PINLength = 8

// emptySlot marks a digit position not yet filled in.
const emptySlot = -1

// PIN is a pairing code under entry. Each slot is a digit 0..9 or empty;
// the code only decodes once every slot is filled. All zeros is a valid,
// complete code.
type PIN struct {
	digits [PINLength]int8
}

// NewPIN returns a code with every slot empty.
func NewPIN() PIN {
	var p PIN
	for i := range p.digits {
		p.digits[i] = emptySlot
	}
	return p
}

// SetDigit fills one slot. Positions are zero-based left to right.
func (p *PIN) SetDigit(pos, digit int) error {
	if pos < 0 || pos >= PINLength {
		return errors.New(errors.KindInvalidParam, "pin.set", "digit position out of range")
	}
	if digit < 0 || digit > 9 {
		return errors.New(errors.KindInvalidParam, "pin.set", "digit must be 0..9")
	}
	p.digits[pos] = int8(digit)
	return nil
}

// ClearDigit empties one slot.
func (p *PIN) ClearDigit(pos int) error {
	if pos < 0 || pos >= PINLength {
		return errors.New(errors.KindInvalidParam, "pin.clear", "digit position out of range")
	}
	p.digits[pos] = emptySlot
	return nil
}

// Complete reports whether every slot holds a digit.
func (p PIN) Complete() bool {
	for _, d := range p.digits {
		if d == emptySlot {
			return false
		}
	}
	return true
}

// Value decodes the code as a base-10 number, most significant digit first.
func (p PIN) Value() (uint32, error) {
	if !p.Complete() {
		return 0, errors.New(errors.KindInvalidParam, "pin.value", "pin is incomplete")
	}
	var v uint32
	for _, d := range p.digits {
		v = v*10 + uint32(d)
	}
	return v, nil
}

// String renders the code for display, with '_' for empty slots.
func (p PIN) String() string {
	var b strings.Builder
	for _, d := range p.digits {
		if d == emptySlot {
			b.WriteByte('_')
		} else {
			b.WriteByte(byte('0' + d))
		}
	}
	return b.String()
}

// ParsePIN builds a complete code from an 8-digit string.
func ParsePIN(s string) (PIN, error) {
	if len(s) != PINLength {
		return PIN{}, errors.New(errors.KindInvalidParam, "pin.parse", "pin must be 8 digits")
	}
	p := NewPIN()
	for i := 0; i < PINLength; i++ {
		if s[i] < '0' || s[i] > '9' {
			return PIN{}, errors.New(errors.KindInvalidParam, "pin.parse", "pin must be 8 digits")
		}
		p.digits[i] = int8(s[i] - '0')
	}
	return p, nil
}
