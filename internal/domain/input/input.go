package input

import (
	"sync"

	"vitarp-go/internal/platform/errors"
)

// Button names the local controls the device exposes.
type Button int

const (
	ButtonCross Button = iota
	ButtonCircle
	ButtonSquare
	ButtonTriangle
	ButtonL1
	ButtonR1
	ButtonDpadUp
	ButtonDpadDown
	ButtonDpadLeft
	ButtonDpadRight
	ButtonOptions
	ButtonShare
	buttonCount
)

// Protocol bit positions for each button group.
const (
	bitCross     = 0
	bitCircle    = 1
	bitSquare    = 2
	bitTriangle  = 3
	bitL1        = 4
	bitR1        = 5
	bitDpadUp    = 8
	bitDpadDown  = 9
	bitDpadLeft  = 10
	bitDpadRight = 11
	bitOptions   = 12
	bitShare     = 13
)

// Snapshot is the local controller state read once per frame.
type Snapshot struct {
	Buttons   [buttonCount]bool
	LeftX     uint8 // raw 0..255, 128 centered
	LeftY     uint8
	RightX    uint8
	RightY    uint8
	L2Pressed bool
	R2Pressed bool
}

// Encoded is the remote protocol's input frame.
type Encoded struct {
	Buttons uint32
	LeftX   int16
	LeftY   int16
	RightX  int16
	RightY  int16
	L2      uint8
	R2      uint8
}

// defaultBits is the 1:1 identity mapping from local buttons to protocol
// bit positions.
var defaultBits = [buttonCount]int{
	ButtonCross:     bitCross,
	ButtonCircle:    bitCircle,
	ButtonSquare:    bitSquare,
	ButtonTriangle:  bitTriangle,
	ButtonL1:        bitL1,
	ButtonR1:        bitR1,
	ButtonDpadUp:    bitDpadUp,
	ButtonDpadDown:  bitDpadDown,
	ButtonDpadLeft:  bitDpadLeft,
	ButtonDpadRight: bitDpadRight,
	ButtonOptions:   bitOptions,
	ButtonShare:     bitShare,
}

// Mapper translates local controller snapshots into protocol input frames.
// The button table is remappable at runtime; analog conversion is fixed.
type Mapper struct {
	mu   sync.RWMutex
	bits [buttonCount]int
}

// NewMapper returns a mapper with the identity button table.
func NewMapper() *Mapper {
	m := &Mapper{}
	m.ResetAllToDefault()
	return m
}

// SetMapping points one local button at a different protocol bit.
func (m *Mapper) SetMapping(button Button, bit int) error {
	if button < 0 || button >= buttonCount {
		return errors.New(errors.KindInvalidParam, "input.map", "unknown button")
	}
	if bit < 0 || bit > 31 {
		return errors.New(errors.KindInvalidParam, "input.map", "bit position out of range")
	}
	m.mu.Lock()
	m.bits[button] = bit
	m.mu.Unlock()
	return nil
}

// Mapping returns the protocol bit a local button currently drives.
func (m *Mapper) Mapping(button Button) (int, error) {
	if button < 0 || button >= buttonCount {
		return 0, errors.New(errors.KindInvalidParam, "input.map", "unknown button")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bits[button], nil
}

// ResetAllToDefault reverts every button to the identity mapping.
func (m *Mapper) ResetAllToDefault() {
	m.mu.Lock()
	m.bits = defaultBits
	m.mu.Unlock()
}

// Encode converts one snapshot into the wire representation.
func (m *Mapper) Encode(s Snapshot) Encoded {
	m.mu.RLock()
	bits := m.bits
	m.mu.RUnlock()

	var e Encoded
	for button, pressed := range s.Buttons {
		if pressed {
			e.Buttons |= 1 << bits[button]
		}
	}
	e.LeftX = WidenAxis(s.LeftX)
	e.LeftY = WidenAxis(s.LeftY)
	e.RightX = WidenAxis(s.RightX)
	e.RightY = WidenAxis(s.RightY)
	if s.L2Pressed {
		e.L2 = 255
	}
	if s.R2Pressed {
		e.R2 = 255
	}
	return e
}

// Decode reverses Encode for the set of representable inputs. Analog axes
// come back at the nearest representable raw value.
func (m *Mapper) Decode(e Encoded) Snapshot {
	m.mu.RLock()
	bits := m.bits
	m.mu.RUnlock()

	var s Snapshot
	for button := range s.Buttons {
		if e.Buttons&(1<<bits[button]) != 0 {
			s.Buttons[button] = true
		}
	}
	s.LeftX = NarrowAxis(e.LeftX)
	s.LeftY = NarrowAxis(e.LeftY)
	s.RightX = NarrowAxis(e.RightX)
	s.RightY = NarrowAxis(e.RightY)
	s.L2Pressed = e.L2 != 0
	s.R2Pressed = e.R2 != 0
	return s
}

// WidenAxis maps a raw 0..255 stick reading to the protocol's signed 16-bit
// range. The result clamps rather than wraps.
func WidenAxis(v uint8) int16 {
	wide := (int(v) - 128) * 256
	if wide > 32767 {
		wide = 32767
	}
	if wide < -32768 {
		wide = -32768
	}
	return int16(wide)
}

// NarrowAxis inverts WidenAxis onto the raw range.
func NarrowAxis(v int16) uint8 {
	raw := int(v)/256 + 128
	if raw < 0 {
		raw = 0
	}
	if raw > 255 {
		raw = 255
	}
	return uint8(raw)
}
