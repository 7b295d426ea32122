package input

import (
	"testing"
)

func TestDefaultButtonLayout(t *testing.T) {
	m := NewMapper()
	var s Snapshot
	s.Buttons[ButtonCross] = true
	s.Buttons[ButtonR1] = true
	s.Buttons[ButtonDpadLeft] = true
	s.Buttons[ButtonShare] = true

	e := m.Encode(s)
	want := uint32(1<<0 | 1<<5 | 1<<10 | 1<<13)
	if e.Buttons != want {
		t.Fatalf("expected bitfield %032b, got %032b", want, e.Buttons)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := NewMapper()
	s := Snapshot{
		LeftX:     0,
		LeftY:     255,
		RightX:    128,
		RightY:    200,
		L2Pressed: true,
	}
	s.Buttons[ButtonTriangle] = true
	s.Buttons[ButtonDpadUp] = true
	s.Buttons[ButtonOptions] = true

	got := m.Decode(m.Encode(s))
	if got.Buttons != s.Buttons {
		t.Fatalf("buttons did not round-trip: %v vs %v", got.Buttons, s.Buttons)
	}
	if got.LeftX != s.LeftX || got.LeftY != s.LeftY || got.RightX != s.RightX || got.RightY != s.RightY {
		t.Fatalf("axes did not round-trip: %+v vs %+v", got, s)
	}
	if !got.L2Pressed || got.R2Pressed {
		t.Fatal("triggers did not round-trip")
	}
}

func TestAxisWideningClampsAtExtremes(t *testing.T) {
	cases := []struct {
		raw  uint8
		want int16
	}{
		{0, -32768},
		{64, -16384},
		{128, 0},
		{192, 16384},
		{255, 32512},
	}
	for _, tc := range cases {
		if got := WidenAxis(tc.raw); got != tc.want {
			t.Fatalf("WidenAxis(%d) = %d, want %d", tc.raw, got, tc.want)
		}
	}

	// Inversion holds across the whole raw range.
	for v := 0; v <= 255; v++ {
		if back := NarrowAxis(WidenAxis(uint8(v))); back != uint8(v) {
			t.Fatalf("axis %d came back as %d", v, back)
		}
	}
}

func TestTriggersAreBinary(t *testing.T) {
	m := NewMapper()
	e := m.Encode(Snapshot{L2Pressed: true, R2Pressed: false})
	if e.L2 != 255 || e.R2 != 0 {
		t.Fatalf("expected L2=255 R2=0, got L2=%d R2=%d", e.L2, e.R2)
	}
}

func TestRemappingAndReset(t *testing.T) {
	m := NewMapper()
	// Swap cross onto the circle bit.
	if err := m.SetMapping(ButtonCross, 1); err != nil {
		t.Fatalf("SetMapping returned error: %v", err)
	}

	var s Snapshot
	s.Buttons[ButtonCross] = true
	if e := m.Encode(s); e.Buttons != 1<<1 {
		t.Fatalf("remapped cross should set bit 1, got %032b", e.Buttons)
	}

	m.ResetAllToDefault()
	if e := m.Encode(s); e.Buttons != 1<<0 {
		t.Fatalf("reset should restore bit 0, got %032b", e.Buttons)
	}

	bit, err := m.Mapping(ButtonCross)
	if err != nil || bit != 0 {
		t.Fatalf("expected default bit 0, got %d (%v)", bit, err)
	}
}

func TestMappingRejectsBadInput(t *testing.T) {
	m := NewMapper()
	if err := m.SetMapping(Button(99), 0); err == nil {
		t.Fatal("expected error for unknown button")
	}
	if err := m.SetMapping(ButtonCross, 32); err == nil {
		t.Fatal("expected error for out-of-range bit")
	}
}
