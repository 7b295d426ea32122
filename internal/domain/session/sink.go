package session

import (
	"sync"
)

// Frame is one decoded video frame handed to the sink.
type Frame struct {
	Sequence uint64
	Width    int
	Height   int
	Data     []byte
}

// VideoSink consumes the stream's frames. Submit must never block the
// streaming loop: implementations enqueue or drop.
type VideoSink interface {
	Start(width, height int) error
	Stop()
	Submit(frame Frame)
	Draw()
}

// Rect is a placement on the device display.
type Rect struct {
	X, Y, W, H int
}

// FitRect scales frame dimensions onto a display, preserving aspect ratio
// and centering the result (letterbox or pillarbox as needed).
func FitRect(frameW, frameH, displayW, displayH int) Rect {
	if frameW <= 0 || frameH <= 0 || displayW <= 0 || displayH <= 0 {
		return Rect{}
	}

	scaledW := displayW
	scaledH := frameH * displayW / frameW
	if scaledH > displayH {
		scaledH = displayH
		scaledW = frameW * displayH / frameH
	}
	return Rect{
		X: (displayW - scaledW) / 2,
		Y: (displayH - scaledH) / 2,
		W: scaledW,
		H: scaledH,
	}
}

// queueDepth bounds how many frames a NullSink holds before dropping the
// oldest.
const queueDepth = 3

// NullSink is a sink with no display: it queues the most recent frames and
// discards them on Draw. The daemon uses it when no renderer is attached;
// tests use it to observe the streaming loop.
type NullSink struct {
	mu      sync.Mutex
	started bool
	width   int
	height  int
	queue   []Frame
	taken   uint64
	dropped uint64
}

func NewNullSink() *NullSink {
	return &NullSink{}
}

func (s *NullSink) Start(width, height int) error {
	s.mu.Lock()
	s.started = true
	s.width = width
	s.height = height
	s.queue = s.queue[:0]
	s.mu.Unlock()
	return nil
}

func (s *NullSink) Stop() {
	s.mu.Lock()
	s.started = false
	s.queue = nil
	s.mu.Unlock()
}

func (s *NullSink) Submit(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.dropped++
		return
	}
	if len(s.queue) >= queueDepth {
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, frame)
	s.taken++
}

func (s *NullSink) Draw() {
	s.mu.Lock()
	if len(s.queue) > 0 {
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()
}

// Submitted reports how many frames the sink accepted.
func (s *NullSink) Submitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken
}

// Dropped reports how many frames the sink discarded.
func (s *NullSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Dimensions returns the negotiated frame size.
func (s *NullSink) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}
