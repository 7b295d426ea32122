package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Bus fans core events out to whoever renders them (the UI shell, the
// websocket feed). Components publish; they never subscribe to themselves.
//
// Each Bus is an explicit handle constructed at bootstrap; tests build their
// own so nothing leaks between cases.
type Bus struct {
	bus evbus.Bus
}

// New creates an event bus.
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish emits an event synchronously.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// PublishAsync emits an event from a background goroutine so publishers
// never block on slow subscribers.
func (b *Bus) PublishAsync(topic string, args ...interface{}) {
	go b.bus.Publish(topic, args...)
}

// Subscribe registers a synchronous handler.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync registers a handler invoked on its own goroutine.
func (b *Bus) SubscribeAsync(topic string, fn interface{}) error {
	return b.bus.SubscribeAsync(topic, fn, false)
}

// Unsubscribe removes a handler.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

// HasCallback reports whether anyone listens on topic.
func (b *Bus) HasCallback(topic string) bool {
	return b.bus.HasCallback(topic)
}

// WaitAsync blocks until all async handlers have drained, for tests.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}
