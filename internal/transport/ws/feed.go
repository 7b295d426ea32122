package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vitarp-go/internal/domain/eventbus"
	"vitarp-go/internal/platform/logging"
)

// feedTopics are the bus topics relayed to UI clients.
var feedTopics = []string{
	eventbus.EventDiscoveryFound,
	eventbus.EventDiscoveryComplete,
	eventbus.EventRegistrationState,
	eventbus.EventRegistrationSuccess,
	eventbus.EventRegistrationError,
	eventbus.EventSessionState,
	eventbus.EventSessionStats,
	eventbus.EventSessionError,
	eventbus.EventWakeProgress,
	eventbus.EventConsoleUpdated,
}

// frame is the wire shape of one relayed event.
type frame struct {
	Topic string      `json:"topic"`
	TS    int64       `json:"ts"`
	Data  interface{} `json:"data"`
}

// Feed relays core events to connected UI shells over websocket.
type Feed struct {
	logger   *logging.Logger
	bus      *eventbus.Bus
	hub      *Hub
	upgrader websocket.Upgrader
	handlers map[string]interface{}
}

// NewFeed builds the feed and subscribes it to the event bus.
func NewFeed(logger *logging.Logger, bus *eventbus.Bus) (*Feed, error) {
	f := &Feed{
		logger: logger,
		bus:    bus,
		hub:    NewHub(logger),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		handlers: make(map[string]interface{}),
	}
	for _, topic := range feedTopics {
		handler := f.relay(topic)
		if err := bus.SubscribeAsync(topic, handler); err != nil {
			return nil, err
		}
		f.handlers[topic] = handler
	}
	return f, nil
}

// relay builds the per-topic bus callback.
func (f *Feed) relay(topic string) func(data interface{}) {
	return func(data interface{}) {
		payload, err := sonic.Marshal(frame{
			Topic: topic,
			TS:    time.Now().UnixMilli(),
			Data:  data,
		})
		if err != nil {
			f.logger.Warn("event frame encoding failed", "topic", topic, "error", err)
			return
		}
		f.hub.Broadcast(payload)
	}
}

// Handler upgrades one HTTP request into a feed subscription.
func (f *Feed) Handler(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	f.hub.register(cl)

	// Reader exists only to notice the peer going away.
	go func() {
		defer f.hub.unregister(cl.id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Clients reports connected feed clients.
func (f *Feed) Clients() int {
	return f.hub.Count()
}

// Close unsubscribes from the bus and disconnects every client.
func (f *Feed) Close() {
	for topic, handler := range f.handlers {
		if err := f.bus.Unsubscribe(topic, handler); err != nil {
			f.logger.Debug("event feed unsubscribe failed", "topic", topic, "error", err)
		}
	}
	f.hub.CloseAll()
}
