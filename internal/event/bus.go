package event

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType represents the type of event.
type EventType string

const (
	SessionCreated  EventType = "session.created"
	SessionStatus   EventType = "session.status"
	SessionForked   EventType = "session.forked"
	SessionArchived EventType = "session.archived"
	MessageCreated  EventType = "message.created"
	ToolCallUpdated EventType = "toolcall.updated"
	PolicyDecided   EventType = "policy.decided"
	HookExecuted    EventType = "hook.executed"
)

// FeedTopic is the watermill topic carrying a JSON envelope of every
// published event. Consumers reach it through Feed.
const FeedTopic = "warden.events"

// Event represents an event to be published. SessionID is set for all
// session-scoped events so subscribers can filter without inspecting Data.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionID,omitempty"`
	Data      any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

type subscription struct {
	id uint64
	fn Subscriber
}

// Bus fans events out to in-process subscribers. Dispatch is by direct
// call so Data keeps its concrete type; a watermill gochannel carries a
// parallel JSON feed once Feed has been requested.
type Bus struct {
	mu sync.RWMutex

	byType    map[EventType][]subscription
	bySession map[string][]subscription
	all       []subscription

	feed       *gochannel.GoChannel
	feedActive atomic.Bool

	nextID uint64
	closed bool
}

// globalBus is the default event bus instance.
var globalBus = newBus()

func newBus() *Bus {
	return &Bus{
		byType:    make(map[EventType][]subscription),
		bySession: make(map[string][]subscription),
		feed: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
	}
}

// NewBus creates an independent bus. The package-level functions share
// a single global instance.
func NewBus() *Bus {
	return newBus()
}

// Subscribe registers fn for one event type. The returned function
// removes the registration.
func Subscribe(eventType EventType, fn Subscriber) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.byType[eventType] = append(b.byType[eventType], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[eventType] = drop(b.byType[eventType], id)
	}
}

// SubscribeAll registers fn for every event. The returned function
// removes the registration.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = drop(b.all, id)
	}
}

// SubscribeSession registers fn for every event carrying the given
// session id, whatever its type. The returned function removes the
// registration.
func SubscribeSession(sessionID string, fn Subscriber) func() {
	return globalBus.SubscribeSession(sessionID, fn)
}

func (b *Bus) SubscribeSession(sessionID string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.bySession[sessionID] = append(b.bySession[sessionID], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.bySession[sessionID] = drop(b.bySession[sessionID], id)
	}
}

// drop removes the subscription with the given id, preserving order.
func drop(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// collect gathers every subscriber the event should reach. The second
// return is false when the bus is closed.
func (b *Bus) collect(event Event) ([]Subscriber, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, false
	}

	typed := b.byType[event.Type]
	var scoped []subscription
	if event.SessionID != "" {
		scoped = b.bySession[event.SessionID]
	}

	subs := make([]Subscriber, 0, len(typed)+len(scoped)+len(b.all))
	for _, s := range typed {
		subs = append(subs, s.fn)
	}
	for _, s := range scoped {
		subs = append(subs, s.fn)
	}
	for _, s := range b.all {
		subs = append(subs, s.fn)
	}
	return subs, true
}

// Publish delivers the event to every matching subscriber, each on its
// own goroutine, so a slow subscriber cannot stall the engine.
func Publish(event Event) {
	globalBus.Publish(event)
}

func (b *Bus) Publish(event Event) {
	subs, ok := b.collect(event)
	if !ok {
		return
	}
	b.forward(event)
	for _, fn := range subs {
		go fn(event)
	}
}

// PublishSync delivers in the calling goroutine and returns once every
// subscriber has run.
func PublishSync(event Event) {
	globalBus.PublishSync(event)
}

func (b *Bus) PublishSync(event Event) {
	subs, ok := b.collect(event)
	if !ok {
		return
	}
	b.forward(event)
	for _, fn := range subs {
		fn(event)
	}
}

// forward bridges the event onto the watermill feed as a JSON envelope.
// Nothing is forwarded until Feed has been called.
func (b *Bus) forward(event Event) {
	if !b.feedActive.Load() {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(event.Type))
	if event.SessionID != "" {
		msg.Metadata.Set("session_id", event.SessionID)
	}
	_ = b.feed.Publish(FeedTopic, msg)
}

// Feed returns the watermill channel behind the bus and switches the
// envelope feed on. Subscribe to FeedTopic to consume it, e.g. when
// bridging events onto an external transport.
func Feed() *gochannel.GoChannel {
	return globalBus.Feed()
}

func (b *Bus) Feed() *gochannel.GoChannel {
	b.feedActive.Store(true)
	return b.feed
}

// Reset closes the global bus and replaces it with a fresh one (for testing).
func Reset() {
	_ = globalBus.Close()

	// Small delay to let in-flight deliveries land
	time.Sleep(10 * time.Millisecond)

	globalBus = newBus()
}

// Close drops all subscribers and shuts the feed down.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.byType = make(map[EventType][]subscription)
	b.bySession = make(map[string][]subscription)
	b.all = nil
	b.mu.Unlock()

	return b.feed.Close()
}
