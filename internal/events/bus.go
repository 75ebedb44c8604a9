package events

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/universe"
)

// ErrUniverseMismatch is returned by Publish when an event's universe does
// not match the bus's bound universe. Events can never cross universe
// boundaries.
var ErrUniverseMismatch = errors.New("events: event universe does not match bus universe")

// ErrMissingProvenance is returned by Publish when an event has no
// session_id. Every event must carry provenance.
var ErrMissingProvenance = errors.New("events: event is missing session_id")

// Handler processes a single event. A returned error is logged by the bus
// and never aborts delivery to the remaining subscribers.
type Handler func(Event) error

const maxLogSize = 100

// Bus is a universe-scoped typed pub/sub bus. A Bus cannot exist without a
// universe.Context: universe-less event graphs are forbidden by
// construction.
type Bus struct {
	ctx *universe.Context
	log zerolog.Logger

	mu               sync.Mutex
	subscribers      map[reflect.Type][]Handler
	globalSubscribers []Handler
	eventLog         []Event
}

// NewBus constructs a Bus bound to ctx. ctx must not be nil.
func NewBus(ctx *universe.Context, log zerolog.Logger) (*Bus, error) {
	if ctx == nil {
		return nil, errors.New("events: Bus requires a universe.Context; universe-less event buses are forbidden for safety")
	}
	return &Bus{
		ctx:         ctx,
		log:         log.With().Str("component", "EventBus").Logger(),
		subscribers: make(map[reflect.Type][]Handler),
	}, nil
}

// Context returns the universe context the bus is bound to.
func (b *Bus) Context() *universe.Context { return b.ctx }

// Subscribe registers handler for events whose concrete type matches
// sample's (the value of sample itself is never inspected). Example:
//
//	bus.Subscribe(&events.MarketDataReady{}, agent.handleMarketData)
func (b *Bus) Subscribe(sample Event, handler Handler) {
	t := reflect.TypeOf(sample)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], handler)
}

// SubscribeAll registers handler to receive every event published on the
// bus, regardless of type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalSubscribers = append(b.globalSubscribers, handler)
}

// Unsubscribe removes the first registered handler matching sample's type
// and handler's identity. Handlers are compared by pointer identity of the
// underlying function value, so the exact value passed to Subscribe must
// be passed back here.
func (b *Bus) Unsubscribe(sample Event, handler Handler) {
	t := reflect.TypeOf(sample)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = removeHandler(b.subscribers[t], handler)
}

// UnsubscribeAll removes handler from the global subscriber list.
func (b *Bus) UnsubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalSubscribers = removeHandler(b.globalSubscribers, handler)
}

func removeHandler(handlers []Handler, target Handler) []Handler {
	targetPtr := reflect.ValueOf(target).Pointer()
	for i, h := range handlers {
		if reflect.ValueOf(h).Pointer() == targetPtr {
			return append(handlers[:i], handlers[i+1:]...)
		}
	}
	return handlers
}

// Publish validates event's provenance against the bus's universe, appends
// it to the bounded recent-event log, then invokes type-specific
// subscribers followed by global subscribers, in subscription order.
// Handler errors are logged and never abort delivery to the rest of the
// chain. Publish itself only returns an error for provenance violations.
func (b *Bus) Publish(event Event) error {
	base := event.Base()

	if base.Universe != b.ctx.Universe() {
		return fmt.Errorf("%w: event has %s, bus expects %s", ErrUniverseMismatch, base.Universe, b.ctx.Universe())
	}
	if base.SessionID == "" {
		return fmt.Errorf("%w: event type %T", ErrMissingProvenance, event)
	}

	b.mu.Lock()
	b.eventLog = append(b.eventLog, event)
	if len(b.eventLog) > maxLogSize {
		b.eventLog = b.eventLog[len(b.eventLog)-maxLogSize:]
	}
	t := reflect.TypeOf(event)
	typed := append([]Handler(nil), b.subscribers[t]...)
	global := append([]Handler(nil), b.globalSubscribers...)
	b.mu.Unlock()

	for _, h := range typed {
		b.invoke(t.String(), h, event)
	}
	for _, h := range global {
		b.invoke("global", h, event)
	}
	return nil
}

func (b *Bus) invoke(label string, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("handler_for", label).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	if err := h(event); err != nil {
		b.log.Error().Err(err).Str("handler_for", label).Msg("error in event handler")
	}
}

// RecentEvents returns up to count of the most recently published events.
func (b *Bus) RecentEvents(count int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count <= 0 || count > len(b.eventLog) {
		count = len(b.eventLog)
	}
	out := make([]Event, count)
	copy(out, b.eventLog[len(b.eventLog)-count:])
	return out
}

// ClearLog empties the recent-event log.
func (b *Bus) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eventLog = nil
}
