// Package eventbus implements the typed per-component publish/subscribe bus
// described in spec §4.5: metadata enrichment, a middleware chain, listener
// and middleware caps, and idempotent unsubscribe closures.
//
// The teacher repo has no equivalent (it mutates SQLite directly from
// internal/core/tasks.go), so this package is built directly off the
// specification in the teacher's concurrency idiom: a mutex-guarded map and
// "log and continue" error handling, the same policy internal/core/tasks.go
// uses when an alert send fails.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxListeners  = 50
	DefaultMaxMiddleware = 20
)

// Meta is the enrichment slot attached to every emitted payload.
type Meta struct {
	CorrelationID string `json:"correlationId"`
	EmittedAtMs   int64  `json:"emittedAtMs"`
	BusName       string `json:"busName"`
	EventName     string `json:"eventName"`
}

// Envelope wraps a shallow-cloned payload with its enrichment metadata.
type Envelope struct {
	Meta    Meta
	Payload any
}

// Handler receives an enriched envelope. Handler errors are logged and do
// not stop delivery to subsequent listeners.
type Handler func(Envelope) error

// Middleware receives the envelope and a next func; it may mutate the
// envelope, short-circuit by not calling next, or call next to continue the
// chain. Middleware errors are isolated: the bus logs and proceeds to the
// next middleware (per spec, a middleware failure never aborts emission).
type Middleware func(env Envelope, next func(Envelope)) error

type listenerEntry struct {
	id      uint64
	handler Handler
}

// Bus is a single named, single-threaded-cooperative pub/sub component.
// Owners call Publish from their own goroutine; Bus does not itself spawn
// goroutines, matching spec §5's "emission is a linear sequence" model.
type Bus struct {
	name string
	log  zerolog.Logger

	mu            sync.Mutex
	listeners     map[string][]listenerEntry
	middleware    []Middleware
	maxListeners  int
	maxMiddleware int
	nextID        uint64
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithMaxListeners overrides the default per-event listener cap.
func WithMaxListeners(n int) Option { return func(b *Bus) { b.maxListeners = n } }

// WithMaxMiddleware overrides the default middleware cap.
func WithMaxMiddleware(n int) Option { return func(b *Bus) { b.maxMiddleware = n } }

// New constructs a named bus. name is attached to every emitted Meta.
func New(name string, log zerolog.Logger, opts ...Option) *Bus {
	b := &Bus{
		name:          name,
		log:           log.With().Str("bus", name).Logger(),
		listeners:     make(map[string][]listenerEntry),
		maxListeners:  DefaultMaxListeners,
		maxMiddleware: DefaultMaxMiddleware,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the bus's name, attached to every Meta.BusName field.
func (b *Bus) Name() string { return b.name }

// Use registers a middleware. Returns false (and logs a warning) if the
// middleware cap has already been reached.
func (b *Bus) Use(mw Middleware) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.middleware) >= b.maxMiddleware {
		b.log.Warn().Int("cap", b.maxMiddleware).Msg("middleware cap reached, registration rejected")
		return false
	}
	b.middleware = append(b.middleware, mw)
	return true
}

// Subscribe registers a handler for eventName in registration order.
// Returns an idempotent unsubscribe closure, or nil if the per-event
// listener cap has been reached.
func (b *Bus) Subscribe(eventName string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.listeners[eventName]
	if len(existing) >= b.maxListeners {
		b.log.Warn().Str("event", eventName).Int("cap", b.maxListeners).
			Msg("listener cap reached, registration rejected")
		return nil
	}

	b.nextID++
	id := b.nextID
	b.listeners[eventName] = append(existing, listenerEntry{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			entries := b.listeners[eventName]
			for i, e := range entries {
				if e.id == id {
					b.listeners[eventName] = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish mints a correlation ID (if correlationID is empty), enriches the
// payload with Meta, runs the middleware chain, then delivers to all
// registered listeners for eventName in registration order.
func (b *Bus) Publish(eventName string, payload any, correlationID string) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	env := Envelope{
		Meta: Meta{
			CorrelationID: correlationID,
			EmittedAtMs:   time.Now().UnixMilli(),
			BusName:       b.name,
			EventName:     eventName,
		},
		Payload: payload,
	}

	b.mu.Lock()
	mws := append([]Middleware(nil), b.middleware...)
	handlers := append([]listenerEntry(nil), b.listeners[eventName]...)
	b.mu.Unlock()

	var final Envelope
	delivered := false
	b.runMiddleware(mws, 0, env, func(e Envelope) {
		final = e
		delivered = true
	})
	if !delivered {
		return
	}

	for _, entry := range handlers {
		if err := entry.handler(final); err != nil {
			b.log.Error().Err(err).Str("event", eventName).
				Str("correlationId", final.Meta.CorrelationID).
				Msg("listener returned error")
		}
	}
}

// runMiddleware executes mws[idx:] in order, isolating panics/errors from
// one middleware so they never prevent later middleware: a middleware that
// fails (returns an error or panics) without having called next is logged
// and the chain continues with the envelope it was given. terminal is
// called only once the whole chain has been walked without a middleware
// short-circuiting; a middleware that returns cleanly without calling next
// stops the chain right there and terminal never fires, so Publish delivers
// to no listeners at all (spec §4.5 item 3's short-circuit).
func (b *Bus) runMiddleware(mws []Middleware, idx int, env Envelope, terminal func(Envelope)) {
	if idx >= len(mws) {
		terminal(env)
		return
	}
	mw := mws[idx]
	called := false
	failed := false
	next := func(e Envelope) {
		called = true
		b.runMiddleware(mws, idx+1, e, terminal)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				failed = true
				b.log.Error().Interface("panic", r).Int("middleware_index", idx).
					Msg("middleware panicked, isolated")
			}
		}()
		if err := mw(env, next); err != nil {
			failed = true
			b.log.Error().Err(err).Int("middleware_index", idx).Msg("middleware returned error")
		}
	}()

	if !called && failed {
		b.runMiddleware(mws, idx+1, env, terminal)
		return
	}
	if !called {
		b.log.Debug().Int("middleware_index", idx).Str("event", env.Meta.EventName).
			Msg("middleware short-circuited, delivery skipped")
	}
}
