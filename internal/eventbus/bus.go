// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package eventbus provides in-process publish/subscribe between feature
// modules.
//
// Handlers subscribe to an EventType and receive every event of that type.
// Publish is fire-and-forget: each handler runs on its own goroutine and the
// caller never sees handler failures. PublishAndWait runs the same dispatch
// but blocks until every handler returns and collects the successful results.
//
// Middleware runs synchronously in the publisher's goroutine, in registration
// order, before any handler is scheduled. A middleware may replace the event,
// abort dispatch by returning (nil, nil), or fail; a failing middleware is
// logged and skipped.
//
// The bus is safe for concurrent use. Handler lists are snapshotted before
// dispatch, so subscribing from inside a handler never deadlocks and only
// affects later events. There is no ordering guarantee across separate
// publish calls.
package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/metrics"
)

// SubscriptionID identifies one Subscribe call. IDs are never reused within
// a Bus.
type SubscriptionID uint64

// Handler processes one event. The returned value is surfaced to
// PublishAndWait callers; Publish discards it.
type Handler func(ctx context.Context, e Event) (any, error)

// Middleware inspects or rewrites an event before dispatch.
type Middleware func(ctx context.Context, e Event) (*Event, error)

// HandlerError records a failed handler invocation.
type HandlerError struct {
	SubscriptionID SubscriptionID
	EventType      EventType
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %d for %s: %v", e.SubscriptionID, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is the event bus. The zero value is not usable; call New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscription
	middleware  []Middleware
	nextID      SubscriptionID

	inflight sync.WaitGroup
	logger   zerolog.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]subscription),
		logger:      logging.WithComponent("eventbus"),
	}
}

// Subscribe registers handler for eventType and returns its subscription id.
// Handlers for the same type are invoked in subscription order.
func (b *Bus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})

	b.logger.Debug().
		Str("event_type", string(eventType)).
		Uint64("subscription_id", uint64(id)).
		Msg("Handler subscribed")
	return id
}

// Unsubscribe removes one subscription. It reports whether the subscription
// existed.
func (b *Bus) Unsubscribe(eventType EventType, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		rest := make([]subscription, 0, len(subs)-1)
		rest = append(rest, subs[:i]...)
		rest = append(rest, subs[i+1:]...)
		if len(rest) == 0 {
			delete(b.subscribers, eventType)
		} else {
			b.subscribers[eventType] = rest
		}
		return true
	}
	return false
}

// AddMiddleware appends fn to the middleware chain.
func (b *Bus) AddMiddleware(fn Middleware) {
	b.mu.Lock()
	b.middleware = append(b.middleware, fn)
	b.mu.Unlock()
}

// Publish dispatches e to every subscriber without waiting. The handlers run
// with a context detached from ctx's cancellation so that a finished HTTP
// request does not cut short the work it triggered.
func (b *Bus) Publish(ctx context.Context, e Event) {
	e, subs, ok := b.prepare(ctx, e)
	if !ok || len(subs) == 0 {
		return
	}

	hctx := context.WithoutCancel(ctx)
	b.inflight.Add(len(subs))
	for _, s := range subs {
		go func(s subscription) {
			defer b.inflight.Done()
			if _, err := b.invoke(hctx, s, e); err != nil {
				b.logFailure(s, e, err)
			}
		}(s)
	}
}

// PublishAndWait dispatches e to every subscriber, waits for all of them, and
// returns the results of the handlers that succeeded, in subscription order.
// Failed handlers are logged and left out of the result; the call itself
// never fails.
func (b *Bus) PublishAndWait(ctx context.Context, e Event) []any {
	e, subs, ok := b.prepare(ctx, e)
	if !ok || len(subs) == 0 {
		return []any{}
	}

	results := make([]any, len(subs))
	failures := make([]*HandlerError, len(subs))

	var g errgroup.Group
	for i, s := range subs {
		g.Go(func() error {
			res, err := b.invoke(ctx, s, e)
			if err != nil {
				failures[i] = &HandlerError{SubscriptionID: s.id, EventType: e.Type, Err: err}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]any, 0, len(subs))
	for i, s := range subs {
		if f := failures[i]; f != nil {
			b.logFailure(s, e, f.Err)
			continue
		}
		out = append(out, results[i])
	}
	return out
}

// ListSubscribers returns the number of handlers per event type.
func (b *Bus) ListSubscribers() map[EventType]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[EventType]int, len(b.subscribers))
	for t, subs := range b.subscribers {
		out[t] = len(subs)
	}
	return out
}

// SubscriberCount returns the total number of handlers across all types.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// ClearSubscribers removes the handlers of the given types, or of every type
// when none is given. Middleware is kept.
func (b *Bus) ClearSubscribers(eventTypes ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(eventTypes) == 0 {
		b.subscribers = make(map[EventType][]subscription)
		return
	}
	for _, t := range eventTypes {
		delete(b.subscribers, t)
	}
}

// Wait blocks until every handler started by Publish has returned.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// prepare runs the middleware chain and snapshots the handlers for the
// resulting event type. ok is false when a middleware aborted dispatch.
func (b *Bus) prepare(ctx context.Context, e Event) (Event, []subscription, bool) {
	b.mu.RLock()
	chain := make([]Middleware, len(b.middleware))
	copy(chain, b.middleware)
	b.mu.RUnlock()

	for i, mw := range chain {
		next, err := b.runMiddleware(ctx, mw, e)
		if err != nil {
			b.logger.Warn().Err(err).
				Int("middleware", i).
				Str("event_type", string(e.Type)).
				Str("event_id", e.ID).
				Msg("Event middleware failed, skipping")
			continue
		}
		if next == nil {
			metrics.EventsDropped.WithLabelValues(string(e.Type)).Inc()
			b.logger.Debug().
				Int("middleware", i).
				Str("event_type", string(e.Type)).
				Str("event_id", e.ID).
				Msg("Event dropped by middleware")
			return e, nil, false
		}
		e = *next
	}

	b.mu.RLock()
	src := b.subscribers[e.Type]
	subs := make([]subscription, len(src))
	copy(subs, src)
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()
	return e, subs, true
}

func (b *Bus) runMiddleware(ctx context.Context, mw Middleware, e Event) (next *Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, fmt.Errorf("middleware panic: %v", r)
		}
	}()
	return mw(ctx, e)
}

func (b *Bus) invoke(ctx context.Context, s subscription, e Event) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("stack", string(debug.Stack())).
				Uint64("subscription_id", uint64(s.id)).
				Msg("Event handler panicked")
			res, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, e)
}

func (b *Bus) logFailure(s subscription, e Event, err error) {
	metrics.EventHandlerFailures.WithLabelValues(string(e.Type)).Inc()
	b.logger.Error().Err(err).
		Uint64("subscription_id", uint64(s.id)).
		Str("event_type", string(e.Type)).
		Str("event_id", e.ID).
		Str("source_module", e.Source).
		Msg("Event handler failed")
}
