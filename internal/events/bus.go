// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Donghh0221/afk/internal/afklog"
)

// ErrBusClosed is returned when operating on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// ErrSubscriptionNotFound is returned when unsubscribing with an invalid ID.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// BusConfig configures the event bus.
type BusConfig struct {
	HistoryMaxEvents int
	HistoryMaxAge    time.Duration
}

// Bus is the supervisor's in-process typed pub/sub. Subscribers register
// for a single Type and receive only events of that type, in publish
// order. Publish never blocks: a full subscriber queue drops that event
// for that subscriber only, with a logged warning (SPEC_FULL.md §4.3).
type Bus struct {
	mu      sync.RWMutex
	subs    map[Type]map[SubscriptionID]*subscription
	history *History
	matcher *PatternMatcher
	closed  atomic.Bool
	nextID  uint64
	log     *afklog.Logger
}

type subscription struct {
	id     SubscriptionID
	typ    Type
	ch     chan Event
	stopCh chan struct{}
}

// NewBus creates a new in-process event bus.
func NewBus(cfg BusConfig) *Bus {
	return &Bus{
		subs: make(map[Type]map[SubscriptionID]*subscription),
		history: NewHistory(HistoryConfig{
			MaxEvents: cfg.HistoryMaxEvents,
			MaxAge:    cfg.HistoryMaxAge,
		}),
		matcher: NewPatternMatcher(),
		log:     afklog.New("eventbus"),
	}
}

// Publish emits an event to every live subscriber of its exact type.
// Non-blocking: subscribers with a full queue drop this event, and each
// drop is logged as a warning.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.history.Add(event)

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs[event.EventType()]))
	for _, sub := range b.subs[event.EventType()] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			b.log.Warnf("dropped %s event for subscriber %s: buffer full", event.EventType(), sub.id)
		}
	}

	return nil
}

// Subscribe registers a new queue of the given buffer size for one event
// type. The returned channel receives only events of that type.
func (b *Bus) Subscribe(typ Type, bufferSize int) (SubscriptionID, <-chan Event, error) {
	if b.closed.Load() {
		return "", nil, ErrBusClosed
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}

	id := SubscriptionID(b.generateID())
	sub := &subscription{
		id:     id,
		typ:    typ,
		ch:     make(chan Event, bufferSize),
		stopCh: make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[typ] == nil {
		b.subs[typ] = make(map[SubscriptionID]*subscription)
	}
	b.subs[typ][id] = sub
	b.mu.Unlock()

	return id, sub.ch, nil
}

// Iterate is the convenience iterator form: it behaves like Subscribe but
// unsubscribes automatically when ctx is cancelled, closing the returned
// channel so a range loop over it terminates cleanly.
func (b *Bus) Iterate(ctx context.Context, typ Type, bufferSize int) (<-chan Event, error) {
	id, ch, err := b.Subscribe(typ, bufferSize)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, bufferSize)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				b.Unsubscribe(id)
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					b.Unsubscribe(id)
					return
				}
			}
		}
	}()
	return out, nil
}

// Unsubscribe removes a subscription. Double-unsubscribe is a no-op.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	b.mu.Lock()
	var found *subscription
	for typ, subs := range b.subs {
		if sub, ok := subs[id]; ok {
			found = sub
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subs, typ)
			}
			break
		}
	}
	b.mu.Unlock()

	if found == nil {
		return ErrSubscriptionNotFound
	}
	close(found.stopCh)
	return nil
}

// History retrieves past events matching filter.
func (b *Bus) History(filter EventFilter) []Event {
	return b.history.Query(filter)
}

// Close shuts down the bus, closing every live subscriber channel.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subs = make(map[Type]map[SubscriptionID]*subscription)
	b.mu.Unlock()

	b.history.Close()
	return nil
}

func (b *Bus) generateID() string {
	n := atomic.AddUint64(&b.nextID, 1)
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf) + "-" + strconv.FormatUint(n, 10)
}
