// Package events carries session notifications between the controllers of a
// single viewer.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Kind string

const (
	LoggedIn  Kind = "loggedIn"
	LoggedOff Kind = "loggedOff"
)

type Event struct {
	Kind    Kind
	OwnerID string
	At      time.Time
}

// Bus fans events out to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
	log    zerolog.Logger
}

func NewBus(l zerolog.Logger) *Bus {
	return &Bus{subs: map[int]chan Event{}, log: l}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *Bus) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 1
	}
	ch := make(chan Event, buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn().Int("subscriber", id).Str("event", string(ev.Kind)).Msg("event dropped, subscriber full")
		}
	}
}

// Close closes every subscriber channel; later subscriptions are closed at once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
