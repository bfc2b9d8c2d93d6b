package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Unsubscribe releases one subscription. Controllers own their handles
// and release them deterministically on leave; there is no implicit
// teardown.
type Unsubscribe func()

// Bus publishes room events and delivers them to per-room subscribers.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(roomID uuid.UUID, fn func(Event)) (Unsubscribe, error)
}

// MemoryBus is an in-process Bus for tests and single-node dev setups.
// Delivery is synchronous and in publish order per room.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(Event)
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]func(Event))}
}

func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs[event.RoomID]))
	for _, fn := range b.subs[event.RoomID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(roomID uuid.UUID, fn func(Event)) (Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := roomID.String()
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.subs[key][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[key], id)
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
	}, nil
}
