package site

import (
	"sync"

	"github.com/devskill-org/bess-ems/plantstate"
)

// defaultSubscriberQueue is the bounded per-subscriber snapshot queue
// depth; a slow subscriber drops snapshots rather than blocking the tick
// loop.
const defaultSubscriberQueue = 10

// Broadcaster fans out plant-state snapshots to registered subscribers,
// never blocking the publisher on a slow or stalled reader.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan plantstate.State
	nextID  int
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan plantstate.State)}
}

// Subscribe registers a new subscriber and returns its channel plus a
// function to unregister it. Callers must call the cancel function when
// finished to avoid leaking the channel entry.
func (b *Broadcaster) Subscribe() (<-chan plantstate.State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan plantstate.State, defaultSubscriberQueue)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish pushes a snapshot to every subscriber's queue, dropping it for
// any subscriber whose queue is full.
func (b *Broadcaster) Publish(state plantstate.State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- state:
		default:
			// subscriber queue full, drop this snapshot for it
		}
	}
}

// SubscriberCount reports the number of currently registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
