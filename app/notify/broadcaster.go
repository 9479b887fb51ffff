// Package notify provides an ordered synchronous broadcaster shared by the client stores.
package notify

import "sync"

// Broadcaster delivers values to subscribers synchronously, in registration order.
//
// Subscribe never delivers the current value of the owning store. Every caller reads
// the store getter once before (or right after) subscribing. Do not "fix" this by
// adding an initial delivery, subscribers rely on receiving each change exactly once.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a func removing it. Unsubscribe is idempotent.
func (b *Broadcaster[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Emit calls every subscriber registered at the moment of the call with v.
// Subscribers added or removed by a callback take effect on the next Emit.
func (b *Broadcaster[T]) Emit(v T) {
	b.mu.Lock()
	subs := make([]subscriber[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of active subscribers
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}
