package main

import "sync"

// hub fans out published values to subscribers.  A subscriber that has not
// consumed its previous value misses the next one, so a slow browser never
// stalls the pipeline.
type hub[T any] struct {
	mu      sync.Mutex
	clients map[chan T]struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{
		clients: make(map[chan T]struct{}),
	}
}

// subscribe returns the channel values are delivered on and a function to
// unsubscribe
func (h *hub[T]) subscribe() (<-chan T, func()) {

	ch := make(chan T, 1)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}
}

func (h *hub[T]) publish(v T) {

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- v:
		default:
		}
	}
}

func (h *hub[T]) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
