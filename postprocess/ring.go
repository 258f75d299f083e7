package postprocess

// ring is a fixed capacity FIFO that evicts the oldest entry on overflow
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, max(capacity, 0))}
}

// push appends v, evicting the oldest entry when full
func (r *ring[T]) push(v T) {
	if len(r.buf) == 0 {
		return
	}

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}

	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// each calls fn for every entry from oldest to newest
func (r *ring[T]) each(fn func(T)) {
	for i := 0; i < r.size; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}

func (r *ring[T]) len() int {
	return r.size
}

func (r *ring[T]) clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start = 0
	r.size = 0
}
