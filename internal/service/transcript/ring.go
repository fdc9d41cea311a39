package transcript

// Ring is a fixed-capacity FIFO buffer. Pushing into a full ring overwrites
// the oldest element.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRing returns a ring holding at most capacity elements. Capacity below
// one is treated as one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	r.buf[(r.start+r.size)%len(r.buf)] = v
	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Last returns a copy of the n most recent elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	offset := r.size - n
	for i := range out {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

// Items returns a copy of every element, oldest first.
func (r *Ring[T]) Items() []T {
	return r.Last(r.size)
}
