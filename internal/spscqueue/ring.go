package spscqueue

import "sync/atomic"

// slot holds one payload plus a sequence number used to hand off
// ownership between the producer and the consumer without a mutex.
type slot[T any] struct {
	seq   atomic.Uint64
	value T
}

type ring[T any] struct {
	mask uint64
	buf  []slot[T]

	_ [64]byte // pad before head to isolate it from mask/buf on the cache line above

	head atomic.Uint64 // consumer-owned read cursor

	_ [56]byte // pad between head and tail

	tail atomic.Uint64 // producer-owned write cursor

	_ [56]byte
}

// Producer is the write-only endpoint of a queue. It must be used
// from a single goroutine.
type Producer[T any] struct {
	r *ring[T]
}

// Consumer is the read-only endpoint of a queue. It must be used
// from a single goroutine, which may differ from the producer's.
type Consumer[T any] struct {
	r *ring[T]
}

// New builds a bounded SPSC queue of the given capacity (rounded up
// to the next power of two, minimum 2) and returns its producer and
// consumer endpoints. The queue begins empty.
func New[T any](capacity int) (*Producer[T], *Consumer[T]) {
	size := nextPow2(capacity)
	r := &ring[T]{
		mask: uint64(size - 1),
		buf:  make([]slot[T], size),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return &Producer[T]{r: r}, &Consumer[T]{r: r}
}

func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// Enqueue publishes a value into the queue. It returns false without
// blocking if the queue is full.
func (p *Producer[T]) Enqueue(v T) bool {
	r := p.r
	t := r.tail.Load()
	s := &r.buf[t&r.mask]
	if s.seq.Load() != t {
		return false // slot still owned by the consumer
	}
	s.value = v
	s.seq.Store(t + 1) // release: publish the value write above
	r.tail.Store(t + 1)
	return true
}

// Dequeue withdraws the next value from the queue. It returns
// (zero, false) without blocking if the queue is empty.
func (c *Consumer[T]) Dequeue() (T, bool) {
	r := c.r
	h := r.head.Load()
	s := &r.buf[h&r.mask]
	if s.seq.Load() != h+1 {
		var zero T
		return zero, false // slot not yet published by the producer
	}
	v := s.value // acquire: observes the producer's value write
	s.seq.Store(h + uint64(len(r.buf)))
	r.head.Store(h + 1)
	return v, true
}

// Cap returns the queue's capacity (the rounded-up power of two).
func (c *Consumer[T]) Cap() int { return len(c.r.buf) }

// Cap returns the queue's capacity (the rounded-up power of two).
func (p *Producer[T]) Cap() int { return len(p.r.buf) }

// Len returns a best-effort snapshot of the number of items
// currently queued. It is safe to call from any goroutine (both
// cursors are atomic), but since it reads two independent cursors
// without a lock, the result may be stale by the time the caller
// observes it -- adequate for health/metrics reporting, not for
// correctness decisions.
func (c *Consumer[T]) Len() int { return int(c.r.tail.Load() - c.r.head.Load()) }

// Len returns the same best-effort snapshot as Consumer.Len, exposed
// on the producer endpoint too since either side may own the health
// reporting goroutine.
func (p *Producer[T]) Len() int { return int(p.r.tail.Load() - p.r.head.Load()) }
