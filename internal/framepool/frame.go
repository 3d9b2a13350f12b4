// Package framepool owns the fixed-size pixel buffers shared between
// ingest workers and the synchronizer, and the per-camera SPSC queue
// pairs that move them around without allocation.
//
// Every buffer in a run is the same size: a planar YUV 4:2:0 frame of
// Width*Height*3/2 bytes. The pool preallocates BuffersPerCamera of
// them per camera up front and never grows; ownership moves between
// the ingest worker, the filled queue, the synchronizer, and the
// empty queue by queue operation alone, never by copy.
package framepool

import "github.com/camsync/host/internal/spscqueue"

// TimestampedFrame pairs a decoded frame buffer with the capture
// timestamp written by the ingest worker that filled it. The
// timestamp is nanoseconds since the epoch agreed with the cameras
// at broadcast time; zero is reserved as the failed-camera sentinel.
type TimestampedFrame struct {
	Timestamp uint64
	Buffer    []byte
}

// Pool holds the buffers and queue endpoints for a single camera.
// All K slots begin in Empty; Filled begins empty.
type Pool struct {
	FilledProducer *spscqueue.Producer[*TimestampedFrame]
	FilledConsumer *spscqueue.Consumer[*TimestampedFrame]
	EmptyProducer  *spscqueue.Producer[*TimestampedFrame]
	EmptyConsumer  *spscqueue.Consumer[*TimestampedFrame]

	slots []TimestampedFrame
}

// New allocates one contiguous pixel region of capacity*frameBytes
// bytes, slices it into capacity TimestampedFrame slots, and primes
// the empty queue with all of them. frameBytes is typically
// Width*Height*3/2 for planar YUV 4:2:0.
func New(capacity, frameBytes int) *Pool {
	backing := make([]byte, capacity*frameBytes)

	pool := &Pool{slots: make([]TimestampedFrame, capacity)}
	pool.FilledProducer, pool.FilledConsumer = spscqueue.New[*TimestampedFrame](capacity)
	pool.EmptyProducer, pool.EmptyConsumer = spscqueue.New[*TimestampedFrame](capacity)

	for i := range pool.slots {
		pool.slots[i].Buffer = backing[i*frameBytes : (i+1)*frameBytes]
		pool.EmptyProducer.Enqueue(&pool.slots[i])
	}
	return pool
}

// Capacity returns K, the number of TimestampedFrame slots owned by
// this pool (constant across the pool's lifetime).
func (p *Pool) Capacity() int { return len(p.slots) }
