// Package spscqueue provides a bounded, wait-free single-producer
// single-consumer queue over a preallocated ring of slots.
//
// The queue never allocates on Enqueue or Dequeue. Capacity is fixed
// at construction and rounded up to the next power of two. There is
// no mutex on the hot path: the producer and consumer coordinate
// through per-slot sequence numbers published with an atomic release
// store and observed with an atomic acquire load.
//
// The SPSC contract is enforced at the type level: New returns two
// distinct handles, a *Producer and a *Consumer, so a caller cannot
// accidentally call Enqueue from two goroutines or hand the same
// handle to both ends of a pipeline.
package spscqueue
