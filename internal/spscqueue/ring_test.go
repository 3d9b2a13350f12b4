package spscqueue

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

// TestEnqueueDequeueOrder verifies FIFO order is preserved for a
// single producer/consumer pair with no contention.
func TestEnqueueDequeueOrder(t *testing.T) {
	p, c := New[int](8)

	for i := 0; i < 8; i++ {
		if !p.Enqueue(i) {
			t.Fatalf("Enqueue(%d) unexpectedly full", i)
		}
	}

	for i := 0; i < 8; i++ {
		v, ok := c.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() unexpectedly empty at i=%d", i)
		}
		if v != i {
			t.Errorf("expected %d, got %d", i, v)
		}
	}
}

// TestQueueSaturation covers S6: the first K enqueues succeed, the
// next attempts fail while the consumer is paused, and after
// draining the queue empties cleanly.
func TestQueueSaturation(t *testing.T) {
	p, c := New[int](8) // rounds up to 8 already

	for i := 0; i < 8; i++ {
		if !p.Enqueue(i) {
			t.Fatalf("Enqueue(%d) should have succeeded", i)
		}
	}

	for i := 0; i < 5; i++ {
		if p.Enqueue(100 + i) {
			t.Fatalf("Enqueue(%d) should have failed, queue is full", 100+i)
		}
	}

	for i := 0; i < 8; i++ {
		if _, ok := c.Dequeue(); !ok {
			t.Fatalf("Dequeue() should have succeeded draining item %d", i)
		}
	}

	for i := 0; i < 5; i++ {
		if !p.Enqueue(100 + i) {
			t.Fatalf("Enqueue(%d) should have succeeded after drain", 100+i)
		}
	}

	for i := 0; i < 5; i++ {
		v, ok := c.Dequeue()
		if !ok || v != 100+i {
			t.Fatalf("expected (%d, true), got (%d, %v)", 100+i, v, ok)
		}
	}

	if _, ok := c.Dequeue(); ok {
		t.Fatal("queue should be empty after full drain")
	}
}

// TestEmptyDequeue verifies Dequeue never blocks on an empty queue.
func TestEmptyDequeue(t *testing.T) {
	_, c := New[int](4)
	if _, ok := c.Dequeue(); ok {
		t.Fatal("expected empty queue to return ok=false")
	}
}

// TestConcurrentSPSC runs a real producer goroutine and consumer
// goroutine with randomized scheduling delays and asserts the full
// sequence arrives in order with no loss or duplication.
func TestConcurrentSPSC(t *testing.T) {
	const n = 50_000
	p, c := New[int](256)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		for i := 0; i < n; i++ {
			for !p.Enqueue(i) {
				if rng.Intn(64) == 0 {
					time.Sleep(time.Microsecond)
				}
			}
		}
	}()

	received := make([]int, 0, n)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(2))
		for len(received) < n {
			v, ok := c.Dequeue()
			if !ok {
				if rng.Intn(64) == 0 {
					time.Sleep(time.Microsecond)
				}
				continue
			}
			received = append(received, v)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for consumer to drain expected sequence")
	}
	wg.Wait()

	if len(received) != n {
		t.Fatalf("expected %d items, got %d", n, len(received))
	}
	for i, v := range received {
		if v != i {
			t.Fatalf("out of order at position %d: expected %d, got %d", i, i, v)
		}
	}
}

// TestLenTracksEnqueuedCount verifies the best-effort depth snapshot
// used by the health surface.
func TestLenTracksEnqueuedCount(t *testing.T) {
	p, c := New[int](8)

	if got := c.Len(); got != 0 {
		t.Fatalf("Len() on empty queue = %d, want 0", got)
	}

	for i := 0; i < 5; i++ {
		p.Enqueue(i)
	}
	if got := p.Len(); got != 5 {
		t.Errorf("Producer.Len() = %d, want 5", got)
	}
	if got := c.Len(); got != 5 {
		t.Errorf("Consumer.Len() = %d, want 5", got)
	}

	c.Dequeue()
	c.Dequeue()
	if got := c.Len(); got != 3 {
		t.Errorf("Len() after two dequeues = %d, want 3", got)
	}
}

// TestCapacityRoundsUpToPowerOfTwo documents the capacity contract.
func TestCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	cases := []struct{ in, want int }{
		{1, 2}, {2, 2}, {3, 4}, {32, 32}, {33, 64},
	}
	for _, tc := range cases {
		_, c := New[int](tc.in)
		if c.Cap() != tc.want {
			t.Errorf("New(%d): expected capacity %d, got %d", tc.in, tc.want, c.Cap())
		}
	}
}
