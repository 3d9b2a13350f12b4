package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/camsync/host/internal/config"
	"github.com/camsync/host/internal/framepool"
	"github.com/camsync/host/internal/runstats"
)

const testFrameBytes = 16

func writeFrame(t *testing.T, conn net.Conn, timestamp uint64, payload []byte) {
	t.Helper()
	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint64(header[4:12], timestamp)
	if _, err := conn.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

func newTestWorker(t *testing.T, addr string) (*Worker, *framepool.Pool) {
	t.Helper()
	pool := framepool.New(4, testFrameBytes)
	cam := config.CameraConfig{ID: "cam0", FrameStreamAddr: addr}
	w := NewWorker(cam, testFrameBytes, pool.FilledProducer, pool.EmptyConsumer, PassthroughDecoder{}, &runstats.CameraStats{}, -1)
	w.Reconnect = ReconnectConfig{MaxRetries: 2, RetryDelay: 10 * time.Millisecond, MaxRetryDelay: 20 * time.Millisecond}
	return w, pool
}

func TestWorkerPublishesDecodedFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	w, pool := newTestWorker(t, ln.Addr().String())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("camera never dialed")
	}
	defer conn.Close()

	payload := make([]byte, testFrameBytes)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	writeFrame(t, conn, 100, payload)

	var frame *framepool.TimestampedFrame
	deadline := time.After(2 * time.Second)
	for {
		if f, ok := pool.FilledConsumer.Dequeue(); ok {
			frame = f
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for filled frame")
		case <-time.After(time.Millisecond):
		}
	}

	if frame.Timestamp != 100 {
		t.Errorf("timestamp = %d, want 100", frame.Timestamp)
	}
	if string(frame.Buffer) != string(payload) {
		t.Errorf("buffer = %v, want %v", frame.Buffer, payload)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerRecyclesOnDecodeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	pool := framepool.New(4, testFrameBytes)
	cam := config.CameraConfig{ID: "cam0", FrameStreamAddr: ln.Addr().String()}
	stats := &runstats.CameraStats{}
	w := NewWorker(cam, testFrameBytes, pool.FilledProducer, pool.EmptyConsumer, PassthroughDecoder{}, stats, -1)
	w.Reconnect = ReconnectConfig{MaxRetries: 1, RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { w.Run(ctx) }()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("camera never dialed")
	}
	defer conn.Close()

	// Wrong-sized payload relative to testFrameBytes forces
	// PassthroughDecoder to fail, which must recycle the buffer
	// rather than crash the worker or leak it.
	writeFrame(t, conn, 50, make([]byte, testFrameBytes-1))

	deadline := time.After(2 * time.Second)
	for {
		if atomic.LoadUint64(&stats.DecodeFailures) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for decode failure counter")
		case <-time.After(time.Millisecond):
		}
	}

	// The recycle path feeds the same buffer back into the worker's
	// own empty queue; asserting via the Recycled counter avoids a
	// second, test-side consumer racing the worker's single
	// permitted consumer on that SPSC endpoint.
	deadline = time.After(2 * time.Second)
	for {
		if atomic.LoadUint64(&stats.Recycled) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recycle counter")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestWorkerFailsAfterReconnectBudgetExhausted(t *testing.T) {
	// Reserve a port and close it immediately so every dial attempt
	// is refused, exhausting the reconnect budget deterministically.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	pool := framepool.New(2, testFrameBytes)
	cam := config.CameraConfig{ID: "cam0", FrameStreamAddr: addr}
	stats := &runstats.CameraStats{}
	w := NewWorker(cam, testFrameBytes, pool.FilledProducer, pool.EmptyConsumer, PassthroughDecoder{}, stats, -1)
	w.Reconnect = ReconnectConfig{MaxRetries: 1, RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 5 * time.Millisecond}

	ctx := context.Background()
	err = w.Run(ctx)
	if err == nil {
		t.Fatal("expected worker to report failure after exhausting reconnect budget")
	}

	if got := atomic.LoadUint64(&stats.NetworkFailures); got != 1 {
		t.Errorf("NetworkFailures = %d, want 1", got)
	}

	frame, ok := pool.FilledConsumer.Dequeue()
	if !ok {
		t.Fatal("expected a failure sentinel published to the filled queue")
	}
	if frame.Timestamp != 0 {
		t.Errorf("sentinel timestamp = %d, want 0", frame.Timestamp)
	}
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(3 * time.Second)
		}
	}()

	w, _ := newTestWorker(t, ln.Addr().String())
	w.ReadTimeout = 100 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop promptly after context cancel")
	}
}
