// Package ingest implements the per-camera ingest worker: dial a
// camera's frame stream, decode each frame, stamp it with its
// capture timestamp, and publish it into that camera's filled queue
// -- grounded on the teacher's rtsp stream-capture worker loop,
// generalized from GStreamer pipelines to a raw length-prefixed TCP
// framing and an injected Decoder.
package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/camsync/host/internal/affinity"
	"github.com/camsync/host/internal/config"
	"github.com/camsync/host/internal/errkind"
	"github.com/camsync/host/internal/framepool"
	"github.com/camsync/host/internal/runstats"
	"github.com/camsync/host/internal/spscqueue"
)

// State names the ingest worker's position in its lifecycle, kept
// for observability (health snapshots, logging) rather than as a
// dispatch mechanism -- the worker loop below is straight-line Go,
// not a table-driven state machine.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// defaultReadTimeout bounds each frame header/payload read so a
// worker can notice ctx cancellation promptly instead of blocking
// forever on a camera that has gone silent, grounded on the
// teacher's RTSPStream.Stop bounded-wait shutdown.
const defaultReadTimeout = 10 * time.Second

// emptyQueueSpin is the yield granularity while waiting for the
// synchronizer to free a buffer; this is the documented backpressure
// mechanism, not a bug.
const emptyQueueSpin = 200 * time.Microsecond

// Worker receives, decodes, and timestamps frames for exactly one
// camera, and republishes recycled buffers it reads back from that
// camera's empty queue.
type Worker struct {
	Camera     config.CameraConfig
	FrameBytes int
	Filled     *spscqueue.Producer[*framepool.TimestampedFrame]
	Empty      *spscqueue.Consumer[*framepool.TimestampedFrame]
	Decoder    Decoder
	Stats      *runstats.CameraStats
	Reconnect  ReconnectConfig
	Core       int // preferred CPU core, advisory (see internal/affinity)

	// ReadTimeout bounds each frame header/payload read. Defaults to
	// defaultReadTimeout; tests may shrink it further.
	ReadTimeout time.Duration

	state   State
	conn    net.Conn
	traceID string // correlates log lines for one connection attempt
}

// NewWorker builds a Worker with the default reconnect schedule and
// a PassthroughDecoder if decoder is nil.
func NewWorker(cam config.CameraConfig, frameBytes int, filled *spscqueue.Producer[*framepool.TimestampedFrame], empty *spscqueue.Consumer[*framepool.TimestampedFrame], decoder Decoder, stats *runstats.CameraStats, core int) *Worker {
	if decoder == nil {
		decoder = PassthroughDecoder{}
	}
	return &Worker{
		Camera:      cam,
		FrameBytes:  frameBytes,
		Filled:      filled,
		Empty:       empty,
		Decoder:     decoder,
		Stats:       stats,
		Reconnect:   DefaultReconnectConfig(),
		Core:        core,
		ReadTimeout: defaultReadTimeout,
		state:       StateIdle,
	}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return w.state }

// Run drives the full worker lifecycle until ctx is cancelled or a
// hard network failure exhausts the reconnect budget. It never
// returns a non-nil error for decode failures; those are handled
// per-frame and logged.
func (w *Worker) Run(ctx context.Context) error {
	if w.Core >= 0 {
		if err := affinity.Pin(w.Core); err != nil {
			slog.Warn("ingest: affinity pin failed, continuing unpinned", "camera_id", w.Camera.ID, "error", err)
		}
		defer affinity.Unpin()
	}

	defer w.drain()

	err := runWithReconnect(ctx, w.Camera.ID, w.connect, w.Reconnect, func() {
		if w.Stats != nil {
			w.Stats.IncReconnects()
		}
	})
	if err != nil {
		w.state = StateStopped
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		w.publishFailureSentinel()
		if w.Stats != nil {
			w.Stats.IncNetworkFailures()
		}
		return errkind.New(errkind.Network, "connect "+w.Camera.ID, err)
	}
	defer w.closeConn()

	w.state = StateRunning
	for {
		select {
		case <-ctx.Done():
			w.state = StateDraining
			return nil
		default:
		}

		if err := w.receiveOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.state = StateDraining
				return nil
			}
			slog.Error("ingest: frame stream broken, reconnecting", "camera_id", w.Camera.ID, "error", err)
			w.closeConn()
			if rerr := runWithReconnect(ctx, w.Camera.ID, w.connect, w.Reconnect, func() {
				if w.Stats != nil {
					w.Stats.IncReconnects()
				}
			}); rerr != nil {
				w.state = StateStopped
				if errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded) {
					return nil
				}
				w.publishFailureSentinel()
				if w.Stats != nil {
					w.Stats.IncNetworkFailures()
				}
				return errkind.New(errkind.Network, "reconnect "+w.Camera.ID, rerr)
			}
		}
	}
}

func (w *Worker) connect(ctx context.Context) error {
	w.traceID = uuid.New().String()
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", w.Camera.FrameStreamAddr)
	if err != nil {
		slog.Warn("ingest: connect failed", "camera_id", w.Camera.ID, "trace_id", w.traceID, "error", err)
		return err
	}
	w.conn = conn
	w.state = StateConnected
	slog.Info("ingest: connected", "camera_id", w.Camera.ID, "trace_id", w.traceID, "addr", w.Camera.FrameStreamAddr)
	return nil
}

func (w *Worker) closeConn() {
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// receiveOne reads one frame header (4-byte big-endian length, then
// 8-byte little-endian timestamp), acquires an empty buffer,
// decodes into it, stamps it, and publishes it -- step (a) through
// (e) of the ingest worker's responsibilities.
func (w *Worker) receiveOne(ctx context.Context) error {
	conn := w.conn
	conn.SetReadDeadline(time.Now().Add(w.ReadTimeout))
	// Cancelling ctx moves the read deadline to now, so a blocked
	// read returns at once instead of waiting out ReadTimeout.
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	header := make([]byte, 12)
	if _, err := io.ReadFull(conn, header); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	payloadLen := binary.BigEndian.Uint32(header[0:4])
	timestamp := binary.LittleEndian.Uint64(header[4:12])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(conn, payload); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	frame, err := w.acquireEmpty(ctx)
	if err != nil {
		return err
	}

	if err := w.Decoder.Decode(payload, frame.Buffer); err != nil {
		slog.Warn("ingest: decode failure, recycling buffer", "camera_id", w.Camera.ID, "error", err)
		if w.Stats != nil {
			w.Stats.IncDecodeFailures()
		}
		w.recycle(frame)
		return nil
	}

	frame.Timestamp = timestamp
	w.state = StateRunning
	if !w.Filled.Enqueue(frame) {
		// Cannot happen under the pool invariant (|filled_q[i]| < K
		// whenever a buffer was just withdrawn from empty_q[i]), but
		// never silently drop a buffer we own.
		slog.Error("ingest: filled queue unexpectedly full, recycling", "camera_id", w.Camera.ID)
		w.recycle(frame)
		return nil
	}
	if w.Stats != nil {
		w.Stats.IncFramesPublished()
	}
	return nil
}

// acquireEmpty dequeues a buffer from the empty queue, spinning with
// a brief sleep when empty. This is backpressure, not a bug: a slow
// synchronizer stalls this worker, which stalls the camera's stream.
func (w *Worker) acquireEmpty(ctx context.Context) (*framepool.TimestampedFrame, error) {
	for {
		if frame, ok := w.Empty.Dequeue(); ok {
			return frame, nil
		}
		// WAITING_FOR_EMPTY: transient, not tracked as a distinct
		// State value since it is only ever observed mid-iteration.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(emptyQueueSpin):
			runtime.Gosched()
		}
	}
}

func (w *Worker) recycle(frame *framepool.TimestampedFrame) {
	frame.Timestamp = 0
	if !w.Empty.Enqueue(frame) {
		slog.Error("ingest: empty queue unexpectedly full while recycling", "camera_id", w.Camera.ID)
	}
	if w.Stats != nil {
		w.Stats.IncRecycled()
	}
}

// publishFailureSentinel marks this camera permanently failed by
// publishing a zero-timestamp buffer, letting the synchronizer
// observe and skip it instead of waiting forever.
func (w *Worker) publishFailureSentinel() {
	frame, ok := w.Empty.Dequeue()
	if !ok {
		slog.Error("ingest: no empty buffer available to publish failure sentinel", "camera_id", w.Camera.ID)
		return
	}
	frame.Timestamp = 0
	w.Filled.Enqueue(frame)
}

// drain marks the worker stopped on exit. It returns no buffers:
// a worker only holds a buffer inside receiveOne, which always
// publishes or recycles it before returning, so the worker owns
// none by the time Run exits.
func (w *Worker) drain() {
	w.state = StateStopped
}
