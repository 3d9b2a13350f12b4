// Package aligner implements the cross-camera synchronizer: it
// drains one filled buffer per camera, aligns them by timestamp,
// recycles mismatches, and emits aligned sets to a downstream
// consumer callback -- a direct generalization of the reference
// collector's fill/max/align/commit loop to N camera SPSC queues and
// a Go callback in place of a log line.
package aligner

import (
	"context"
	"log/slog"
	"time"

	"github.com/camsync/host/internal/framepool"
	"github.com/camsync/host/internal/runstats"
)

// fillPollInterval bounds the busy-loop yield while waiting on a
// camera's filled queue, keeping the synchronizer from pegging a
// core at 100% while idle.
const fillPollInterval = 500 * time.Microsecond

// DefaultFirstFrameTimeout is how long a camera is given to publish
// its first frame before it is logged as degraded, grounded on the
// teacher's idleThreshold convention.
const DefaultFirstFrameTimeout = 30 * time.Second

// Consumer receives one aligned set of N frame buffers sharing
// timestamp t. Buffers are borrowed for the duration of the call and
// must not be retained past it.
type Consumer func(t uint64, frames []*framepool.TimestampedFrame)

// Camera is one camera's queue endpoints as seen by the
// synchronizer: it drains Filled and returns buffers via Empty.
type Camera struct {
	ID     string
	Filled filledConsumer
	Empty  emptyProducer
	Stats  *runstats.CameraStats
}

// filledConsumer and emptyProducer are the narrow interfaces the
// synchronizer actually needs from *spscqueue.Consumer/Producer,
// letting tests substitute fakes without wiring a full queue pair.
type filledConsumer interface {
	Dequeue() (*framepool.TimestampedFrame, bool)
}

type emptyProducer interface {
	Enqueue(*framepool.TimestampedFrame) bool
}

// Config tunes the synchronizer's termination and degraded-camera
// behavior.
type Config struct {
	// TargetSetCount stops the run after this many aligned sets are
	// emitted. Zero means run until ctx is cancelled.
	TargetSetCount int
	// FirstFrameTimeout bounds how long after Run starts a camera may
	// go without publishing its first frame before it is marked
	// degraded in RunStats. Gaps after the first frame are not timed.
	// Zero uses DefaultFirstFrameTimeout.
	FirstFrameTimeout time.Duration
}

// Synchronizer runs the single-goroutine alignment loop described in
// the component design: fill slots, compute the max timestamp,
// release anything below it, and emit once every slot agrees.
type Synchronizer struct {
	cameras  []Camera
	consumer Consumer
	cfg      Config
	stats    *runstats.Registry

	current    []*framepool.TimestampedFrame
	everFilled []bool
}

// New builds a Synchronizer over cameras, invoking consumer once per
// aligned set. stats may be nil if run-wide counters are not needed
// (e.g. in unit tests of the alignment algorithm alone).
func New(cameras []Camera, consumer Consumer, cfg Config, stats *runstats.Registry) *Synchronizer {
	if cfg.FirstFrameTimeout == 0 {
		cfg.FirstFrameTimeout = DefaultFirstFrameTimeout
	}
	return &Synchronizer{
		cameras:    cameras,
		consumer:   consumer,
		cfg:        cfg,
		stats:      stats,
		current:    make([]*framepool.TimestampedFrame, len(cameras)),
		everFilled: make([]bool, len(cameras)),
	}
}

// Run executes the alignment loop until ctx is cancelled or
// cfg.TargetSetCount aligned sets have been emitted (if nonzero). It
// always returns every held buffer to its camera's empty queue
// before returning.
func (s *Synchronizer) Run(ctx context.Context) error {
	defer s.releaseAll()

	startedAt := time.Now()
	emitted := 0
	for {
		if s.cfg.TargetSetCount > 0 && emitted >= s.cfg.TargetSetCount {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !s.fillSlots(ctx, startedAt) {
			return nil // ctx cancelled while filling
		}

		maxTS := s.maxTimestamp()
		if s.alignToMax(maxTS) {
			continue // some slot was below max and got recycled; refill
		}

		s.consumer(maxTS, s.current)
		s.releaseAll()
		emitted++
		if s.stats != nil {
			s.stats.IncAlignedSets()
		}
	}
}

// fillSlots attempts to dequeue a frame for every empty current[i]
// slot, busy-looping with a brief yield until every slot is filled
// or ctx is cancelled. Returns false if cancelled.
func (s *Synchronizer) fillSlots(ctx context.Context, startedAt time.Time) bool {
	for {
		full := true
		for i := range s.cameras {
			if s.current[i] != nil {
				continue
			}
			if frame, ok := s.cameras[i].Filled.Dequeue(); ok {
				s.current[i] = frame
				if !s.everFilled[i] {
					s.everFilled[i] = true
					if s.cameras[i].Stats != nil {
						s.cameras[i].Stats.SetDegraded(false)
					}
				}
				continue
			}
			full = false
			s.checkFirstFrameTimeout(i, startedAt)
		}
		if full {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(fillPollInterval):
		}
	}
}

// checkFirstFrameTimeout marks camera i degraded if it has never
// published within FirstFrameTimeout of synchronizer startup. It
// logs once per transition into the degraded state.
func (s *Synchronizer) checkFirstFrameTimeout(i int, startedAt time.Time) {
	if s.everFilled[i] {
		return
	}
	if time.Since(startedAt) < s.cfg.FirstFrameTimeout {
		return
	}
	if s.cameras[i].Stats == nil {
		return
	}
	wasDegraded := s.cameras[i].Stats.Degraded != 0
	if wasDegraded {
		return
	}
	slog.Warn("aligner: camera has not published a first frame, marking degraded",
		"camera_id", s.cameras[i].ID, "timeout", s.cfg.FirstFrameTimeout)
	s.cameras[i].Stats.SetDegraded(true)
}

func (s *Synchronizer) maxTimestamp() uint64 {
	var max uint64
	for _, f := range s.current {
		if f.Timestamp > max {
			max = f.Timestamp
		}
	}
	return max
}

// alignToMax recycles every slot strictly below maxTS back to its
// camera's empty queue and clears it, reporting whether anything was
// recycled (meaning the caller must refill before retrying).
func (s *Synchronizer) alignToMax(maxTS uint64) bool {
	recycled := false
	for i, f := range s.current {
		if f.Timestamp == maxTS {
			continue
		}
		s.cameras[i].Empty.Enqueue(f)
		if s.cameras[i].Stats != nil {
			s.cameras[i].Stats.IncRecycled()
		}
		s.current[i] = nil
		recycled = true
	}
	return recycled
}

// releaseAll returns every still-held buffer to its camera's empty
// queue and clears the slot array, restoring pool conservation.
func (s *Synchronizer) releaseAll() {
	for i, f := range s.current {
		if f == nil {
			continue
		}
		s.cameras[i].Empty.Enqueue(f)
		s.current[i] = nil
	}
}
