// Package runstats holds the atomic run counters surfaced over the
// health interface, grounded on the teacher's
// framesupplier/internal/stats.go atomic-counter-snapshot idiom.
package runstats

import "sync/atomic"

// CameraStats are the per-camera counters tracked by an ingest
// worker. All fields are accessed only through atomic operations.
type CameraStats struct {
	FramesPublished uint64
	Recycled        uint64
	DecodeFailures  uint64
	NetworkFailures uint64
	Reconnects      uint64
	Degraded        uint32 // 0/1, set when the synchronizer's FirstFrameTimeout fires
}

// CameraSnapshot is a point-in-time, non-atomic copy of CameraStats
// safe to marshal to JSON.
type CameraSnapshot struct {
	CameraID        string `json:"camera_id"`
	FramesPublished uint64 `json:"frames_published"`
	Recycled        uint64 `json:"recycled"`
	DecodeFailures  uint64 `json:"decode_failures"`
	NetworkFailures uint64 `json:"network_failures"`
	Reconnects      uint64 `json:"reconnects"`
	Degraded        bool   `json:"degraded"`
	FilledDepth     int    `json:"filled_depth"`
	EmptyDepth      int    `json:"empty_depth"`
}

// Registry aggregates run-wide and per-camera counters. One Registry
// is created in bootstrap and shared read-write by ingest workers,
// read-only by the health surface.
type Registry struct {
	AlignedSets uint64

	perCamera map[string]*CameraStats
	order     []string
}

// NewRegistry allocates a Registry with one CameraStats slot per id
// in cameraIDs, preserving manifest order for stable health output.
func NewRegistry(cameraIDs []string) *Registry {
	r := &Registry{
		perCamera: make(map[string]*CameraStats, len(cameraIDs)),
		order:     append([]string(nil), cameraIDs...),
	}
	for _, id := range cameraIDs {
		r.perCamera[id] = &CameraStats{}
	}
	return r
}

// Camera returns the counters for a given camera id, or nil if the
// id is unknown to the registry.
func (r *Registry) Camera(id string) *CameraStats {
	return r.perCamera[id]
}

// IncAlignedSets bumps the run-wide aligned-set counter.
func (r *Registry) IncAlignedSets() {
	atomic.AddUint64(&r.AlignedSets, 1)
}

// AlignedSetCount reads the run-wide aligned-set counter.
func (r *Registry) AlignedSetCount() uint64 {
	return atomic.LoadUint64(&r.AlignedSets)
}

// IncFramesPublished bumps a camera's published-frame counter.
func (s *CameraStats) IncFramesPublished() { atomic.AddUint64(&s.FramesPublished, 1) }

// IncRecycled bumps a camera's recycle counter: buffers the
// synchronizer recycles on a timestamp mismatch and buffers the
// ingest worker recycles after a failed decode.
func (s *CameraStats) IncRecycled() { atomic.AddUint64(&s.Recycled, 1) }

// IncDecodeFailures bumps a camera's decode-failure counter.
func (s *CameraStats) IncDecodeFailures() { atomic.AddUint64(&s.DecodeFailures, 1) }

// IncNetworkFailures bumps a camera's network-failure counter.
func (s *CameraStats) IncNetworkFailures() { atomic.AddUint64(&s.NetworkFailures, 1) }

// IncReconnects bumps a camera's reconnect-attempt counter.
func (s *CameraStats) IncReconnects() { atomic.AddUint64(&s.Reconnects, 1) }

// SetDegraded marks a camera as degraded (FirstFrameTimeout fired
// with no frame observed yet).
func (s *CameraStats) SetDegraded(degraded bool) {
	v := uint32(0)
	if degraded {
		v = 1
	}
	atomic.StoreUint32(&s.Degraded, v)
}

// Snapshot returns a JSON-safe copy of this camera's counters. Queue
// depths are supplied by the caller since Registry has no queue
// handles of its own.
func (s *CameraStats) Snapshot(cameraID string, filledDepth, emptyDepth int) CameraSnapshot {
	return CameraSnapshot{
		CameraID:        cameraID,
		FramesPublished: atomic.LoadUint64(&s.FramesPublished),
		Recycled:        atomic.LoadUint64(&s.Recycled),
		DecodeFailures:  atomic.LoadUint64(&s.DecodeFailures),
		NetworkFailures: atomic.LoadUint64(&s.NetworkFailures),
		Reconnects:      atomic.LoadUint64(&s.Reconnects),
		Degraded:        atomic.LoadUint32(&s.Degraded) != 0,
		FilledDepth:     filledDepth,
		EmptyDepth:      emptyDepth,
	}
}

// CameraIDs returns the camera ids in manifest order.
func (r *Registry) CameraIDs() []string {
	return append([]string(nil), r.order...)
}
