// Package health exposes run counters over HTTP, grounded on the
// teacher's core.StartHealthServer/HealthCheck: a net/http server
// with /health and /stats JSON endpoints, no third-party framework.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/camsync/host/internal/runstats"
)

// CameraState reports one camera's worker status for /health.
type CameraState struct {
	CameraID string `json:"camera_id"`
	Degraded bool   `json:"degraded"`
}

// HealthResponse is the /health payload: whether the run is still
// going and a per-camera worker status summary.
type HealthResponse struct {
	Running       bool          `json:"running"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Cameras       []CameraState `json:"cameras"`
}

// StatsResponse is the /stats payload: the full RunStats snapshot.
type StatsResponse struct {
	AlignedSets uint64                    `json:"aligned_sets"`
	Cameras     []runstats.CameraSnapshot `json:"cameras"`
}

// QueueDepths is supplied by the caller per request since Registry
// itself holds no queue handles; depth lookups go through this hook
// so the health server has no import-time dependency on spscqueue.
type QueueDepths func(cameraID string) (filled, empty int)

// Server serves /health and /stats from a runstats.Registry.
type Server struct {
	registry  *runstats.Registry
	cameraIDs []string
	depths    QueueDepths
	started   time.Time
	running   func() bool

	httpServer *http.Server
}

// New builds a Server. depths may be nil, in which case queue depths
// are reported as zero. running reports whether the pipeline is
// still active; pass a closure reading an atomic flag or ctx.Err().
func New(registry *runstats.Registry, cameraIDs []string, depths QueueDepths, running func() bool, addr string) *Server {
	s := &Server{
		registry:  registry,
		cameraIDs: cameraIDs,
		depths:    depths,
		started:   time.Now(),
		running:   running,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// SetAddr overrides the listen address set at construction time. It
// must be called before Start.
func (s *Server) SetAddr(addr string) {
	s.httpServer.Addr = addr
}

// Start launches the HTTP server in a goroutine and returns
// immediately, matching StartHealthServer's non-blocking contract.
func (s *Server) Start() {
	slog.Info("starting health server", "addr", s.httpServer.Addr, "endpoints", []string{"/health", "/stats"})
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()
}

// Shutdown stops the HTTP server, respecting ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cameras := make([]CameraState, 0, len(s.cameraIDs))
	for _, id := range s.cameraIDs {
		degraded := false
		if cs := s.registry.Camera(id); cs != nil {
			degraded = atomic.LoadUint32(&cs.Degraded) != 0
		}
		cameras = append(cameras, CameraState{CameraID: id, Degraded: degraded})
	}

	resp := HealthResponse{
		Running:       s.running == nil || s.running(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Cameras:       cameras,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshots := make([]runstats.CameraSnapshot, 0, len(s.cameraIDs))
	for _, id := range s.cameraIDs {
		cs := s.registry.Camera(id)
		if cs == nil {
			continue
		}
		filled, empty := 0, 0
		if s.depths != nil {
			filled, empty = s.depths(id)
		}
		snapshots = append(snapshots, cs.Snapshot(id, filled, empty))
	}

	resp := StatsResponse{
		AlignedSets: s.registry.AlignedSetCount(),
		Cameras:     snapshots,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
