// Package bootstrap wires the rest of the pipeline together: it
// allocates buffer pools, spawns ingest workers, broadcasts the
// start/stop anchors, and runs the synchronizer -- the Go analogue
// of the reference collector's main(), and structurally grounded on
// the teacher's Orion.Run/Shutdown orchestration (config load up
// front, ordered startup, join-before-return on any failure).
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camsync/host/internal/affinity"
	"github.com/camsync/host/internal/aligner"
	"github.com/camsync/host/internal/anchor"
	"github.com/camsync/host/internal/config"
	"github.com/camsync/host/internal/framepool"
	"github.com/camsync/host/internal/health"
	"github.com/camsync/host/internal/ingest"
	"github.com/camsync/host/internal/runstats"
)

// coresPerComplex mirrors the reference's CORES_PER_CCD: the pinning
// rationale keeps the synchronizer on the same cache domain as the
// ingest workers but off their cores, until there are more workers
// than cores.
const coresPerComplex = 8

// DecoderFactory lets the caller inject a real Decoder per camera
// (codec-specific, a black box per the purpose/scope) instead of the
// PassthroughDecoder ingest uses by default.
type DecoderFactory func(cam config.CameraConfig) ingest.Decoder

// Host owns every allocated resource for one run: buffer pools,
// ingest workers, the synchronizer, the broadcaster, and the health
// surface.
type Host struct {
	cfg      *config.Config
	consumer aligner.Consumer
	decoders DecoderFactory

	pools       []*framepool.Pool
	broadcaster *anchor.Broadcaster
	stats       *runstats.Registry
	healthSrv   *health.Server

	running atomic.Bool
	wg      sync.WaitGroup
}

// New loads and validates the manifest at cfgPath, allocates every
// camera's buffer pool, and returns a Host ready for Run. decoders
// may be nil to use ingest.PassthroughDecoder for every camera.
func New(cfgPath string, decoders DecoderFactory, consumer aligner.Consumer) (*Host, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	ids := make([]string, len(cfg.Cameras))
	pools := make([]*framepool.Pool, len(cfg.Cameras))
	frameBytes := cfg.FrameBytes()
	for i, cam := range cfg.Cameras {
		ids[i] = cam.ID
		pools[i] = framepool.New(cfg.BuffersPerCamera, frameBytes)
	}

	h := &Host{
		cfg:         cfg,
		consumer:    consumer,
		decoders:    decoders,
		pools:       pools,
		broadcaster: anchor.New(cfg.Cameras),
		stats:       runstats.NewRegistry(ids),
	}
	h.healthSrv = health.New(h.stats, ids, h.queueDepths, h.IsRunning, cfg.HealthAddr)
	return h, nil
}

// IsRunning reports whether Run is currently executing.
func (h *Host) IsRunning() bool { return h.running.Load() }

// OverrideHealthAddr replaces the manifest's health_addr, letting the
// entrypoint's -health-addr flag win over the config file. Must be
// called before Run.
func (h *Host) OverrideHealthAddr(addr string) {
	h.healthSrv.SetAddr(addr)
}

// queueDepths satisfies health.QueueDepths by looking up the pool
// belonging to cameraID.
func (h *Host) queueDepths(cameraID string) (filled, empty int) {
	for i, cam := range h.cfg.Cameras {
		if cam.ID == cameraID {
			return h.pools[i].FilledConsumer.Len(), h.pools[i].EmptyConsumer.Len()
		}
	}
	return 0, 0
}

// Run executes the linear startup sequence from the component
// design: spawn ingest workers, broadcast the start anchor, start
// the health surface, run the synchronizer until it stops, broadcast
// STOP, and join every worker before returning -- even if an early
// step failed.
func (h *Host) Run(ctx context.Context) error {
	h.running.Store(true)
	defer h.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.spawnWorkers(runCtx)

	if _, err := h.broadcaster.SendStartAnchor(); err != nil {
		cancel()
		h.wg.Wait()
		return fmt.Errorf("bootstrap: aborting startup: %w", err)
	}

	h.healthSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := h.healthSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("bootstrap: health server shutdown error", "error", err)
		}
	}()

	// The synchronizer is pinned to cam_count mod C, keeping it off
	// the ingest workers' cores until there are more cameras than
	// cores in the complex -- mirrors the reference collector's
	// sched_setaffinity(cam_count % 8) call on its main thread.
	mainCore := len(h.cfg.Cameras) % coresPerComplex
	if err := affinity.Pin(mainCore); err != nil {
		slog.Warn("bootstrap: affinity pin failed for synchronizer, continuing unpinned", "error", err)
	}
	defer affinity.Unpin()

	cameras := make([]aligner.Camera, len(h.cfg.Cameras))
	for i, cam := range h.cfg.Cameras {
		cameras[i] = aligner.Camera{
			ID:     cam.ID,
			Filled: h.pools[i].FilledConsumer,
			Empty:  h.pools[i].EmptyProducer,
			Stats:  h.stats.Camera(cam.ID),
		}
	}
	synchronizer := aligner.New(cameras, h.consumer, aligner.Config{
		TargetSetCount:    h.cfg.TargetSetCount,
		FirstFrameTimeout: time.Duration(h.cfg.FirstFrameTimeoutS) * time.Second,
	}, h.stats)

	slog.Info("bootstrap: synchronizer running", "cameras", len(cameras), "target_set_count", h.cfg.TargetSetCount)
	runErr := synchronizer.Run(runCtx)

	cancel()
	h.broadcaster.SendStop()
	h.wg.Wait()

	if runErr != nil {
		return fmt.Errorf("bootstrap: synchronizer stopped with error: %w", runErr)
	}
	slog.Info("bootstrap: run complete", "aligned_sets", h.stats.AlignedSetCount())
	return nil
}

func (h *Host) spawnWorkers(runCtx context.Context) []*ingest.Worker {
	workers := make([]*ingest.Worker, len(h.cfg.Cameras))
	for i, cam := range h.cfg.Cameras {
		var decoder ingest.Decoder
		if h.decoders != nil {
			decoder = h.decoders(cam)
		}
		core := affinity.PreferredCore(i, coresPerComplex)
		w := ingest.NewWorker(cam, h.cfg.FrameBytes(), h.pools[i].FilledProducer, h.pools[i].EmptyConsumer, decoder, h.stats.Camera(cam.ID), core)
		workers[i] = w

		h.wg.Add(1)
		go func(w *ingest.Worker) {
			defer h.wg.Done()
			if err := w.Run(runCtx); err != nil {
				slog.Error("bootstrap: ingest worker exited with error", "camera_id", w.Camera.ID, "error", err)
			}
		}(w)
	}
	return workers
}
