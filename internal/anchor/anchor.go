// Package anchor implements the time-anchored broadcast: the host
// tells every camera when to start capturing on a common monotonic
// grid, and later tells every camera to stop.
//
// Delivery is one short-lived TCP connection per camera, dialed,
// written to with a deadline, and closed -- grounded on the
// reference implementation's broadcast_msg over a command socket per
// camera, and on the MQTT emitter's Connect/Publish/Disconnect shape
// for the logging and error-wrapping conventions.
package anchor

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/camsync/host/internal/config"
)

const (
	// startDelay is the fixed lead time between when the anchor is
	// sent and the wall-clock instant it names as the first capture.
	startDelay = 1 * time.Second

	dialTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
)

var stopSentinel = []byte("STOP")

// Broadcaster sends the start anchor and stop sentinel to every
// camera's command endpoint.
type Broadcaster struct {
	cameras []config.CameraConfig
}

// New returns a Broadcaster addressed at the command endpoints in
// cameras.
func New(cameras []config.CameraConfig) *Broadcaster {
	return &Broadcaster{cameras: cameras}
}

// SendStartAnchor computes now+1s in nanoseconds since the epoch and
// broadcasts it as an 8-byte little-endian u64 to every camera. A
// failure to reach any camera is returned to the caller, who treats
// it as fatal at startup: bootstrap cancels and joins the ingest
// workers it has already spawned and returns the error.
func (b *Broadcaster) SendStartAnchor() (uint64, error) {
	anchor := uint64(time.Now().Add(startDelay).UnixNano())

	msg := make([]byte, 8)
	putUint64LE(msg, anchor)

	if err := b.broadcast(msg); err != nil {
		return 0, fmt.Errorf("anchor: failed to broadcast start anchor: %w", err)
	}

	slog.Info("start anchor broadcast", "anchor_ns", anchor, "cameras", len(b.cameras))
	return anchor, nil
}

// SendStop broadcasts the ASCII STOP sentinel to every camera.
// Delivery here is fire-and-forget: a camera that misses STOP will
// still observe its connection close when the ingest worker exits,
// so failures are logged, not returned.
func (b *Broadcaster) SendStop() {
	if err := b.broadcast(stopSentinel); err != nil {
		slog.Warn("anchor: stop broadcast had failures", "error", err)
		return
	}
	slog.Info("stop sentinel broadcast", "cameras", len(b.cameras))
}

// broadcast dials and writes msg to every camera's command endpoint,
// collecting the first error but still attempting every camera.
func (b *Broadcaster) broadcast(msg []byte) error {
	var firstErr error
	for _, cam := range b.cameras {
		if err := send(cam, msg); err != nil {
			slog.Error("anchor: failed to reach camera command endpoint",
				"camera_id", cam.ID, "addr", cam.CommandAddr, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("camera %q: %w", cam.ID, err)
			}
		}
	}
	return firstErr
}

func send(cam config.CameraConfig, msg []byte) error {
	conn, err := net.DialTimeout("tcp", cam.CommandAddr, dialTimeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
