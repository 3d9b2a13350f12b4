package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReconnectConfig controls exponential backoff on a camera's frame
// stream connection, grounded on the teacher's
// rtsp.ReconnectConfig/RunWithReconnect.
type ReconnectConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultReconnectConfig matches the teacher's capped 1s..16s
// schedule: 5 retries (6 connection attempts in all) before a
// camera's worker is marked failed.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 16 * time.Second,
	}
}

// connectFunc attempts to establish the frame-stream connection.
type connectFunc func(ctx context.Context) error

// runWithReconnect retries connectFn with exponential backoff until
// it succeeds, the context is cancelled, or retries are exhausted.
// onRetry, if non-nil, is called after every failed connection
// attempt, including the last one that exhausts the retries.
func runWithReconnect(ctx context.Context, cameraID string, connectFn connectFunc, cfg ReconnectConfig, onRetry func()) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := connectFn(ctx)
		if err == nil {
			return nil
		}

		slog.Error("ingest: connection attempt failed", "camera_id", cameraID, "error", err)

		attempt++
		if onRetry != nil {
			onRetry()
		}
		if attempt > cfg.MaxRetries {
			return fmt.Errorf("ingest: camera %q: max retries exceeded (%d attempts): %w", cameraID, attempt, err)
		}

		delay := calculateBackoff(attempt, cfg)
		slog.Warn("ingest: retrying camera connection",
			"camera_id", cameraID, "attempt", attempt, "max_retries", cfg.MaxRetries, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// calculateBackoff mirrors calculateBackoff(attempt, cfg) from the
// teacher's rtsp package: retryDelay * 2^(attempt-1), capped.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
