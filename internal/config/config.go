// Package config loads and validates the camera manifest: the YAML
// file enumerating every camera's id, command endpoint, frame-stream
// endpoint, and stream parameters. It is parsed once by bootstrap and
// the resulting records outlive every worker.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level manifest, consumed once at startup.
type Config struct {
	FrameWidth       int            `yaml:"frame_width"`
	FrameHeight      int            `yaml:"frame_height"`
	BuffersPerCamera int            `yaml:"buffers_per_camera"`
	TargetSetCount   int            `yaml:"target_set_count"` // 0 = run until signaled
	FirstFrameTimeoutS int          `yaml:"first_frame_timeout_s"`
	LogPath          string         `yaml:"log_path"`
	HealthAddr       string         `yaml:"health_addr"`
	Cameras          []CameraConfig `yaml:"cameras"`
}

// CameraConfig describes one camera's stable identity and endpoints.
// Immutable once loaded; borrowed read-only by every component that
// needs it.
type CameraConfig struct {
	ID             string `yaml:"id"`
	CommandAddr    string `yaml:"command_addr"`     // host:port this camera listens for Start/Stop on
	FrameStreamAddr string `yaml:"frame_stream_addr"` // host:port the camera connects to for its frame stream
	FPS            int    `yaml:"fps"`
}

// FrameBytes returns the size in bytes of one planar YUV 4:2:0 frame
// at this manifest's configured resolution.
func (c *Config) FrameBytes() int {
	return c.FrameWidth * c.FrameHeight * 3 / 2
}

// Load reads and parses the camera manifest at path, applies
// defaults, and validates it. Validation stops at the first problem
// it finds, so a caller sees one error rather than a cascade.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read manifest: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse manifest: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid manifest: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BuffersPerCamera <= 0 {
		cfg.BuffersPerCamera = 32
	}
	if cfg.FirstFrameTimeoutS <= 0 {
		cfg.FirstFrameTimeoutS = 30
	}
	if cfg.LogPath == "" {
		cfg.LogPath = "/var/log/camsync/host.log"
	}
	if cfg.HealthAddr == "" {
		cfg.HealthAddr = ":8080"
	}
}
