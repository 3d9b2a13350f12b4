package config

import "fmt"

// Validate rejects the error kinds the spec calls ConfigError: zero
// cameras, duplicate camera ids, missing endpoints, and non-positive
// frame dimensions. It does not mutate cfg beyond what Load already
// defaulted.
func Validate(cfg *Config) error {
	if cfg.FrameWidth <= 0 || cfg.FrameHeight <= 0 {
		return fmt.Errorf("frame_width and frame_height must be > 0")
	}

	if len(cfg.Cameras) == 0 {
		return fmt.Errorf("at least one camera is required")
	}

	seen := make(map[string]bool, len(cfg.Cameras))
	for i, cam := range cfg.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("camera[%d]: id is required", i)
		}
		if seen[cam.ID] {
			return fmt.Errorf("camera[%d]: duplicate camera id %q", i, cam.ID)
		}
		seen[cam.ID] = true

		if cam.CommandAddr == "" {
			return fmt.Errorf("camera %q: command_addr is required", cam.ID)
		}
		if cam.FrameStreamAddr == "" {
			return fmt.Errorf("camera %q: frame_stream_addr is required", cam.ID)
		}
		if cam.FPS <= 0 {
			return fmt.Errorf("camera %q: fps must be > 0", cam.ID)
		}
	}

	return nil
}
