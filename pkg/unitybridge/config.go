// Package unitybridge provides a scoped client session to an external
// simulation process.
//
// A Session launches the simulation executable, waits for its ready
// handshake, fetches named sensor images and sends textual commands. The
// process is always terminated and reaped when the session closes:
//
//	err := unitybridge.With(ctx, cfg, func(s *unitybridge.Session) error {
//		frame, err := s.GetImage(ctx, "agent/t_pano_camera")
//		...
//	})
package unitybridge

import (
	"fmt"
	"time"
)

// Transport names.
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

// Config controls how the simulation process is launched and talked to.
type Config struct {
	// ExePath is the simulation executable.
	ExePath string `yaml:"exe_path" json:"exe_path"`

	// Args are extra arguments passed to the executable.
	Args []string `yaml:"args" json:"args"`

	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string `yaml:"env" json:"env"`

	// WorkDir is the process working directory. Empty means the current one.
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// Transport is "stdio" (length-prefixed msgpack over pipes) or
	// "websocket" (the process is started with --bridge-port).
	// Default: "stdio"
	Transport string `yaml:"transport" json:"transport"`

	// StartupTimeout bounds launch plus handshake.
	StartupTimeout time.Duration `yaml:"startup_timeout" json:"startup_timeout"`

	// RequestTimeout bounds a single GetImage or SendMessage round trip.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// StopTimeout is how long Close waits for a graceful exit before killing.
	StopTimeout time.Duration `yaml:"stop_timeout" json:"stop_timeout"`
}

// DefaultConfig returns a Config with sensible defaults for exePath.
func DefaultConfig(exePath string) Config {
	return Config{
		ExePath:        exePath,
		Transport:      TransportStdio,
		StartupTimeout: 60 * time.Second,
		RequestTimeout: 30 * time.Second,
		StopTimeout:    5 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ExePath == "" {
		return fmt.Errorf("exe_path is required")
	}
	if c.Transport != TransportStdio && c.Transport != TransportWebSocket {
		return fmt.Errorf("transport must be '%s' or '%s', got '%s'", TransportStdio, TransportWebSocket, c.Transport)
	}
	if c.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive")
	}
	return nil
}
