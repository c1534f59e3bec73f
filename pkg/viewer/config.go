package viewer

import (
	"errors"
	"net"
	"time"
)

// Config holds viewer server settings.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string `yaml:"addr" json:"addr"`

	// Title is shown on the page.
	Title string `yaml:"title" json:"title"`

	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8765",
		Title:           "Figure",
		ShutdownTimeout: 3 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("viewer: addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.New("viewer: addr must be host:port")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("viewer: shutdown timeout must be positive")
	}
	return nil
}
