// Package viewer shows rendered figures in a browser. A small fiber
// server serves the latest PNG and pushes every new one to open pages
// over a websocket.
package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/hub"
)

// Server is the figure viewer.
type Server struct {
	cfg    Config
	app    *fiber.App
	hub    *hub.Hub
	logger *slog.Logger

	mu     sync.RWMutex
	figure []byte
	seq    int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a viewer. It does not listen until Run or Show.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "viewer")
	s.hub = hub.New("figure", hub.WithLogger(s.logger), hub.WithReplay())

	app := fiber.New(fiber.Config{
		AppName:               "Figure Viewer",
		DisableStartupMessage: true,
	})

	app.Get("/", s.handleIndex)
	app.Get("/figure.png", s.handleFigure)
	app.Get("/api/status", s.handleStatus)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/figure", websocket.New(s.handleFigureWS))

	s.app = app
	return s
}

// URL returns the page address.
func (s *Server) URL() string {
	return "http://" + s.cfg.Addr + "/"
}

// Publish stores png as the current figure and pushes it to every open page.
func (s *Server) Publish(png []byte) {
	s.mu.Lock()
	s.figure = png
	s.seq++
	s.mu.Unlock()

	s.hub.BroadcastBinary(png)
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		s.hub.Run(hubCtx)
		close(hubDone)
	}()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- s.app.Listen(s.cfg.Addr)
	}()
	s.logger.Info("figure viewer listening", "url", s.URL())

	var err error
	select {
	case <-ctx.Done():
	case err = <-listenErr:
		err = fmt.Errorf("viewer: listen on %s: %w", s.cfg.Addr, err)
	}

	// Stopping the hub closes the websockets so the shutdown can finish.
	stopHub()
	<-hubDone
	if serr := s.app.ShutdownWithTimeout(s.cfg.ShutdownTimeout); serr != nil {
		s.logger.Warn("viewer shutdown", "error", serr)
	}
	return err
}

// Show publishes png and serves it until ctx is cancelled. It is the
// blocking equivalent of displaying a figure window.
func (s *Server) Show(ctx context.Context, png []byte) error {
	s.Publish(png)
	return s.Run(ctx)
}

// Clients returns the number of connected pages.
func (s *Server) Clients() int {
	return s.hub.ClientCount()
}
