package simtest

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge"
)

// shutdownTimeout bounds the HTTP server shutdown after the bridge leaves.
const shutdownTimeout = 2 * time.Second

// ListenAndServeWebSocket serves one bridge connection on
// ws://127.0.0.1:<port>/bridge. It returns when that connection ends,
// when the listener fails, or when ctx is cancelled.
func (s *Sim) ListenAndServeWebSocket(ctx context.Context, port int) error {
	app := fiber.New(fiber.Config{
		AppName:               "fake-sim",
		DisableStartupMessage: true,
	})

	app.Use("/bridge", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	done := make(chan error, 1)
	app.Get("/bridge", websocket.New(func(c *websocket.Conn) {
		s.logger.Debug("bridge connected", "remote", c.RemoteAddr().String())
		err := s.Serve(ctx, unitybridge.NewWebSocketConn(c))
		select {
		case done <- err:
		default:
		}
	}))

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(fmt.Sprintf("127.0.0.1:%d", port))
	}()

	select {
	case err := <-done:
		if serr := app.ShutdownWithTimeout(shutdownTimeout); serr != nil {
			s.logger.Debug("websocket server shutdown", "error", serr)
		}
		return err
	case err := <-listenErr:
		return fmt.Errorf("listen on port %d: %w", port, err)
	case <-ctx.Done():
		app.ShutdownWithTimeout(shutdownTimeout)
		return ctx.Err()
	}
}
