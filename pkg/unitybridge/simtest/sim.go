// Package simtest is a stand-in simulation process that speaks the
// unitybridge wire protocol. It renders synthetic panoramic color,
// segmentation and depth cameras that change as the agent moves, so the
// bridge and the demos can run without the real engine.
package simtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/pose"
	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge"
)

// Sensor names exposed by the simulator.
const (
	SensorPano         = "agent/t_pano_camera"
	SensorSegmentation = "agent/t_pano_segmentation_camera"
	SensorDepth        = "agent/t_pano_depth_camera"
)

// Default image size.
const (
	DefaultWidth  = 256
	DefaultHeight = 128
)

// Pose is the agent position and heading.
type Pose struct {
	X, Y, Z float64
	Yaw     float64
}

func (p Pose) planar() pose.Pose {
	return pose.Pose{X: p.X, Y: p.Y, Yaw: p.Yaw}
}

type renderFunc func(p Pose, width, height int) *unitybridge.Frame

// Sim is a fake simulation: an agent pose and a set of cameras.
type Sim struct {
	width    int
	height   int
	encoding string
	logger   *slog.Logger

	mu       sync.Mutex
	pose     Pose
	odom     pose.Pose
	sensors  map[string]renderFunc
	commands []string

	shutdown atomic.Bool
}

// Option configures a Sim.
type Option func(*Sim)

// WithSize sets the camera resolution.
func WithSize(width, height int) Option {
	return func(s *Sim) {
		if width > 0 && height > 0 {
			s.width, s.height = width, height
		}
	}
}

// WithEncoding sets the wire image encoding ("raw" or "png").
func WithEncoding(encoding string) Option {
	return func(s *Sim) { s.encoding = encoding }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sim) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a simulator with the three panoramic cameras.
func New(opts ...Option) *Sim {
	s := &Sim{
		width:    DefaultWidth,
		height:   DefaultHeight,
		encoding: unitybridge.EncodingRaw,
		logger:   slog.Default(),
		sensors: map[string]renderFunc{
			SensorPano:         renderPano,
			SensorSegmentation: renderSegmentation,
			SensorDepth:        renderDepth,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pose returns the current agent pose.
func (s *Sim) Pose() Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// Odometry returns the last agent motion in the frame of the pose it
// started from.
func (s *Sim) Odometry() pose.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.odom
}

// ShutdownRequested reports whether a shutdown request was handled.
func (s *Sim) ShutdownRequested() bool {
	return s.shutdown.Load()
}

// Commands returns every command received so far.
func (s *Sim) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Sensors returns the sensor names in sorted order.
func (s *Sim) Sensors() []string {
	names := make([]string, 0, len(s.sensors))
	for name := range s.sensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render returns the current frame of a sensor.
func (s *Sim) Render(sensor string) (*unitybridge.Frame, bool) {
	render, ok := s.sensors[sensor]
	if !ok {
		return nil, false
	}
	pose := s.Pose()
	f := render(pose, s.width, s.height)
	f.Sensor = sensor
	return f, true
}

// Handle answers one request. stop is true for a shutdown request, which
// gets no response.
func (s *Sim) Handle(req unitybridge.Request) (resp unitybridge.Response, stop bool) {
	resp = unitybridge.Response{ID: req.ID, Op: req.Op, Status: unitybridge.StatusOK}

	switch req.Op {
	case unitybridge.OpShutdown:
		s.shutdown.Store(true)
		return resp, true

	case unitybridge.OpGetImage:
		frame, ok := s.Render(req.Sensor)
		if !ok {
			resp.Status = unitybridge.StatusLookupError
			resp.Error = fmt.Sprintf("no sensor named %q", req.Sensor)
			return resp, false
		}
		payload, err := frame.Payload(s.encoding)
		if err != nil {
			resp.Status = unitybridge.StatusError
			resp.Error = err.Error()
			return resp, false
		}
		resp.Image = payload

	case unitybridge.OpSendMessage:
		if err := s.apply(req.Command); err != nil {
			resp.Status = unitybridge.StatusError
			resp.Error = err.Error()
		}

	default:
		resp.Status = unitybridge.StatusError
		resp.Error = fmt.Sprintf("unsupported op %q", req.Op)
	}
	return resp, false
}

// apply executes a textual command: "agent move x y z yaw" places the
// agent, and "agent step dx dy dyaw" moves it relative to its heading.
func (s *Sim) apply(command string) error {
	fields := strings.Fields(command)

	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()

	if len(fields) < 2 || fields[0] != "agent" {
		return fmt.Errorf("unknown command %q", command)
	}

	switch fields[1] {
	case "move":
		v, err := parseValues("agent move", fields[2:], 4)
		if err != nil {
			return err
		}
		s.moveTo(Pose{X: v[0], Y: v[1], Z: v[2], Yaw: v[3]})
		return nil
	case "step":
		v, err := parseValues("agent step", fields[2:], 3)
		if err != nil {
			return err
		}
		s.mu.Lock()
		cur := s.pose
		s.mu.Unlock()
		next := cur.planar().Compose(pose.Pose{X: v[0], Y: v[1], Yaw: v[2]})
		s.moveTo(Pose{X: next.X, Y: next.Y, Z: cur.Z, Yaw: next.Yaw})
		return nil
	default:
		return fmt.Errorf("unknown agent command %q", fields[1])
	}
}

func (s *Sim) moveTo(p Pose) {
	s.mu.Lock()
	s.odom = pose.Odom(p.planar(), s.pose.planar())
	s.pose = p
	odom := s.odom
	s.mu.Unlock()
	s.logger.Debug("agent moved", "x", p.X, "y", p.Y, "z", p.Z, "yaw", p.Yaw, "odom", odom.String())
}

func parseValues(name string, fields []string, n int) ([]float64, error) {
	if len(fields) != n {
		return nil, fmt.Errorf("%s wants %d values, got %d", name, n, len(fields))
	}
	v := make([]float64, n)
	for i, field := range fields {
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		v[i] = f
	}
	return v, nil
}

// Serve sends the hello handshake and answers requests on conn until the
// peer disconnects, a shutdown request arrives, or ctx is cancelled.
func (s *Sim) Serve(ctx context.Context, conn unitybridge.Conn) error {
	if err := conn.WriteMessage(&unitybridge.Response{Op: unitybridge.OpHello, Status: unitybridge.StatusOK}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	s.logger.Debug("simulation ready", "sensors", s.Sensors())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req unitybridge.Request
		if err := conn.ReadMessage(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			if errors.Is(err, unitybridge.ErrInvalidMessage) {
				s.logger.Warn("dropping malformed request", "error", err)
				continue
			}
			return err
		}

		resp, stop := s.Handle(req)
		if stop {
			return nil
		}
		if err := conn.WriteMessage(&resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// ServeStdio serves the length-prefixed protocol on a reader/writer pair,
// typically os.Stdin and os.Stdout.
func (s *Sim) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.Serve(ctx, unitybridge.NewStreamConn(r, w, nil))
}
