package unitybridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// dialRetryInterval is the pause between websocket dial attempts at startup.
	dialRetryInterval = 100 * time.Millisecond
	// shutdownWriteTimeout caps how long Close waits to deliver OpShutdown.
	shutdownWriteTimeout = time.Second
)

// Session is a connection to one running simulation process.
//
// A Session is used synchronously; concurrent calls are serialized.
// Close must be called to terminate the process. With does that for you.
type Session struct {
	cfg    Config
	logger *slog.Logger

	cmd    *exec.Cmd
	conn   Conn
	stdout *os.File // read end of the child's stdout (stdio transport)

	responses chan Response
	readDone  chan struct{}
	readErr   error
	exited    chan struct{}
	exitErr   error
	stop      chan struct{}
	wg        sync.WaitGroup

	mu        sync.Mutex // serializes requests
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// Stats
	requests    atomic.Int64
	images      atomic.Int64
	imageBytes  atomic.Int64
	failures    atomic.Int64
	lastLatency atomic.Int64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open launches the simulation and waits for its ready handshake.
//
// Any failure is returned as a *LaunchError, and a partially started
// process is killed and reaped before Open returns.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &LaunchError{Path: cfg.ExePath, Err: fmt.Errorf("invalid config: %w", err)}
	}
	if err := checkExecutable(cfg.ExePath); err != nil {
		return nil, &LaunchError{Path: cfg.ExePath, Err: err}
	}

	s := &Session{
		cfg:       cfg,
		logger:    slog.Default(),
		responses: make(chan Response, 8),
		readDone:  make(chan struct{}),
		exited:    make(chan struct{}),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "unitybridge", "exe", filepath.Base(cfg.ExePath))

	startCtx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()

	start := time.Now()
	if err := s.launch(startCtx); err != nil {
		s.Close()
		return nil, &LaunchError{Path: cfg.ExePath, Err: err}
	}
	if err := s.awaitHello(startCtx); err != nil {
		s.Close()
		return nil, &LaunchError{Path: cfg.ExePath, Err: err}
	}

	s.logger.Info("simulation ready",
		"pid", s.Pid(),
		"transport", cfg.Transport,
		"startup", time.Since(start).Round(time.Millisecond),
	)
	return s, nil
}

// With opens a session, runs fn, and closes the session on every exit
// path, including a panic inside fn. It returns fn's error if any,
// otherwise the error from Close.
func With(ctx context.Context, cfg Config, fn func(*Session) error, opts ...Option) (err error) {
	s, err := Open(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// launch starts the process and, for the websocket transport, connects to it.
func (s *Session) launch(ctx context.Context) error {
	args := append([]string(nil), s.cfg.Args...)

	var port int
	if s.cfg.Transport == TransportWebSocket {
		p, err := freePort()
		if err != nil {
			return err
		}
		port = p
		args = append(args, fmt.Sprintf("--bridge-port=%d", port))
	}

	cmd := exec.Command(s.cfg.ExePath, args...)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Stderr = newLineLogger(s.logger, "stderr")
	cmd.WaitDelay = s.cfg.StopTimeout
	setProcessGroup(cmd)

	var conn Conn
	switch s.cfg.Transport {
	case TransportStdio:
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
		// A plain pipe rather than StdoutPipe: Wait must not close the
		// read end while a response is still buffered in it.
		pr, pw, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
		cmd.Stdout = pw
		if err := cmd.Start(); err != nil {
			pr.Close()
			pw.Close()
			return fmt.Errorf("start: %w", err)
		}
		pw.Close()
		s.stdout = pr
		conn = NewStreamConn(pr, stdin, stdin)

	case TransportWebSocket:
		cmd.Stdout = newLineLogger(s.logger, "stdout")
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}

	s.cmd = cmd
	s.logger.Debug("simulation process started", "pid", cmd.Process.Pid, "args", args)

	s.wg.Add(1)
	go s.waitProcess()

	if conn == nil {
		c, err := s.dial(ctx, port)
		if err != nil {
			return err
		}
		conn = c
	}
	s.conn = conn

	s.wg.Add(1)
	go s.readLoop()

	return nil
}

// dial connects to the child's websocket, retrying until ctx expires or
// the process exits.
func (s *Session) dial(ctx context.Context, port int) (Conn, error) {
	url := fmt.Sprintf("ws://127.0.0.1:%d/bridge", port)
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	ticker := time.NewTicker(dialRetryInterval)
	defer ticker.Stop()

	for {
		ws, _, err := dialer.DialContext(ctx, url, nil)
		if err == nil {
			s.logger.Debug("connected to simulation websocket", "url", url)
			return NewWebSocketConn(ws), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w (last error: %v)", url, ErrTimeout, err)
		case <-s.exited:
			return nil, s.exitError()
		case <-ticker.C:
		}
	}
}

// waitProcess reaps the child so it never lingers as a zombie.
func (s *Session) waitProcess() {
	defer s.wg.Done()

	err := s.cmd.Wait()
	s.exitErr = err
	close(s.exited)

	switch {
	case s.closed.Load():
		s.logger.Debug("simulation process exited (shutdown)", "pid", s.cmd.Process.Pid, "state", s.cmd.ProcessState.String())
	case err != nil:
		s.logger.Error("simulation process exited unexpectedly", "pid", s.cmd.Process.Pid, "error", err)
	default:
		s.logger.Warn("simulation process exited", "pid", s.cmd.Process.Pid)
	}
}

// readLoop forwards every decoded response to the responses channel.
func (s *Session) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		var resp Response
		if err := s.conn.ReadMessage(&resp); err != nil {
			if errors.Is(err, ErrInvalidMessage) {
				s.logger.Warn("dropping malformed message from simulation", "error", err)
				continue
			}
			s.readErr = err
			if !s.closed.Load() && !errors.Is(err, io.EOF) {
				s.logger.Error("reading from simulation failed", "error", err)
			}
			return
		}

		select {
		case s.responses <- resp:
		case <-s.stop:
			return
		}
	}
}

func (s *Session) awaitHello(ctx context.Context) error {
	for {
		select {
		case resp := <-s.responses:
			if resp.Op == OpHello {
				return nil
			}
			s.logger.Debug("ignoring message before handshake", "op", resp.Op)
		case <-s.readDone:
			return fmt.Errorf("connection lost before handshake: %w", s.connError())
		case <-s.exited:
			return s.exitError()
		case <-ctx.Done():
			return fmt.Errorf("waiting for handshake: %w", ErrTimeout)
		}
	}
}

// GetImage fetches the current frame of the named sensor. It blocks until
// the simulation answers or the request timeout elapses.
func (s *Session) GetImage(ctx context.Context, sensor string) (*Frame, error) {
	const op = "get_image"

	if sensor == "" {
		return nil, &LookupError{Sensor: sensor, Reason: "empty sensor name"}
	}

	resp, err := s.roundTrip(ctx, Request{Op: OpGetImage, Sensor: sensor})
	if err != nil {
		return nil, &CommunicationError{Op: op, Err: err}
	}

	switch resp.Status {
	case StatusOK:
	case StatusLookupError:
		return nil, &LookupError{Sensor: sensor, Reason: resp.Error}
	default:
		s.failures.Add(1)
		return nil, &CommunicationError{Op: op, Err: &RemoteError{Message: resp.Error}}
	}

	if resp.Image == nil {
		s.failures.Add(1)
		return nil, &CommunicationError{Op: op, Err: fmt.Errorf("%w: response carries no image", ErrInvalidMessage)}
	}

	frame, err := FrameFromPayload(resp.Image)
	if err != nil {
		s.failures.Add(1)
		return nil, &CommunicationError{Op: op, Err: err}
	}
	if frame.Sensor == "" {
		frame.Sensor = sensor
	}

	s.images.Add(1)
	s.imageBytes.Add(int64(len(resp.Image.Data)))
	return frame, nil
}

// SendMessage sends a textual command, e.g. "agent move 2.0 0.77 0.0 0",
// and waits for the simulation to acknowledge it.
func (s *Session) SendMessage(ctx context.Context, command string) error {
	const op = "send_message"

	resp, err := s.roundTrip(ctx, Request{Op: OpSendMessage, Command: command})
	if err != nil {
		return &CommunicationError{Op: op, Err: err}
	}
	if resp.Status != StatusOK {
		s.failures.Add(1)
		return &CommunicationError{Op: op, Err: &RemoteError{Message: resp.Error}}
	}
	return nil
}

// roundTrip sends req and waits for the response carrying the same ID.
func (s *Session) roundTrip(ctx context.Context, req Request) (Response, error) {
	if s.closed.Load() {
		return Response{}, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return Response{}, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req.ID = uuid.NewString()
	start := time.Now()
	s.requests.Add(1)

	if err := s.write(ctx, &req); err != nil {
		s.failures.Add(1)
		return Response{}, err
	}

	for {
		select {
		case resp := <-s.responses:
			if resp.ID != req.ID {
				s.logger.Debug("discarding stale response", "id", resp.ID, "op", resp.Op)
				continue
			}
			s.lastLatency.Store(int64(time.Since(start)))
			return resp, nil

		case <-s.readDone:
			if resp, ok := s.drain(req.ID); ok {
				return resp, nil
			}
			s.failures.Add(1)
			return Response{}, fmt.Errorf("connection lost: %w", s.connError())

		case <-s.exited:
			if resp, ok := s.drain(req.ID); ok {
				return resp, nil
			}
			s.failures.Add(1)
			return Response{}, s.exitError()

		case <-ctx.Done():
			s.failures.Add(1)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Response{}, fmt.Errorf("%s %s: %w", req.Op, req.ID, ErrTimeout)
			}
			return Response{}, ctx.Err()
		}
	}
}

// drain returns an already delivered response with the given ID, if any.
func (s *Session) drain(id string) (Response, bool) {
	for {
		select {
		case resp := <-s.responses:
			if resp.ID == id {
				return resp, true
			}
		default:
			return Response{}, false
		}
	}
}

// write sends a message without letting a stalled child block the caller
// past ctx. A write abandoned here finishes when Close closes the transport.
func (s *Session) write(ctx context.Context, req *Request) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.conn.WriteMessage(req)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("write %s: %w", req.Op, err)
		}
		return nil
	case <-s.exited:
		return s.exitError()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("write %s: %w", req.Op, ErrTimeout)
		}
		return ctx.Err()
	}
}

// Close terminates the simulation and releases the session. The process is
// sent OpShutdown and its transport is closed so it can exit on its own;
// after StopTimeout its whole process group is killed. Close always waits
// for the process to be reaped. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.terminate()
	})
	return s.closeErr
}

func (s *Session) terminate() error {
	s.closed.Store(true)

	if s.conn != nil {
		if s.cmd != nil && !s.Exited() {
			s.requestShutdown()
		}
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("closing transport", "error", err)
		}
	}

	var killErr error
	if s.cmd != nil {
		select {
		case <-s.exited:
		case <-time.After(s.cfg.StopTimeout):
			s.logger.Warn("simulation did not exit, killing", "pid", s.cmd.Process.Pid, "waited", s.cfg.StopTimeout)
			if err := killProcess(s.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
				killErr = fmt.Errorf("unitybridge: kill pid %d: %w", s.cmd.Process.Pid, err)
			}
			<-s.exited
		}
		// Sweep anything the simulation left running in its group.
		if err := killProcess(s.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Debug("killing process group", "pid", s.cmd.Process.Pid, "error", err)
		}
	}

	if s.stdout != nil {
		s.stdout.Close()
	}
	close(s.stop)
	s.wg.Wait()

	s.logger.Info("session closed",
		"requests", s.requests.Load(),
		"images", s.images.Load(),
		"failures", s.failures.Load(),
	)
	return killErr
}

// requestShutdown asks the simulation to exit. Delivery is best effort.
func (s *Session) requestShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), min(s.cfg.StopTimeout, shutdownWriteTimeout))
	defer cancel()

	req := Request{ID: uuid.NewString(), Op: OpShutdown}
	if err := s.write(ctx, &req); err != nil {
		s.logger.Debug("shutdown request not delivered", "error", err)
	}
}

// Pid returns the simulation process id, or 0 if it never started.
func (s *Session) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Exited reports whether the simulation process has exited and been reaped.
func (s *Session) Exited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *Session) exitError() error {
	if s.exitErr != nil {
		return fmt.Errorf("%w: %v", ErrProcessExited, s.exitErr)
	}
	return ErrProcessExited
}

// connError describes why the read loop stopped. Valid after readDone.
func (s *Session) connError() error {
	if s.readErr == nil || errors.Is(s.readErr, io.EOF) {
		return ErrProcessExited
	}
	return s.readErr
}

// Stats returns session statistics.
func (s *Session) Stats() Stats {
	return Stats{
		Requests:    s.requests.Load(),
		Images:      s.images.Load(),
		ImageBytes:  s.imageBytes.Load(),
		Failures:    s.failures.Load(),
		LastLatency: time.Duration(s.lastLatency.Load()),
		Running:     s.cmd != nil && !s.Exited(),
	}
}

// Stats contains session statistics.
type Stats struct {
	Requests    int64         `json:"requests"`
	Images      int64         `json:"images"`
	ImageBytes  int64         `json:"image_bytes"`
	Failures    int64         `json:"failures"`
	LastLatency time.Duration `json:"last_latency"`
	Running     bool          `json:"running"`
}
