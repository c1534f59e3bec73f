package simtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge"
)

// Environment variables that turn a test binary into a fake simulation.
// A test's TestMain calls HelperMain when IsHelper reports true, and the
// test launches os.Args[0] with HelperEnv set.
const (
	HelperEnv = "UNITYBRIDGE_HELPER_PROCESS"
	ModeEnv   = "UNITYBRIDGE_HELPER_MODE"
	// PIDFileEnv names the file ModeLauncher writes its child's pid to.
	PIDFileEnv = "UNITYBRIDGE_HELPER_PID_FILE"
)

// Helper behaviours selected with ModeEnv.
const (
	// ModeServe serves normally and exits when the bridge disconnects.
	ModeServe = "serve"
	// ModeNoHello never completes the handshake.
	ModeNoHello = "no-hello"
	// ModeExit exits with status 3 before the handshake.
	ModeExit = "exit"
	// ModeIgnoreEOF keeps running after the bridge disconnects.
	ModeIgnoreEOF = "ignore-eof"
	// ModeCrashOnMove exits with status 2 on any agent move command.
	ModeCrashOnMove = "crash-on-move"
	// ModeSlow delays every response by one second.
	ModeSlow = "slow"
	// ModeBadImage mislabels every image as 2-channel.
	ModeBadImage = "bad-image"
	// ModeLauncher starts a long-lived child process, then serves.
	ModeLauncher = "launcher"
)

// IsHelper reports whether this process was launched as a helper.
func IsHelper() bool {
	return os.Getenv(HelperEnv) != ""
}

// HelperEnviron returns the environment entries that launch a helper in mode.
func HelperEnviron(mode string) []string {
	return []string{HelperEnv + "=1", ModeEnv + "=" + mode}
}

// HelperMain runs the fake simulation in the mode named by ModeEnv and
// returns the process exit code.
func HelperMain() int {
	fs := pflag.NewFlagSet("helper", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	port := fs.Int("bridge-port", 0, "")
	_ = fs.Parse(os.Args[1:])

	mode := os.Getenv(ModeEnv)
	switch mode {
	case ModeExit:
		fmt.Fprintln(os.Stderr, "[ERROR] helper exiting before handshake")
		return 3
	case ModeNoHello:
		time.Sleep(time.Hour)
		return 0
	case ModeLauncher:
		if err := spawnChild(); err != nil {
			fmt.Fprintln(os.Stderr, "[ERROR] spawn child:", err)
			return 1
		}
	}

	sim := New(WithSize(32, 16))
	ctx := context.Background()

	var err error
	if *port > 0 {
		err = sim.ListenAndServeWebSocket(ctx, *port)
	} else {
		var r io.Reader = os.Stdin
		var w io.Writer = os.Stdout
		switch mode {
		case ModeCrashOnMove:
			r = &crashReader{r: os.Stdin}
		case ModeSlow:
			w = &slowWriter{w: os.Stdout, delay: time.Second}
		}
		if mode == ModeBadImage {
			err = sim.Serve(ctx, &badImageConn{Conn: unitybridge.NewStreamConn(r, w, nil)})
		} else {
			err = sim.ServeStdio(ctx, r, w)
		}
	}

	if sim.ShutdownRequested() {
		fmt.Fprintln(os.Stderr, "shutdown requested by bridge")
	}
	if mode == ModeIgnoreEOF {
		time.Sleep(time.Hour)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		return 1
	}
	return 0
}

// spawnChild starts a helper that never answers and records its pid.
func spawnChild() error {
	child := exec.Command(os.Args[0])
	child.Env = append(os.Environ(), HelperEnviron(ModeNoHello)...)
	if err := child.Start(); err != nil {
		return err
	}
	return os.WriteFile(os.Getenv(PIDFileEnv), []byte(strconv.Itoa(child.Process.Pid)), 0o644)
}

// crashReader exits the process as soon as a move command is read.
type crashReader struct {
	r io.Reader
}

func (c *crashReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if strings.Contains(string(p[:n]), "agent move") {
		os.Exit(2)
	}
	return n, err
}

// slowWriter delays each response write.
type slowWriter struct {
	w     io.Writer
	delay time.Duration
}

func (s *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(s.delay)
	return s.w.Write(p)
}

// badImageConn corrupts the shape of outgoing images.
type badImageConn struct {
	unitybridge.Conn
}

func (c *badImageConn) WriteMessage(v any) error {
	if resp, ok := v.(*unitybridge.Response); ok && resp.Image != nil {
		resp.Image.Channels = 2
	}
	return c.Conn.WriteMessage(v)
}
