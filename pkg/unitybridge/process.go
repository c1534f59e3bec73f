package unitybridge

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
)

// maxLogLine caps a buffered, unterminated child log line.
const maxLogLine = 64 << 10

// checkExecutable reports whether path names a runnable regular file.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNotExecutable, path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s has no execute permission", ErrNotExecutable, path)
	}
	return nil
}

// freePort reserves and releases a loopback TCP port for the child to listen on.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("reserve port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// lineLogger is an io.Writer that logs each line the child writes.
// Lines tagged [ERROR]/[CRITICAL] or [WARNING]/[WARN] keep their severity;
// everything else is logged at debug.
type lineLogger struct {
	logger *slog.Logger
	stream string

	mu  sync.Mutex
	buf []byte
}

func newLineLogger(logger *slog.Logger, stream string) *lineLogger {
	return &lineLogger{logger: logger, stream: stream}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.log(string(bytes.TrimRight(l.buf[:i], "\r")))
		l.buf = l.buf[i+1:]
	}

	if len(l.buf) > maxLogLine {
		l.log(string(l.buf))
		l.buf = nil
	}
	return len(p), nil
}

func (l *lineLogger) log(line string) {
	if line == "" {
		return
	}
	switch {
	case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
		l.logger.Error("simulation log", "stream", l.stream, "log", line)
	case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
		l.logger.Warn("simulation log", "stream", l.stream, "log", line)
	default:
		l.logger.Debug("simulation log", "stream", l.stream, "log", line)
	}
}
