package unitybridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for the unitybridge package.
var (
	// ErrClosed indicates the session was already closed.
	ErrClosed = errors.New("unitybridge: session closed")

	// ErrTimeout indicates the simulation did not answer in time.
	ErrTimeout = errors.New("unitybridge: timed out")

	// ErrProcessExited indicates the simulation process is gone.
	ErrProcessExited = errors.New("unitybridge: process exited")

	// ErrNotExecutable indicates ExePath is not a runnable file.
	ErrNotExecutable = errors.New("unitybridge: not an executable file")

	// ErrFrameTooLarge indicates a wire message exceeded MaxMessageSize.
	ErrFrameTooLarge = errors.New("unitybridge: message too large")

	// ErrInvalidMessage indicates a malformed message was received.
	ErrInvalidMessage = errors.New("unitybridge: invalid message")
)

// LaunchError reports that the simulation process could not be started or
// did not complete its handshake.
type LaunchError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("unitybridge: launch %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// LookupError reports a sensor name the simulation does not expose.
type LookupError struct {
	Sensor string

	// Reason is the simulation's own message, if any.
	Reason string
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unitybridge: unknown sensor %q: %s", e.Sensor, e.Reason)
	}
	return fmt.Sprintf("unitybridge: unknown sensor %q", e.Sensor)
}

// CommunicationError reports a failed exchange with the simulation: the
// session is closed, the transport broke, the process exited or did not
// answer in time, or it answered with an error.
type CommunicationError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *CommunicationError) Error() string {
	return fmt.Sprintf("unitybridge: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// RemoteError is an error reported by the simulation for a request.
type RemoteError struct {
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}
