package unitybridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxMessageSize is the largest wire message accepted in either direction.
const MaxMessageSize = 64 << 20

// writeWait bounds a single websocket write.
const writeWait = 10 * time.Second

// Op identifies a request or response kind.
type Op string

const (
	// OpHello is sent once by the simulation when it is ready. Its ID is empty.
	OpHello Op = "hello"

	OpGetImage    Op = "get_image"
	OpSendMessage Op = "send_message"

	// OpShutdown asks the simulation to exit. No response is expected.
	OpShutdown Op = "shutdown"
)

// Status is the outcome of a request.
type Status string

const (
	StatusOK          Status = "ok"
	StatusLookupError Status = "lookup_error"
	StatusError       Status = "error"
)

// Image encodings carried in ImagePayload.
const (
	EncodingRaw = "raw" // height x width x channels bytes
	EncodingPNG = "png"
)

// Request is sent from the bridge to the simulation.
type Request struct {
	ID      string `msgpack:"id"`
	Op      Op     `msgpack:"op"`
	Sensor  string `msgpack:"sensor,omitempty"`
	Command string `msgpack:"command,omitempty"`
}

// Response is sent from the simulation to the bridge.
type Response struct {
	ID     string        `msgpack:"id"`
	Op     Op            `msgpack:"op"`
	Status Status        `msgpack:"status"`
	Error  string        `msgpack:"error,omitempty"`
	Image  *ImagePayload `msgpack:"image,omitempty"`
}

// ImagePayload carries one sensor frame.
type ImagePayload struct {
	Sensor   string `msgpack:"sensor"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Channels int    `msgpack:"channels"`
	Encoding string `msgpack:"encoding"`
	Data     []byte `msgpack:"data"`
}

// Conn is a message-oriented connection carrying msgpack bodies.
type Conn interface {
	WriteMessage(v any) error
	ReadMessage(v any) error
	Close() error
}

// streamConn frames messages on a byte stream as a 4-byte big-endian
// length followed by the msgpack body.
type streamConn struct {
	r      io.Reader
	w      io.Writer
	closer io.Closer

	wmu sync.Mutex
	rmu sync.Mutex
}

// NewStreamConn returns a Conn over a byte stream such as a pair of pipes.
// closer, if non-nil, is closed by Close.
func NewStreamConn(r io.Reader, w io.Writer, closer io.Closer) Conn {
	return &streamConn{r: r, w: w, closer: closer}
}

func (c *streamConn) WriteMessage(v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(buf)
	return err
}

func (c *streamConn) ReadMessage(v any) error {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	var prefix [4]byte
	if _, err := io.ReadFull(c.r, prefix[:]); err != nil {
		return err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

func (c *streamConn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// WebSocket is the subset of a websocket connection used by the bridge.
// Both gorilla/websocket and the fasthttp-based fiber websocket satisfy it.
type WebSocket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsConn carries one msgpack body per binary websocket message.
type wsConn struct {
	ws  WebSocket
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn returns a Conn over an established websocket.
func NewWebSocketConn(ws WebSocket) Conn {
	ws.SetReadLimit(MaxMessageSize)
	return &wsConn{ws: ws}
}

func (c *wsConn) WriteMessage(v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, body)
}

func (c *wsConn) ReadMessage(v any) error {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		if isNormalClose(err) {
			return io.EOF
		}
		return err
	}
	if mt != websocket.BinaryMessage {
		return fmt.Errorf("%w: unexpected websocket message type %d", ErrInvalidMessage, mt)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wmu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// isNormalClose reports a clean close from either websocket implementation.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		fiberws.IsCloseError(err, fiberws.CloseNormalClosure, fiberws.CloseGoingAway)
}
