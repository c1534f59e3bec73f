package unitybridge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamConnFraming(t *testing.T) {
	var buf bytes.Buffer
	conn := NewStreamConn(&buf, &buf, nil)

	req := Request{ID: "abc", Op: OpGetImage, Sensor: "agent/t_pano_camera"}
	require.NoError(t, conn.WriteMessage(&req))

	n := binary.BigEndian.Uint32(buf.Bytes()[:4])
	assert.Equal(t, int(n), buf.Len()-4, "length prefix covers the body")

	var got Request
	require.NoError(t, conn.ReadMessage(&got))
	assert.Equal(t, req, got)

	err := conn.ReadMessage(&got)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamConnRejectsOversizedFrame(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxMessageSize+1)
	conn := NewStreamConn(bytes.NewReader(prefix[:]), io.Discard, nil)

	var resp Response
	err := conn.ReadMessage(&resp)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestStreamConnTruncatedBody(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 100)
	r := io.MultiReader(bytes.NewReader(prefix[:]), strings.NewReader("short"))
	conn := NewStreamConn(r, io.Discard, nil)

	var resp Response
	err := conn.ReadMessage(&resp)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStreamConnInvalidBody(t *testing.T) {
	body := []byte{0xc1} // never used in msgpack
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	buf.Write(prefix[:])
	buf.Write(body)

	conn := NewStreamConn(&buf, io.Discard, nil)
	var resp Response
	err := conn.ReadMessage(&resp)
	assert.True(t, errors.Is(err, ErrInvalidMessage), "got %v", err)
}

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestStreamConnClose(t *testing.T) {
	rec := &closeRecorder{}
	conn := NewStreamConn(strings.NewReader(""), io.Discard, rec)
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, rec.closed)
}

func TestWebSocketConnRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebSocketConn(ws)
		defer conn.Close()

		var req Request
		if err := conn.ReadMessage(&req); err != nil {
			return
		}
		conn.WriteMessage(&Response{ID: req.ID, Op: req.Op, Status: StatusOK})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	conn := NewWebSocketConn(ws)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(&Request{ID: "42", Op: OpSendMessage, Command: "agent move 1 2 3 4"}))

	var resp Response
	require.NoError(t, conn.ReadMessage(&resp))
	assert.Equal(t, "42", resp.ID)
	assert.Equal(t, StatusOK, resp.Status)

	// The server closes normally after one exchange.
	err = conn.ReadMessage(&resp)
	assert.ErrorIs(t, err, io.EOF)
}
