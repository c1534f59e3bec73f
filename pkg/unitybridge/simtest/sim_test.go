package simtest

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge"
)

func TestSensors(t *testing.T) {
	sim := New()
	assert.Equal(t, []string{SensorPano, SensorDepth, SensorSegmentation}, sim.Sensors())
}

func TestRenderIsNotBlank(t *testing.T) {
	sim := New(WithSize(64, 32))
	for _, name := range sim.Sensors() {
		t.Run(name, func(t *testing.T) {
			f, ok := sim.Render(name)
			require.True(t, ok)
			assert.Equal(t, name, f.Sensor)
			assert.Equal(t, 64, f.Width)
			assert.Equal(t, 32, f.Height)
			assert.Len(t, f.Pix, 64*32*3)
			assert.Greater(t, f.Max(), uint8(0))
		})
	}

	_, ok := sim.Render("agent/missing")
	assert.False(t, ok)
}

func TestDepthStaysInsideRoom(t *testing.T) {
	sim := New(WithSize(32, 16))
	f, ok := sim.Render(SensorDepth)
	require.True(t, ok)

	depths, err := f.Depths(unitybridge.DefaultDepthRange)
	require.NoError(t, err)
	for _, row := range depths {
		for _, d := range row {
			assert.GreaterOrEqual(t, d, 0.09)
			// The farthest point of a 12 m square room from its center.
			assert.LessOrEqual(t, d, 8.5)
		}
	}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name       string
		req        unitybridge.Request
		wantStatus unitybridge.Status
		wantStop   bool
		wantImage  bool
	}{
		{
			name:       "image",
			req:        unitybridge.Request{ID: "1", Op: unitybridge.OpGetImage, Sensor: SensorPano},
			wantStatus: unitybridge.StatusOK,
			wantImage:  true,
		},
		{
			name:       "unknown sensor",
			req:        unitybridge.Request{ID: "2", Op: unitybridge.OpGetImage, Sensor: "agent/nope"},
			wantStatus: unitybridge.StatusLookupError,
		},
		{
			name:       "move",
			req:        unitybridge.Request{ID: "3", Op: unitybridge.OpSendMessage, Command: "agent move 2.0 0.77 0.0 0"},
			wantStatus: unitybridge.StatusOK,
		},
		{
			name:       "bad move",
			req:        unitybridge.Request{ID: "4", Op: unitybridge.OpSendMessage, Command: "agent move 1 2"},
			wantStatus: unitybridge.StatusError,
		},
		{
			name:       "step",
			req:        unitybridge.Request{ID: "8", Op: unitybridge.OpSendMessage, Command: "agent step 1 0 0.5"},
			wantStatus: unitybridge.StatusOK,
		},
		{
			name:       "bad step",
			req:        unitybridge.Request{ID: "9", Op: unitybridge.OpSendMessage, Command: "agent step 1 x 0"},
			wantStatus: unitybridge.StatusError,
		},
		{
			name:       "unknown command",
			req:        unitybridge.Request{ID: "5", Op: unitybridge.OpSendMessage, Command: "lights off"},
			wantStatus: unitybridge.StatusError,
		},
		{
			name:       "unknown op",
			req:        unitybridge.Request{ID: "6", Op: "teleport"},
			wantStatus: unitybridge.StatusError,
		},
		{
			name:     "shutdown",
			req:      unitybridge.Request{ID: "7", Op: unitybridge.OpShutdown},
			wantStop: true,
		},
	}

	sim := New(WithSize(16, 8))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, stop := sim.Handle(tt.req)
			assert.Equal(t, tt.wantStop, stop)
			if stop {
				return
			}
			assert.Equal(t, tt.req.ID, resp.ID)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantImage, resp.Image != nil)
			if tt.wantStatus != unitybridge.StatusOK {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestMoveUpdatesPose(t *testing.T) {
	sim := New(WithSize(16, 8))
	before, _ := sim.Render(SensorPano)

	resp, _ := sim.Handle(unitybridge.Request{Op: unitybridge.OpSendMessage, Command: "agent move 2.0 0.77 0.0 0"})
	require.Equal(t, unitybridge.StatusOK, resp.Status, resp.Error)

	assert.Equal(t, Pose{X: 2.0, Y: 0.77, Z: 0, Yaw: 0}, sim.Pose())
	assert.Equal(t, []string{"agent move 2.0 0.77 0.0 0"}, sim.Commands())

	after, _ := sim.Render(SensorPano)
	assert.NotEqual(t, before.Pix, after.Pix)

	odom := sim.Odometry()
	assert.InDelta(t, 2.0, odom.X, 1e-9)
	assert.InDelta(t, 0.77, odom.Y, 1e-9)
	assert.InDelta(t, 0.0, odom.Yaw, 1e-9)
}

func TestStepComposesPose(t *testing.T) {
	sim := New(WithSize(16, 8))
	move := func(command string) {
		t.Helper()
		resp, _ := sim.Handle(unitybridge.Request{Op: unitybridge.OpSendMessage, Command: command})
		require.Equal(t, unitybridge.StatusOK, resp.Status, resp.Error)
	}

	move("agent move 1 0 0.5 1.5707963267948966")
	move("agent step 1 0 0")

	// One unit forward while facing +y.
	p := sim.Pose()
	assert.InDelta(t, 1.0, p.X, 1e-9)
	assert.InDelta(t, 1.0, p.Y, 1e-9)
	assert.InDelta(t, 0.5, p.Z, 1e-9)
	assert.InDelta(t, math.Pi/2, p.Yaw, 1e-9)

	// Odometry is in the agent's own frame: straight ahead.
	odom := sim.Odometry()
	assert.InDelta(t, 1.0, odom.X, 1e-9)
	assert.InDelta(t, 0.0, odom.Y, 1e-9)
	assert.InDelta(t, 0.0, odom.Yaw, 1e-9)

	move("agent step 0 0 6.5")
	assert.InDelta(t, math.Pi/2+6.5-2*math.Pi, sim.Pose().Yaw, 1e-9, "yaw wraps past a full turn")
}

func TestPNGEncoding(t *testing.T) {
	sim := New(WithSize(16, 8), WithEncoding(unitybridge.EncodingPNG))
	resp, _ := sim.Handle(unitybridge.Request{Op: unitybridge.OpGetImage, Sensor: SensorSegmentation})
	require.Equal(t, unitybridge.StatusOK, resp.Status)
	require.NotNil(t, resp.Image)
	assert.Equal(t, unitybridge.EncodingPNG, resp.Image.Encoding)

	f, err := unitybridge.FrameFromPayload(resp.Image)
	require.NoError(t, err)
	want, _ := sim.Render(SensorSegmentation)
	assert.Equal(t, want.Pix, f.Pix)
}

func TestServeStdio(t *testing.T) {
	toSim, fromBridge := io.Pipe()
	toBridge, fromSim := io.Pipe()

	sim := New(WithSize(16, 8))
	errc := make(chan error, 1)
	go func() {
		errc <- sim.ServeStdio(context.Background(), toSim, fromSim)
		fromSim.Close()
	}()

	conn := unitybridge.NewStreamConn(toBridge, fromBridge, fromBridge)

	var hello unitybridge.Response
	require.NoError(t, conn.ReadMessage(&hello))
	assert.Equal(t, unitybridge.OpHello, hello.Op)

	require.NoError(t, conn.WriteMessage(&unitybridge.Request{ID: "a", Op: unitybridge.OpGetImage, Sensor: SensorDepth}))
	var resp unitybridge.Response
	require.NoError(t, conn.ReadMessage(&resp))
	assert.Equal(t, "a", resp.ID)
	require.NotNil(t, resp.Image)
	assert.Equal(t, 16*8*3, len(resp.Image.Data))

	// Closing our side ends the session cleanly.
	require.NoError(t, conn.Close())
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the bridge closed")
	}
}

func TestServeStopsOnShutdown(t *testing.T) {
	toSim, fromBridge := io.Pipe()
	toBridge, fromSim := io.Pipe()

	sim := New(WithSize(16, 8))
	errc := make(chan error, 1)
	go func() {
		errc <- sim.ServeStdio(context.Background(), toSim, fromSim)
	}()

	conn := unitybridge.NewStreamConn(toBridge, fromBridge, fromBridge)
	var hello unitybridge.Response
	require.NoError(t, conn.ReadMessage(&hello))

	require.NoError(t, conn.WriteMessage(&unitybridge.Request{ID: "x", Op: unitybridge.OpShutdown}))
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop on shutdown")
	}
	assert.True(t, sim.ShutdownRequested())
}
