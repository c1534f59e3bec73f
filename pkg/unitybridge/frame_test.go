package unitybridge

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() *Frame {
	f := &Frame{Sensor: "cam", Height: 2, Width: 3, Channels: 3, Pix: make([]uint8, 18)}
	for i := range f.Pix {
		f.Pix[i] = uint8(i * 10)
	}
	return f
}

func TestFrameAtAndMax(t *testing.T) {
	f := testFrame()

	assert.Equal(t, uint8(0), f.At(0, 0, 0))
	assert.Equal(t, uint8(50), f.At(0, 1, 2))
	assert.Equal(t, uint8(90), f.At(1, 0, 0))
	assert.Equal(t, uint8(170), f.Max())

	empty := &Frame{Height: 1, Width: 1, Channels: 3, Pix: make([]uint8, 3)}
	assert.Equal(t, uint8(0), empty.Max())
}

func TestFrameImage(t *testing.T) {
	f := testFrame()
	img := f.Image()

	require.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	got := color.RGBAModel.Convert(img.At(1, 1)).(color.RGBA)
	assert.Equal(t, color.RGBA{R: 120, G: 130, B: 140, A: 255}, got)

	back := FrameFromImage("cam", img)
	assert.Equal(t, f.Pix, back.Pix)
}

func TestDepthRoundTrip(t *testing.T) {
	tests := []float64{0.1, 1.0, 2.5, 7.77, 12.0, 150.0}

	for _, meters := range tests {
		r, g, b := EncodeDepth(meters, DefaultDepthRange)
		f := &Frame{Height: 1, Width: 1, Channels: 3, Pix: []uint8{r, g, b}}

		depths, err := f.Depths(DefaultDepthRange)
		require.NoError(t, err)
		// One blue step is maxRange/2^24 meters.
		if math.Abs(depths[0][0]-meters) > 1e-4 {
			t.Errorf("depth %v decoded as %v", meters, depths[0][0])
		}
	}
}

func TestDepthsFormula(t *testing.T) {
	f := &Frame{Height: 1, Width: 1, Channels: 3, Pix: []uint8{2, 128, 64}}
	depths, err := f.Depths(200)
	require.NoError(t, err)

	want := (2.0 + 128.0/256.0 + 64.0/256.0/256.0) / 256.0 * 200.0
	assert.InDelta(t, want, depths[0][0], 1e-12)
}

func TestDepthsNeedsThreeChannels(t *testing.T) {
	f := &Frame{Height: 1, Width: 1, Channels: 1, Pix: []uint8{1}}
	_, err := f.Depths(DefaultDepthRange)
	assert.Error(t, err)
}

func TestPayloadEncodings(t *testing.T) {
	f := testFrame()

	for _, enc := range []string{EncodingRaw, EncodingPNG} {
		t.Run(enc, func(t *testing.T) {
			p, err := f.Payload(enc)
			require.NoError(t, err)

			got, err := FrameFromPayload(p)
			require.NoError(t, err)
			assert.Equal(t, f.Height, got.Height)
			assert.Equal(t, f.Width, got.Width)
			assert.Equal(t, f.Pix, got.Pix)
			assert.Equal(t, "cam", got.Sensor)
		})
	}
}

func TestFrameFromPayloadErrors(t *testing.T) {
	tests := []struct {
		name string
		p    ImagePayload
	}{
		{name: "short data", p: ImagePayload{Encoding: EncodingRaw, Width: 2, Height: 2, Channels: 3, Data: make([]byte, 5)}},
		{name: "bad shape", p: ImagePayload{Encoding: EncodingRaw, Width: 0, Height: 2, Channels: 3}},
		{name: "two channels", p: ImagePayload{Encoding: EncodingRaw, Width: 2, Height: 2, Channels: 2, Data: make([]byte, 8)}},
		{name: "five channels", p: ImagePayload{Encoding: EncodingRaw, Width: 1, Height: 1, Channels: 5, Data: make([]byte, 5)}},
		{name: "overflowing shape", p: ImagePayload{Encoding: EncodingRaw, Width: math.MaxInt, Height: math.MaxInt, Channels: 3}},
		{name: "too wide", p: ImagePayload{Encoding: EncodingRaw, Width: MaxImageDimension + 1, Height: 1, Channels: 1, Data: make([]byte, MaxImageDimension+1)}},
		{name: "larger than a message", p: ImagePayload{Encoding: EncodingRaw, Width: MaxImageDimension, Height: MaxImageDimension, Channels: 4}},
		{name: "bad png", p: ImagePayload{Encoding: EncodingPNG, Data: []byte("not a png")}},
		{name: "unknown encoding", p: ImagePayload{Encoding: "jpeg2000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FrameFromPayload(&tt.p)
			assert.ErrorIs(t, err, ErrInvalidMessage)
			assert.Nil(t, f)
		})
	}
}

func TestFrameFromPayloadHugePNG(t *testing.T) {
	// The header alone rules the image out.
	var buf bytes.Buffer
	img := image.NewGray(image.Rect(0, 0, MaxImageDimension+1, 1))
	require.NoError(t, png.Encode(&buf, img))

	_, err := FrameFromPayload(&ImagePayload{Encoding: EncodingPNG, Data: buf.Bytes()})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
