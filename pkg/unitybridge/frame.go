package unitybridge

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// DefaultDepthRange is the far plane, in meters, of the depth camera encoding.
const DefaultDepthRange = 200.0

// Frame is one image sample returned by a sensor query, laid out
// height x width x channels.
type Frame struct {
	Sensor   string
	Height   int
	Width    int
	Channels int
	Pix      []uint8
}

// At returns the sample at row y, column x, channel c.
func (f *Frame) At(y, x, c int) uint8 {
	return f.Pix[(y*f.Width+x)*f.Channels+c]
}

// Max returns the largest sample in the frame.
func (f *Frame) Max() uint8 {
	var m uint8
	for _, v := range f.Pix {
		if v > m {
			m = v
		}
	}
	return m
}

// Image converts the frame to an image.Image.
func (f *Frame) Image() image.Image {
	if f.Channels == 1 {
		img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
		copy(img.Pix, f.Pix)
		return img
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.RGBA{
				R: f.At(y, x, 0),
				G: f.At(y, x, 1),
				B: f.At(y, x, 2),
				A: 255,
			}
			if f.Channels > 3 {
				c.A = f.At(y, x, 3)
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Depths decodes a depth-camera frame into meters. The camera packs depth
// into the three color channels as (R + G/256 + B/256^2) / 256 * maxRange.
func (f *Frame) Depths(maxRange float64) ([][]float64, error) {
	if f.Channels < 3 {
		return nil, fmt.Errorf("depth decoding needs 3 channels, frame has %d", f.Channels)
	}

	out := make([][]float64, f.Height)
	for y := range out {
		row := make([]float64, f.Width)
		for x := range row {
			r := float64(f.At(y, x, 0))
			g := float64(f.At(y, x, 1))
			b := float64(f.At(y, x, 2))
			row[x] = (r + g/256.0 + b/256.0/256.0) / 256.0 * maxRange
		}
		out[y] = row
	}
	return out, nil
}

// EncodeDepth packs a depth in meters into the three channel bytes used by
// the depth camera. It is the inverse of Depths up to quantization.
func EncodeDepth(meters, maxRange float64) (r, g, b uint8) {
	v := meters / maxRange * 256.0
	if v < 0 {
		v = 0
	}
	if v >= 256 {
		return 255, 255, 255
	}
	ri := int(v)
	rem := (v - float64(ri)) * 256.0
	gi := int(rem)
	bi := int((rem - float64(gi)) * 256.0)
	if bi > 255 {
		bi = 255
	}
	return uint8(ri), uint8(gi), uint8(bi)
}

// FrameFromImage converts img into a 3-channel frame.
func FrameFromImage(sensor string, img image.Image) *Frame {
	b := img.Bounds()
	f := &Frame{
		Sensor:   sensor,
		Height:   b.Dy(),
		Width:    b.Dx(),
		Channels: 3,
		Pix:      make([]uint8, b.Dx()*b.Dy()*3),
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = c.R, c.G, c.B
			i += 3
		}
	}
	return f
}

// MaxImageDimension bounds the width and height of a wire image.
const MaxImageDimension = 1 << 15

// checkShape validates image dimensions. The byte count is computed in
// int64 so that it cannot wrap.
func checkShape(width, height, channels int) (int, error) {
	switch channels {
	case 1, 3, 4:
	default:
		return 0, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidMessage, channels)
	}
	if width <= 0 || height <= 0 || width > MaxImageDimension || height > MaxImageDimension {
		return 0, fmt.Errorf("%w: bad image shape %dx%dx%d", ErrInvalidMessage, height, width, channels)
	}
	size := int64(width) * int64(height) * int64(channels)
	if size > MaxMessageSize {
		return 0, fmt.Errorf("%w: image of %d bytes exceeds %d", ErrInvalidMessage, size, MaxMessageSize)
	}
	return int(size), nil
}

// FrameFromPayload decodes a wire image into a frame.
func FrameFromPayload(p *ImagePayload) (*Frame, error) {
	switch p.Encoding {
	case EncodingRaw, "":
		want, err := checkShape(p.Width, p.Height, p.Channels)
		if err != nil {
			return nil, err
		}
		if len(p.Data) != want {
			return nil, fmt.Errorf("%w: image has %d bytes, shape needs %d", ErrInvalidMessage, len(p.Data), want)
		}
		return &Frame{
			Sensor:   p.Sensor,
			Height:   p.Height,
			Width:    p.Width,
			Channels: p.Channels,
			Pix:      p.Data,
		}, nil

	case EncodingPNG:
		cfg, err := png.DecodeConfig(bytes.NewReader(p.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode png header: %v", ErrInvalidMessage, err)
		}
		// Decoded frames always carry 3 channels.
		if _, err := checkShape(cfg.Width, cfg.Height, 3); err != nil {
			return nil, err
		}
		img, err := png.Decode(bytes.NewReader(p.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode png: %v", ErrInvalidMessage, err)
		}
		return FrameFromImage(p.Sensor, img), nil

	default:
		return nil, fmt.Errorf("%w: unknown image encoding %q", ErrInvalidMessage, p.Encoding)
	}
}

// Payload encodes the frame for the wire.
func (f *Frame) Payload(encoding string) (*ImagePayload, error) {
	p := &ImagePayload{
		Sensor:   f.Sensor,
		Width:    f.Width,
		Height:   f.Height,
		Channels: f.Channels,
		Encoding: encoding,
	}

	switch encoding {
	case EncodingRaw:
		p.Data = f.Pix
	case EncodingPNG:
		var buf bytes.Buffer
		if err := png.Encode(&buf, f.Image()); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		p.Data = buf.Bytes()
		p.Channels = 3
	default:
		return nil, fmt.Errorf("unknown image encoding %q", encoding)
	}
	return p, nil
}
