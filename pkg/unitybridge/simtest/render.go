package simtest

import (
	"math"

	"github.com/RAIL-group/RAIL-software-infrastructure-demos/pkg/unitybridge"
)

// segmentation class colors: sky, wall, floor, object.
var classColors = [4][3]uint8{
	{70, 130, 180},
	{190, 153, 153},
	{128, 64, 128},
	{220, 220, 0},
}

func newFrame(width, height int) *unitybridge.Frame {
	return &unitybridge.Frame{
		Width:    width,
		Height:   height,
		Channels: 3,
		Pix:      make([]uint8, width*height*3),
	}
}

// heading returns the world angle seen by panorama column x.
func heading(p Pose, x, width int) float64 {
	return p.Yaw + 2*math.Pi*float64(x)/float64(width)
}

// roomDepth is the distance, in meters, seen at a pixel of a square room
// 12 m wide centered on the origin.
func roomDepth(p Pose, x, y, width, height int) float64 {
	const half = 6.0

	angle := heading(p, x, width)
	dx, dz := math.Cos(angle), math.Sin(angle)

	wall := math.Inf(1)
	if dx > 1e-9 {
		wall = math.Min(wall, (half-p.X)/dx)
	} else if dx < -1e-9 {
		wall = math.Min(wall, (-half-p.X)/dx)
	}
	if dz > 1e-9 {
		wall = math.Min(wall, (half-p.Y)/dz)
	} else if dz < -1e-9 {
		wall = math.Min(wall, (-half-p.Y)/dz)
	}
	if wall < 0.1 || math.IsInf(wall, 1) {
		wall = 0.1
	}

	// Below the horizon the floor is closer, above it the ceiling.
	v := math.Abs(float64(y)-float64(height)/2) / (float64(height) / 2)
	if v < 0.05 {
		return wall
	}
	plane := 1.0 / v
	return math.Min(wall, plane)
}

func classAt(p Pose, x, y, width, height int) int {
	row := float64(y) / float64(height)
	switch {
	case row < 0.3:
		return 0
	case row > 0.7:
		return 2
	}
	// A pillar at a fixed world heading shows up as an object band.
	angle := math.Mod(heading(p, x, width), 2*math.Pi)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	if angle > 1.0 && angle < 1.3 {
		return 3
	}
	return 1
}

func renderPano(p Pose, width, height int) *unitybridge.Frame {
	f := newFrame(width, height)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			base := classColors[classAt(p, x, y, width, height)]
			d := roomDepth(p, x, y, width, height)
			shade := 1.0 / (1.0 + 0.08*d)
			for c := 0; c < 3; c++ {
				v := 24 + float64(base[c])*shade
				f.Pix[i+c] = uint8(math.Min(255, v))
			}
			i += 3
		}
	}
	return f
}

func renderSegmentation(p Pose, width, height int) *unitybridge.Frame {
	f := newFrame(width, height)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			col := classColors[classAt(p, x, y, width, height)]
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = col[0], col[1], col[2]
			i += 3
		}
	}
	return f
}

func renderDepth(p Pose, width, height int) *unitybridge.Frame {
	f := newFrame(width, height)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := roomDepth(p, x, y, width, height)
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = unitybridge.EncodeDepth(d, unitybridge.DefaultDepthRange)
			i += 3
		}
	}
	return f
}
