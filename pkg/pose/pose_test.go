package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func assertPose(t *testing.T, want, got Pose) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "x")
	assert.InDelta(t, want.Y, got.Y, eps, "y")
	assert.InDelta(t, want.Yaw, got.Yaw, eps, "yaw")
}

func TestCompose(t *testing.T) {
	tests := []struct {
		name      string
		base, rel Pose
		want      Pose
	}{
		{
			name: "identity",
			base: Pose{X: 1, Y: 2, Yaw: 0.5},
			rel:  Pose{},
			want: Pose{X: 1, Y: 2, Yaw: 0.5},
		},
		{
			name: "translate without heading",
			base: Pose{X: 1, Y: 2},
			rel:  Pose{X: 3, Y: -1},
			want: Pose{X: 4, Y: 1},
		},
		{
			name: "forward after quarter turn",
			base: Pose{X: 1, Y: 0, Yaw: math.Pi / 2},
			rel:  Pose{X: 1, Y: 0},
			want: Pose{X: 1, Y: 1, Yaw: math.Pi / 2},
		},
		{
			name: "sideways after half turn",
			base: Pose{X: 0, Y: 0, Yaw: math.Pi},
			rel:  Pose{X: 0, Y: 2, Yaw: math.Pi / 2},
			want: Pose{X: 0, Y: -2, Yaw: 3 * math.Pi / 2},
		},
		{
			name: "yaw wraps past a full turn",
			base: Pose{Yaw: 3 * math.Pi / 2},
			rel:  Pose{Yaw: math.Pi},
			want: Pose{Yaw: math.Pi / 2},
		},
		{
			name: "negative yaw keeps its sign",
			base: Pose{Yaw: -3 * math.Pi / 2},
			rel:  Pose{Yaw: -math.Pi},
			want: Pose{Yaw: -math.Pi / 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertPose(t, tt.want, tt.base.Compose(tt.rel))
		})
	}
}

func TestMulIsReversedCompose(t *testing.T) {
	a := Pose{X: 1, Y: 0, Yaw: math.Pi / 2}
	b := Pose{X: 2, Y: 3}

	// b then a in b's frame: b has no heading, so a is a plain offset.
	assertPose(t, Pose{X: 3, Y: 3, Yaw: math.Pi / 2}, a.Mul(b))
	// a then b in a's frame: b is rotated a quarter turn.
	assertPose(t, Pose{X: -2, Y: 2, Yaw: math.Pi / 2}, b.Mul(a))
}

func TestOdom(t *testing.T) {
	tests := []struct {
		name     string
		cur, old Pose
		want     Pose
	}{
		{
			name: "no motion",
			cur:  Pose{X: 1, Y: 1, Yaw: 1},
			old:  Pose{X: 1, Y: 1, Yaw: 1},
			want: Pose{},
		},
		{
			name: "demo move from the origin",
			cur:  Pose{X: 2.0, Y: 0.77},
			old:  Pose{},
			want: Pose{X: 2.0, Y: 0.77},
		},
		{
			name: "forward while facing up",
			cur:  Pose{X: 0, Y: 3, Yaw: math.Pi / 2},
			old:  Pose{X: 0, Y: 1, Yaw: math.Pi / 2},
			want: Pose{X: 2, Y: 0},
		},
		{
			name: "turn in place",
			cur:  Pose{Yaw: 0.25},
			old:  Pose{Yaw: 1},
			want: Pose{Yaw: -0.75},
		},
		{
			name: "left of a half turn",
			cur:  Pose{X: -1, Y: -1, Yaw: math.Pi},
			old:  Pose{Yaw: math.Pi},
			want: Pose{X: 1, Y: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertPose(t, tt.want, Odom(tt.cur, tt.old))
		})
	}
}

func TestOdomInvertsCompose(t *testing.T) {
	old := New(0.5, -2, 0.3)
	cur := New(4, 1.5, 1.1)

	assertPose(t, cur, old.Compose(Odom(cur, old)))
}

func TestEvalMatMul(t *testing.T) {
	tests := []struct {
		name string
		m    [2][2]float64
		v    [2]float64
		want [2]float64
	}{
		{"identity", [2][2]float64{{1, 0}, {0, 1}}, [2]float64{3, 4}, [2]float64{3, 4}},
		{"general", [2][2]float64{{1, 2}, {3, 4}}, [2]float64{5, 6}, [2]float64{17, 39}},
		{"zero vector", [2][2]float64{{1, 2}, {3, 4}}, [2]float64{}, [2]float64{}},
		{"quarter turn", rotation(math.Pi / 2), [2]float64{1, 0}, [2]float64{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvalMatMul(tt.m, tt.v)
			assert.InDelta(t, tt.want[0], got[0], eps)
			assert.InDelta(t, tt.want[1], got[1], eps)
		})
	}
}

func TestIndexIncreases(t *testing.T) {
	a := New(0, 0, 0)
	b := New(0, 0, 0)
	c := a.Compose(b)
	d := Odom(c, a)

	assert.Greater(t, a.Index, int64(0))
	assert.Equal(t, a.Index+1, b.Index)
	assert.Equal(t, b.Index+1, c.Index)
	assert.Equal(t, c.Index+1, d.Index)
	assert.Zero(t, Pose{}.Index)
}

func TestString(t *testing.T) {
	assert.Equal(t, "Pose(x=2.000, y=0.770, yaw=0.000)", New(2, 0.77, 0).String())
}
