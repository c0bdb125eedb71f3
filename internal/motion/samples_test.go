package motion

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func TestMagnitude(t *testing.T) {
	cases := []struct {
		v    Vec3
		want float64
	}{
		{Vec3{X: 3, Y: 4, Z: 0}, 5.0},
		{Vec3{}, 0.0},
		{Vec3{Z: 1}, 1.0},
		{Vec3{X: 1, Y: 1, Z: 1}, math.Sqrt(3)},
	}
	for _, c := range cases {
		if got := c.v.Magnitude(); math.Abs(got-c.want) > tolerance {
			t.Errorf("Magnitude(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestSub(t *testing.T) {
	got := Vec3{X: 1, Y: 2, Z: 3}.Sub(Vec3{X: 0.1, Y: 0.2, Z: 0.3})
	want := Vec3{X: 0.9, Y: 1.8, Z: 2.7}
	if math.Abs(got.X-want.X) > 1e-12 || math.Abs(got.Y-want.Y) > 1e-12 || math.Abs(got.Z-want.Z) > 1e-12 {
		t.Errorf("Sub = %+v, want %+v", got, want)
	}
}

func TestAccelSampleVec(t *testing.T) {
	s := AccelSample{X: 1, Y: 2, Z: 3, Timestamp: 4.5}
	if got := s.Vec(); got != (Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Vec() = %+v", got)
	}
}
