package filter

import (
	"math"
	"testing"

	"github.com/relabs-tech/tilt_meter/internal/motion"
)

func TestConvergesToConstantInput(t *testing.T) {
	s := NewSmoother(0.15)
	input := motion.Vec3{X: 1, Y: -2, Z: 0.5}

	var out motion.Vec3
	for i := 0; i < 200; i++ {
		out = s.Apply(input)
	}

	const eps = 1e-6
	if math.Abs(out.X-input.X) > eps || math.Abs(out.Y-input.Y) > eps || math.Abs(out.Z-input.Z) > eps {
		t.Errorf("did not converge: got %+v, want %+v", out, input)
	}
}

func TestMonotonicApproachFromRest(t *testing.T) {
	s := NewSmoother(0.15)
	input := motion.Vec3{X: 1}

	prevDistance := math.Inf(1)
	for i := 0; i < 50; i++ {
		out := s.Apply(input)
		distance := math.Abs(input.X - out.X)
		if distance >= prevDistance {
			t.Fatalf("iteration %d: distance %v did not shrink from %v", i, distance, prevDistance)
		}
		if out.X > input.X {
			t.Fatalf("iteration %d: overshoot to %v", i, out.X)
		}
		prevDistance = distance
	}
}

func TestFactorOneIsPassthrough(t *testing.T) {
	s := NewSmoother(1.0)
	input := motion.Vec3{X: 3, Y: -1, Z: 7}
	if got := s.Apply(input); got != input {
		t.Errorf("factor 1.0 should pass through, got %+v", got)
	}
}

func TestInvalidFactorFallsBack(t *testing.T) {
	for _, factor := range []float64{0, -0.5, 1.5} {
		s := NewSmoother(factor)
		if s.factor != DefaultSmoothingFactor {
			t.Errorf("NewSmoother(%v) factor = %v, want default", factor, s.factor)
		}
	}
}

func TestReset(t *testing.T) {
	s := NewSmoother(0.15)
	s.Apply(motion.Vec3{X: 5, Y: 5, Z: 5})
	s.Reset()
	if s.previous != (motion.Vec3{}) {
		t.Errorf("Reset left state %+v", s.previous)
	}
}
