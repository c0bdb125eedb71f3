package filter

import "github.com/relabs-tech/tilt_meter/internal/motion"

// DefaultSmoothingFactor is the blend applied to each incoming acceleration
// sample. Lower means more smoothing, higher means more responsive.
const DefaultSmoothingFactor = 0.15

// Smoother is an exponential moving-average low-pass filter over a 3-axis
// acceleration stream. It keeps the previous output as running state.
type Smoother struct {
	factor   float64
	previous motion.Vec3
}

// NewSmoother creates a smoother with the given factor. Factors outside
// (0, 1] fall back to the default.
func NewSmoother(factor float64) *Smoother {
	if factor <= 0 || factor > 1 {
		factor = DefaultSmoothingFactor
	}
	return &Smoother{factor: factor}
}

// Apply folds one incoming sample into the running average and returns the
// smoothed value. Per axis: smoothed = previous + factor*(incoming - previous).
func (s *Smoother) Apply(incoming motion.Vec3) motion.Vec3 {
	s.previous = motion.Vec3{
		X: s.previous.X + s.factor*(incoming.X-s.previous.X),
		Y: s.previous.Y + s.factor*(incoming.Y-s.previous.Y),
		Z: s.previous.Z + s.factor*(incoming.Z-s.previous.Z),
	}
	return s.previous
}

// Reset zeroes the running state. Called on session start and on
// calibration start.
func (s *Smoother) Reset() {
	s.previous = motion.Vec3{}
}
