package fusion

import (
	"math"

	"github.com/relabs-tech/tilt_meter/internal/attitude"
	"github.com/relabs-tech/tilt_meter/internal/motion"
)

// Fixed design parameters of the complementary filter. The blend weights
// trade gyro drift against attitude/gravity noise and were tuned on-device;
// they are deliberately not configurable.
const (
	pitchGyroWeight     = 0.15
	pitchAttitudeWeight = 0.85
	rollGyroWeight      = 0.40
	rollGravityWeight   = 0.60

	rollDeadbandDeg = 1.0

	pitchClampDeg = 90.0
	rollClampDeg  = 45.0
)

// Estimator fuses gyroscope rate integration with attitude-derived angles
// into a filtered pitch/roll estimate. One instance per running session;
// not safe for concurrent use, the session serializes access.
type Estimator struct {
	pitchDeg      float64
	rollDeg       float64
	lastTimestamp float64 // 0 = uninitialized
}

// NewEstimator returns a zeroed estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Update folds one attitude sample into the estimate, subtracting the given
// calibration offsets, and returns the new pitch and roll in degrees.
//
// The first sample after a reset seeds the state directly from the
// attitude-derived angles; gyro integration needs a prior timestamp.
func (e *Estimator) Update(sample motion.AttitudeSample, pitchOffsetDeg, rollOffsetDeg float64) (pitchDeg, rollDeg float64) {
	quaternionPitch := attitude.PitchFromQuaternion(sample.Quaternion)
	lateralRoll := attitude.LateralRoll(sample.Gravity)

	if e.lastTimestamp == 0 {
		seededRoll := lateralRoll - rollOffsetDeg
		if math.Abs(seededRoll) < rollDeadbandDeg {
			seededRoll = 0.0
		}
		e.pitchDeg = clamp(quaternionPitch-pitchOffsetDeg, pitchClampDeg)
		e.rollDeg = clamp(seededRoll, rollClampDeg)
		e.lastTimestamp = sample.Timestamp
		return e.pitchDeg, e.rollDeg
	}

	deltaTime := sample.Timestamp - e.lastTimestamp
	e.lastTimestamp = sample.Timestamp

	pitchDelta := attitude.Degrees(sample.RotationRate.X * deltaTime)
	rollDelta := attitude.Degrees(sample.RotationRate.Y * deltaTime)

	// Pitch: mostly attitude-derived, a little gyro integration on top.
	rawPitch := pitchGyroWeight*(e.pitchDeg+pitchOffsetDeg+pitchDelta) + pitchAttitudeWeight*quaternionPitch
	e.pitchDeg = rawPitch - pitchOffsetDeg

	// Roll: gravity is noisier here, so the gyro carries more weight.
	rawRoll := rollGyroWeight*(e.rollDeg+rollOffsetDeg+rollDelta) + rollGravityWeight*lateralRoll
	filteredRoll := rawRoll - rollOffsetDeg

	// Suppress gravity-sensor jitter near level.
	if math.Abs(filteredRoll) < rollDeadbandDeg {
		filteredRoll = 0.0
	}
	e.rollDeg = filteredRoll

	e.pitchDeg = clamp(e.pitchDeg, pitchClampDeg)
	e.rollDeg = clamp(e.rollDeg, rollClampDeg)

	return e.pitchDeg, e.rollDeg
}

// Angles returns the current filtered pitch and roll in degrees.
func (e *Estimator) Angles() (pitchDeg, rollDeg float64) {
	return e.pitchDeg, e.rollDeg
}

// Reset zeroes the estimate. Called whenever the session stops, starts, or
// a new calibration begins.
func (e *Estimator) Reset() {
	e.pitchDeg = 0
	e.rollDeg = 0
	e.lastTimestamp = 0
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
