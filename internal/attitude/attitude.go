package attitude

import (
	"math"

	"github.com/relabs-tech/tilt_meter/internal/motion"
)

const degPerRad = 180.0 / math.Pi

// lateralRoll treats the gravity vector as having no usable vertical
// component below this magnitude and reports zero roll instead of an
// unstable atan2 near the singularity.
const minVerticalMagnitude = 0.01

// PitchFromQuaternion extracts the device pitch angle in degrees from an
// attitude quaternion. Well-defined for any unit quaternion; atan2 resolves
// the degenerate 0/0 case to 0.
func PitchFromQuaternion(q motion.Quaternion) float64 {
	rad := math.Atan2(2*(q.X*q.W+q.Y*q.Z), 1-2*q.X*q.X-2*q.Z*q.Z)
	return rad * degPerRad
}

// LateralRoll computes the lateral (left/right) roll angle in degrees from
// the gravity direction: the angle between gravity's X component and its
// projection onto the Y/Z plane. Returns exactly 0 when the device is
// oriented so that gravity is almost purely lateral.
func LateralRoll(gravity motion.Vec3) float64 {
	verticalMag := math.Sqrt(gravity.Y*gravity.Y + gravity.Z*gravity.Z)
	if verticalMag <= minVerticalMagnitude {
		return 0.0
	}
	return math.Atan2(gravity.X, verticalMag) * degPerRad
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * degPerRad
}
