package motion

import "math"

// Vec3 is a 3-axis vector in device coordinates.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a unit rotation quaternion as delivered by the device-motion stream.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// RotationRate holds gyroscope angular rates in rad/s around the X and Y axes.
type RotationRate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AccelSample is a single raw accelerometer reading in g, timestamped in
// seconds by the sensor driver.
type AccelSample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp float64 `json:"timestamp"`
}

// AttitudeSample is a single device-motion reading: attitude quaternion,
// gravity direction, and gyro rotation rate. Produced on an independent,
// slower cadence than AccelSample.
type AttitudeSample struct {
	Quaternion   Quaternion   `json:"quaternion"`
	Gravity      Vec3         `json:"gravity"`
	RotationRate RotationRate `json:"rotation_rate"`
	Timestamp    float64      `json:"timestamp"`
}

// Offsets holds the zero-offsets computed by a calibration run. They persist
// for the lifetime of a running session and are reset only when a new
// calibration begins.
type Offsets struct {
	Accel    Vec3    `json:"accel"`
	PitchDeg float64 `json:"pitch_deg"`
	RollDeg  float64 `json:"roll_deg"`
}

// Vec of an AccelSample, without the timestamp.
func (s AccelSample) Vec() Vec3 {
	return Vec3{X: s.X, Y: s.Y, Z: s.Z}
}

// Sub returns v - o per axis.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Magnitude returns the Euclidean length of v.
func (v Vec3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}
