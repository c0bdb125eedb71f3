// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package calibration

import "github.com/relabs-tech/tilt_meter/internal/motion"

// DefaultSampleCount is how many samples of each quantity a calibration run
// collects before computing offsets.
const DefaultSampleCount = 10

// restingGravityG is subtracted from the mean Z acceleration so that a
// device lying flat reads zero net acceleration after calibration.
const restingGravityG = 1.0

// Collector accumulates raw acceleration, quaternion-derived pitch, and
// gravity-derived roll samples during a calibration run and computes the
// zero-offsets from their means. Not safe for concurrent use; the session
// serializes access.
type Collector struct {
	target int

	accelSamples []motion.Vec3
	pitchSamples []float64
	rollSamples  []float64
}

// NewCollector creates a collector that completes once target samples of
// every quantity have been gathered. Non-positive targets fall back to the
// default.
func NewCollector(target int) *Collector {
	if target <= 0 {
		target = DefaultSampleCount
	}
	return &Collector{
		target:       target,
		accelSamples: make([]motion.Vec3, 0, target),
		pitchSamples: make([]float64, 0, target),
		rollSamples:  make([]float64, 0, target),
	}
}

// AddAccel records one raw acceleration sample. Extra samples beyond the
// target are ignored so the mean stays over exactly N values.
func (c *Collector) AddAccel(v motion.Vec3) {
	if len(c.accelSamples) < c.target {
		c.accelSamples = append(c.accelSamples, v)
	}
}

// AddPitch records one quaternion-derived pitch sample in degrees.
func (c *Collector) AddPitch(deg float64) {
	if len(c.pitchSamples) < c.target {
		c.pitchSamples = append(c.pitchSamples, deg)
	}
}

// AddRoll records one gravity-derived lateral roll sample in degrees.
func (c *Collector) AddRoll(deg float64) {
	if len(c.rollSamples) < c.target {
		c.rollSamples = append(c.rollSamples, deg)
	}
}

// Complete reports whether all three sample sets have reached the target.
// The two source streams run at different cadences, so which sample fires
// completion is timing-dependent; callers should poll after every add.
func (c *Collector) Complete() bool {
	return len(c.accelSamples) >= c.target &&
		len(c.pitchSamples) >= c.target &&
		len(c.rollSamples) >= c.target
}

// Offsets computes the zero-offsets from the collected samples. Only
// meaningful once Complete() reports true.
func (c *Collector) Offsets() motion.Offsets {
	return motion.Offsets{
		Accel: motion.Vec3{
			X: meanVec(c.accelSamples, func(v motion.Vec3) float64 { return v.X }),
			Y: meanVec(c.accelSamples, func(v motion.Vec3) float64 { return v.Y }),
			Z: meanVec(c.accelSamples, func(v motion.Vec3) float64 { return v.Z }) - restingGravityG,
		},
		PitchDeg: mean(c.pitchSamples),
		RollDeg:  mean(c.rollSamples),
	}
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func meanVec(data []motion.Vec3, axis func(motion.Vec3) float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += axis(v)
	}
	return sum / float64(len(data))
}
