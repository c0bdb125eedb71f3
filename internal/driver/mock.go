// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package driver

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/tilt_meter/internal/motion"
)

// Mock generates smooth changing samples for development without hardware.
// The device slowly rocks around both axes while resting near 1 g.
type Mock struct {
	start time.Time

	mu         sync.Mutex
	stopAccel  chan struct{}
	stopMotion chan struct{}
}

// NewMock creates a mock driver.
func NewMock() *Mock {
	return &Mock{start: time.Now()}
}

func (m *Mock) AccelAvailable() bool  { return true }
func (m *Mock) MotionAvailable() bool { return true }

func (m *Mock) SubscribeAccel(interval time.Duration, fn func(motion.AccelSample)) {
	m.mu.Lock()
	if m.stopAccel != nil {
		close(m.stopAccel)
	}
	stop := make(chan struct{})
	m.stopAccel = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn(m.accelAt(time.Since(m.start).Seconds()))
			}
		}
	}()
}

func (m *Mock) SubscribeMotion(interval time.Duration, fn func(motion.AttitudeSample)) {
	m.mu.Lock()
	if m.stopMotion != nil {
		close(m.stopMotion)
	}
	stop := make(chan struct{})
	m.stopMotion = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn(m.attitudeAt(time.Since(m.start).Seconds()))
			}
		}
	}()
}

// Unsubscribe signals both generator goroutines to exit. It never waits for
// them, so it is safe to call from inside a sample callback.
func (m *Mock) Unsubscribe() {
	m.mu.Lock()
	if m.stopAccel != nil {
		close(m.stopAccel)
		m.stopAccel = nil
	}
	if m.stopMotion != nil {
		close(m.stopMotion)
		m.stopMotion = nil
	}
	m.mu.Unlock()
}

func (m *Mock) accelAt(elapsed float64) motion.AccelSample {
	return motion.AccelSample{
		X:         0.08 * math.Sin(elapsed*1.3),
		Y:         0.05 * math.Cos(elapsed*0.9),
		Z:         1.0 + 0.02*math.Sin(elapsed*2.1),
		Timestamp: elapsed,
	}
}

func (m *Mock) attitudeAt(elapsed float64) motion.AttitudeSample {
	rollRad := 0.20 * math.Sin(elapsed)
	pitchRad := 0.15 * math.Cos(elapsed*0.7)

	// Quaternion for the pitch rotation alone; enough for a believable
	// rocking motion on the bench.
	halfPitch := pitchRad / 2
	q := motion.Quaternion{
		X: math.Sin(halfPitch),
		W: math.Cos(halfPitch),
	}

	gravity := motion.Vec3{
		X: math.Sin(rollRad),
		Y: 0,
		Z: -math.Cos(rollRad),
	}

	// Rotation rates are the analytic derivatives of the angle waves.
	rate := motion.RotationRate{
		X: -0.15 * 0.7 * math.Sin(elapsed*0.7),
		Y: 0.20 * math.Cos(elapsed),
	}

	return motion.AttitudeSample{
		Quaternion:   q,
		Gravity:      gravity,
		RotationRate: rate,
		Timestamp:    elapsed,
	}
}
