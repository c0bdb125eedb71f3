// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/tilt_meter/internal/attitude"
	"github.com/relabs-tech/tilt_meter/internal/calibration"
	"github.com/relabs-tech/tilt_meter/internal/filter"
	"github.com/relabs-tech/tilt_meter/internal/fusion"
	"github.com/relabs-tech/tilt_meter/internal/motion"
	"github.com/relabs-tech/tilt_meter/internal/trail"
)

// State is the session lifecycle state. Exactly one value at a time.
type State int

const (
	Stopped State = iota
	Running
	Calibrating
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Calibrating:
		return "calibrating"
	default:
		return "unknown"
	}
}

// MarshalText makes State render as its name in published JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the published name back into a State, for the MQTT
// subscribers decoding snapshots.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "stopped":
		*s = Stopped
	case "running":
		*s = Running
	case "calibrating":
		*s = Calibrating
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// Driver is the upstream sensor collaborator: two independent push-style
// subscriptions plus capability reporting. Subscribe replaces any previous
// subscription for the same stream; Unsubscribe tears both down and must
// only signal, never wait for in-flight callbacks (the session calls it from
// inside a callback when calibration completes). Callbacks may fire from
// driver-owned goroutines, the session serializes internally.
type Driver interface {
	AccelAvailable() bool
	MotionAvailable() bool
	SubscribeAccel(interval time.Duration, fn func(motion.AccelSample))
	SubscribeMotion(interval time.Duration, fn func(motion.AttitudeSample))
	Unsubscribe()
}

// Params are the session's tunable timing and filter parameters. Zero values
// fall back to the defaults below.
type Params struct {
	AccelInterval       time.Duration // raw acceleration cadence while running
	MotionInterval      time.Duration // device-motion cadence while running
	CalibrationInterval time.Duration // both streams during calibration
	SettleDelay         time.Duration // pause before resuming after calibration

	SmoothingFactor        float64
	CalibrationSampleCount int
	TrailMaxPoints         int
	TrailWindowSeconds     float64
}

const (
	defaultAccelInterval       = 20 * time.Millisecond
	defaultMotionInterval      = 50 * time.Millisecond
	defaultCalibrationInterval = 100 * time.Millisecond
	defaultSettleDelay         = 500 * time.Millisecond
)

func (p *Params) applyDefaults() {
	if p.AccelInterval <= 0 {
		p.AccelInterval = defaultAccelInterval
	}
	if p.MotionInterval <= 0 {
		p.MotionInterval = defaultMotionInterval
	}
	if p.CalibrationInterval <= 0 {
		p.CalibrationInterval = defaultCalibrationInterval
	}
	if p.SettleDelay <= 0 {
		p.SettleDelay = defaultSettleDelay
	}
	if p.SmoothingFactor <= 0 || p.SmoothingFactor > 1 {
		p.SmoothingFactor = filter.DefaultSmoothingFactor
	}
	if p.CalibrationSampleCount <= 0 {
		p.CalibrationSampleCount = calibration.DefaultSampleCount
	}
	if p.TrailMaxPoints <= 0 {
		p.TrailMaxPoints = trail.DefaultMaxPoints
	}
	if p.TrailWindowSeconds <= 0 {
		p.TrailWindowSeconds = trail.DefaultWindowSeconds
	}
}

// Snapshot is the published view of the session, consumed by the
// presentation layer.
type Snapshot struct {
	Seq       uint64             `json:"seq"`
	State     State              `json:"state"`
	HaveAccel bool               `json:"have_accel"`
	Accel     motion.AccelSample `json:"accel"`
	PitchDeg  float64            `json:"pitch_deg"`
	RollDeg   float64            `json:"roll_deg"`
	Offsets   motion.Offsets     `json:"offsets"`
	Trail     []trail.Point      `json:"trail"`
}

// Session owns all mutable sensor-fusion state and sequences the smoothing
// filter, complementary fusion, calibration procedure, and trail buffer in
// response to commands and incoming samples. All mutations are serialized
// behind one mutex; driver callbacks never block on anything but that lock.
type Session struct {
	mu     sync.Mutex
	driver Driver
	params Params

	state     State
	offsets   motion.Offsets
	smoother  *filter.Smoother
	estimator *fusion.Estimator
	trail     *trail.Buffer
	collector *calibration.Collector

	haveAccel bool
	lastAccel motion.AccelSample

	// epoch invalidates the pending post-calibration resume when a stop or
	// a recalibration intervenes while the settle timer is in flight.
	epoch       int
	resumeTimer *time.Timer

	// seq stamps snapshots under mu; publishMu/lastPublished drop any snapshot
	// overtaken by a newer one so the callback never sees them out of order.
	seq uint64

	publishMu     sync.Mutex
	lastPublished uint64
	notify        func(Snapshot)
}

// New creates a stopped session bound to the given driver.
func New(driver Driver, params Params) *Session {
	params.applyDefaults()
	return &Session{
		driver:    driver,
		params:    params,
		state:     Stopped,
		smoother:  filter.NewSmoother(params.SmoothingFactor),
		estimator: fusion.NewEstimator(),
		trail:     trail.NewBuffer(params.TrailMaxPoints, params.TrailWindowSeconds),
	}
}

// OnUpdate registers a callback invoked after every published state change.
// The callback runs outside the session lock with a copied snapshot.
func (s *Session) OnUpdate(fn func(Snapshot)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Start begins a session from Stopped: calibration first, then running.
// Inert while already running or calibrating, and inert when the driver
// lacks either sensor capability.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state != Stopped {
		s.mu.Unlock()
		return
	}
	s.beginCalibrationLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Calibrate re-runs the calibration procedure. From Stopped it behaves like
// Start. While already calibrating it is a no-op; there is no cancel short
// of Stop.
func (s *Session) Calibrate() {
	s.mu.Lock()
	if s.state == Calibrating {
		s.mu.Unlock()
		return
	}
	s.beginCalibrationLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Stop tears down all subscriptions and timers and clears the
// fusion/smoothing/trail state. Safe from any state, including
// mid-calibration: a pending settle resume is invalidated.
func (s *Session) Stop() {
	s.mu.Lock()
	s.epoch++
	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
		s.resumeTimer = nil
	}
	s.driver.Unsubscribe()
	s.collector = nil
	s.estimator.Reset()
	s.smoother.Reset()
	s.trail.Clear()
	s.haveAccel = false
	s.lastAccel = motion.AccelSample{}
	s.state = Stopped
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Snapshot returns the current published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) snapshotLocked() Snapshot {
	s.seq++
	pitch, roll := s.estimator.Angles()
	return Snapshot{
		Seq:       s.seq,
		State:     s.state,
		HaveAccel: s.haveAccel,
		Accel:     s.lastAccel,
		PitchDeg:  pitch,
		RollDeg:   roll,
		Offsets:   s.offsets,
		Trail:     s.trail.Points(),
	}
}

// publish delivers a snapshot to the update callback. Driver callbacks race
// here after releasing the session lock, so a snapshot that has already been
// overtaken by a newer one is dropped rather than delivered stale.
func (s *Session) publish(snap Snapshot) {
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn == nil {
		return
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if snap.Seq <= s.lastPublished {
		return
	}
	s.lastPublished = snap.Seq
	fn(snap)
}

// beginCalibrationLocked enters Calibrating: zero offsets, fresh collector,
// both streams resubscribed at the slower calibration cadence. Fails quiet
// when the driver lacks a capability.
func (s *Session) beginCalibrationLocked() {
	if !s.driver.AccelAvailable() || !s.driver.MotionAvailable() {
		log.Printf("session: calibration skipped, sensor capability unavailable (accel=%v motion=%v)",
			s.driver.AccelAvailable(), s.driver.MotionAvailable())
		return
	}

	s.epoch++
	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
		s.resumeTimer = nil
	}
	s.driver.Unsubscribe()

	s.offsets = motion.Offsets{}
	s.estimator.Reset()
	s.smoother.Reset()
	s.trail.Clear()
	s.haveAccel = false
	s.lastAccel = motion.AccelSample{}
	s.collector = calibration.NewCollector(s.params.CalibrationSampleCount)
	s.state = Calibrating

	log.Printf("session: calibrating, collecting %d samples per quantity", s.params.CalibrationSampleCount)

	s.driver.SubscribeAccel(s.params.CalibrationInterval, s.handleAccel)
	s.driver.SubscribeMotion(s.params.CalibrationInterval, s.handleMotion)
}

// handleAccel is the raw acceleration callback for both lifecycle phases.
func (s *Session) handleAccel(sample motion.AccelSample) {
	s.mu.Lock()
	switch s.state {
	case Calibrating:
		if s.collector != nil {
			s.collector.AddAccel(sample.Vec())
			s.maybeFinishCalibrationLocked()
		}
		s.mu.Unlock()
		return
	case Running:
		adjusted := sample.Vec().Sub(s.offsets.Accel)
		smoothed := s.smoother.Apply(adjusted)
		s.lastAccel = motion.AccelSample{X: smoothed.X, Y: smoothed.Y, Z: smoothed.Z, Timestamp: sample.Timestamp}
		s.haveAccel = true
		s.trail.Push(trail.Point{X: smoothed.X, Y: smoothed.Y, Timestamp: sample.Timestamp})
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return
	default:
		// Late delivery after a stop; drop it.
		s.mu.Unlock()
	}
}

// handleMotion is the device-motion callback for both lifecycle phases.
func (s *Session) handleMotion(sample motion.AttitudeSample) {
	s.mu.Lock()
	switch s.state {
	case Calibrating:
		if s.collector != nil {
			s.collector.AddPitch(attitude.PitchFromQuaternion(sample.Quaternion))
			s.collector.AddRoll(attitude.LateralRoll(sample.Gravity))
			s.maybeFinishCalibrationLocked()
		}
		s.mu.Unlock()
		return
	case Running:
		s.estimator.Update(sample, s.offsets.PitchDeg, s.offsets.RollDeg)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return
	default:
		s.mu.Unlock()
	}
}

// maybeFinishCalibrationLocked checks the collector after every add and, once
// all three sample sets are full, computes offsets and schedules the resume.
// The settle delay is a fire-and-forget continuation guarded by the epoch so
// an intervening Stop or recalibration suppresses it.
func (s *Session) maybeFinishCalibrationLocked() {
	if s.collector == nil || !s.collector.Complete() {
		return
	}

	s.offsets = s.collector.Offsets()
	s.collector = nil
	s.estimator.Reset()
	s.smoother.Reset()
	s.driver.Unsubscribe()

	log.Printf("session: calibration complete, accel offset (%.4f, %.4f, %.4f), pitch %.2f°, roll %.2f°",
		s.offsets.Accel.X, s.offsets.Accel.Y, s.offsets.Accel.Z, s.offsets.PitchDeg, s.offsets.RollDeg)

	epoch := s.epoch
	s.resumeTimer = time.AfterFunc(s.params.SettleDelay, func() {
		s.resume(epoch)
	})
}

// resume transitions Calibrating to Running once the settle delay elapses,
// unless the session has been stopped or recalibrated in the meantime.
func (s *Session) resume(epoch int) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != Calibrating {
		s.mu.Unlock()
		return
	}
	s.resumeTimer = nil
	s.state = Running
	s.driver.SubscribeAccel(s.params.AccelInterval, s.handleAccel)
	s.driver.SubscribeMotion(s.params.MotionInterval, s.handleMotion)
	log.Println("session: running")
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}
