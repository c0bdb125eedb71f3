package fusion

import (
	"math"
	"testing"

	"github.com/relabs-tech/tilt_meter/internal/motion"
)

func levelSample(ts float64) motion.AttitudeSample {
	return motion.AttitudeSample{
		Quaternion: motion.Quaternion{W: 1},
		Gravity:    motion.Vec3{Z: -1},
		Timestamp:  ts,
	}
}

func quaternionForPitch(pitchDeg float64) motion.Quaternion {
	half := pitchDeg * math.Pi / 180 / 2
	return motion.Quaternion{X: math.Sin(half), W: math.Cos(half)}
}

func TestFirstSampleSeedsFromAttitude(t *testing.T) {
	e := NewEstimator()
	sample := motion.AttitudeSample{
		Quaternion: quaternionForPitch(10),
		Gravity:    motion.Vec3{X: math.Sin(5 * math.Pi / 180), Z: -math.Cos(5 * math.Pi / 180)},
		Timestamp:  1.0,
	}

	pitch, roll := e.Update(sample, 2.0, 1.0)
	if math.Abs(pitch-8.0) > 1e-6 {
		t.Errorf("seed pitch = %v, want 8 (10 - offset 2)", pitch)
	}
	if math.Abs(roll-4.0) > 1e-6 {
		t.Errorf("seed roll = %v, want 4 (5 - offset 1)", roll)
	}
}

func TestSeedClampsExtremeAttitude(t *testing.T) {
	e := NewEstimator()

	// A 170° rotation is a perfectly valid unit quaternion, and a steep
	// gravity tilt reads as a 60° lateral roll. The very first output must
	// already honor the clamps.
	tilt := 60 * math.Pi / 180
	sample := motion.AttitudeSample{
		Quaternion: quaternionForPitch(170),
		Gravity:    motion.Vec3{X: math.Sin(tilt), Z: -math.Cos(tilt)},
		Timestamp:  1.0,
	}
	pitch, roll := e.Update(sample, 0, 0)
	if pitch != 90.0 {
		t.Errorf("seed pitch = %v, want clamped 90", pitch)
	}
	if roll != 45.0 {
		t.Errorf("seed roll = %v, want clamped 45", roll)
	}
	if p, r := e.Angles(); p != 90.0 || r != 45.0 {
		t.Errorf("stored seed angles %v, %v escape the clamps", p, r)
	}
}

func TestSeedRollDeadband(t *testing.T) {
	e := NewEstimator()

	// A 0.5° gravity tilt on the first sample sits inside the 1° deadband
	// just like it would on later samples.
	tilt := 0.5 * math.Pi / 180
	sample := motion.AttitudeSample{
		Quaternion: motion.Quaternion{W: 1},
		Gravity:    motion.Vec3{X: math.Sin(tilt), Z: -math.Cos(tilt)},
		Timestamp:  1.0,
	}
	if _, roll := e.Update(sample, 0, 0); roll != 0.0 {
		t.Errorf("seed roll inside deadband = %v, want exactly 0", roll)
	}
}

func TestGyroIntegrationBlend(t *testing.T) {
	e := NewEstimator()
	e.Update(levelSample(1.0), 0, 0)

	// 1 deg/s around X for one second against a level attitude:
	// rawPitch = 0.15*(0 + 0 + 1) + 0.85*0 = 0.15.
	second := levelSample(2.0)
	second.RotationRate.X = math.Pi / 180
	pitch, _ := e.Update(second, 0, 0)
	if math.Abs(pitch-0.15) > 1e-9 {
		t.Errorf("blended pitch = %v, want 0.15", pitch)
	}
}

func TestRollDeadband(t *testing.T) {
	e := NewEstimator()
	e.Update(levelSample(1.0), 0, 0)

	// A slight 0.5° gravity tilt fuses to 0.3°, inside the 1° deadband.
	tilt := 0.5 * math.Pi / 180
	second := motion.AttitudeSample{
		Quaternion: motion.Quaternion{W: 1},
		Gravity:    motion.Vec3{X: math.Sin(tilt), Z: -math.Cos(tilt)},
		Timestamp:  1.05,
	}
	_, roll := e.Update(second, 0, 0)
	if roll != 0.0 {
		t.Errorf("roll inside deadband = %v, want exactly 0", roll)
	}
}

func TestClamping(t *testing.T) {
	e := NewEstimator()
	e.Update(levelSample(1.0), 0, 0)

	// Absurd gyro rates over a long gap push far past the clamps.
	extreme := levelSample(11.0)
	extreme.RotationRate = motion.RotationRate{X: 100, Y: 100}

	for i := 0; i < 10; i++ {
		extreme.Timestamp += 10
		pitch, roll := e.Update(extreme, 0, 0)
		if math.Abs(pitch) > 90 {
			t.Fatalf("pitch %v exceeds ±90", pitch)
		}
		if math.Abs(roll) > 45 {
			t.Fatalf("roll %v exceeds ±45", roll)
		}
	}
}

func TestClampingNegative(t *testing.T) {
	e := NewEstimator()
	e.Update(levelSample(1.0), 0, 0)

	extreme := levelSample(2.0)
	extreme.RotationRate = motion.RotationRate{X: -100, Y: -100}
	for i := 0; i < 10; i++ {
		extreme.Timestamp += 10
		pitch, roll := e.Update(extreme, 0, 0)
		if pitch < -90 || roll < -45 {
			t.Fatalf("clamp breached: pitch %v roll %v", pitch, roll)
		}
	}
}

func TestToleratesTinyAndLargeGaps(t *testing.T) {
	e := NewEstimator()
	e.Update(levelSample(1.0), 0, 0)

	// A microsecond gap, then a post-suspend sized gap. Both must stay finite
	// and clamped against a level attitude.
	for _, ts := range []float64{1.000001, 601.0} {
		s := levelSample(ts)
		s.RotationRate = motion.RotationRate{X: 0.3, Y: 0.2}
		pitch, roll := e.Update(s, 0, 0)
		if math.IsNaN(pitch) || math.IsNaN(roll) || math.Abs(pitch) > 90 || math.Abs(roll) > 45 {
			t.Fatalf("gap at ts=%v gave pitch %v roll %v", ts, pitch, roll)
		}
	}
}

func TestReset(t *testing.T) {
	e := NewEstimator()
	e.Update(levelSample(1.0), 0, 0)
	e.Update(levelSample(2.0), 0, 0)
	e.Reset()

	if pitch, roll := e.Angles(); pitch != 0 || roll != 0 {
		t.Errorf("Reset left angles %v, %v", pitch, roll)
	}
	if e.lastTimestamp != 0 {
		t.Errorf("Reset left timestamp %v", e.lastTimestamp)
	}

	// After reset the next update must seed, not integrate.
	sample := motion.AttitudeSample{
		Quaternion: quaternionForPitch(20),
		Gravity:    motion.Vec3{Z: -1},
		Timestamp:  5.0,
	}
	pitch, _ := e.Update(sample, 0, 0)
	if math.Abs(pitch-20) > 1e-6 {
		t.Errorf("post-reset seed pitch = %v, want 20", pitch)
	}
}
