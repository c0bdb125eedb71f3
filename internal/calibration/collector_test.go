package calibration

import (
	"math"
	"testing"

	"github.com/relabs-tech/tilt_meter/internal/motion"
)

func fill(c *Collector, accel motion.Vec3, pitch, roll float64, n int) {
	for i := 0; i < n; i++ {
		c.AddAccel(accel)
		c.AddPitch(pitch)
		c.AddRoll(roll)
	}
}

func TestRestingDeviceYieldsZeroOffset(t *testing.T) {
	c := NewCollector(10)
	fill(c, motion.Vec3{Z: 1}, 0, 0, 10)

	if !c.Complete() {
		t.Fatal("collector not complete after 10 of each")
	}
	offsets := c.Offsets()
	if math.Abs(offsets.Accel.X) > 1e-9 || math.Abs(offsets.Accel.Y) > 1e-9 || math.Abs(offsets.Accel.Z) > 1e-9 {
		t.Errorf("resting accel offset = %+v, want zero", offsets.Accel)
	}
}

func TestOffsetsAreMeans(t *testing.T) {
	c := NewCollector(2)
	c.AddAccel(motion.Vec3{X: 0.1, Y: 0.2, Z: 1.2})
	c.AddAccel(motion.Vec3{X: 0.3, Y: 0.4, Z: 1.4})
	c.AddPitch(4)
	c.AddPitch(6)
	c.AddRoll(-1)
	c.AddRoll(-3)

	if !c.Complete() {
		t.Fatal("collector not complete")
	}
	offsets := c.Offsets()

	if math.Abs(offsets.Accel.X-0.2) > 1e-9 {
		t.Errorf("accel X offset = %v, want 0.2", offsets.Accel.X)
	}
	if math.Abs(offsets.Accel.Y-0.3) > 1e-9 {
		t.Errorf("accel Y offset = %v, want 0.3", offsets.Accel.Y)
	}
	// Mean Z is 1.3; the resting-gravity component is subtracted.
	if math.Abs(offsets.Accel.Z-0.3) > 1e-9 {
		t.Errorf("accel Z offset = %v, want 0.3", offsets.Accel.Z)
	}
	if math.Abs(offsets.PitchDeg-5) > 1e-9 {
		t.Errorf("pitch offset = %v, want 5", offsets.PitchDeg)
	}
	if math.Abs(offsets.RollDeg+2) > 1e-9 {
		t.Errorf("roll offset = %v, want -2", offsets.RollDeg)
	}
}

func TestIncompleteUntilAllThreeReachTarget(t *testing.T) {
	c := NewCollector(3)
	for i := 0; i < 3; i++ {
		c.AddAccel(motion.Vec3{Z: 1})
		c.AddPitch(0)
	}
	if c.Complete() {
		t.Fatal("complete without roll samples")
	}
	c.AddRoll(0)
	c.AddRoll(0)
	if c.Complete() {
		t.Fatal("complete one roll sample early")
	}
	c.AddRoll(0)
	if !c.Complete() {
		t.Fatal("not complete with all three at target")
	}
}

func TestExtraSamplesIgnored(t *testing.T) {
	c := NewCollector(2)
	fill(c, motion.Vec3{Z: 1}, 1, 1, 2)
	// These arrive after the counters are full and must not skew the means.
	c.AddAccel(motion.Vec3{X: 100})
	c.AddPitch(100)
	c.AddRoll(100)

	offsets := c.Offsets()
	if math.Abs(offsets.Accel.X) > 1e-9 || math.Abs(offsets.PitchDeg-1) > 1e-9 || math.Abs(offsets.RollDeg-1) > 1e-9 {
		t.Errorf("late samples skewed offsets: %+v", offsets)
	}
}

func TestNonPositiveTargetFallsBack(t *testing.T) {
	c := NewCollector(0)
	if c.target != DefaultSampleCount {
		t.Errorf("target = %d, want %d", c.target, DefaultSampleCount)
	}
}
