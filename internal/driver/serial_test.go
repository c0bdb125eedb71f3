package driver

import (
	"fmt"
	"math"
	"testing"

	"github.com/relabs-tech/tilt_meter/internal/motion"
)

// sentence wraps a body in NMEA framing with a computed checksum.
func sentence(body string) string {
	var checksum byte
	for _, b := range []byte(body) {
		checksum ^= b
	}
	return fmt.Sprintf("$%s*%02X", body, checksum)
}

func TestDispatchAccelSentence(t *testing.T) {
	s := &Serial{}
	var got motion.AccelSample
	delivered := false
	s.SubscribeAccel(0, func(sample motion.AccelSample) {
		got = sample
		delivered = true
	})

	s.dispatchLine(sentence("PTACC,1.5,0.1,-0.2,0.98"))

	if !delivered {
		t.Fatal("accel sample not delivered")
	}
	if got.Timestamp != 1.5 {
		t.Errorf("timestamp = %v, want 1.5", got.Timestamp)
	}
	if math.Abs(got.X-0.1) > 1e-9 || math.Abs(got.Y+0.2) > 1e-9 || math.Abs(got.Z-0.98) > 1e-9 {
		t.Errorf("accel = %+v", got)
	}
}

func TestDispatchAttitudeSentence(t *testing.T) {
	s := &Serial{}
	var got motion.AttitudeSample
	delivered := false
	s.SubscribeMotion(0, func(sample motion.AttitudeSample) {
		got = sample
		delivered = true
	})

	s.dispatchLine(sentence("PTATT,2.5,0.1,0.2,0.3,0.9,0.05,-0.02,-0.99,0.01,-0.03"))

	if !delivered {
		t.Fatal("attitude sample not delivered")
	}
	if got.Timestamp != 2.5 {
		t.Errorf("timestamp = %v, want 2.5", got.Timestamp)
	}
	if got.Quaternion != (motion.Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9}) {
		t.Errorf("quaternion = %+v", got.Quaternion)
	}
	if got.Gravity != (motion.Vec3{X: 0.05, Y: -0.02, Z: -0.99}) {
		t.Errorf("gravity = %+v", got.Gravity)
	}
	if got.RotationRate != (motion.RotationRate{X: 0.01, Y: -0.03}) {
		t.Errorf("rotation rate = %+v", got.RotationRate)
	}
}

func TestMalformedLinesAreDropped(t *testing.T) {
	s := &Serial{}
	delivered := 0
	s.SubscribeAccel(0, func(motion.AccelSample) { delivered++ })
	s.SubscribeMotion(0, func(motion.AttitudeSample) { delivered++ })

	s.dispatchLine("garbage")
	s.dispatchLine("$PTACC,1.0,0.1,0.2*00")             // bad checksum
	s.dispatchLine(sentence("PTACC,1.0,not-a-number,0,1")) // bad field

	if delivered != 0 {
		t.Errorf("delivered %d samples from malformed lines", delivered)
	}
}

func TestUnsubscribeDetachesCallbacks(t *testing.T) {
	s := &Serial{}
	delivered := 0
	s.SubscribeAccel(0, func(motion.AccelSample) { delivered++ })
	s.Unsubscribe()

	s.dispatchLine(sentence("PTACC,1.0,0,0,1"))
	if delivered != 0 {
		t.Errorf("delivered %d samples after Unsubscribe", delivered)
	}
}
