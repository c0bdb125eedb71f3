package driver

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/tilt_meter/internal/motion"
)

// Serial-attached motion pods emit NMEA-style proprietary sentences:
//
//	$PTACC,<ts>,<x>,<y>,<z>*hh            raw acceleration in g
//	$PTATT,<ts>,<qx>,<qy>,<qz>,<qw>,<gx>,<gy>,<gz>,<rx>,<ry>*hh
//
// with <ts> the pod clock in seconds and <rx>,<ry> gyro rates in rad/s.
// go-nmea reports proprietary sentences with the leading P stripped from the
// type, hence the registration keys below.
const (
	TypePTACC = "TACC"
	TypePTATT = "TATT"
)

// PTACC is a parsed acceleration sentence.
type PTACC struct {
	nmea.BaseSentence
	Timestamp float64
	X, Y, Z   float64
}

// PTATT is a parsed attitude sentence.
type PTATT struct {
	nmea.BaseSentence
	Timestamp      float64
	QX, QY, QZ, QW float64
	GX, GY, GZ     float64
	RateX, RateY   float64
}

func init() {
	nmea.MustRegisterParser(TypePTACC, func(s nmea.BaseSentence) (nmea.Sentence, error) {
		p := nmea.NewParser(s)
		return PTACC{
			BaseSentence: s,
			Timestamp:    p.Float64(0, "timestamp"),
			X:            p.Float64(1, "x"),
			Y:            p.Float64(2, "y"),
			Z:            p.Float64(3, "z"),
		}, p.Err()
	})
	nmea.MustRegisterParser(TypePTATT, func(s nmea.BaseSentence) (nmea.Sentence, error) {
		p := nmea.NewParser(s)
		return PTATT{
			BaseSentence: s,
			Timestamp:    p.Float64(0, "timestamp"),
			QX:           p.Float64(1, "qx"),
			QY:           p.Float64(2, "qy"),
			QZ:           p.Float64(3, "qz"),
			QW:           p.Float64(4, "qw"),
			GX:           p.Float64(5, "gx"),
			GY:           p.Float64(6, "gy"),
			GZ:           p.Float64(7, "gz"),
			RateX:        p.Float64(8, "rate_x"),
			RateY:        p.Float64(9, "rate_y"),
		}, p.Err()
	})
}

// Serial reads a serial-attached motion pod and delivers its samples through
// the driver subscription interface. The pod pushes at its own rate; the
// subscription interval acts as a minimum spacing and faster samples are
// dropped.
type Serial struct {
	port io.ReadWriteCloser

	mu             sync.Mutex
	accelFn        func(motion.AccelSample)
	accelInterval  time.Duration
	lastAccel      time.Time
	motionFn       func(motion.AttitudeSample)
	motionInterval time.Duration
	lastMotion     time.Time

	closed chan struct{}
}

// NewSerial opens the pod's serial port and starts the reader loop.
func NewSerial(portName string, baudRate uint) (*Serial, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open motion pod serial port %s: %w", portName, err)
	}
	log.Printf("serial driver: port %s open at %d baud", portName, baudRate)

	s := &Serial{port: port, closed: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

// Both streams come over the same port, so capability follows the port.
func (s *Serial) AccelAvailable() bool  { return true }
func (s *Serial) MotionAvailable() bool { return true }

func (s *Serial) SubscribeAccel(interval time.Duration, fn func(motion.AccelSample)) {
	s.mu.Lock()
	s.accelFn = fn
	s.accelInterval = interval
	s.lastAccel = time.Time{}
	s.mu.Unlock()
}

func (s *Serial) SubscribeMotion(interval time.Duration, fn func(motion.AttitudeSample)) {
	s.mu.Lock()
	s.motionFn = fn
	s.motionInterval = interval
	s.lastMotion = time.Time{}
	s.mu.Unlock()
}

// Unsubscribe detaches both callbacks. The reader loop keeps draining the
// port so the pod's output buffer never backs up.
func (s *Serial) Unsubscribe() {
	s.mu.Lock()
	s.accelFn = nil
	s.motionFn = nil
	s.mu.Unlock()
}

// Close tears down the port and stops the reader loop.
func (s *Serial) Close() error {
	close(s.closed)
	return s.port.Close()
}

func (s *Serial) readLoop() {
	reader := bufio.NewReader(s.port)
	for {
		select {
		case <-s.closed:
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			log.Printf("serial driver: read error: %v", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.dispatchLine(line)
	}
}

// dispatchLine parses one sentence and delivers it to the matching
// subscriber, honoring the configured minimum spacing. Malformed lines are
// transient sensor noise and are dropped without surfacing an error.
func (s *Serial) dispatchLine(line string) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		log.Printf("serial driver: dropping malformed sentence: %v", err)
		return
	}

	now := time.Now()
	switch v := sentence.(type) {
	case PTACC:
		s.mu.Lock()
		fn := s.accelFn
		if fn == nil || (!s.lastAccel.IsZero() && now.Sub(s.lastAccel) < s.accelInterval) {
			s.mu.Unlock()
			return
		}
		s.lastAccel = now
		s.mu.Unlock()
		fn(motion.AccelSample{X: v.X, Y: v.Y, Z: v.Z, Timestamp: v.Timestamp})

	case PTATT:
		s.mu.Lock()
		fn := s.motionFn
		if fn == nil || (!s.lastMotion.IsZero() && now.Sub(s.lastMotion) < s.motionInterval) {
			s.mu.Unlock()
			return
		}
		s.lastMotion = now
		s.mu.Unlock()
		fn(motion.AttitudeSample{
			Quaternion:   motion.Quaternion{X: v.QX, Y: v.QY, Z: v.QZ, W: v.QW},
			Gravity:      motion.Vec3{X: v.GX, Y: v.GY, Z: v.GZ},
			RotationRate: motion.RotationRate{X: v.RateX, Y: v.RateY},
			Timestamp:    v.Timestamp,
		})
	}
}
