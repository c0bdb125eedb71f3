// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package driver

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/tilt_meter/internal/motion"
)

// MPU-9250 class register map (the subset this driver touches).
const (
	regSampleRateDiv = 0x19
	regConfig        = 0x1A
	regGyroConfig    = 0x1B
	regAccelConfig   = 0x1C
	regAccelConfig2  = 0x1D
	regAccelXOutH    = 0x3B
	regGyroXOutH     = 0x43
	regPwrMgmt1      = 0x6B
	regWhoAmI        = 0x75

	spiReadFlag = 0x80
)

// Scale factors for the ranges configured below: ±2g accel, ±250°/s gyro.
const (
	accelLSBPerG   = 16384.0
	gyroLSBPerDPS  = 131.0
	gravityLowPass = 0.2
)

// SPI reads an MPU-9250 class IMU at register level over SPI and synthesizes
// both driver streams from it: raw acceleration directly, and a device-motion
// stream whose attitude quaternion is derived from the low-passed gravity
// direction. Grounded hardware for deployments without a motion pod.
type SPI struct {
	conn  spi.Conn
	start time.Time

	mu         sync.Mutex
	gravity    motion.Vec3
	haveGrav   bool
	stopAccel  chan struct{}
	stopMotion chan struct{}
}

// NewSPI initializes the periph host, opens the SPI device, and verifies and
// wakes the IMU.
func NewSPI(device string) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("open SPI device %s: %w", device, err)
	}

	conn, err := port.Connect(physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		return nil, fmt.Errorf("SPI connect %s: %w", device, err)
	}

	s := &SPI{conn: conn, start: time.Now()}

	id, err := s.readRegister(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("read WHO_AM_I: %w", err)
	}
	log.Printf("spi driver: IMU WHO_AM_I = 0x%02X", id)

	// Wake from sleep, auto-select clock source.
	if err := s.writeRegister(regPwrMgmt1, 0x01); err != nil {
		return nil, fmt.Errorf("wake IMU: %w", err)
	}
	// ±250°/s gyro, ±2g accel, DLPF at 41 Hz on both paths.
	if err := s.writeRegister(regGyroConfig, 0x00); err != nil {
		return nil, fmt.Errorf("set gyro range: %w", err)
	}
	if err := s.writeRegister(regAccelConfig, 0x00); err != nil {
		return nil, fmt.Errorf("set accel range: %w", err)
	}
	if err := s.writeRegister(regConfig, 0x03); err != nil {
		return nil, fmt.Errorf("set DLPF: %w", err)
	}
	if err := s.writeRegister(regAccelConfig2, 0x03); err != nil {
		return nil, fmt.Errorf("set accel DLPF: %w", err)
	}
	if err := s.writeRegister(regSampleRateDiv, 0x04); err != nil {
		return nil, fmt.Errorf("set sample rate divider: %w", err)
	}

	log.Printf("spi driver: IMU configured (±2g, ±250°/s, DLPF 41Hz)")
	return s, nil
}

func (s *SPI) AccelAvailable() bool  { return true }
func (s *SPI) MotionAvailable() bool { return true }

func (s *SPI) SubscribeAccel(interval time.Duration, fn func(motion.AccelSample)) {
	s.mu.Lock()
	if s.stopAccel != nil {
		close(s.stopAccel)
	}
	stop := make(chan struct{})
	s.stopAccel = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				accel, err := s.readAccel()
				if err != nil {
					// Transient read failure, drop the sample.
					log.Printf("spi driver: accel read error: %v", err)
					continue
				}
				fn(motion.AccelSample{
					X:         accel.X,
					Y:         accel.Y,
					Z:         accel.Z,
					Timestamp: time.Since(s.start).Seconds(),
				})
			}
		}
	}()
}

func (s *SPI) SubscribeMotion(interval time.Duration, fn func(motion.AttitudeSample)) {
	s.mu.Lock()
	if s.stopMotion != nil {
		close(s.stopMotion)
	}
	stop := make(chan struct{})
	s.stopMotion = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sample, err := s.readMotion()
				if err != nil {
					log.Printf("spi driver: motion read error: %v", err)
					continue
				}
				fn(sample)
			}
		}
	}()
}

// Unsubscribe signals both reader goroutines to exit without waiting.
func (s *SPI) Unsubscribe() {
	s.mu.Lock()
	if s.stopAccel != nil {
		close(s.stopAccel)
		s.stopAccel = nil
	}
	if s.stopMotion != nil {
		close(s.stopMotion)
		s.stopMotion = nil
	}
	s.mu.Unlock()
}

func (s *SPI) readAccel() (motion.Vec3, error) {
	raw, err := s.readRegisters(regAccelXOutH, 6)
	if err != nil {
		return motion.Vec3{}, err
	}
	return motion.Vec3{
		X: float64(int16(uint16(raw[0])<<8|uint16(raw[1]))) / accelLSBPerG,
		Y: float64(int16(uint16(raw[2])<<8|uint16(raw[3]))) / accelLSBPerG,
		Z: float64(int16(uint16(raw[4])<<8|uint16(raw[5]))) / accelLSBPerG,
	}, nil
}

func (s *SPI) readGyro() (x, y float64, err error) {
	raw, err := s.readRegisters(regGyroXOutH, 4)
	if err != nil {
		return 0, 0, err
	}
	const dpsToRad = math.Pi / 180.0
	x = float64(int16(uint16(raw[0])<<8|uint16(raw[1]))) / gyroLSBPerDPS * dpsToRad
	y = float64(int16(uint16(raw[2])<<8|uint16(raw[3]))) / gyroLSBPerDPS * dpsToRad
	return x, y, nil
}

// readMotion synthesizes a device-motion sample: gravity is the low-passed,
// negated accelerometer direction, and the attitude quaternion encodes the
// pitch angle that gravity implies.
func (s *SPI) readMotion() (motion.AttitudeSample, error) {
	accel, err := s.readAccel()
	if err != nil {
		return motion.AttitudeSample{}, err
	}
	gx, gy, err := s.readGyro()
	if err != nil {
		return motion.AttitudeSample{}, err
	}

	instant := motion.Vec3{X: -accel.X, Y: -accel.Y, Z: -accel.Z}
	if mag := instant.Magnitude(); mag > 0 {
		instant = motion.Vec3{X: instant.X / mag, Y: instant.Y / mag, Z: instant.Z / mag}
	}

	s.mu.Lock()
	if !s.haveGrav {
		s.gravity = instant
		s.haveGrav = true
	} else {
		s.gravity = motion.Vec3{
			X: s.gravity.X + gravityLowPass*(instant.X-s.gravity.X),
			Y: s.gravity.Y + gravityLowPass*(instant.Y-s.gravity.Y),
			Z: s.gravity.Z + gravityLowPass*(instant.Z-s.gravity.Z),
		}
	}
	gravity := s.gravity
	s.mu.Unlock()

	pitchRad := math.Atan2(-gravity.Y, math.Sqrt(gravity.X*gravity.X+gravity.Z*gravity.Z))
	halfPitch := pitchRad / 2

	return motion.AttitudeSample{
		Quaternion: motion.Quaternion{
			X: math.Sin(halfPitch),
			W: math.Cos(halfPitch),
		},
		Gravity:      gravity,
		RotationRate: motion.RotationRate{X: gx, Y: gy},
		Timestamp:    time.Since(s.start).Seconds(),
	}, nil
}

func (s *SPI) readRegister(reg byte) (byte, error) {
	raw, err := s.readRegisters(reg, 1)
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

func (s *SPI) readRegisters(reg byte, n int) ([]byte, error) {
	write := make([]byte, n+1)
	read := make([]byte, n+1)
	write[0] = reg | spiReadFlag
	if err := s.conn.Tx(write, read); err != nil {
		return nil, fmt.Errorf("SPI read reg 0x%02X: %w", reg, err)
	}
	return read[1:], nil
}

func (s *SPI) writeRegister(reg, value byte) error {
	if err := s.conn.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("SPI write reg 0x%02X: %w", reg, err)
	}
	return nil
}
