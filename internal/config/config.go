package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string

	// Topics
	TopicState   string
	TopicCommand string

	// Sensor driver selection: "mock", "serial", or "spi"
	Driver string

	// Serial motion pod
	SerialPort     string
	SerialBaudRate int

	// SPI IMU
	SPIDevice string

	// Timing (milliseconds)
	AccelIntervalMS       int // raw acceleration cadence while running
	MotionIntervalMS      int // device-motion cadence while running
	CalibrationIntervalMS int // both streams during calibration
	CalibrationSettleMS   int // pause before resuming after calibration

	// Fusion engine
	SmoothingFactor        float64
	CalibrationSampleCount int
	TrailMaxPoints         int
	TrailWindowMS          int

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns a config pre-filled with the stock sampling cadences and
// filter parameters; the config file overrides whatever it names.
func defaults() *Config {
	return &Config{
		MQTTClientIDProducer:   "tilt-producer",
		MQTTClientIDConsole:    "tilt-console-subscriber",
		MQTTClientIDWeb:        "tilt-web-subscriber",
		TopicState:             "tilt/state",
		TopicCommand:           "tilt/command",
		Driver:                 "mock",
		SerialBaudRate:         115200,
		AccelIntervalMS:        20,
		MotionIntervalMS:       50,
		CalibrationIntervalMS:  100,
		CalibrationSettleMS:    500,
		SmoothingFactor:        0.15,
		CalibrationSampleCount: 10,
		TrailMaxPoints:         200,
		TrailWindowMS:          3500,
		WebServerPort:          8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_STATE":
		c.TopicState = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value

	// Driver
	case "DRIVER":
		switch value {
		case "mock", "serial", "spi":
			c.Driver = value
		default:
			return fmt.Errorf("DRIVER must be mock, serial, or spi, got %q", value)
		}
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate
	case "SPI_DEVICE":
		c.SPIDevice = value

	// Timing
	case "ACCEL_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_INTERVAL %q: %w", value, err)
		}
		if interval <= 0 {
			return fmt.Errorf("ACCEL_INTERVAL must be positive, got %d", interval)
		}
		c.AccelIntervalMS = interval
	case "MOTION_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MOTION_INTERVAL %q: %w", value, err)
		}
		if interval <= 0 {
			return fmt.Errorf("MOTION_INTERVAL must be positive, got %d", interval)
		}
		c.MotionIntervalMS = interval
	case "CALIBRATION_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_INTERVAL %q: %w", value, err)
		}
		if interval <= 0 {
			return fmt.Errorf("CALIBRATION_INTERVAL must be positive, got %d", interval)
		}
		c.CalibrationIntervalMS = interval
	case "CALIBRATION_SETTLE":
		settle, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_SETTLE %q: %w", value, err)
		}
		if settle < 0 {
			return fmt.Errorf("CALIBRATION_SETTLE must be non-negative, got %d", settle)
		}
		c.CalibrationSettleMS = settle

	// Fusion engine
	case "SMOOTHING_FACTOR":
		factor, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SMOOTHING_FACTOR %q: %w", value, err)
		}
		if factor <= 0 || factor > 1 {
			return fmt.Errorf("SMOOTHING_FACTOR must be in (0, 1], got %g", factor)
		}
		c.SmoothingFactor = factor
	case "CALIBRATION_SAMPLE_COUNT":
		count, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_SAMPLE_COUNT %q: %w", value, err)
		}
		if count <= 0 {
			return fmt.Errorf("CALIBRATION_SAMPLE_COUNT must be positive, got %d", count)
		}
		c.CalibrationSampleCount = count
	case "TRAIL_MAX_POINTS":
		points, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TRAIL_MAX_POINTS %q: %w", value, err)
		}
		if points <= 0 {
			return fmt.Errorf("TRAIL_MAX_POINTS must be positive, got %d", points)
		}
		c.TrailMaxPoints = points
	case "TRAIL_WINDOW_MS":
		window, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TRAIL_WINDOW_MS %q: %w", value, err)
		}
		if window <= 0 {
			return fmt.Errorf("TRAIL_WINDOW_MS must be positive, got %d", window)
		}
		c.TrailWindowMS = window

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.Driver == "serial" && c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required when DRIVER=serial")
	}
	if c.Driver == "serial" && c.SerialBaudRate == 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE is required when DRIVER=serial")
	}
	if c.Driver == "spi" && c.SPIDevice == "" {
		return fmt.Errorf("SPI_DEVICE is required when DRIVER=spi")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
