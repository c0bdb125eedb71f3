package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/tilt_meter/internal/config"
	"github.com/relabs-tech/tilt_meter/internal/driver"
	"github.com/relabs-tech/tilt_meter/internal/session"
)

// NewDriverFromConfig builds the sensor driver named by the config. The
// returned closer tears down driver-owned resources (serial port) and is a
// no-op for drivers without any.
func NewDriverFromConfig(cfg *config.Config) (session.Driver, func() error, error) {
	switch cfg.Driver {
	case "mock":
		log.Println("producer: using mock sensor driver")
		return driver.NewMock(), func() error { return nil }, nil
	case "serial":
		log.Printf("producer: using serial motion pod on %s", cfg.SerialPort)
		d, err := driver.NewSerial(cfg.SerialPort, uint(cfg.SerialBaudRate))
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	case "spi":
		log.Printf("producer: using SPI IMU on %s", cfg.SPIDevice)
		d, err := driver.NewSPI(cfg.SPIDevice)
		if err != nil {
			return nil, nil, err
		}
		return d, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// RunProducer owns the sensor session: it publishes every session snapshot
// to the state topic and executes start/stop/calibrate commands arriving on
// the command topic.
func RunProducer() error {
	log.Println("starting tilt-meter producer")

	cfg := config.Get()

	drv, closeDriver, err := NewDriverFromConfig(cfg)
	if err != nil {
		return err
	}
	defer closeDriver()

	sess := session.New(drv, session.Params{
		AccelInterval:          time.Duration(cfg.AccelIntervalMS) * time.Millisecond,
		MotionInterval:         time.Duration(cfg.MotionIntervalMS) * time.Millisecond,
		CalibrationInterval:    time.Duration(cfg.CalibrationIntervalMS) * time.Millisecond,
		SettleDelay:            time.Duration(cfg.CalibrationSettleMS) * time.Millisecond,
		SmoothingFactor:        cfg.SmoothingFactor,
		CalibrationSampleCount: cfg.CalibrationSampleCount,
		TrailMaxPoints:         cfg.TrailMaxPoints,
		TrailWindowSeconds:     float64(cfg.TrailWindowMS) / 1000.0,
	})

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("MQTT connect error: %v", token.Error())
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("producer: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Publish every state change, retained so late subscribers catch up.
	sess.OnUpdate(func(snap session.Snapshot) {
		payload, err := json.Marshal(snap)
		if err != nil {
			log.Printf("producer: snapshot marshal error: %v", err)
			return
		}
		client.Publish(cfg.TopicState, 0, true, payload)
	})

	// Command topic drives the session lifecycle.
	cmdToken := client.Subscribe(cfg.TopicCommand, 0, func(_ mqtt.Client, msg mqtt.Message) {
		cmd := strings.TrimSpace(string(msg.Payload()))
		log.Printf("producer: command %q", cmd)
		switch cmd {
		case "start":
			sess.Start()
		case "stop":
			sess.Stop()
		case "calibrate":
			sess.Calibrate()
		default:
			log.Printf("producer: ignoring unknown command %q", cmd)
		}
	})
	cmdToken.Wait()
	if cmdToken.Error() != nil {
		return cmdToken.Error()
	}
	log.Printf("producer: subscribed to %s", cfg.TopicCommand)

	sess.Start()

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("producer: shutting down")
	sess.Stop()
	return nil
}
