package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/tilt_meter/internal/config"
	"github.com/relabs-tech/tilt_meter/internal/session"
)

// RunConsoleMQTT prints every published session snapshot to the terminal.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var snap session.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			log.Printf("console: snapshot unmarshal error: %v", err)
			return
		}

		if !snap.HaveAccel {
			fmt.Printf("[TILT] %-11s pitch=%7.2f roll=%7.2f (no accel yet)\n",
				snap.State, snap.PitchDeg, snap.RollDeg)
			return
		}
		fmt.Printf("[TILT] %-11s pitch=%7.2f roll=%7.2f  accel=(%6.3f, %6.3f, %6.3f)  trail=%d\n",
			snap.State, snap.PitchDeg, snap.RollDeg,
			snap.Accel.X, snap.Accel.Y, snap.Accel.Z, len(snap.Trail))
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicState)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
