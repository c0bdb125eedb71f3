// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/tilt_meter/internal/app"
	"github.com/relabs-tech/tilt_meter/internal/config"
)

func main() {
	log.Println("starting tilt-meter web server (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("tilt_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: commands require the sensor producer to be running (./tilt_producer)")

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
