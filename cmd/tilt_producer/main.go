package main

import (
	"log"

	"github.com/relabs-tech/tilt_meter/internal/app"
	"github.com/relabs-tech/tilt_meter/internal/config"
)

func main() {
	log.Println("starting tilt-meter sensor producer")

	// Load configuration
	if err := config.InitGlobal("tilt_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
