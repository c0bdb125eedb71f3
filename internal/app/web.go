package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/tilt_meter/internal/config"
	"github.com/relabs-tech/tilt_meter/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsCommand is what the browser sends over the websocket to drive the
// session: {"action": "start" | "stop" | "calibrate"}.
type wsCommand struct {
	Action string `json:"action"`
}

// snapshotHub caches the latest session snapshot from MQTT and fans it out
// to connected websocket clients.
type snapshotHub struct {
	mu       sync.RWMutex
	last     session.Snapshot
	have     bool
	watchers map[chan session.Snapshot]struct{}
}

func newSnapshotHub() *snapshotHub {
	return &snapshotHub{watchers: make(map[chan session.Snapshot]struct{})}
}

func (h *snapshotHub) update(snap session.Snapshot) {
	h.mu.Lock()
	h.last = snap
	h.have = true
	for ch := range h.watchers {
		select {
		case ch <- snap:
		default:
			// Slow client; it will catch up on the next update.
		}
	}
	h.mu.Unlock()
}

func (h *snapshotHub) latest() (session.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.have
}

func (h *snapshotHub) watch() chan session.Snapshot {
	ch := make(chan session.Snapshot, 8)
	h.mu.Lock()
	h.watchers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *snapshotHub) unwatch(ch chan session.Snapshot) {
	h.mu.Lock()
	delete(h.watchers, ch)
	h.mu.Unlock()
}

// RunWeb subscribes to the producer's state topic and serves the latest
// snapshot over a JSON API and a live websocket. Commands from the browser
// are republished to the command topic for the producer to execute.
func RunWeb() error {
	cfg := config.Get()
	hub := newSnapshotHub()

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to state topic and update the hub on each message
	token := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var snap session.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			log.Printf("web: state payload unmarshal error: %v", err)
			return
		}
		hub.update(snap)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicState)

	// 3) JSON API endpoint: latest snapshot
	http.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := hub.latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// 4) Websocket: live snapshot stream plus session commands
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		updates := hub.watch()
		defer hub.unwatch(updates)

		// Reader: forward browser commands to the producer.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var cmd wsCommand
				if err := conn.ReadJSON(&cmd); err != nil {
					return
				}
				switch cmd.Action {
				case "start", "stop", "calibrate":
					log.Printf("web: forwarding command %q", cmd.Action)
					client.Publish(cfg.TopicCommand, 0, false, cmd.Action)
				default:
					log.Printf("web: ignoring unknown action %q", cmd.Action)
				}
			}
		}()

		// Seed the client with the current snapshot, then stream updates.
		if snap, ok := hub.latest(); ok {
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
		for {
			select {
			case <-done:
				return
			case snap := <-updates:
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
			}
		}
	})

	// 5) Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
