// Package services hosts the long-running pieces that sit next to the HTTP API
package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subjects the hub relays to authority dashboards
const (
	AlertSubjects     = "alerts.>"
	ViolationSubjects = "violations.>"
)

// AlertHub relays lifecycle events from NATS to websocket clients.
// Alerts addressed to a single recipient only reach that user's clients.
type AlertHub struct {
	natsConn *nats.Conn
	subs     []*nats.Subscription

	clients   map[*AlertClient]bool
	clientsMu sync.RWMutex

	register   chan *AlertClient
	unregister chan *AlertClient
	done       chan struct{}
}

// HubMessage is a message sent to/from clients
type HubMessage struct {
	Type      string          `json:"type"` // subscribe, unsubscribe, event, ping
	Locations []string        `json:"locations,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// envelope is the part of an events.Event the hub routes on
type envelope struct {
	LocationID string `json:"locationId"`
	Data       struct {
		RecipientID *string `json:"recipientId"`
	} `json:"data"`
}

func NewAlertHub(natsConn *nats.Conn) *AlertHub {
	return &AlertHub{
		natsConn:   natsConn,
		clients:    make(map[*AlertClient]bool),
		register:   make(chan *AlertClient),
		unregister: make(chan *AlertClient),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the event subjects
func (h *AlertHub) Start() error {
	for _, subject := range []string{AlertSubjects, ViolationSubjects} {
		sub, err := h.natsConn.Subscribe(subject, func(msg *nats.Msg) {
			h.Broadcast(msg.Subject, msg.Data)
		})
		if err != nil {
			h.unsubscribeAll()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		h.subs = append(h.subs, sub)
	}
	logrus.Info("📺 [ALERTHUB] Relaying alerts and violation events")
	return nil
}

func (h *AlertHub) unsubscribeAll() {
	for _, sub := range h.subs {
		_ = sub.Unsubscribe()
	}
	h.subs = nil
}

// Register adds a client to the hub. A stopped hub ignores it.
func (h *AlertHub) Register(client *AlertClient) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// leave removes a client; after Stop nobody reads unregister any more
func (h *AlertHub) leave(client *AlertClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Run is the hub's main loop; it returns after Stop
func (h *AlertHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			logrus.Infof("📺 [ALERTHUB] Client connected: %s (%s)", client.remoteAddr, client.userID)

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			logrus.Infof("📺 [ALERTHUB] Client disconnected: %s", client.remoteAddr)

		case <-h.done:
			return
		}
	}
}

// Stop drops the NATS subscriptions and ends Run
func (h *AlertHub) Stop() {
	h.unsubscribeAll()
	close(h.done)
}

// Broadcast sends one event to every interested client. Slow clients miss messages.
func (h *AlertHub) Broadcast(subject string, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logrus.WithError(err).WithField("subject", subject).Warn("⚠️ [ALERTHUB] Undecodable event")
		return
	}

	msg, _ := json.Marshal(HubMessage{Type: "event", Subject: subject, Data: data})

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for client := range h.clients {
		if env.Data.RecipientID != nil && *env.Data.RecipientID != client.userID {
			continue
		}
		if !client.watches(env.LocationID) {
			continue
		}
		select {
		case client.send <- msg:
		default:
		}
	}
}

type HubStats struct {
	Clients int `json:"clients"`
}

func (h *AlertHub) Stats() HubStats {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return HubStats{Clients: len(h.clients)}
}

// Upgrader is used by the /ws/alerts handler
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is open for the dashboard as well
	},
}
