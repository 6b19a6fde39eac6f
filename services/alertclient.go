package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 16 * 1024
	sendBufferSize = 256
)

// AlertClient is one dashboard websocket connection
type AlertClient struct {
	hub        *AlertHub
	conn       *websocket.Conn
	send       chan []byte
	locations  map[string]bool // empty = every location
	locMu      sync.RWMutex
	userID     string
	remoteAddr string
}

func NewAlertClient(hub *AlertHub, conn *websocket.Conn, userID, remoteAddr string) *AlertClient {
	return &AlertClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		locations:  make(map[string]bool),
		userID:     userID,
		remoteAddr: remoteAddr,
	}
}

func (c *AlertClient) watches(locationID string) bool {
	c.locMu.RLock()
	defer c.locMu.RUnlock()
	return len(c.locations) == 0 || c.locations[locationID]
}

func (c *AlertClient) handle(msg HubMessage) {
	switch msg.Type {
	case "subscribe":
		c.locMu.Lock()
		for _, loc := range msg.Locations {
			c.locations[loc] = true
		}
		c.locMu.Unlock()

	case "unsubscribe":
		c.locMu.Lock()
		for _, loc := range msg.Locations {
			delete(c.locations, loc)
		}
		c.locMu.Unlock()

	case "ping":
		c.reply(map[string]string{"type": "pong"})

	default:
		logrus.Debugf("⚠️ [ALERTHUB] Unknown message type: %s", msg.Type)
	}
}

// ReadPump pumps control messages from the websocket connection
func (c *AlertClient) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("⚠️ [ALERTHUB] WebSocket error")
			}
			break
		}

		var msg HubMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.reply(map[string]string{"type": "error", "error": "invalid message"})
			continue
		}
		c.handle(msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *AlertClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *AlertClient) reply(v interface{}) {
	msgBytes, _ := json.Marshal(v)
	select {
	case c.send <- msgBytes:
	default:
	}
}
