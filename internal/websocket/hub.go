package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cx-tal-miterani/airbook/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSeatsUpdated MessageType = "seats_updated"
)

// SeatUpdate represents a seat occupancy change
type SeatUpdate struct {
	SeatID   string `json:"seatId"`
	Occupied bool   `json:"occupied"`
}

// Message represents a WebSocket message
type Message struct {
	Type      MessageType  `json:"type"`
	FlightID  string       `json:"flightId"`
	Seats     []SeatUpdate `json:"seats,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	flightID uuid.UUID
}

// Hub manages WebSocket connections per flight and pushes seat-map
// updates when bookings and cancellations change occupancy.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	upgrader   websocket.Upgrader
	log        *logrus.Logger
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.flightID] == nil {
				h.clients[client.flightID] = make(map[*Client]bool)
			}
			h.clients[client.flightID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.flightID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.flightID)
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			flightID, err := uuid.Parse(message.FlightID)
			if err != nil {
				continue
			}

			data, err := json.Marshal(message)
			if err != nil {
				h.log.WithError(err).Error("websocket: failed to marshal message")
				continue
			}

			h.mu.RLock()
			clients := h.clients[flightID]
			h.mu.RUnlock()

			for client := range clients {
				select {
				case client.send <- data:
				default:
					h.mu.Lock()
					delete(h.clients[flightID], client)
					close(client.send)
					h.mu.Unlock()
				}
			}
		}
	}
}

// NotifySeatsChanged implements service.SeatBroadcaster.
func (h *Hub) NotifySeatsChanged(flightID uuid.UUID, seats []service.SeatUpdate) {
	updates := make([]SeatUpdate, len(seats))
	for i, s := range seats {
		updates[i] = SeatUpdate{SeatID: s.SeatID.String(), Occupied: s.Occupied}
	}

	h.broadcast <- &Message{
		Type:      MessageTypeSeatsUpdated,
		FlightID:  flightID.String(),
		Seats:     updates,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ClientCount returns the number of clients watching a flight
func (h *Hub) ClientCount(flightID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[flightID])
}

// ServeWS upgrades an HTTP request to a WebSocket subscription for a
// flight's seat updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	flightID, err := uuid.Parse(mux.Vars(r)["flightId"])
	if err != nil {
		http.Error(w, "invalid flight id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("websocket: upgrade failed")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 64),
		flightID: flightID,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
