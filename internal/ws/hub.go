package ws

import (
	"context"
	"log"
	"sync"
	"time"
)

// Event names pushed to observers. Every event is broadcast globally and
// carries the machine code in its payload; observers filter client-side.
const (
	EventConnected         = "connected"
	EventTemperatureUpdate = "temperature-update"
	EventStatusUpdate      = "status-update"
	EventHeartbeat         = "heartbeat"
	EventPing              = "ping"
	EventPong              = "pong"
)

// Message is one websocket frame: a named event plus its payload.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// TemperatureEvent is the payload of a temperature-update event.
type TemperatureEvent struct {
	MachineCode     string   `json:"machineCode"`
	MachineName     string   `json:"machineName"`
	MachineLocation string   `json:"machineLocation"`
	Temperature     float64  `json:"temperature"`
	Humidity        *float64 `json:"humidity"`
	Timestamp       string   `json:"timestamp"`
}

// StatusEvent is the payload of a status-update event.
type StatusEvent struct {
	MachineCode string `json:"machineCode"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}

// HeartbeatEvent is the payload of a heartbeat event.
type HeartbeatEvent struct {
	MachineCode string `json:"machineCode"`
	Timestamp   string `json:"timestamp"`
}

// Hub fans every event out to all connected observers. Delivery is
// best-effort: there is no queueing for observers that connect later, and a
// client whose send buffer is full gets dropped.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run processes client lifecycle and broadcast events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("websocket client %s connected (%d total)", client.id, h.ClientCount())
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.shutdown()
			}
			h.mu.Unlock()
			log.Printf("websocket client %s disconnected (%d total)", client.id, h.ClientCount())
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.trySend(msg) {
			// Slow or dead observer: drop it rather than block the pipeline.
			client.shutdown()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.shutdown()
		delete(h.clients, client)
	}
	log.Println("closed all websocket clients")
}

// Broadcast queues an event for delivery to all connected observers.
func (h *Hub) Broadcast(event string, data any) {
	msg := Message{Event: event, Data: data}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("broadcast channel full, dropping %s event", event)
	}
}

// SendTemperatureUpdate pushes a live temperature reading to all observers.
func (h *Hub) SendTemperatureUpdate(data TemperatureEvent) {
	data.Timestamp = time.Now().UTC().Format(time.RFC3339)
	h.Broadcast(EventTemperatureUpdate, data)
}

// SendStatusUpdate pushes a machine status change to all observers.
func (h *Hub) SendStatusUpdate(machineCode, status string) {
	h.Broadcast(EventStatusUpdate, StatusEvent{
		MachineCode: machineCode,
		Status:      status,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// SendHeartbeat pushes a machine heartbeat to all observers.
func (h *Hub) SendHeartbeat(machineCode string) {
	h.Broadcast(EventHeartbeat, HeartbeatEvent{
		MachineCode: machineCode,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
