package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	ID   string
	Send chan []byte
}

// Hub fans dispatch and reset events out to every connected display or
// counter screen. Delivery is best-effort: a slow client loses messages
// rather than blocking the rest.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type envelope struct {
	EventID   string      `json:"event_id"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// Emit broadcasts an event to all clients. It never blocks and never fails;
// marshalling problems are logged and dropped.
func (h *Hub) Emit(event string, payload interface{}) {
	message, err := json.Marshal(envelope{
		EventID:   uuid.NewString(),
		Event:     event,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("hub: marshal %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- message:
		default:
			log.Printf("hub: drop %s for client %s", event, client.ID)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
