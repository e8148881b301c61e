package hub

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEmitDeliversToAllClients(t *testing.T) {
	h := New()
	first := &Client{ID: "c1", Send: make(chan []byte, 4)}
	second := &Client{ID: "c2", Send: make(chan []byte, 4)}
	h.Register(first)
	h.Register(second)

	h.Emit("ticket.called", map[string]string{"ticket_number": "A003"})

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.Send:
			var env struct {
				EventID   string          `json:"event_id"`
				Event     string          `json:"event"`
				Payload   json.RawMessage `json:"payload"`
				CreatedAt time.Time       `json:"created_at"`
			}
			if err := json.Unmarshal(msg, &env); err != nil {
				t.Fatalf("unmarshal envelope: %v", err)
			}
			if env.Event != "ticket.called" {
				t.Fatalf("expected ticket.called, got %s", env.Event)
			}
			if env.EventID == "" || env.CreatedAt.IsZero() {
				t.Fatalf("incomplete envelope: %+v", env)
			}
		default:
			t.Fatalf("client %s received no message", client.ID)
		}
	}
}

func TestEmitDropsWhenClientFull(t *testing.T) {
	h := New()
	client := &Client{ID: "c1", Send: make(chan []byte, 1)}
	h.Register(client)

	h.Emit("ticket.created", nil)
	h.Emit("ticket.created", nil)

	if got := len(client.Send); got != 1 {
		t.Fatalf("expected one buffered message, got %d", got)
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := New()
	client := &Client{ID: "c1", Send: make(chan []byte, 1)}
	h.Register(client)

	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", h.ClientCount())
	}

	h.Unregister(client)

	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", h.ClientCount())
	}
	if _, open := <-client.Send; open {
		t.Fatal("expected send channel to be closed")
	}

	// Second unregister is a no-op, not a double close.
	h.Unregister(client)
}

func TestEmitAfterUnregisterDoesNotPanic(t *testing.T) {
	h := New()
	client := &Client{ID: "c1", Send: make(chan []byte, 1)}
	h.Register(client)
	h.Unregister(client)

	h.Emit("ticket.dailyReset", map[string]string{"date": "2026-03-02"})
}
