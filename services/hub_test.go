package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(h *Hub, code string) *Client {
	c := &Client{
		hub:  h,
		id:   "test-" + code,
		send: make(chan []byte, 8),
		code: code,
	}
	h.register <- c
	waitRegistered(h, c)
	return c
}

// waitRegistered blocks until the hub's run loop has inserted the client, so
// a broadcast fired right after registration cannot miss it.
func waitRegistered(h *Hub, c *Client) {
	for i := 0; i < 1000; i++ {
		h.mutex.RLock()
		ok := h.clients[c]
		h.mutex.RUnlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func recvMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return Message{}
	}
}

func TestHubEmitReachesOnlyGameSubscribers(t *testing.T) {
	h := NewHub(nil, zerolog.Nop())
	go h.Run()

	abcd := newTestClient(h, "ABCD")
	other := newTestClient(h, "ZZZZ")

	h.Emit("ABCD", "round_ended", map[string]any{"round_number": 2})

	msg := recvMessage(t, abcd)
	if msg.Type != "round_ended" {
		t.Fatalf("type = %q, want round_ended", msg.Type)
	}

	select {
	case data := <-other.send:
		t.Fatalf("client in another game received %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubEmitMatchesCodeCaseInsensitively(t *testing.T) {
	h := NewHub(nil, zerolog.Nop())
	go h.Run()

	c := newTestClient(h, "abcd")
	h.Emit("ABCD", "player_joined", map[string]any{"name": "Bo"})

	msg := recvMessage(t, c)
	if msg.Type != "player_joined" {
		t.Fatalf("type = %q, want player_joined", msg.Type)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok || payload["name"] != "Bo" {
		t.Fatalf("payload = %v, want name Bo", msg.Payload)
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	h := NewHub(nil, zerolog.Nop())
	go h.Run()

	c := &Client{hub: h, id: "slow", send: make(chan []byte), code: "ABCD"}
	h.register <- c
	waitRegistered(h, c)

	// An unbuffered, unread channel cannot accept the broadcast; the hub must
	// drop the client instead of blocking.
	done := make(chan struct{})
	go func() {
		h.Emit("ABCD", "question_started", map[string]any{"index": 0})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow consumer")
	}

	h.mutex.RLock()
	_, stillThere := h.clients[c]
	h.mutex.RUnlock()
	if stillThere {
		t.Fatal("slow consumer should have been dropped")
	}
}
