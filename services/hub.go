package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Hub fans outbound game events to subscribed websocket clients. It is the
// in-process Emitter implementation; events are additionally published to a
// per-game redis channel so subscribers on other processes can pick them up.
// Both paths are best-effort.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	redis      *redis.Client
	log        zerolog.Logger
}

type Client struct {
	hub  *Hub
	id   string
	conn *websocket.Conn
	send chan []byte
	code string
}

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func NewHub(rdb *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		redis:      rdb,
		log:        log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.log.Debug().Str("client", client.id).Str("code", client.code).
				Msg("client subscribed")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			h.log.Debug().Str("client", client.id).Str("code", client.code).
				Msg("client unsubscribed")
		}
	}
}

// Emit implements the Emitter interface the game service broadcasts through.
func (h *Hub) Emit(code, event string, payload any) {
	data, err := json.Marshal(Message{Type: event, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return
	}

	h.mutex.Lock()
	for client := range h.clients {
		if !strings.EqualFold(client.code, code) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer: drop it rather than block the broadcast.
			close(client.send)
			delete(h.clients, client)
		}
	}
	h.mutex.Unlock()

	if h.redis != nil {
		if err := h.redis.Publish(context.Background(), "game:"+code, data).Err(); err != nil {
			h.log.Warn().Err(err).Str("code", code).Str("event", event).
				Msg("redis publish failed")
		}
	}
}

func (h *Hub) Subscribe(conn *websocket.Conn, code string) *Client {
	id, err := gonanoid.New(12)
	if err != nil {
		id = "client"
	}
	client := &Client{
		hub:  h,
		id:   id,
		conn: conn,
		send: make(chan []byte, 256),
		code: code,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

// readPump drains the connection. Clients do not push game actions over the
// socket; the only inbound message handled is a ping.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("client", c.id).Msg("websocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			data, _ := json.Marshal(Message{Type: "pong", Payload: "pong"})
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
