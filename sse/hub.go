package sse

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/mediascribe/logger"
)

// ErrHubStopped is returned when registering with a stopped hub.
var ErrHubStopped = fmt.Errorf("sse: hub stopped")

const clientBuffer = 64

// ClientID returns a fresh client ID watching jobID.
func ClientID(jobID string) string {
	return "job:" + jobID + ":" + uuid.NewString()
}

// TopicPattern matches every client watching jobID.
func TopicPattern(jobID string) string {
	return "job:" + jobID + ":*"
}

// Client is one connected stream.
type Client struct {
	id     string
	events chan []byte
	log    *logger.Logger
}

// NewClient creates a client with a buffered event channel.
func NewClient(id string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{id: id, events: make(chan []byte, clientBuffer), log: log}
}

func (c *Client) ID() string { return c.id }

// Events returns the channel of payloads; it is closed when the client is
// unregistered or the hub stops.
func (c *Client) Events() <-chan []byte { return c.events }

// Send queues data without blocking. It returns false when the client is
// too slow and the payload was dropped.
func (c *Client) Send(data []byte) bool {
	select {
	case c.events <- data:
		return true
	default:
		c.log.Warn("client channel full, dropping event", logger.Fields("client_id", c.id))
		return false
	}
}

func (c *Client) close() { close(c.events) }

type message struct {
	pattern string
	data    []byte
}

// Hub owns the set of connected clients. All mutation happens on the Run
// goroutine.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewHub creates a hub. Call Run to start routing.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
		log:        log.WithComponent("sse"),
	}
}

// Run routes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", logger.Fields("client_id", c.id, "clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				c.close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", logger.Fields("client_id", c.id, "clients", n))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop closes every client and makes Run return. Safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
}

// Register adds c to the hub. It fails when the hub has stopped or ctx
// ends first.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes c. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastToPattern queues data for every client whose ID matches the
// glob pattern. Payloads are dropped once the hub has stopped.
func (h *Hub) BroadcastToPattern(pattern string, data []byte) {
	select {
	case h.broadcast <- message{pattern: pattern, data: data}:
	case <-h.done:
	}
}

func (h *Hub) deliver(msg message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	matched := 0
	for id, c := range h.clients {
		ok, err := filepath.Match(msg.pattern, id)
		if err != nil {
			h.log.Error("bad broadcast pattern", logger.Fields("pattern", msg.pattern, logger.FieldError, err.Error()))
			return
		}
		if ok && c.Send(msg.data) {
			matched++
		}
	}
	if matched > 0 {
		h.log.Debug("event broadcast", logger.Fields("pattern", msg.pattern, "clients", matched, logger.FieldBytes, len(msg.data)))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
