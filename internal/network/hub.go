// Package network exposes the descent engine over WebSocket and HTTP.
package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MRamiBalles/CaidaLibre/internal/engine"
	"github.com/MRamiBalles/CaidaLibre/internal/events"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/logger"
	"github.com/MRamiBalles/CaidaLibre/internal/platform/metrics"
)

// Message kinds sent to clients.
const (
	MsgTypeEvent = "EVENT" // a low-frequency bus event
	MsgTypeState = "STATE" // periodic telemetry frame
	MsgTypeAck   = "ACK"   // an action was accepted
	MsgTypeError = "ERROR" // an action was rejected
)

// Message is the envelope of everything the server pushes.
type Message struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// HubOptions sizes the hub.
type HubOptions struct {
	StateEvery           int // ticks between state frames
	BroadcastBuffer      int
	ClientSendBuffer     int
	MaxMessagesPerSecond int // per client, 0 disables the limit
	MaxClients           int // 0 means unlimited
	Metrics              *metrics.Collector
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	engine  *engine.Engine
	pilot   *engine.ManualPilot
	opts    HubOptions
	logger  *logger.Logger
	metrics *metrics.Collector

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex

	steps int // ticker goroutine only
}

// NewHub initializes a hub for eng. pilot receives the held-key actions and
// may be nil when the engine is flown by something else.
func NewHub(eng *engine.Engine, pilot *engine.ManualPilot, opts HubOptions, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	if opts.StateEvery <= 0 {
		opts.StateEvery = 1
	}
	if opts.BroadcastBuffer <= 0 {
		opts.BroadcastBuffer = 256
	}
	if opts.ClientSendBuffer <= 0 {
		opts.ClientSendBuffer = 64
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	return &Hub{
		engine:     eng,
		pilot:      pilot,
		opts:       opts,
		logger:     log,
		metrics:    opts.Metrics,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, opts.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.opts.MaxClients > 0 && len(h.clients) >= h.opts.MaxClients {
				h.mu.Unlock()
				close(client.send)
				client.admitted <- false
				h.logger.Warnf("Rejected WebSocket client: %d connected", h.opts.MaxClients)
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()
			client.admitted <- true
			h.metrics.RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Broadcast queues msg for every client. It never blocks: when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	if h.stopped() {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("Failed to serialize %s message for WebSocket broadcast: %v", msg.Type, err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.RecordWSError()
	}
}

// BroadcastEvent takes a GameEvent and sends it to all connected clients.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	h.Broadcast(Message{Type: MsgTypeEvent, Timestamp: event.Timestamp.Unix(), Payload: event})
}

// sendTo queues msg for one client if it is still registered.
func (h *Hub) sendTo(c *Client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.metrics.RecordWSError()
	}
}

// Attach forwards the engine's low-frequency events and a state frame every
// StateEvery ticks. Per-tick notifications stay off the wire; the state
// frame carries the same values.
func (h *Hub) Attach() (detach func()) {
	off := h.engine.Bus().SubscribeAll(func(e events.GameEvent) {
		if e.Type.IsHighFrequency() {
			return
		}
		h.BroadcastEvent(e)
	})
	h.engine.Ticker().OnStep(h.onStep)
	return off
}

func (h *Hub) onStep(s engine.State) {
	h.steps++
	if h.steps%h.opts.StateEvery != 0 {
		return
	}
	h.Broadcast(Message{Type: MsgTypeState, Timestamp: time.Now().Unix(), Payload: s})
}
