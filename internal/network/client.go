package network

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/CaidaLibre/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Pilot actions. The *_ON/*_OFF pairs mirror a held key; everything else
// becomes an engine command.
const (
	ActionInflateOn    = "INFLATE_ON"
	ActionInflateOff   = "INFLATE_OFF"
	ActionDeflateOn    = "DEFLATE_ON"
	ActionDeflateOff   = "DEFLATE_OFF"
	ActionRelease      = "RELEASE"
	ActionObstacle     = "OBSTACLE"
	ActionPop          = "POP"           // Value: fraction
	ActionCheckLanding = "CHECK_LANDING" // Value: impact velocity
	ActionStart        = "START"
	ActionStop         = "STOP"
	ActionReset        = "RESET"
)

// PilotAction represents an incoming command from the frontend.
type PilotAction struct {
	Type  string  `json:"type"`
	Value float64 `json:"value,omitempty"`
}

// Client is one WebSocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	admitted chan bool

	windowStart time.Time
	windowCount int
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.opts.ClientSendBuffer),
		admitted: make(chan bool, 1),
	}
}

// Register adds the client to the hub and reports whether it was admitted.
// A rejected client must not start its pumps.
func (c *Client) Register() bool {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
		return false
	}
	select {
	case ok := <-c.admitted:
		return ok
	case <-c.hub.done:
		return false
	}
}

// ReadPump pumps messages from the websocket connection to the engine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
				c.hub.logger.Errorf("WebSocket read: %v", err)
				c.hub.metrics.RecordWSError()
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var action PilotAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.hub.logger.Warnf("Failed to parse PilotAction from WebSocket: %v", err)
			c.reject("", "malformed action")
			continue
		}

		c.handlePilotAction(action, time.Now())
	}
}

// allow is a fixed one-second window limiter.
func (c *Client) allow(now time.Time) bool {
	limit := c.hub.opts.MaxMessagesPerSecond
	if limit <= 0 {
		return true
	}
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	return c.windowCount <= limit
}

func (c *Client) handlePilotAction(action PilotAction, now time.Time) {
	if !c.allow(now) {
		c.hub.logger.Warnf("Rate limit exceeded for client action %s", action.Type)
		c.reject(action.Type, "rate limit exceeded")
		return
	}

	switch action.Type {
	case ActionInflateOn, ActionInflateOff, ActionDeflateOn, ActionDeflateOff, ActionRelease:
		if err := c.handleHeldKey(action.Type); err != nil {
			c.reject(action.Type, err.Error())
			return
		}
	default:
		cmd, ok := commandFor(action)
		if !ok {
			c.hub.logger.Warn("Unknown PilotAction type: " + action.Type)
			c.reject(action.Type, "unknown action")
			return
		}
		if err := cmd.Validate(); err != nil {
			c.reject(action.Type, err.Error())
			return
		}
		if !c.hub.engine.Submit(cmd) {
			c.reject(action.Type, "command queue full")
			return
		}
	}
	c.hub.sendTo(c, Message{Type: MsgTypeAck, Timestamp: now.Unix(), Payload: action})
}

func (c *Client) handleHeldKey(kind string) error {
	p := c.hub.pilot
	if p == nil {
		return fmt.Errorf("manual control is disabled")
	}
	switch kind {
	case ActionInflateOn:
		p.SetInflate(true)
	case ActionInflateOff:
		p.SetInflate(false)
	case ActionDeflateOn:
		p.SetDeflate(true)
	case ActionDeflateOff:
		p.SetDeflate(false)
	case ActionRelease:
		p.Release()
	}
	return nil
}

func commandFor(action PilotAction) (engine.Command, bool) {
	switch action.Type {
	case ActionPop:
		return engine.Command{Type: engine.CommandPop, Value: action.Value}, true
	case ActionObstacle:
		return engine.Command{Type: engine.CommandObstacle}, true
	case ActionCheckLanding:
		return engine.Command{Type: engine.CommandCheckLanding, Value: action.Value}, true
	case ActionStart:
		return engine.Command{Type: engine.CommandStart}, true
	case ActionStop:
		return engine.Command{Type: engine.CommandStop}, true
	case ActionReset:
		return engine.Command{Type: engine.CommandReset}, true
	}
	return engine.Command{}, false
}

func (c *Client) reject(actionType, reason string) {
	c.hub.sendTo(c, Message{
		Type:      MsgTypeError,
		Timestamp: time.Now().Unix(),
		Payload:   map[string]string{"action": actionType, "error": reason},
	})
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
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
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.hub.metrics.RecordWSError()
				return
			}
			w.Write(message)
			c.hub.metrics.RecordWSMessage(false)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
				c.hub.metrics.RecordWSMessage(false)
			}

			if err := w.Close(); err != nil {
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

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// ServeWs upgrades the request and attaches a client to hub.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Errorf("WebSocket upgrade failed: %v", err)
			hub.metrics.RecordWSError()
			return
		}
		client := NewClient(hub, conn)
		if !client.Register() {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
