package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scheerer/crystal-lights/internal/color"
	"github.com/scheerer/crystal-lights/internal/util"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 16
)

// ColorFrame is pushed to every websocket client for each displayed color.
type ColorFrame struct {
	Type string  `json:"type"`
	R    float64 `json:"r"`
	G    float64 `json:"g"`
	B    float64 `json:"b"`
	A    float64 `json:"a"`
	Hex  string  `json:"hex"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func newColorFrame(c color.Color) ColorFrame {
	return ColorFrame{Type: "color", R: c.R, G: c.G, B: c.B, A: c.A, Hex: c.Hex()}
}

// Hub fans displayed colors out to the connected websocket clients. A client
// that cannot keep up misses frames rather than slowing the animation.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	last    []byte
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Show implements the session display.
func (h *Hub) Show(c color.Color) {
	frame, err := json.Marshal(newColorFrame(c))
	if err != nil {
		logger.With(zap.Error(err)).Error("Failed to encode color frame")
		return
	}

	h.mu.Lock()
	h.last = frame
	h.mu.Unlock()

	h.broadcast(frame)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.push(frame)
	}
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{
		id:   util.RandomString(12),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	if h.last != nil {
		c.push(h.last)
	}
	h.mu.Unlock()
	return c
}

func (h *Hub) sendTo(c *client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; ok {
		c.push(frame)
	}
}

// remove unregisters c and returns how many clients are left.
func (h *Hub) remove(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	return len(h.clients)
}

// push must be called with the hub lock held.
func (c *client) push(frame []byte) {
	select {
	case c.send <- frame:
	default:
		logger.With(zap.String("client", c.id)).Debug("Client too slow, dropping frame")
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.With(zap.String("client", c.id), zap.Error(err)).Debug("Websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
