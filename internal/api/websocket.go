package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moex-panic-scanner/internal/detector"
	"moex-panic-scanner/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSClient represents one WebSocket subscriber.
type WSClient struct {
	conn        *websocket.Conn
	send        chan []byte
	hub         *WSHub
	instruments map[string]struct{} // empty means all
	closeChan   chan struct{}
}

func (c *WSClient) wants(instrument string) bool {
	if len(c.instruments) == 0 {
		return true
	}
	_, ok := c.instruments[instrument]
	return ok
}

type wsMessage struct {
	instrument string
	payload    []byte
}

// WSHub fans critical signals out to connected clients.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan wsMessage
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
	loc        *time.Location
	log        zerolog.Logger
}

func NewWSHub(loc *time.Location) *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan wsMessage, 4096),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		loc:        loc,
		log:        log.With().Str("component", "ws_hub").Logger(),
	}
}

// Run drives the hub loop.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message.instrument) {
					continue
				}
				select {
				case client.send <- message.payload:
				default:
					// Client fell behind, drop it.
					go func(c *WSClient) {
						h.unregister <- c
					}(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// handleSignalEvent pushes critical signals to the stream. Lower levels stay
// on the history endpoints.
func (h *WSHub) handleSignalEvent(event events.Event) {
	sig, ok := event.Data["signal"].(*detector.PanicSignal)
	if !ok || sig.FinalLevel != detector.LevelRed {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":   "SIGNAL",
		"signal": toWireSignal(sig, h.loc),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("signal marshal failed")
		return
	}

	select {
	case h.broadcast <- wsMessage{instrument: sig.Instrument, payload: payload}:
	default:
		h.log.Warn().Msg("broadcast channel full, dropping signal")
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// handleSignalStream upgrades the connection and registers the client.
// An optional instruments query parameter narrows the stream.
func (s *Server) handleSignalStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	var filter map[string]struct{}
	if raw := c.Query("instruments"); raw != "" {
		filter = make(map[string]struct{})
		for _, ticker := range strings.Split(raw, ",") {
			ticker = strings.ToUpper(strings.TrimSpace(ticker))
			if ticker != "" {
				filter[ticker] = struct{}{}
			}
		}
	}

	client := &WSClient{
		conn:        conn,
		send:        make(chan []byte, 256),
		hub:         s.hub,
		instruments: filter,
		closeChan:   make(chan struct{}),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	welcome, _ := json.Marshal(gin.H{
		"type":      "CONNECTED",
		"timestamp": time.Now().In(s.hub.loc).Format(time.RFC3339),
	})
	select {
	case client.send <- welcome:
	default:
	}
}
