package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mindhaven/peerlink/internal/middleware"
	"github.com/mindhaven/peerlink/internal/models"
	"github.com/mindhaven/peerlink/internal/registry"
	"github.com/mindhaven/peerlink/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware.
		return true
	},
}

// Client is one live websocket connection. It implements registry.Peer:
// outbound events are marshaled once and queued on a buffered channel
// drained by the write pump, so Send never blocks a dispatching handler.
type Client struct {
	handle string
	conn   *websocket.Conn
	send   chan []byte
	log    zerolog.Logger
}

// Handle returns the connection's unique handle.
func (c *Client) Handle() string {
	return c.handle
}

// Send queues an event for delivery. Returns false if the buffer is
// full; the event is dropped rather than blocking the sender.
func (c *Client) Send(evt models.Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal event")
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn().Str("type", string(evt.Type)).Msg("send buffer full, dropping event")
		return false
	}
}

// Socket upgrades the connection and runs the signaling session. A valid
// token in the query pre-registers the identity; connections without one
// may declare it in-band.
func Socket(rel *relay.Relay, reg *registry.Registry, jwtSecret string, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "websocket").Logger()
	return func(c *gin.Context) {
		var identity string
		if token := c.Query("token"); token != "" {
			id, err := middleware.ParseIdentity(token, jwtSecret)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}
			identity = id
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("failed to upgrade connection")
			return
		}

		handle := uuid.New().String()
		client := &Client{
			handle: handle,
			conn:   conn,
			send:   make(chan []byte, 256),
			log:    log.With().Str("handle", handle).Logger(),
		}

		reg.Track(client)
		if identity != "" {
			reg.Register(identity, client)
		}
		client.log.Info().Str("identity", identity).Msg("connection opened")

		go client.writePump()
		go client.readPump(rel)
	}
}

// readPump processes inbound frames sequentially: one event's handler
// runs to completion before the next frame on this connection is read.
func (c *Client) readPump(rel *relay.Relay) {
	defer func() {
		rel.HandleDisconnect(c)
		c.conn.Close()
		c.log.Info().Msg("connection closed")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("websocket error")
			}
			break
		}
		rel.Dispatch(c, message)
	}
}

func (c *Client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("failed to write message")
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
