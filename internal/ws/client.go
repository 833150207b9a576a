package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pliu/palaver/internal/chat"
	"github.com/pliu/palaver/internal/models"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Outbound buffer per connection. A client that can't keep up gets
	// dropped rather than stalling delivery.
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one WebSocket connection bound to a session. It registers a
// delivery callback when it connects and unregisters it when it goes away;
// callbacks are in-memory only, so a reconnect registers a fresh one.
type Client struct {
	manager   *chat.Manager
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	username  string
	callback  uuid.UUID
	log       zerolog.Logger
}

// ServeWS upgrades the connection and wires the client to the chat manager.
// The session id comes from the query string or the X-Session-ID header and
// must be live.
func ServeWS(manager *chat.Manager, log zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}
	if !manager.ValidateSession(sessionID) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	username, _ := manager.SessionOwner(sessionID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		manager:   manager,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
		username:  username,
		log:       log.With().Str("component", "ws").Str("username", username).Logger(),
	}

	cbID, ok := manager.RegisterCallback(sessionID, client.receive)
	if !ok {
		// Session died between validation and registration; expected race.
		conn.Close()
		return
	}
	client.callback = cbID

	go client.writePump()
	go client.readPump()
}

// receive is the delivery callback: it queues the message for the write
// pump, dropping it if the client is too slow.
func (c *Client) receive(msg models.Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Str("message_id", msg.ID).Msg("encoding message")
		return
	}
	select {
	case c.send <- b:
	default:
		c.log.Warn().Str("message_id", msg.ID).Msg("slow consumer, dropping message")
	}
}

// inbound is what clients send over the socket.
type inbound struct {
	Content   string `json:"content"`
	Recipient string `json:"recipient,omitempty"`
}

func (c *Client) readPump() {
	defer func() {
		c.manager.UnregisterCallback(c.sessionID, c.callback)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Content == "" {
			continue
		}

		msg := models.NewMessage(in.Content, c.username, in.Recipient)
		if ok, err := c.manager.Send(msg, c.sessionID); err != nil {
			c.log.Error().Err(err).Msg("sending message")
		} else if !ok {
			// Session expired mid-connection; the client must log in again.
			return
		}
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
		case b, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
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
