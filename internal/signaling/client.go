package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ClientOptions tunes a connection's buffers and keep-alive.
type ClientOptions struct {
	// SendQueue is the capacity of the outbound queue. A full queue drops
	// messages instead of blocking the sender.
	SendQueue int

	// MaxMessageSize is the largest inbound frame accepted.
	MaxMessageSize int64

	// PongWait is how long the peer may stay silent. Pings are sent every
	// 9/10 of it.
	PongWait time.Duration

	// WriteWait bounds a single write.
	WriteWait time.Duration
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendQueue:      256,
		MaxMessageSize: 64 * 1024, // enough for WebRTC SDP messages
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

// Client is a wrapper for a single websocket connection (a peer).
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	opts ClientOptions

	mu     sync.Mutex
	send   chan *Message
	closed bool
}

// NewClient wraps conn and assigns it a fresh connection id.
func NewClient(hub *Hub, conn *websocket.Conn, opts ClientOptions) *Client {
	def := DefaultClientOptions()
	if opts.SendQueue <= 0 {
		opts.SendQueue = def.SendQueue
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		opts: opts,
		send: make(chan *Message, opts.SendQueue),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues msg without blocking.
func (c *Client) Send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the write pump once the queued messages are flushed. The
// websocket is then closed, which ends the read pump.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("Unexpected websocket close")
			}
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			log.Warn().Err(err).Str("conn_id", c.id).Msg("Unable to parse message, requires json")
			continue
		}
		c.hub.Handle(c, msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := msg.Encode()
			if err != nil {
				log.Error().Err(err).Str("conn_id", c.id).Str("type", msg.Type).Msg("Unable to encode message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("Error writing message")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
