package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/basho/internal/metrics"
	"github.com/hyperjump/basho/internal/models"
)

// SubscribeHandler is told about every accepted subscribe frame. It owns replay.
type SubscribeHandler interface {
	OnSubscribe(conn Conn, requestID string)
}

// ConnOptions configures websocket connections.
type ConnOptions struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	SubscribeRate   float64
	SubscribeBurst  int
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 4096
	}
	if o.SubscribeRate <= 0 {
		o.SubscribeRate = 10
	}
	if o.SubscribeBurst <= 0 {
		o.SubscribeBurst = 20
	}
	return o
}

// WSConn is a websocket client with a bounded send queue drained by its own writer goroutine.
//
// When the queue is full a status frame evicts the oldest queued status frame (or is dropped
// if there is none), while any other frame terminates the connection. Publishers never block.
type WSConn struct {
	id     string
	ws     *websocket.Conn
	hub    *Hub
	opts   ConnOptions
	logger *zap.Logger

	mu     sync.Mutex
	queue  []models.StreamMessage
	closed bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, h *Hub, opts ConnOptions) *WSConn {
	return &WSConn{
		id:     uuid.New().String(),
		ws:     ws,
		hub:    h,
		opts:   opts,
		logger: h.logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (c *WSConn) ID() string { return c.id }

// IsOpen reports whether the connection accepts frames.
func (c *WSConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send queues msg without blocking.
func (c *WSConn) Send(msg models.StreamMessage) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if len(c.queue) < c.opts.SendBuffer {
		c.queue = append(c.queue, msg)
		c.mu.Unlock()
		c.wake()
		return nil
	}

	if msg.Type == models.MessageStatus {
		for i, q := range c.queue {
			if q.Type == models.MessageStatus {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				c.queue = append(c.queue, msg)
				c.mu.Unlock()
				metrics.CountFrame(q.Type, "dropped")
				c.wake()
				return nil
			}
		}
		c.mu.Unlock()
		metrics.CountFrame(msg.Type, "dropped")
		return nil
	}
	c.mu.Unlock()

	c.logger.Warn("closing slow websocket consumer", zap.String("conn_id", c.id), zap.String("type", msg.Type))
	_ = c.Close()
	return ErrSlowConsumer
}

func (c *WSConn) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Ping sends a websocket ping control frame.
func (c *WSConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
}

// Close stops the writer, closes the socket and removes the connection from the hub.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.mu.Unlock()
		close(c.done)
		err = c.ws.Close()
		c.hub.Remove(c)
	})
	return err
}

func (c *WSConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case <-c.notify:
		}

		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, msg := range batch {
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Debug("websocket write failed", zap.String("conn_id", c.id), zap.Error(err))
				_ = c.Close()
				return
			}
		}
	}
}

func (c *WSConn) readPump(handler SubscribeHandler) {
	defer c.Close()

	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	c.ws.SetPongHandler(func(string) error {
		c.hub.MarkAlive(c.id)
		return nil
	})
	limiter := rate.NewLimiter(rate.Limit(c.opts.SubscribeRate), c.opts.SubscribeBurst)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket client disconnected", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		// Any inbound frame proves the client is alive.
		c.hub.MarkAlive(c.id)

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.Send(errorFrame("", models.ErrorCodeBadFrame, "invalid JSON frame"))
			continue
		}
		if !limiter.Allow() {
			_ = c.Send(errorFrame(msg.RequestID, models.ErrorCodeRateLimit, "too many messages"))
			continue
		}

		switch msg.Type {
		case models.ClientSubscribe:
			if msg.RequestID == "" {
				_ = c.Send(errorFrame("", models.ErrorCodeBadFrame, "requestId is required"))
				continue
			}
			handler.OnSubscribe(c, msg.RequestID)
		case models.ClientUnsubscribe:
			c.hub.Unsubscribe(msg.RequestID, c)
		case models.ClientPing:
		default:
			_ = c.Send(errorFrame(msg.RequestID, models.ErrorCodeBadFrame, "unknown message type "+msg.Type))
		}
	}
}

func errorFrame(requestID, code, message string) models.StreamMessage {
	return models.StreamMessage{
		Type:      models.MessageError,
		RequestID: requestID,
		Error:     &models.StreamError{Code: code, Message: message},
	}
}

// Upgrader returns a websocket upgrader that applies the hub's origin policy.
func (h *Hub) Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin:     h.CheckOrigin,
		ReadBufferSize:  4096,
		WriteBufferSize: 16 * 1024,
	}
}

// ServeWS upgrades the request, registers the connection and serves it until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, handler SubscribeHandler, opts ConnOptions) {
	ws, err := h.Upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newWSConn(ws, h, opts.withDefaults())
	if err := h.Register(c); err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}
	h.logger.Debug("websocket client connected", zap.String("conn_id", c.id))

	go c.writePump()
	c.readPump(handler)
}
