// Package hub fans streaming messages out to the connections subscribed to a request.
package hub

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/metrics"
	"github.com/hyperjump/basho/internal/models"
)

var (
	// ErrClosed is returned when sending to a closed connection or subscribing on a shut down hub.
	ErrClosed = errors.New("connection closed")
	// ErrSlowConsumer is returned when a content frame does not fit in a connection's send queue.
	ErrSlowConsumer = errors.New("slow consumer: send queue full")
)

// Conn is one streaming client connection.
type Conn interface {
	ID() string
	// Send queues msg without blocking.
	Send(msg models.StreamMessage) error
	Ping() error
	Close() error
	IsOpen() bool
}

// Publisher delivers a message to every subscriber of a request.
type Publisher interface {
	Publish(requestID string, msg models.StreamMessage) int
}

// Options configures a Hub.
type Options struct {
	AllowedOrigins []string
	Production     bool
	Logger         *zap.Logger
}

type entry struct {
	conn  Conn
	alive bool
}

// Hub tracks subscriptions with a forward map (request to connections) and a reverse map
// (connection to requests) so a disconnect is cleaned up immediately. All map access happens
// under mu; sends happen outside it.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[string]Conn
	reverse map[string]map[string]struct{}
	conns   map[string]*entry
	closed  bool

	origins    map[string]bool
	anyOrigin  bool
	production bool
	logger     *zap.Logger
}

// New creates a Hub.
func New(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		subs:       make(map[string]map[string]Conn),
		reverse:    make(map[string]map[string]struct{}),
		conns:      make(map[string]*entry),
		origins:    make(map[string]bool),
		production: opts.Production,
		logger:     logger,
	}
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		switch o {
		case "":
		case "*":
			h.anyOrigin = true
		default:
			h.origins[o] = true
		}
	}
	return h
}

// CheckOrigin reports whether a connection from r may be upgraded. In production an empty
// allowlist rejects everything. Outside production an empty allowlist accepts everything.
func (h *Hub) CheckOrigin(r *http.Request) bool {
	if h.anyOrigin {
		return true
	}
	if len(h.origins) == 0 {
		if h.production {
			h.logger.Warn("rejected websocket: no allowed origins configured in production")
			return false
		}
		return true
	}
	origin := strings.TrimRight(strings.ToLower(r.Header.Get("Origin")), "/")
	if origin == "" {
		// Non-browser clients do not send an Origin header.
		return !h.production
	}
	if !h.origins[origin] {
		h.logger.Warn("rejected websocket origin", zap.String("origin", origin))
		return false
	}
	return true
}

// Register starts tracking conn for heartbeats.
func (h *Hub) Register(conn Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registerLocked(conn)
}

func (h *Hub) registerLocked(conn Conn) error {
	if h.closed {
		return ErrClosed
	}
	if !conn.IsOpen() {
		return ErrClosed
	}
	if _, ok := h.conns[conn.ID()]; !ok {
		h.conns[conn.ID()] = &entry{conn: conn, alive: true}
		metrics.ConnectionOpened()
	}
	return nil
}

// Subscribe adds conn to the subscribers of requestID, registering it if needed.
func (h *Hub) Subscribe(requestID string, conn Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.registerLocked(conn); err != nil {
		return err
	}
	id := conn.ID()
	set, ok := h.subs[requestID]
	if !ok {
		set = make(map[string]Conn)
		h.subs[requestID] = set
	}
	set[id] = conn

	reqs, ok := h.reverse[id]
	if !ok {
		reqs = make(map[string]struct{})
		h.reverse[id] = reqs
	}
	reqs[requestID] = struct{}{}
	return nil
}

// Unsubscribe removes conn from the subscribers of requestID.
func (h *Hub) Unsubscribe(requestID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(requestID, conn.ID())
}

func (h *Hub) unsubscribeLocked(requestID, connID string) {
	if set, ok := h.subs[requestID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.subs, requestID)
		}
	}
	if reqs, ok := h.reverse[connID]; ok {
		delete(reqs, requestID)
		if len(reqs) == 0 {
			delete(h.reverse, connID)
		}
	}
}

// Remove drops every trace of conn from the hub. It does not close conn.
func (h *Hub) Remove(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn.ID())
}

func (h *Hub) removeLocked(connID string) {
	for requestID := range h.reverse[connID] {
		h.unsubscribeLocked(requestID, connID)
	}
	delete(h.reverse, connID)
	if _, ok := h.conns[connID]; ok {
		delete(h.conns, connID)
		metrics.ConnectionClosed()
	}
}

// MarkAlive records a heartbeat answer from the connection.
func (h *Hub) MarkAlive(connID string) {
	h.mu.Lock()
	if e, ok := h.conns[connID]; ok {
		e.alive = true
	}
	h.mu.Unlock()
}

// Publish sends msg to every open subscriber of requestID and returns how many accepted it.
// A connection whose Send fails is closed and removed.
func (h *Hub) Publish(requestID string, msg models.StreamMessage) int {
	h.mu.Lock()
	targets := make([]Conn, 0, len(h.subs[requestID]))
	for _, c := range h.subs[requestID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	if msg.RequestID == "" {
		msg.RequestID = requestID
	}
	delivered := 0
	for _, c := range targets {
		if !c.IsOpen() {
			continue
		}
		if err := c.Send(msg); err != nil {
			h.logger.Debug("dropping subscriber after failed send",
				zap.String("conn_id", c.ID()), zap.String("request_id", requestID), zap.Error(err))
			metrics.CountFrame(msg.Type, "terminated")
			h.terminate(c)
			continue
		}
		metrics.CountFrame(msg.Type, "sent")
		delivered++
	}
	return delivered
}

func (h *Hub) terminate(c Conn) {
	_ = c.Close()
	h.Remove(c)
}

// Heartbeat terminates connections that did not answer the previous ping and pings the rest.
func (h *Hub) Heartbeat() {
	var dead, ping []Conn
	h.mu.Lock()
	for _, e := range h.conns {
		if !e.alive || !e.conn.IsOpen() {
			dead = append(dead, e.conn)
			continue
		}
		e.alive = false
		ping = append(ping, e.conn)
	}
	h.mu.Unlock()

	for _, c := range dead {
		h.logger.Debug("terminating unresponsive connection", zap.String("conn_id", c.ID()))
		h.terminate(c)
	}
	for _, c := range ping {
		if err := c.Ping(); err != nil {
			h.terminate(c)
		}
	}
}

// Run ticks Heartbeat every interval until ctx is done, then shuts the hub down.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	defer h.Shutdown()
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Heartbeat()
		}
	}
}

// Shutdown closes every connection and clears all maps. Later subscriptions fail with ErrClosed.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]Conn, 0, len(h.conns))
	for _, e := range h.conns {
		conns = append(conns, e.conn)
	}
	for id := range h.conns {
		h.removeLocked(id)
	}
	h.subs = make(map[string]map[string]Conn)
	h.reverse = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Stats is a snapshot of the hub's bookkeeping.
type Stats struct {
	Connections   int
	Requests      int
	Subscriptions int
	// ReverseEntries is the number of connections with at least one subscription.
	ReverseEntries int
}

// Stats returns current map sizes.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Stats{Connections: len(h.conns), Requests: len(h.subs), ReverseEntries: len(h.reverse)}
	for _, set := range h.subs {
		s.Subscriptions += len(set)
	}
	return s
}

// LocalBroker is the single-process Publisher. A cross-process broker would implement
// Publisher by forwarding to a message bus and fanning in to each process's hub.
type LocalBroker struct {
	hub *Hub
}

// NewLocalBroker creates a Publisher that delivers through h.
func NewLocalBroker(h *Hub) *LocalBroker {
	return &LocalBroker{hub: h}
}

// Publish delivers msg through the local hub.
func (b *LocalBroker) Publish(requestID string, msg models.StreamMessage) int {
	return b.hub.Publish(requestID, msg)
}

// Subscribe subscribes conn on the local hub.
func (b *LocalBroker) Subscribe(requestID string, conn Conn) error {
	return b.hub.Subscribe(requestID, conn)
}

// Unsubscribe unsubscribes conn on the local hub.
func (b *LocalBroker) Unsubscribe(requestID string, conn Conn) {
	b.hub.Unsubscribe(requestID, conn)
}
