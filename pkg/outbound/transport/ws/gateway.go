/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ws carries scheduled messages to clients over WebSocket.
//
// The `Gateway` accepts client connections, registers them with the scheduler and implements `types.Transport`. Every
// peer owns a buffered write pump, so `Send` hands a frame over without waiting on the network. The pump also sends
// ping control frames, and the round trip of the matching pong is reported as the connection's ping sample.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const (
	loggerName = "WebSocketGateway"

	// ConnectionParam is the query parameter carrying the connection id. A random id is minted when it is absent.
	ConnectionParam = "connection"

	controlTeleportComplete = "teleportComplete"
)

var (
	// ErrSendBufferFull indicates the peer's write buffer is full. The frame is dropped.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrPeerClosed indicates the peer disconnected while the frame was being handed over.
	ErrPeerClosed = errors.New("peer closed")
)

// Events receives the lifecycle signals of gateway peers. `*scheduler.Scheduler` implements it.
type Events interface {
	OnConnectionOpen(id types.ConnectionID)
	OnConnectionClose(id types.ConnectionID) bool
	OnTeleportComplete(id types.ConnectionID, success bool) bool
	OnPingSample(id types.ConnectionID, pingMillis int64)
	OnBytesSent(id types.ConnectionID, delta int64)
}

// frame is the wire form of a scheduled message.
type frame struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// controlFrame is sent by clients.
type controlFrame struct {
	Type    string `json:"type"`
	Success *bool  `json:"success,omitempty"`
}

// Gateway is the WebSocket front end of the scheduler.
type Gateway struct {
	// --- Immutable dependencies ---
	config   Config
	clock    clock.WithTicker
	logger   logr.Logger
	upgrader websocket.Upgrader

	// --- State ---
	mu     sync.RWMutex
	peers  map[types.ConnectionID]*peer
	events Events
}

var _ types.Transport = &Gateway{}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithClock overrides the clock used for pings. Intended for tests.
func WithClock(clk clock.WithTicker) Option {
	return func(g *Gateway) {
		g.clock = clk
	}
}

// NewGateway creates a Gateway. Out-of-range configuration values are clamped and logged. Events must be bound with
// `Bind` before the handler serves its first request.
func NewGateway(config Config, logger logr.Logger, opts ...Option) *Gateway {
	logger = logger.WithName(loggerName)
	config, findings := config.Clamp()
	for _, err := range multierr.Errors(findings) {
		logger.Info("Configuration value clamped", "warning", err.Error())
	}
	g := &Gateway{
		config: config,
		clock:  clock.RealClock{},
		logger: logger,
		peers:  make(map[types.ConnectionID]*peer),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: config.HandshakeWait,
			// Peers are game clients and proxies; origins are not checked.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bind sets the receiver of peer lifecycle events.
func (g *Gateway) Bind(events Events) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = events
}

// Send implements `types.Transport`. It queues the message on the peer's write pump and returns immediately.
func (g *Gateway) Send(_ context.Context, id types.ConnectionID, msg types.Message) error {
	g.mu.RLock()
	p, ok := g.peers[id]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownConnection, id)
	}

	data, err := encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Peers returns the number of connected peers.
func (g *Gateway) Peers() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.peers)
}

// Start blocks until ctx is done and then disconnects every peer. Hijacked connections are not tracked by the HTTP
// server, so they are shut down here.
func (g *Gateway) Start(ctx context.Context) error {
	<-ctx.Done()
	g.mu.RLock()
	peers := make([]*peer, 0, len(g.peers))
	for _, p := range g.peers {
		peers = append(peers, p)
	}
	g.mu.RUnlock()
	for _, p := range peers {
		p.close()
	}
	g.logger.V(logutil.DEFAULT).Info("Disconnected all peers", "count", len(peers))
	return nil
}

// ServeHTTP upgrades the request and serves the peer until it disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	events := g.events
	g.mu.RUnlock()
	if events == nil {
		http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
		return
	}

	id := types.ConnectionID(r.URL.Query().Get(ConnectionParam))
	if id == "" {
		id = types.ConnectionID(uuid.NewString())
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied with an HTTP error.
		g.logger.V(logutil.DEBUG).Info("WebSocket upgrade failed", "connectionID", id, "err", err.Error())
		return
	}

	p := &peer{
		id:      id,
		conn:    conn,
		out:     make(chan []byte, g.config.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(g.config.ControlRate, g.config.ControlBurst),
		logger:  g.logger.WithValues("connectionID", id),
	}

	g.mu.Lock()
	previous := g.peers[id]
	g.peers[id] = p
	g.mu.Unlock()
	if previous != nil {
		p.logger.V(logutil.DEFAULT).Info("Connection id reused, replacing previous peer")
		previous.close()
	}

	events.OnConnectionOpen(id)
	p.logger.V(logutil.DEFAULT).Info("Peer connected", "remote", r.RemoteAddr)

	go g.writePump(p, events)
	g.readLoop(p, events)

	g.mu.Lock()
	current := g.peers[id] == p
	if current {
		delete(g.peers, id)
	}
	g.mu.Unlock()
	// A replaced peer must not close the state its successor just opened.
	if current {
		events.OnConnectionClose(id)
	}
	p.logger.V(logutil.DEFAULT).Info("Peer disconnected")
}

func (g *Gateway) readLoop(p *peer, events Events) {
	defer p.close()

	p.conn.SetReadLimit(g.config.ReadLimit)
	_ = p.conn.SetReadDeadline(g.clock.Now().Add(g.config.PongWait))
	p.conn.SetPongHandler(func(data string) error {
		_ = p.conn.SetReadDeadline(g.clock.Now().Add(g.config.PongWait))
		sentNanos, err := strconv.ParseInt(data, 10, 64)
		if err != nil {
			return nil
		}
		rtt := g.clock.Since(time.Unix(0, sentNanos))
		events.OnPingSample(p.id, max(rtt.Milliseconds(), 0))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.V(logutil.VERBOSE).Info("Peer read failed", "err", err.Error())
			}
			return
		}
		_ = p.conn.SetReadDeadline(g.clock.Now().Add(g.config.PongWait))
		g.handleControl(p, events, data)
	}
}

func (g *Gateway) handleControl(p *peer, events Events, data []byte) {
	if !p.limiter.Allow() {
		p.logger.V(logutil.DEBUG).Info("Control frame rate limited")
		return
	}
	var ctl controlFrame
	if err := json.Unmarshal(data, &ctl); err != nil {
		p.logger.V(logutil.DEBUG).Info("Discarding malformed control frame", "err", err.Error())
		return
	}
	switch ctl.Type {
	case controlTeleportComplete:
		success := ctl.Success == nil || *ctl.Success
		if !events.OnTeleportComplete(p.id, success) {
			p.logger.V(logutil.DEBUG).Info("Teleport completion without an open boost window")
		}
	default:
		p.logger.V(logutil.DEBUG).Info("Ignoring unknown control frame", "type", ctl.Type)
	}
}

func (g *Gateway) writePump(p *peer, events Events) {
	ticker := g.clock.NewTicker(g.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case data := <-p.out:
			_ = p.conn.SetWriteDeadline(g.clock.Now().Add(g.config.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.logger.V(logutil.VERBOSE).Info("Peer write failed", "err", err.Error())
				p.close()
				return
			}
			events.OnBytesSent(p.id, int64(len(data)))
		case <-ticker.C():
			deadline := g.clock.Now().Add(g.config.WriteTimeout)
			payload := strconv.FormatInt(g.clock.Now().UnixNano(), 10)
			if err := p.conn.WriteControl(websocket.PingMessage, []byte(payload), deadline); err != nil {
				p.logger.V(logutil.VERBOSE).Info("Peer ping failed", "err", err.Error())
				p.close()
				return
			}
		case <-p.done:
			deadline := g.clock.Now().Add(g.config.WriteTimeout)
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

type peer struct {
	id      types.ConnectionID
	conn    *websocket.Conn
	out     chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	logger  logr.Logger
}

func (p *peer) close() {
	p.once.Do(func() { close(p.done) })
}

// encode renders msg as a text frame. Payloads that are not valid JSON are carried as a JSON string.
func encode(msg types.Message) ([]byte, error) {
	if msg == nil {
		return nil, types.ErrNilMessage
	}
	f := frame{ID: msg.ID(), Type: msg.TypeTag()}
	if raw, ok := msg.(*types.RawMessage); ok && len(raw.Payload) > 0 {
		if json.Valid(raw.Payload) {
			f.Payload = raw.Payload
		} else {
			quoted, err := json.Marshal(string(raw.Payload))
			if err != nil {
				return nil, err
			}
			f.Payload = quoted
		}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message %q: %w", msg.ID(), err)
	}
	return data, nil
}
