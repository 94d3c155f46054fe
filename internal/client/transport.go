// Package client implements the Client Transport (C7): the renderer and
// controller side of the wire protocol, wrapping a websocket connection with
// automatic reconnect, a bounded outbound queue, and heartbeat liveness.
package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rapidaai/padbroker/internal/wire"
	"go.uber.org/zap"
)

// Dialer is the subset of *websocket.Dialer used by Transport, seamed out so
// tests can substitute a fake without touching a real socket.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options configures a Transport. Fields mirror the relevant subset of
// internal/config.Config so cmd/renderer and cmd/controller can build one
// directly off the loaded configuration.
type Options struct {
	URL    string
	RoomID string
	Role   wire.Role

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	HeartbeatEvery   time.Duration
	MaxQueueSize     int

	Dialer Dialer
	Logger *zap.Logger
}

// Transport owns one logical connection to the room broker across however
// many physical reconnects it takes to keep it alive. Its zero value is not
// usable; build one with New.
type Transport struct {
	url    string
	roomID string
	role   wire.Role

	reconnectInitial time.Duration
	reconnectMax     time.Duration
	heartbeatEvery   time.Duration
	maxQueueSize     int

	dial   Dialer
	logger *zap.Logger

	handlersMu sync.RWMutex
	handlers   map[wire.Type]func(*wire.Message)

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	queue     [][]byte

	// writeMu serializes every WriteMessage call against conn, across Send,
	// flushQueue, and the heartbeat loop: gorilla/websocket panics on
	// concurrent writers to one connection.
	writeMu sync.Mutex

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New builds a Transport. Call Run to start connecting.
func New(opts Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Transport{
		url:              opts.URL,
		roomID:           opts.RoomID,
		role:             opts.Role,
		reconnectInitial: opts.ReconnectInitial,
		reconnectMax:     opts.ReconnectMax,
		heartbeatEvery:   opts.HeartbeatEvery,
		maxQueueSize:     opts.MaxQueueSize,
		dial:             dialer,
		logger:           logger,
		handlers:         make(map[wire.Type]func(*wire.Message)),
		stopCh:           make(chan struct{}),
	}
}

// OnMessage registers a handler for an incoming message type. Registering
// twice for the same type replaces the earlier handler, matching the
// teacher's type-keyed dispatch table.
func (t *Transport) OnMessage(typ wire.Type, handler func(*wire.Message)) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[typ] = handler
}

// Run starts the connect/read/reconnect loop and the heartbeat loop. It
// returns immediately. Close stops both loops. Cancelling ctx stops the
// heartbeat loop and any dial or backoff wait, but does not close a live
// connection: the connect loop then exits only once that connection drops
// or Close is called.
func (t *Transport) Run(ctx context.Context) {
	t.wg.Add(2)
	go t.connectLoop(ctx)
	go t.heartbeatLoop(ctx)
}

// Close stops the transport and closes the underlying socket, if any. It
// blocks until both background loops have exited.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopCh)
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
	t.wg.Wait()
	return nil
}

// Send serializes and writes m. If the transport is currently connected the
// frame is written immediately; otherwise it is appended to the bounded FIFO
// outbound queue for delivery once reconnected.
func (t *Transport) Send(m *wire.Message) error {
	data, err := wire.Serialize(m)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected && t.conn != nil {
		if err := t.writeLocked(t.conn, data); err == nil {
			return nil
		}
	}
	t.enqueueLocked(data)
	return nil
}

// writeLocked writes a single frame to conn under writeMu, the one path
// every write site (Send, flushQueue, the heartbeat loop via Send) goes
// through.
func (t *Transport) writeLocked(conn *websocket.Conn, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) enqueueLocked(data []byte) {
	t.queue = append(t.queue, data)
	for len(t.queue) > t.maxQueueSize {
		t.logger.Warn("outbound queue full, dropping oldest frame")
		t.queue = t.queue[1:]
	}
}

func (t *Transport) connectLoop(ctx context.Context) {
	defer t.wg.Done()
	backoff := t.reconnectInitial

	for {
		if t.stopped(ctx) {
			return
		}

		conn, _, err := t.dial.DialContext(ctx, t.url, nil)
		if err != nil {
			t.logger.Warn("dial failed, backing off", zap.Error(err), zap.Duration("backoff", backoff))
			if t.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, t.reconnectMax)
			continue
		}

		backoff = t.reconnectInitial

		t.mu.Lock()
		t.conn = conn
		t.connected = true
		t.mu.Unlock()

		if err := t.Send(wire.NewJoin(t.roomID, t.role)); err != nil {
			t.logger.Warn("failed to send join on connect", zap.Error(err))
		}
		t.flushQueue()

		t.readUntilDisconnect(conn)

		t.mu.Lock()
		t.connected = false
		t.conn = nil
		t.mu.Unlock()
		_ = conn.Close()

		if t.stopped(ctx) {
			return
		}
	}
}

func (t *Transport) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits for d, or returns true early if the transport should stop.
func (t *Transport) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	case <-t.stopCh:
		return true
	}
}

func (t *Transport) flushQueue() {
	t.mu.Lock()
	pending := t.queue
	t.queue = nil
	conn := t.conn
	t.mu.Unlock()

	for i, data := range pending {
		if conn == nil {
			t.requeueFront(pending[i:])
			return
		}
		if err := t.writeLocked(conn, data); err != nil {
			t.logger.Warn("flush failed, requeueing remainder", zap.Error(err))
			t.requeueFront(pending[i:])
			return
		}
	}
}

func (t *Transport) requeueFront(remainder [][]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(remainder, t.queue...)
}

func (t *Transport) readUntilDisconnect(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := wire.Parse(data)
		if err != nil {
			t.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		t.dispatch(msg)
	}
}

func (t *Transport) dispatch(m *wire.Message) {
	t.handlersMu.RLock()
	h, ok := t.handlers[m.Type]
	t.handlersMu.RUnlock()
	if !ok {
		return
	}
	h(m)
}

func (t *Transport) heartbeatLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			if err := t.Send(wire.NewHeartbeat()); err != nil {
				t.logger.Warn("heartbeat send failed", zap.Error(err))
			}
		}
	}
}

// nextBackoff doubles cur, capped at max.
func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
