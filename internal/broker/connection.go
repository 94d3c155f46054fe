package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rapidaai/padbroker/internal/wire"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// errIdleTimeout is returned by idleWatch when it closes the connection
// itself, so the errgroup in run sees a non-nil error and cancels the
// shared context for the read loop and write pump.
var errIdleTimeout = errors.New("broker: connection idle timeout")

// Connection is the RoomConnection of spec.md section 3: per-socket state,
// created on open with room/role unset, destroyed on close.
type Connection struct {
	ID     string
	conn   *websocket.Conn
	broker *Broker
	logger *zap.Logger

	outCh chan []byte
	done  chan struct{}

	connectedAt time.Time

	mu             sync.Mutex
	roomID         string
	role           wire.Role
	lastActivityAt time.Time
	forwardCancel  context.CancelFunc

	idleTimer *time.Timer
	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, b *Broker) *Connection {
	now := time.Now()
	c := &Connection{
		ID:             uuid.NewString(),
		conn:           conn,
		broker:         b,
		logger:         b.logger,
		outCh:          make(chan []byte, 256),
		done:           make(chan struct{}),
		connectedAt:    now,
		lastActivityAt: now,
	}
	c.idleTimer = time.NewTimer(b.heartbeatTimeout)
	return c
}

// Room returns the connection's current room id, or "" if unjoined.
func (c *Connection) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Role returns the connection's current role.
func (c *Connection) Role() wire.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// run starts the connection's read loop, write pump, and idle watchdog under
// an errgroup, which supervises all three and propagates the first fatal
// error (a read/write failure or an idle timeout) into a single Close of
// the connection. It blocks until all three have exited.
func (c *Connection) run() {
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		<-ctx.Done()
		c.Close()
		return nil
	})
	g.Go(c.writePump)
	g.Go(c.idleWatch)
	g.Go(c.readLoop)

	_ = g.Wait()
}

func (c *Connection) readLoop() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.resetIdle()

		msg, err := wire.Parse(data)
		if err != nil {
			c.replyError("Invalid message format")
			continue
		}
		c.broker.dispatch(c, msg)
	}
}

func (c *Connection) writePump() error {
	for {
		select {
		case <-c.done:
			return nil
		case data, ok := <-c.outCh:
			if !ok {
				return nil
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
	}
}

func (c *Connection) idleWatch() error {
	defer c.idleTimer.Stop()
	select {
	case <-c.idleTimer.C:
		c.logger.Info("connection stale, closing", zap.String("conn", c.ID))
		c.Close()
		return errIdleTimeout
	case <-c.done:
		return nil
	}
}

func (c *Connection) resetIdle() {
	c.mu.Lock()
	c.lastActivityAt = time.Now()
	c.mu.Unlock()

	if !c.idleTimer.Stop() {
		select {
		case <-c.idleTimer.C:
		default:
		}
	}
	c.idleTimer.Reset(c.broker.heartbeatTimeout)
}

// send enqueues a frame for delivery without blocking the caller. A full
// outbound queue drops the new frame rather than stalling the dispatch
// path — the broker never blocks on a slow peer.
func (c *Connection) send(data []byte) {
	select {
	case c.outCh <- data:
	default:
		c.logger.Warn("connection outbound queue full, dropping frame", zap.String("conn", c.ID))
	}
}

func (c *Connection) sendMessage(m *wire.Message) {
	data, err := wire.Serialize(m)
	if err != nil {
		c.logger.Error("serialize failed", zap.Error(err))
		return
	}
	c.send(data)
}

func (c *Connection) replyError(msg string) {
	c.sendMessage(wire.NewError(msg))
}

// joinRoom switches the connection into room with role, unsubscribing from
// any prior room first (spec.md: "switching rooms requires unsubscribing
// from the prior").
func (c *Connection) joinRoom(room string, role wire.Role) {
	c.leaveRoom()

	c.mu.Lock()
	c.roomID = room
	c.role = role
	c.mu.Unlock()

	ch, err := c.broker.hub.Subscribe(room, c.ID)
	if err != nil {
		c.logger.Error("subscribe failed", zap.Error(err), zap.String("room", room))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.forwardCancel = cancel
	c.mu.Unlock()
	go c.forward(ctx, ch)
}

func (c *Connection) leaveRoom() {
	c.mu.Lock()
	room := c.roomID
	cancel := c.forwardCancel
	c.roomID = ""
	c.role = ""
	c.forwardCancel = nil
	c.mu.Unlock()

	if room == "" {
		return
	}
	if cancel != nil {
		cancel()
	}
	c.broker.hub.Unsubscribe(room, c.ID)
	c.broker.notifyLeave(room, c)
}

// forward copies hub-delivered frames for this connection's room
// subscription into its outbound queue until ctx is cancelled (on
// leaveRoom/rejoin) or the hub closes the channel (on Unsubscribe).
func (c *Connection) forward(ctx context.Context, ch <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
				c.send(msg)
			}
		}
	}
}

// Close tears the connection down exactly once: leaves its room, stops the
// write pump, and closes the socket.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.leaveRoom()
		close(c.done)
		close(c.outCh)
		_ = c.conn.Close()
		c.broker.forget(c)
	})
}
