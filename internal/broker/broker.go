// Package broker implements the Room Broker (C6): server-authoritative
// message fan-out with room-scoped pub/sub, role enforcement, late-joiner
// resynchronization, and heartbeat-driven liveness.
package broker

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rapidaai/padbroker/internal/hub"
	"github.com/rapidaai/padbroker/internal/wire"
	"go.uber.org/zap"
)

// Broker owns the Hub, the set of live connections, and one Room actor per
// room with at least one member.
type Broker struct {
	hub              hub.Hub
	logger           *zap.Logger
	heartbeatTimeout time.Duration
	upgrader         websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*Room
	conns map[string]*Connection
}

// New builds a Broker. heartbeatTimeout is the >30s-of-silence window after
// which a connection is considered stale and closed.
func New(h hub.Hub, logger *zap.Logger, heartbeatTimeout time.Duration) *Broker {
	return &Broker{
		hub:              h,
		logger:           logger,
		heartbeatTimeout: heartbeatTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*Room),
		conns: make(map[string]*Connection),
	}
}

// Engine builds a gin engine exposing /ws and /health, mirroring the
// teacher's router-per-concern gin wiring.
func (b *Broker) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/ws", b.handleWS)
	engine.GET("/health", b.handleHealth)
	return engine
}

func (b *Broker) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (b *Broker) handleWS(c *gin.Context) {
	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	rc := newConnection(conn, b)
	b.mu.Lock()
	b.conns[rc.ID] = rc
	b.mu.Unlock()

	b.logger.Info("connection opened", zap.String("conn", rc.ID))
	rc.run()
}

func (b *Broker) forget(c *Connection) {
	b.mu.Lock()
	delete(b.conns, c.ID)
	b.mu.Unlock()
}

func (b *Broker) getOrCreateRoom(id string) *Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rooms[id]
	if !ok {
		r = newRoom(id, b)
		b.rooms[id] = r
	}
	return r
}

func (b *Broker) getRoom(id string) *Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rooms[id]
}

func (b *Broker) removeRoom(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rooms[id]; ok {
		close(r.inbox)
		delete(b.rooms, id)
	}
}

func (b *Broker) notifyLeave(roomID string, c *Connection) {
	r := b.getRoom(roomID)
	if r == nil {
		return
	}
	select {
	case r.inbox <- roomEvent{kind: evLeave, conn: c}:
	default:
		// Room actor already shutting down (inbox closed/full during
		// teardown); nothing else to clean up on this side.
	}
}

// dispatch applies the per-type handling table from spec.md section 4.6.
func (b *Broker) dispatch(c *Connection, msg *wire.Message) {
	switch msg.Type {
	case wire.TypeJoin:
		b.handleJoin(c, msg)
	case wire.TypePadHit:
		b.handleRoomScoped(c, msg, evPadHit)
	case wire.TypeSyncState:
		b.handleSyncState(c, msg)
	case wire.TypeTempoChange:
		b.handleRoomScoped(c, msg, evTempoChange)
	case wire.TypeHeartbeat:
		c.sendMessage(wire.NewPong())
	case wire.TypePong:
		// last-activity timestamp already refreshed in Connection.readLoop
	default:
		c.replyError("Unsupported message type")
	}
}

func (b *Broker) handleJoin(c *Connection, msg *wire.Message) {
	c.joinRoom(msg.RoomID, msg.Role)
	room := b.getOrCreateRoom(msg.RoomID)
	select {
	case room.inbox <- roomEvent{kind: evJoin, conn: c}:
	default:
		// Room actor tore itself down between getOrCreateRoom and this
		// send (its last member left and closed the inbox); nothing to
		// join, the connection will simply rejoin a freshly created room
		// on its next join message.
	}
}

func (b *Broker) handleSyncState(c *Connection, msg *wire.Message) {
	if c.Room() == "" {
		c.replyError("Not joined")
		return
	}
	if c.Role() != wire.RoleRenderer {
		c.replyError("Only renderer can sync state")
		return
	}
	b.handleRoomScoped(c, msg, evSyncState)
}

func (b *Broker) handleRoomScoped(c *Connection, msg *wire.Message, kind eventKind) {
	roomID := c.Room()
	if roomID == "" {
		c.replyError("Not joined")
		return
	}
	room := b.getRoom(roomID)
	if room == nil {
		c.replyError("Not joined")
		return
	}
	select {
	case room.inbox <- roomEvent{kind: kind, conn: c, msg: msg}:
	default:
		// Room actor already shutting down (inbox closed/full during
		// teardown); the frame is simply not delivered.
	}
}
