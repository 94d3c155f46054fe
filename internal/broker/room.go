package broker

import (
	"github.com/rapidaai/padbroker/internal/wire"
	"go.uber.org/zap"
)

type eventKind int

const (
	evJoin eventKind = iota
	evLeave
	evPadHit
	evSyncState
	evTempoChange
)

type roomEvent struct {
	kind eventKind
	conn *Connection
	msg  *wire.Message
}

// Room is the per-room actor: the single goroutine through which every
// registry mutation and fan-out for this room flows, giving the ordering
// guarantee of spec.md section 5 ("order as observed by any single
// subscriber matches the broker's dispatch order") even though connections
// themselves are read concurrently.
type Room struct {
	id      string
	broker  *Broker
	inbox   chan roomEvent
	members map[string]*Connection
}

func newRoom(id string, b *Broker) *Room {
	r := &Room{
		id:      id,
		broker:  b,
		inbox:   make(chan roomEvent, 256),
		members: make(map[string]*Connection),
	}
	go r.loop()
	return r
}

func (r *Room) loop() {
	for ev := range r.inbox {
		switch ev.kind {
		case evJoin:
			r.members[ev.conn.ID] = ev.conn
			if ev.conn.Role() == wire.RoleController {
				r.publish(wire.NewRequestSync())
			}
		case evLeave:
			delete(r.members, ev.conn.ID)
			if len(r.members) == 0 {
				r.broker.removeRoom(r.id)
				return
			}
		case evPadHit, evSyncState, evTempoChange:
			r.publish(ev.msg)
		}
	}
}

func (r *Room) publish(m *wire.Message) {
	data, err := wire.Serialize(m)
	if err != nil {
		r.broker.logger.Error("serialize failed", zap.Error(err))
		return
	}
	if err := r.broker.hub.Publish(r.id, data); err != nil {
		r.broker.logger.Error("publish failed", zap.Error(err), zap.String("room", r.id))
	}
}
