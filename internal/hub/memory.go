package hub

import "sync"

// subscriberBuffer bounds each subscriber's inbound channel. When a slow
// subscriber's channel is full, the newly published frame is dropped for
// that subscriber rather than stalling the publisher — see DESIGN.md.
const subscriberBuffer = 64

// Memory is the default Hub: an in-process map from room id to its set of
// subscriber channels. The Room Broker publishes through its per-room
// actors, but subscribes and unsubscribes from each connection's own
// goroutine, so Memory guards its registry map with a lock against all of
// these running concurrently, within one room and across rooms.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]map[string]chan []byte
}

// NewMemory returns an empty in-memory hub.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]map[string]chan []byte)}
}

func (m *Memory) Subscribe(room, id string) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.rooms[room]
	if !ok {
		subs = make(map[string]chan []byte)
		m.rooms[room] = subs
	}
	ch := make(chan []byte, subscriberBuffer)
	subs[id] = ch
	return ch, nil
}

func (m *Memory) Unsubscribe(room, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.rooms[room]
	if !ok {
		return
	}
	if ch, ok := subs[id]; ok {
		close(ch)
		delete(subs, id)
	}
	if len(subs) == 0 {
		delete(m.rooms, room)
	}
}

// Publish sends payload to every current subscriber of room. It holds m.mu
// for the whole send, not just the snapshot: Unsubscribe closes subscriber
// channels under the same lock, and closing a channel concurrently with a
// send on it panics, so close and send must never interleave.
func (m *Memory) Publish(room string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.rooms[room] {
		select {
		case ch <- payload:
		default:
			// Subscriber is behind; drop rather than block the publisher,
			// consistent with the broker never blocking on a slow peer.
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
