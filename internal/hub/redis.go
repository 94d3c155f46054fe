package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis fans rooms out through Redis PUBLISH/SUBSCRIBE, so multiple broker
// processes behind a load balancer observe the same room traffic. Publish
// order as seen by any single local subscriber still matches Redis's
// per-channel delivery order, preserving spec.md section 5's guarantee.
type Redis struct {
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	roomSubs map[string]*redis.PubSub
	local    map[string]map[string]chan []byte
}

// NewRedis dials addr and returns a Hub backed by it. The connection is not
// tested until the first Subscribe/Publish call.
func NewRedis(addr string) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	return &Redis{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		ctx:      ctx,
		cancel:   cancel,
		roomSubs: make(map[string]*redis.PubSub),
		local:    make(map[string]map[string]chan []byte),
	}
}

func (r *Redis) Subscribe(room, id string) (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomSubs[room]; !ok {
		ps := r.client.Subscribe(r.ctx, room)
		if _, err := ps.Receive(r.ctx); err != nil {
			return nil, fmt.Errorf("hub: redis subscribe %q: %w", room, err)
		}
		r.roomSubs[room] = ps
		r.local[room] = make(map[string]chan []byte)
		go r.pump(room, ps)
	}

	ch := make(chan []byte, subscriberBuffer)
	r.local[room][id] = ch
	return ch, nil
}

// pump reads Redis-delivered messages for room and fans each one out to
// every locally-registered subscriber channel.
func (r *Redis) pump(room string, ps *redis.PubSub) {
	for msg := range ps.Channel() {
		r.mu.Lock()
		targets := make([]chan []byte, 0, len(r.local[room]))
		for _, ch := range r.local[room] {
			targets = append(targets, ch)
		}
		r.mu.Unlock()

		payload := []byte(msg.Payload)
		for _, ch := range targets {
			select {
			case ch <- payload:
			default:
			}
		}
	}
}

func (r *Redis) Unsubscribe(room, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.local[room]
	if !ok {
		return
	}
	if ch, ok := subs[id]; ok {
		close(ch)
		delete(subs, id)
	}
	if len(subs) == 0 {
		delete(r.local, room)
		if ps, ok := r.roomSubs[room]; ok {
			_ = ps.Close()
			delete(r.roomSubs, room)
		}
	}
}

func (r *Redis) Publish(room string, payload []byte) error {
	return r.client.Publish(r.ctx, room, payload).Err()
}

func (r *Redis) Close() error {
	r.cancel()
	r.mu.Lock()
	for _, ps := range r.roomSubs {
		_ = ps.Close()
	}
	r.mu.Unlock()
	return r.client.Close()
}
