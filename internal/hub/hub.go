// Package hub implements the fan-out transport behind the Room Broker
// (C6): a mapping from room id to the set of subscribers, published to in
// send order. The in-memory implementation is the literal RoomRegistry of
// spec.md section 3; the Redis-backed one lets more than one broker
// process share room fan-out, an explicit scale-out decision recorded in
// DESIGN.md.
package hub

// Hub is the fan-out abstraction the Room Broker publishes through and
// subscribes from. Implementations must preserve publish order as observed
// by any single subscriber within one room, per spec.md section 5.
type Hub interface {
	// Subscribe registers id to receive every Publish to room, returning a
	// channel of raw frames. The channel is closed by Unsubscribe.
	Subscribe(room, id string) (<-chan []byte, error)
	// Unsubscribe removes id from room and closes its channel. It prunes
	// the room's subscriber set if it becomes empty.
	Unsubscribe(room, id string)
	// Publish fans payload out to every current subscriber of room,
	// including the sender if it is itself subscribed.
	Publish(room string, payload []byte) error
	// Close releases any resources the hub holds (e.g. a Redis client).
	Close() error
}
