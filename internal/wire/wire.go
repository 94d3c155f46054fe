// Package wire implements the WS Envelope Codec (C5): the textual JSON wire
// format shared by the room broker and the client transport. It never
// panics and never returns a partially-validated message — Parse either
// returns a fully valid *Message or a sentinel error.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the wire message discriminant carried in the "type" field.
type Type string

const (
	TypeJoin         Type = "join"
	TypePadHit       Type = "pad-hit"
	TypeSyncState    Type = "sync-state"
	TypeTempoChange  Type = "tempo-change"
	TypeRequestSync  Type = "request-sync"
	TypeHeartbeat    Type = "heartbeat"
	TypePong         Type = "pong"
	TypeError        Type = "error"
)

// Role is the room role a connection claims on join.
type Role string

const (
	RoleRenderer   Role = "renderer"
	RoleController Role = "controller"
)

// ErrInvalidFrame is returned by Parse for any malformed, unknown-type, or
// out-of-range frame. The broker turns this into an "error" reply and keeps
// the socket open, per spec section 7.
var ErrInvalidFrame = errors.New("wire: invalid frame")

// Message is the single envelope type carrying every wire message kind.
// Fields irrelevant to a given Type are left at their zero value and
// omitted from JSON via pointers, so parse(serialize(m)) == m for every
// valid m (boundary values like pad index 0 and tempo 20 still round-trip
// because the optional fields are pointers, not bare ints).
type Message struct {
	Type Type `json:"type"`

	RoomID string `json:"room_id,omitempty"`
	Role   Role   `json:"role,omitempty"`

	PadIndex *int `json:"pad_index,omitempty"`
	Velocity *int `json:"velocity,omitempty"`

	Tempo       *int           `json:"tempo,omitempty"`
	PadMappings map[int]string `json:"pad_mappings,omitempty"`

	ErrorMessage string `json:"message,omitempty"`
}

// Parse validates and deserializes a wire frame. It never panics.
func Parse(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Serialize encodes a message that has already been constructed by this
// package (e.g. via the New* constructors), so it is assumed valid.
func Serialize(m *Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: serialize: %w", err)
	}
	return data, nil
}

func validate(m *Message) error {
	switch m.Type {
	case TypeJoin:
		if m.RoomID == "" {
			return fmt.Errorf("%w: join requires room_id", ErrInvalidFrame)
		}
		if m.Role != RoleRenderer && m.Role != RoleController {
			return fmt.Errorf("%w: join requires role renderer|controller", ErrInvalidFrame)
		}
	case TypePadHit:
		if m.PadIndex == nil || *m.PadIndex < 0 || *m.PadIndex > 15 {
			return fmt.Errorf("%w: pad_index out of range", ErrInvalidFrame)
		}
		if m.Velocity != nil && (*m.Velocity < 0 || *m.Velocity > 127) {
			return fmt.Errorf("%w: velocity out of range", ErrInvalidFrame)
		}
	case TypeSyncState:
		if m.Tempo == nil || *m.Tempo < 20 || *m.Tempo > 300 {
			return fmt.Errorf("%w: tempo out of range", ErrInvalidFrame)
		}
	case TypeTempoChange:
		if m.Tempo == nil || *m.Tempo < 20 || *m.Tempo > 300 {
			return fmt.Errorf("%w: tempo out of range", ErrInvalidFrame)
		}
	case TypeRequestSync, TypeHeartbeat, TypePong:
		// no payload to validate
	case TypeError:
		if m.ErrorMessage == "" {
			return fmt.Errorf("%w: error requires message", ErrInvalidFrame)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, m.Type)
	}
	return nil
}

// Constructors below build already-valid messages, used by the broker and
// client transport so construction sites never hand-build the struct.

func NewJoin(roomID string, role Role) *Message {
	return &Message{Type: TypeJoin, RoomID: roomID, Role: role}
}

func NewPadHit(padIndex int, velocity *int) *Message {
	idx := padIndex
	return &Message{Type: TypePadHit, PadIndex: &idx, Velocity: velocity}
}

func NewSyncState(tempo int, mappings map[int]string) *Message {
	t := tempo
	return &Message{Type: TypeSyncState, Tempo: &t, PadMappings: mappings}
}

func NewTempoChange(tempo int) *Message {
	t := tempo
	return &Message{Type: TypeTempoChange, Tempo: &t}
}

func NewRequestSync() *Message {
	return &Message{Type: TypeRequestSync}
}

func NewHeartbeat() *Message {
	return &Message{Type: TypeHeartbeat}
}

func NewPong() *Message {
	return &Message{Type: TypePong}
}

func NewError(message string) *Message {
	return &Message{Type: TypeError, ErrorMessage: message}
}
