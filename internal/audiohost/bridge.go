// Package audiohost implements the Audio Host Bridge (C4): device
// lifecycle, the control→audio message channel, and the two concrete
// bridges (a real PortAudio device and a fake used by tests and headless
// runs).
package audiohost

import (
	"errors"
	"sync"

	"github.com/rapidaai/padbroker/internal/mixer"
)

// ProcessorName is the name the mixer callback is registered under. Nothing
// outside this process looks it up by name — it exists purely so log lines
// and diagnostics name the node the same way across bridges.
const ProcessorName = "mixer-processor"

// State is the bridge lifecycle from spec.md section 4.4.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateError
)

// ErrNotReady names the condition of a bridge that has not reached
// StateReady. Load, Unload, Trigger and StopAll do not return it: a message
// posted before StateReady is logged and dropped (see post).
var ErrNotReady = errors.New("audiohost: not ready")

// Message is a control message posted to the audio thread, mirroring the
// table in spec.md section 4.4. PCM payloads on MsgLoadSample are handed
// off by reference and must not be retained by the sender afterwards —
// this is the Go realization of "ownership transferred".
type Message struct {
	Kind MessageKind

	SoundID string
	Left    []float32
	Right   []float32
	Length  int
}

type MessageKind int

const (
	MsgLoadSample MessageKind = iota
	MsgUnloadSample
	MsgTrigger
	MsgStopAll
)

// Bridge is the common interface the PortAudio bridge and the fake bridge
// both satisfy, so cmd/renderer and tests share one call surface.
type Bridge interface {
	// Start opens the device (or, for the fake, starts the software
	// ticker), constructs the mixer engine, and transitions to
	// StateReady. Start must be called from a user-gesture-equivalent
	// context on real hosts; re-initialization after StateError is
	// permitted.
	Start() error
	// Stop closes the device and returns to StateUninitialized.
	Stop() error
	State() State

	Load(soundID string, left, right []float32, length int)
	Unload(soundID string)
	Trigger(soundID string)
	StopAll()

	// Engine exposes the underlying mixer for diagnostics/tests; never
	// call engine methods directly from another goroutine once Start has
	// run — route through Load/Unload/Trigger/StopAll instead.
	Engine() *mixer.Engine
}

// base centralizes the state machine and message channel shared by both
// bridge implementations. It does not implement Bridge itself — each
// concrete bridge embeds it and supplies Start/Stop.
type base struct {
	mu    sync.Mutex
	state State

	engine  *mixer.Engine
	control chan Message

	logf func(format string, args ...any)
}

func newBase(engine *mixer.Engine, logf func(string, ...any)) base {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return base{
		state:   StateUninitialized,
		engine:  engine,
		control: make(chan Message, 256),
		logf:    logf,
	}
}

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *base) Engine() *mixer.Engine { return b.engine }

// post enqueues a control message without blocking the caller. If the
// audio thread is momentarily behind and the channel is full, the message
// is dropped and logged rather than stalling the caller — loading/
// triggering is best-effort relative to the real-time guarantee that nothing
// blocks the audio thread's producer side either.
func (b *base) post(m Message) {
	if b.State() != StateReady {
		b.logf("audiohost: dropping %v before ready", m.Kind)
		return
	}
	select {
	case b.control <- m:
	default:
		b.logf("audiohost: control channel full, dropping message kind=%v", m.Kind)
	}
}

func (b *base) Load(soundID string, left, right []float32, length int) {
	b.post(Message{Kind: MsgLoadSample, SoundID: soundID, Left: left, Right: right, Length: length})
}

func (b *base) Unload(soundID string) {
	b.post(Message{Kind: MsgUnloadSample, SoundID: soundID})
}

func (b *base) Trigger(soundID string) {
	b.post(Message{Kind: MsgTrigger, SoundID: soundID})
}

func (b *base) StopAll() {
	b.post(Message{Kind: MsgStopAll})
}

// drain applies every pending control message to the engine. It is called
// from the audio thread at the start of each block, per spec.md's "drained
// between blocks by the host".
func (b *base) drain() {
	for {
		select {
		case m := <-b.control:
			b.apply(m)
		default:
			return
		}
	}
}

func (b *base) apply(m Message) {
	switch m.Kind {
	case MsgLoadSample:
		b.engine.Store().Load(m.SoundID, m.Left, m.Right, m.Length)
	case MsgUnloadSample:
		b.engine.Store().Unload(m.SoundID)
	case MsgTrigger:
		b.engine.Trigger(m.SoundID)
	case MsgStopAll:
		b.engine.StopAll()
	}
}
