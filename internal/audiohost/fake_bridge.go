package audiohost

import (
	"sync"
	"time"

	"github.com/rapidaai/padbroker/internal/mixer"
)

// FakeBridge drives the mixer on a software ticker instead of a real audio
// device. It satisfies the same Bridge contract as PortAudioBridge, so
// cmd/renderer --fake and every test in this module exercise identical
// Load/Unload/Trigger/StopAll semantics without touching hardware.
type FakeBridge struct {
	base

	blockInterval time.Duration
	frames        int

	stopCh chan struct{}
	wg     sync.WaitGroup

	// LastOutput captures the most recent block mixed, for tests that want
	// to assert on audio content rather than just lifecycle state.
	mu         sync.Mutex
	lastOutput [][]float32
}

// NewFakeBridge builds a fake bridge. blockInterval controls how often the
// ticker mixes a block; frames is the block size.
func NewFakeBridge(sampleRate float64, frames int, blockInterval time.Duration, maxPolyphony int, attackMS, releaseMS float64, policy mixer.StealPolicy) *FakeBridge {
	engine := mixer.NewEngine(sampleRate, maxPolyphony, attackMS, releaseMS, policy)
	return &FakeBridge{
		base:          newBase(engine, nil),
		blockInterval: blockInterval,
		frames:        frames,
	}
}

func (f *FakeBridge) Start() error {
	if f.State() == StateReady {
		return nil
	}
	f.setState(StateInitializing)
	f.stopCh = make(chan struct{})
	f.wg.Add(1)
	go f.run()
	f.setState(StateReady)
	return nil
}

func (f *FakeBridge) Stop() error {
	if f.stopCh != nil {
		close(f.stopCh)
		f.wg.Wait()
	}
	f.setState(StateUninitialized)
	return nil
}

func (f *FakeBridge) run() {
	defer f.wg.Done()
	ticker := time.NewTicker(f.blockInterval)
	defer ticker.Stop()

	out := [][]float32{make([]float32, f.frames), make([]float32, f.frames)}
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.base.drain()
			f.Engine().Process(out, f.frames)
			f.mu.Lock()
			f.lastOutput = [][]float32{append([]float32(nil), out[0]...), append([]float32(nil), out[1]...)}
			f.mu.Unlock()
		}
	}
}

// LastOutput returns a copy of the most recently mixed block.
func (f *FakeBridge) LastOutput() [][]float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOutput
}

// TickOnce runs exactly one mixer block synchronously, for tests that want
// deterministic control instead of waiting on the ticker.
func (f *FakeBridge) TickOnce() [][]float32 {
	f.base.drain()
	out := [][]float32{make([]float32, f.frames), make([]float32, f.frames)}
	f.Engine().Process(out, f.frames)
	return out
}
