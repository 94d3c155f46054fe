package audiohost

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rapidaai/padbroker/internal/mixer"
)

// portAudioSingleton guards spec.md section 9's "implicit singleton for the
// audio engine": PortAudio's Initialize/Terminate pair is process-wide, so
// only one PortAudioBridge may be StateReady at a time. The zero value is
// "no bridge initialized".
var portAudioSingleton sync.Mutex

// PortAudioBridge drives a real audio output device via PortAudio. It is
// the bridge cmd/renderer uses unless --fake is set.
type PortAudioBridge struct {
	base

	framesPerBlock int
	channels       int
	stream         *portaudio.Stream

	logf func(string, ...any)
}

// NewPortAudioBridge builds a bridge around a freshly constructed mixer
// engine. sampleRate and framesPerBlock describe the device's native block
// size (typically 128 frames); channels is 1 or 2.
func NewPortAudioBridge(sampleRate float64, framesPerBlock, channels, maxPolyphony int, attackMS, releaseMS float64, policy mixer.StealPolicy, logf func(string, ...any)) *PortAudioBridge {
	engine := mixer.NewEngine(sampleRate, maxPolyphony, attackMS, releaseMS, policy)
	return &PortAudioBridge{
		base:           newBase(engine, logf),
		framesPerBlock: framesPerBlock,
		channels:       channels,
		logf:           logf,
	}
}

// Start acquires the process-wide PortAudio singleton, opens the default
// output stream, and starts it. Re-initialization after StateError is
// permitted (Stop releases the singleton lock).
func (p *PortAudioBridge) Start() error {
	if p.State() == StateReady {
		return nil
	}
	p.setState(StateInitializing)

	portAudioSingleton.Lock()
	if err := portaudio.Initialize(); err != nil {
		portAudioSingleton.Unlock()
		p.setState(StateError)
		return fmt.Errorf("audiohost: portaudio init: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(0, p.channels, p.Engine().SampleRate(), p.framesPerBlock, p.callback)
	if err != nil {
		_ = portaudio.Terminate()
		portAudioSingleton.Unlock()
		p.setState(StateError)
		return fmt.Errorf("audiohost: open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		portAudioSingleton.Unlock()
		p.setState(StateError)
		return fmt.Errorf("audiohost: start stream: %w", err)
	}

	p.stream = stream
	p.setState(StateReady)
	p.logf("audiohost: %s ready (channels=%d, block=%d)", ProcessorName, p.channels, p.framesPerBlock)
	return nil
}

// Stop closes the device and releases the process-wide PortAudio
// singleton, returning to StateUninitialized. It is a no-op if Start never
// reached StateReady (so the singleton was never locked).
func (p *PortAudioBridge) Stop() error {
	if p.State() != StateReady {
		return nil
	}

	if p.stream != nil {
		_ = p.stream.Stop()
		_ = p.stream.Close()
		p.stream = nil
	}
	err := portaudio.Terminate()
	portAudioSingleton.Unlock()
	p.setState(StateUninitialized)
	return err
}

// callback is invoked by PortAudio on the real-time audio thread. It must
// not allocate, block, or call back into the control thread synchronously —
// drain() only ever applies already-queued messages.
func (p *PortAudioBridge) callback(out [][]float32) {
	p.base.drain()
	p.Engine().Process(out, len(out[0]))
}
