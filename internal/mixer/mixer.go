// Package mixer implements the real-time audio side of padbroker:
// the PCM Sample Store (C1), the Voice Pool (C2), and the Mixer Callback
// (C3). Everything in this package runs on a single audio-callback
// goroutine; see internal/audiohost for how control messages cross into it.
package mixer

import "math"

// Engine ties the sample store and voice pool together behind the mixer
// callback contract of spec.md section 4.3.
type Engine struct {
	store *Store
	pool  *Pool

	sampleRate float64
	attackMS   float64
	releaseMS  float64

	incrementsReady bool
	attackInc       float64
	releaseInc      float64

	// left/right are scratch accumulators reused block to block. They grow
	// only if a caller passes a larger frame count than previously seen,
	// which does not happen in steady-state operation against a fixed
	// block size.
	left  []float32
	right []float32
}

// NewEngine constructs the mixer around a fresh store and a pool of
// maxPolyphony voices. sampleRate is the audio device's native rate;
// attackMS/releaseMS are not clamped here; internal/config's validation
// rejects values outside [1,3].
func NewEngine(sampleRate float64, maxPolyphony int, attackMS, releaseMS float64, policy StealPolicy) *Engine {
	return &Engine{
		store:      NewStore(),
		pool:       NewPool(maxPolyphony, policy),
		sampleRate: sampleRate,
		attackMS:   attackMS,
		releaseMS:  releaseMS,
	}
}

// SampleRate reports the device rate the engine was constructed with.
func (e *Engine) SampleRate() float64 { return e.sampleRate }

// Store exposes C1 for the audiohost message handlers.
func (e *Engine) Store() *Store { return e.store }

// Pool exposes C2 for tests and diagnostics.
func (e *Engine) Pool() *Pool { return e.pool }

// Trigger allocates a voice per the §4.2 selection policy and starts it
// attacking from envelope level 0. Triggering never no-ops except when the
// sample is not loaded: a voice bound to an id that is still missing at the
// next Process is deactivated there without producing sound.
func (e *Engine) Trigger(soundID string) {
	e.pool.Select(soundID)
}

// StopAll moves every active voice into release.
func (e *Engine) StopAll() {
	voices := e.pool.Voices()
	for i := range voices {
		if voices[i].Active {
			voices[i].beginRelease()
		}
	}
}

// ensureIncrements performs the spec's step 1: envelope increments are
// computed from the device sample rate on the first invocation, not at
// construction, because spec.md ties this to "the first invocation" of the
// callback rather than to engine setup.
func (e *Engine) ensureIncrements() {
	if e.incrementsReady {
		return
	}
	framesPerMS := e.sampleRate / 1000
	e.attackInc = 1 / (e.attackMS * framesPerMS)
	e.releaseInc = 1 / (e.releaseMS * framesPerMS)
	e.incrementsReady = true
}

func (e *Engine) scratch(frames int) {
	if cap(e.left) < frames {
		e.left = make([]float32, frames)
		e.right = make([]float32, frames)
		return
	}
	e.left = e.left[:frames]
	e.right = e.right[:frames]
	for i := range e.left {
		e.left[i] = 0
		e.right[i] = 0
	}
}

// Process is the Mixer Callback (C3): it mixes frames worth of output into
// out, which has 1 or 2 channels. It never allocates on any call after the
// scratch buffers reach their steady-state size, never blocks, and never
// panics — it always returns true.
func (e *Engine) Process(out [][]float32, frames int) bool {
	e.ensureIncrements()
	e.scratch(frames) // also zeroes the accumulators — this is the "zero the output buffer" step

	voices := e.pool.Voices()
	for i := range voices {
		v := &voices[i]
		if !v.Active {
			continue
		}
		e.mixVoice(v, frames)
	}

	softClip(e.left)
	softClip(e.right)

	copy(out[0], e.left[:frames])
	if len(out) > 1 {
		copy(out[1], e.right[:frames])
	}
	return true
}

// mixVoice advances v by frames audio frames, accumulating its contribution
// into e.left/e.right. Any inconsistency (missing sample, cursor beyond the
// buffer) quietly deactivates the voice instead of erroring, per §4.3's
// failure semantics.
func (e *Engine) mixVoice(v *Voice, frames int) {
	sample := e.store.Lookup(v.SoundID)
	if sample == nil {
		v.deactivate()
		return
	}

	for f := 0; f < frames; f++ {
		if !v.Active {
			return
		}

		if v.Cursor >= sample.Length {
			v.beginRelease()
		}

		switch v.Phase {
		case PhaseAttack:
			v.EnvLevel += e.attackInc
			if v.EnvLevel >= 1 {
				v.EnvLevel = 1
				v.Phase = PhaseSustain
			}
		case PhaseSustain:
			v.EnvLevel = 1
		case PhaseRelease:
			v.EnvLevel -= e.releaseInc
			if v.EnvLevel <= 0 {
				v.EnvLevel = 0
				v.deactivate()
				return
			}
		}

		var l, r float32
		if v.Cursor >= 0 && v.Cursor < sample.Length {
			l = sample.Left[v.Cursor]
			r = sample.Right[v.Cursor]
		}

		e.left[f] += float32(v.EnvLevel) * l
		e.right[f] += float32(v.EnvLevel) * r

		v.Cursor++
	}
}

// clipCeiling is the largest float32 below 1. tanh of a large input rounds
// to exactly 1 in float32, so softClip caps its result here.
var clipCeiling = math.Nextafter32(1, 0)

// softClip bounds amplitude with tanh: monotonic, smooth at 0, and strictly
// inside (-1, 1) for any finite input, so heavy polyphony never hard-clips.
func softClip(buf []float32) {
	for i, v := range buf {
		y := float32(math.Tanh(float64(v)))
		if y > clipCeiling {
			y = clipCeiling
		} else if y < -clipCeiling {
			y = -clipCeiling
		}
		buf[i] = y
	}
}
