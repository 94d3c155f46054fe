package mixer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestPropertyPolyphonyBound checks "for all times t, |{v : v.active}| ≤ N"
// by driving random trigger/process sequences against pools of random size.
func TestPropertyPolyphonyBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(rt, "n")
		e := newTestEngine(n, StealOldest)
		pcm := sine(440, 200)
		for i := 0; i < 6; i++ {
			e.Store().Load(string(rune('a'+i)), pcm, pcm, len(pcm))
		}

		steps := rapid.IntRange(0, 40).Draw(rt, "steps")
		out := stereoBuf(32)
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "trigger") {
				id := string(rune('a' + rapid.IntRange(0, 5).Draw(rt, "id")))
				e.Trigger(id)
			}
			e.Process(out, 32)
			require.LessOrEqual(rt, e.Pool().ActiveCount(), n)
		}
	})
}

// TestPropertyEnvelopeMonotonic checks that EnvLevel is non-decreasing
// during attack and non-increasing during release, for a single voice
// driven block by block.
func TestPropertyEnvelopeMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newTestEngine(1, StealOldest)
		length := rapid.IntRange(50, 4000).Draw(rt, "length")
		pcm := sine(220, length)
		e.Store().Load("s", pcm, pcm, length)
		e.Trigger("s")

		out := stereoBuf(16)
		lastLevel := 0.0
		lastPhase := PhaseAttack
		stopAfter := rapid.IntRange(0, 50).Draw(rt, "stopAfter")

		for i := 0; i < 300; i++ {
			if i == stopAfter {
				e.StopAll()
			}
			e.Process(out, 16)

			v := &e.Pool().Voices()[0]
			if !v.Active {
				break
			}
			if v.Phase == lastPhase {
				switch v.Phase {
				case PhaseAttack:
					require.GreaterOrEqual(rt, v.EnvLevel, lastLevel-1e-9)
				case PhaseRelease:
					require.LessOrEqual(rt, v.EnvLevel, lastLevel+1e-9)
				}
			}
			lastLevel = v.EnvLevel
			lastPhase = v.Phase
		}
	})
}

// TestPropertyIdempotentLoad checks that loading the same buffers twice
// leaves lookup results identical to loading once.
func TestPropertyIdempotentLoad(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		length := rapid.IntRange(0, 500).Draw(rt, "length")
		e := newTestEngine(4, StealOldest)
		pcm := sine(300, length)

		e.Store().Load("s", pcm, pcm, length)
		once := e.Store().Lookup("s")

		e.Store().Load("s", pcm, pcm, length)
		twice := e.Store().Lookup("s")

		require.Equal(rt, once.Length, twice.Length)
		require.Equal(rt, once.Left, twice.Left)
		require.Equal(rt, once.Right, twice.Right)
	})
}

func TestNoAllocationAfterFirstBlock(t *testing.T) {
	e := newTestEngine(32, StealOldest)
	pcm := sine(440, 48000)
	for i := 0; i < 32; i++ {
		id := string(rune('a' + i))
		e.Store().Load(id, pcm, pcm, len(pcm))
		e.Trigger(id)
	}

	out := stereoBuf(128)
	e.Process(out, 128) // warm up: grows scratch buffers, computes increments

	allocs := testing.AllocsPerRun(100, func() {
		e.Process(out, 128)
	})
	require.Equal(t, float64(0), allocs, "no allocation attributable to Process after warm-up")
}

func TestSoftClipMonotonicAndBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		x := rapid.Float64Range(-50, 50).Draw(rt, "x")
		y := rapid.Float64Range(-50, 50).Draw(rt, "y")
		buf := []float32{float32(x), float32(y)}
		softClip(buf)
		require.Less(t, math.Abs(float64(buf[0])), 1.0)
		if x <= y {
			require.LessOrEqual(t, buf[0], buf[1])
		}
	})
}
