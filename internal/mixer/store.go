package mixer

// Sample is an immutable-after-load stereo PCM buffer (C1's Sample type).
// Right aliases Left for mono sources, so a mono buffer is heard center
// panned without the mixer special-casing channel count per voice.
type Sample struct {
	ID     string
	Left   []float32
	Right  []float32
	Length int
}

// Store is the PCM Sample Store (C1): a mapping from sound id to its
// buffers, mutated only by the audio thread. It takes no lock because
// spec.md's ownership model gives it a single caller goroutine; callers
// crossing that boundary must go through audiohost's message channel.
type Store struct {
	samples map[string]*Sample
}

// NewStore returns an empty sample store.
func NewStore() *Store {
	return &Store{samples: make(map[string]*Sample)}
}

// Load installs (left, right, length) under sound id, replacing and
// releasing any prior entry with the same id. Precondition (caller-enforced
// upstream of the audio thread): len(left) == len(right) == length.
func (s *Store) Load(soundID string, left, right []float32, length int) {
	s.samples[soundID] = &Sample{ID: soundID, Left: left, Right: right, Length: length}
}

// Unload removes the entry for soundID, if any. It is a no-op if the id was
// never loaded.
func (s *Store) Unload(soundID string) {
	delete(s.samples, soundID)
}

// Lookup returns the sample for soundID, or nil if it is not loaded. It
// never fails — a missing sample is a valid runtime condition per C3's
// failure semantics.
func (s *Store) Lookup(soundID string) *Sample {
	return s.samples[soundID]
}
