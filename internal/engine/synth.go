package engine

import "sync"

// NoteTracker is the upstream note-producer's callback surface. The engine
// force-silencing everything must also clear the producer's bookkeeping so
// the two never disagree about what is sounding.
type NoteTracker interface {
	ReleaseAllNotes()
}

// Synth owns a bounded pool of voices and routes note-lifecycle events onto
// them. Two execution contexts touch it: a control context delivering note
// events and pool mutations, and the audio context calling RenderBlock. Both
// are serialized by mu; critical sections are short, allocation-free and
// syscall-free, so the audio thread waits at most briefly.
//
// Lock order when both are held: mu (pool state) outside stealMu (steal
// scratch). mu is never acquired while stealMu is held.
type Synth struct {
	mu     sync.Mutex
	voices []Voice

	stealMu      sync.Mutex
	stealScratch []Voice

	noteOnCounter uint64
	stealVoices   bool
	sampleRate    float64
	tracker       NoteTracker
}

func NewSynth() *Synth {
	return &Synth{}
}

// SetNoteTracker installs the upstream producer notified by TurnOffAllVoices.
func (s *Synth) SetNoteTracker(t NoteTracker) {
	s.mu.Lock()
	s.tracker = t
	s.mu.Unlock()
}

// SetVoiceStealingEnabled controls whether a full pool reassigns a sounding
// voice to an incoming note. When disabled, overflow notes are dropped.
func (s *Synth) SetVoiceStealingEnabled(enabled bool) {
	s.mu.Lock()
	s.stealVoices = enabled
	s.mu.Unlock()
}

func (s *Synth) VoiceStealingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stealVoices
}

// AddVoice appends a voice to the pool, initializing it to the current
// rendering rate. The steal scratch grows here so that later steal searches
// never allocate.
func (s *Synth) AddVoice(v Voice) {
	if v == nil {
		panic("engine: AddVoice called with nil voice")
	}

	s.mu.Lock()
	v.SetCurrentSampleRate(s.sampleRate)
	s.voices = append(s.voices, v)
	n := len(s.voices)
	s.mu.Unlock()

	s.stealMu.Lock()
	if cap(s.stealScratch) < n+1 {
		grown := make([]Voice, 0, n+1)
		s.stealScratch = grown
	}
	s.stealMu.Unlock()
}

// RemoveVoice removes the voice at index i immediately, active or not. A
// caller that wants a tail-off must stop the voice first.
func (s *Synth) RemoveVoice(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.voices) {
		panic("engine: RemoveVoice index out of range")
	}
	s.voices = append(s.voices[:i], s.voices[i+1:]...)
}

func (s *Synth) ClearVoices() {
	s.mu.Lock()
	s.voices = s.voices[:0]
	s.mu.Unlock()
}

func (s *Synth) NumVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

func (s *Synth) VoiceAt(i int) Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.voices) {
		return nil
	}
	return s.voices[i]
}

// ActiveVoiceCount returns the number of voices still sounding, release
// tails included.
func (s *Synth) ActiveVoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.voices {
		if v.IsActive() {
			n++
		}
	}
	return n
}

// ReduceNumVoices shrinks the pool to at most n voices. Idle voices go
// first; failing that a voice is stolen regardless of note identity; as a
// last resort the earliest-added voice is dropped.
func (s *Synth) ReduceNumVoices(n int) {
	if n < 0 {
		panic("engine: ReduceNumVoices called with negative count")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.voices) > n {
		victim := s.findFreeVoiceLocked(Note{}, true)
		if victim == nil {
			s.voices = append(s.voices[:0], s.voices[1:]...)
			continue
		}
		for i, v := range s.voices {
			if v == victim {
				s.voices = append(s.voices[:i], s.voices[i+1:]...)
				break
			}
		}
	}
}

// SetCurrentPlaybackSampleRate propagates a new rendering rate to every
// voice. All voices are forced off first: notes must not glide across a
// rate change.
func (s *Synth) SetCurrentPlaybackSampleRate(rate float64) {
	s.mu.Lock()
	s.sampleRate = rate
	s.turnOffAllVoicesLocked(false)
	for i := len(s.voices) - 1; i >= 0; i-- {
		s.voices[i].SetCurrentSampleRate(rate)
	}
	tracker := s.tracker
	s.mu.Unlock()

	if tracker != nil {
		tracker.ReleaseAllNotes()
	}
}

func (s *Synth) CurrentSampleRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

// NoteStarted acquires a voice for the note, stamping its activation order
// from the engine's counter. With stealing disabled and no idle voice the
// note is silently dropped; that is expected overload behaviour, not an
// error.
func (s *Synth) NoteStarted(note Note) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v := s.findFreeVoiceLocked(note, s.stealVoices); v != nil {
		s.startVoiceLocked(v, note)
	}
}

func (s *Synth) NotePressureChanged(note Note) {
	s.forEachMatchLocked(note, Voice.NotePressureChanged)
}

func (s *Synth) NotePitchbendChanged(note Note) {
	s.forEachMatchLocked(note, Voice.NotePitchbendChanged)
}

func (s *Synth) NoteTimbreChanged(note Note) {
	s.forEachMatchLocked(note, Voice.NoteTimbreChanged)
}

func (s *Synth) NoteKeyStateChanged(note Note) {
	s.forEachMatchLocked(note, Voice.NoteKeyStateChanged)
}

// forEachMatchLocked updates every voice playing the given note, not just
// the first: the same note identity can legitimately occupy several voices
// after re-triggering, and all of them must follow the control stream.
func (s *Synth) forEachMatchLocked(note Note, hook func(Voice)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.voices {
		if v.base().isCurrentlyPlaying(note) {
			v.base().note = note
			hook(v)
		}
	}
}

// NoteReleased stops every voice playing the note, tail-off allowed. The
// scan runs in reverse pool order so removal or compaction during iteration
// cannot skip an entry.
func (s *Synth) NoteReleased(note Note) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.voices) - 1; i >= 0; i-- {
		v := s.voices[i]
		if v.base().isCurrentlyPlaying(note) {
			s.stopVoiceLocked(v, note, true)
		}
	}
}

// TurnOffAllVoices force-stops every voice with a synthetic "off" snapshot,
// then tells the upstream producer to drop its own note bookkeeping. The
// pool lock is released before the producer callback: the producer may call
// back into this engine.
func (s *Synth) TurnOffAllVoices(allowTailOff bool) {
	s.mu.Lock()
	for _, v := range s.voices {
		st := v.base()
		st.note.NoteOffVelocity = 0.5
		st.note.KeyState = KeyOff
		v.NoteStopped(allowTailOff)
	}
	tracker := s.tracker
	s.mu.Unlock()

	if tracker != nil {
		tracker.ReleaseAllNotes()
	}
}

func (s *Synth) turnOffAllVoicesLocked(allowTailOff bool) {
	for _, v := range s.voices {
		st := v.base()
		st.note.NoteOffVelocity = 0.5
		st.note.KeyState = KeyOff
		v.NoteStopped(allowTailOff)
	}
}

func (s *Synth) startVoiceLocked(v Voice, note Note) {
	st := v.base()
	st.note = note
	st.hasNote = true
	st.noteOnTime = s.noteOnCounter
	s.noteOnCounter++
	v.NoteStarted()
}

func (s *Synth) stopVoiceLocked(v Voice, note Note, allowTailOff bool) {
	st := v.base()
	st.note = note
	st.hasNote = true
	v.NoteStopped(allowTailOff)
}

// RenderBlock accumulates every active voice into out over
// [startSample, startSample+numSamples). Callable back-to-back for
// contiguous sub-ranges of one larger block. One lock acquisition, no
// allocation.
func (s *Synth) RenderBlock(out [][]float32, startSample, numSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.voices {
		if v.IsActive() {
			v.RenderBlock(out, startSample, numSamples)
		}
	}
}

// RenderBlockDouble is the float64 variant of RenderBlock.
func (s *Synth) RenderBlockDouble(out [][]float64, startSample, numSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.voices {
		if v.IsActive() {
			v.RenderBlockDouble(out, startSample, numSamples)
		}
	}
}
