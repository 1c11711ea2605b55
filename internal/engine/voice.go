package engine

// Voice is the per-voice capability contract. The engine assigns a Note
// snapshot to the voice and invokes the matching hook; the voice reads its
// assigned note to know what to play and owns its own synthesis state, which
// it mutates only inside its render call.
//
// Implementations embed BaseVoice, which stores the assigned note, the
// activation stamp and the sample rate, and supplies default behaviour for
// the non-hook methods.
type Voice interface {
	NoteStarted()
	NoteStopped(allowTailOff bool)
	NotePressureChanged()
	NotePitchbendChanged()
	NoteTimbreChanged()
	NoteKeyStateChanged()

	// SetCurrentSampleRate tells the voice the engine's rendering rate.
	// Implementations that override this must forward to the embedded
	// BaseVoice so CurrentSampleRate stays truthful.
	SetCurrentSampleRate(rate float64)

	// RenderBlock accumulates this voice's output into out (channel-major)
	// over [startSample, startSample+numSamples). It must not allocate.
	RenderBlock(out [][]float32, startSample, numSamples int)
	// RenderBlockDouble is the float64 variant. BaseVoice provides a no-op
	// default for voices that only render in single precision.
	RenderBlockDouble(out [][]float64, startSample, numSamples int)

	// IsActive reports whether the voice is sounding: true from note start
	// until the voice clears its note once fully silent.
	IsActive() bool
	// IsPlayingButReleased reports whether the key is up and not sustained
	// but a release tail may still be sounding.
	IsPlayingButReleased() bool
	CurrentlyPlayingNote() Note
	CurrentSampleRate() float64

	base() *baseState
}

type baseState struct {
	note       Note
	hasNote    bool
	noteOnTime uint64
	sampleRate float64
}

// BaseVoice holds the engine-managed part of a voice's state. The engine
// writes the note snapshot and activation stamp under its pool lock before
// invoking the corresponding hook.
type BaseVoice struct {
	st baseState
}

func (b *BaseVoice) base() *baseState { return &b.st }

func (b *BaseVoice) CurrentlyPlayingNote() Note { return b.st.note }

func (b *BaseVoice) CurrentSampleRate() float64 { return b.st.sampleRate }

func (b *BaseVoice) SetCurrentSampleRate(rate float64) { b.st.sampleRate = rate }

func (b *BaseVoice) IsActive() bool { return b.st.hasNote }

func (b *BaseVoice) IsPlayingButReleased() bool {
	return b.st.hasNote && b.st.note.KeyState == KeyOff
}

func (b *BaseVoice) RenderBlockDouble(out [][]float64, startSample, numSamples int) {}

// ClearCurrentNote marks the voice idle. Voice implementations call this when
// the note has fully finished sounding (immediately on a hard stop, or when
// the release tail dies out during rendering).
func (b *BaseVoice) ClearCurrentNote() {
	b.st.note = Note{}
	b.st.hasNote = false
}

// isCurrentlyPlaying reports whether the voice's assigned note is the given
// note. Matching is by identity (channel + initial note), not by snapshot
// equality: control values drift between snapshots of the same note.
func (st *baseState) isCurrentlyPlaying(n Note) bool {
	return st.hasNote && st.note.sameNoteAs(n)
}
