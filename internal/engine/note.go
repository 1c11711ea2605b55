package engine

// KeyState tracks whether the key behind a note is physically held and/or
// the note is being kept alive by the sustain pedal.
type KeyState uint8

const (
	KeyOff KeyState = iota
	KeyDown
	KeySustained
	KeyDownAndSustained
)

// IsDown reports whether the key is physically held.
func (k KeyState) IsDown() bool {
	return k == KeyDown || k == KeyDownAndSustained
}

// Note is a snapshot of one musically active note. InitialNote and Channel
// identify the note for its whole lifetime; the continuous control values are
// updated in place upstream, each update arriving here as a fresh snapshot.
type Note struct {
	Channel     uint8
	InitialNote int
	KeyState    KeyState

	NoteOnVelocity  float64 // 0..1
	NoteOffVelocity float64 // 0..1, set once at release
	Pressure        float64 // 0..1
	Pitchbend       float64 // -1..1
	Timbre          float64 // 0..1
}

// IsValid reports whether n describes a playable note. The zero Note is
// invalid; so is the synthetic "off" snapshot written during a forced
// all-voices-off.
func (n Note) IsValid() bool {
	return n.InitialNote >= 0 && n.InitialNote <= 127 && n.KeyState != KeyOff
}

// sameNoteAs reports whether two snapshots refer to the same sounding note.
func (n Note) sameNoteAs(other Note) bool {
	return n.Channel == other.Channel && n.InitialNote == other.InitialNote
}
