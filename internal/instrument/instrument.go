// Package instrument tracks the set of musically active notes and turns raw
// MIDI messages into note-lifecycle events for a listening engine. It sits
// upstream of the voice engine: the engine never parses MIDI, it only sees
// Note snapshots.
package instrument

import (
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/mpesynth-go/internal/engine"
)

// Listener receives note-lifecycle events. Each call carries a fresh Note
// snapshot; the note's identity (channel + initial note) stays fixed across
// snapshots.
type Listener interface {
	NoteStarted(engine.Note)
	NotePressureChanged(engine.Note)
	NotePitchbendChanged(engine.Note)
	NoteTimbreChanged(engine.Note)
	NoteKeyStateChanged(engine.Note)
	NoteReleased(engine.Note)
}

const ccTimbre = 74 // MPE "slide" dimension
const ccSustain = 64

// Instrument is the upstream note-producer. All methods are safe for
// concurrent use; the internal lock is held across listener callbacks, so
// the listener must not call back into the instrument from them.
type Instrument struct {
	mu       sync.Mutex
	listener Listener
	notes    []engine.Note
	sustain  [16]bool
}

func New(l Listener) *Instrument {
	return &Instrument{listener: l}
}

// ProcessMessage decodes one MIDI message and updates note state. Messages
// that carry no note semantics (program change, unhandled controllers) are
// ignored here; callers that care route them to their own hooks first.
func (ins *Instrument) ProcessMessage(msg gomidi.Message) {
	var ch, key, val uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteStart(&ch, &key, &val):
		ins.noteOn(ch, key, val)
	case msg.GetNoteEnd(&ch, &key):
		var offVel uint8
		msg.GetNoteOff(&ch, &key, &offVel)
		ins.noteOff(ch, key, offVel)
	case msg.GetPolyAfterTouch(&ch, &key, &val):
		ins.keyPressure(ch, key, val)
	case msg.GetAfterTouch(&ch, &val):
		ins.channelPressure(ch, val)
	case msg.GetPitchBend(&ch, &rel, &abs):
		ins.pitchbend(ch, rel)
	case msg.GetControlChange(&ch, &key, &val):
		switch key {
		case ccSustain:
			ins.sustainPedal(ch, val >= 64)
		case ccTimbre:
			ins.timbre(ch, val)
		}
	}
}

// PlayingNotes returns a snapshot of the tracked notes.
func (ins *Instrument) PlayingNotes() []engine.Note {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	out := make([]engine.Note, len(ins.notes))
	copy(out, ins.notes)
	return out
}

// ReleaseAllNotes releases every tracked note. The engine calls this when it
// force-silences its voices, keeping the two sides consistent.
func (ins *Instrument) ReleaseAllNotes() {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	for i := range ins.notes {
		n := ins.notes[i]
		n.KeyState = engine.KeyOff
		n.NoteOffVelocity = 0.5
		ins.listener.NoteReleased(n)
	}
	ins.notes = ins.notes[:0]
}

func (ins *Instrument) noteOn(ch, key, vel uint8) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	// A re-trigger of a tracked note releases the old instance first.
	if i := ins.indexOf(ch, key); i >= 0 {
		old := ins.notes[i]
		old.KeyState = engine.KeyOff
		ins.notes = append(ins.notes[:i], ins.notes[i+1:]...)
		ins.listener.NoteReleased(old)
	}

	state := engine.KeyDown
	if ins.sustain[ch&0x0f] {
		state = engine.KeyDownAndSustained
	}
	n := engine.Note{
		Channel:        ch,
		InitialNote:    int(key),
		KeyState:       state,
		NoteOnVelocity: value7(vel),
		Pressure:       value7(vel),
	}
	ins.notes = append(ins.notes, n)
	ins.listener.NoteStarted(n)
}

func (ins *Instrument) noteOff(ch, key, offVel uint8) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	i := ins.indexOf(ch, key)
	if i < 0 {
		return
	}
	n := ins.notes[i]

	if n.KeyState == engine.KeyDownAndSustained {
		// Pedal is holding the note: only the key state changes.
		n.KeyState = engine.KeySustained
		ins.notes[i] = n
		ins.listener.NoteKeyStateChanged(n)
		return
	}

	n.KeyState = engine.KeyOff
	n.NoteOffVelocity = value7(offVel)
	ins.notes = append(ins.notes[:i], ins.notes[i+1:]...)
	ins.listener.NoteReleased(n)
}

func (ins *Instrument) keyPressure(ch, key, pressure uint8) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	if i := ins.indexOf(ch, key); i >= 0 {
		ins.notes[i].Pressure = value7(pressure)
		ins.listener.NotePressureChanged(ins.notes[i])
	}
}

// channelPressure applies channel aftertouch to every note on the channel.
// Under MPE each note lives on its own channel, so this is the per-note
// pressure dimension; on a single-channel keyboard it degrades gracefully to
// whole-channel pressure.
func (ins *Instrument) channelPressure(ch, pressure uint8) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	for i := range ins.notes {
		if ins.notes[i].Channel == ch {
			ins.notes[i].Pressure = value7(pressure)
			ins.listener.NotePressureChanged(ins.notes[i])
		}
	}
}

func (ins *Instrument) pitchbend(ch uint8, rel int16) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	bend := float64(rel) / 8192
	for i := range ins.notes {
		if ins.notes[i].Channel == ch {
			ins.notes[i].Pitchbend = bend
			ins.listener.NotePitchbendChanged(ins.notes[i])
		}
	}
}

func (ins *Instrument) timbre(ch, val uint8) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	for i := range ins.notes {
		if ins.notes[i].Channel == ch {
			ins.notes[i].Timbre = value7(val)
			ins.listener.NoteTimbreChanged(ins.notes[i])
		}
	}
}

func (ins *Instrument) sustainPedal(ch uint8, down bool) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	ins.sustain[ch&0x0f] = down

	if down {
		for i := range ins.notes {
			n := &ins.notes[i]
			if n.Channel == ch && n.KeyState == engine.KeyDown {
				n.KeyState = engine.KeyDownAndSustained
				ins.listener.NoteKeyStateChanged(*n)
			}
		}
		return
	}

	// Pedal up: sustained-only notes are released, held keys drop back to
	// plain key-down. Reverse order so releases can compact the slice.
	for i := len(ins.notes) - 1; i >= 0; i-- {
		n := ins.notes[i]
		if n.Channel != ch {
			continue
		}
		switch n.KeyState {
		case engine.KeySustained:
			n.KeyState = engine.KeyOff
			n.NoteOffVelocity = 0.5
			ins.notes = append(ins.notes[:i], ins.notes[i+1:]...)
			ins.listener.NoteReleased(n)
		case engine.KeyDownAndSustained:
			n.KeyState = engine.KeyDown
			ins.notes[i] = n
			ins.listener.NoteKeyStateChanged(n)
		}
	}
}

func (ins *Instrument) indexOf(ch, key uint8) int {
	for i := range ins.notes {
		if ins.notes[i].Channel == ch && ins.notes[i].InitialNote == int(key) {
			return i
		}
	}
	return -1
}

func value7(v uint8) float64 {
	return float64(v&0x7f) / 127
}
