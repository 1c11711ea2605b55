package instrument

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/mpesynth-go/internal/engine"
)

type recordedEvent struct {
	kind string
	note engine.Note
}

type recordingListener struct {
	events []recordedEvent
}

func (l *recordingListener) record(kind string, n engine.Note) {
	l.events = append(l.events, recordedEvent{kind, n})
}

func (l *recordingListener) NoteStarted(n engine.Note)          { l.record("started", n) }
func (l *recordingListener) NotePressureChanged(n engine.Note)  { l.record("pressure", n) }
func (l *recordingListener) NotePitchbendChanged(n engine.Note) { l.record("pitchbend", n) }
func (l *recordingListener) NoteTimbreChanged(n engine.Note)    { l.record("timbre", n) }
func (l *recordingListener) NoteKeyStateChanged(n engine.Note)  { l.record("keystate", n) }
func (l *recordingListener) NoteReleased(n engine.Note)         { l.record("released", n) }

func (l *recordingListener) last(t *testing.T) recordedEvent {
	t.Helper()
	if len(l.events) == 0 {
		t.Fatalf("no events recorded")
	}
	return l.events[len(l.events)-1]
}

func TestNoteOnOffLifecycle(t *testing.T) {
	l := &recordingListener{}
	ins := New(l)

	ins.ProcessMessage(gomidi.NoteOn(1, 60, 100))
	ev := l.last(t)
	if ev.kind != "started" {
		t.Fatalf("want started, got %s", ev.kind)
	}
	if ev.note.InitialNote != 60 || ev.note.Channel != 1 || ev.note.KeyState != engine.KeyDown {
		t.Fatalf("bad note snapshot: %+v", ev.note)
	}
	if got := len(ins.PlayingNotes()); got != 1 {
		t.Fatalf("tracked notes = %d, want 1", got)
	}

	ins.ProcessMessage(gomidi.NoteOff(1, 60))
	ev = l.last(t)
	if ev.kind != "released" || ev.note.KeyState != engine.KeyOff {
		t.Fatalf("want released off-note, got %s %+v", ev.kind, ev.note)
	}
	if got := len(ins.PlayingNotes()); got != 0 {
		t.Fatalf("tracked notes = %d, want 0", got)
	}
}

func TestVelocityZeroNoteOnReleases(t *testing.T) {
	l := &recordingListener{}
	ins := New(l)

	ins.ProcessMessage(gomidi.NoteOn(0, 60, 100))
	ins.ProcessMessage(gomidi.NoteOn(0, 60, 0))
	if ev := l.last(t); ev.kind != "released" {
		t.Fatalf("velocity-0 note-on must release, got %s", ev.kind)
	}
}

func TestContinuousControlRouting(t *testing.T) {
	l := &recordingListener{}
	ins := New(l)
	ins.ProcessMessage(gomidi.NoteOn(2, 64, 100))

	cases := []struct {
		name  string
		msg   gomidi.Message
		kind  string
		check func(t *testing.T, n engine.Note)
	}{
		{
			name: "channel pressure",
			msg:  gomidi.AfterTouch(2, 127),
			kind: "pressure",
			check: func(t *testing.T, n engine.Note) {
				if n.Pressure != 1 {
					t.Fatalf("pressure = %v, want 1", n.Pressure)
				}
			},
		},
		{
			name: "poly pressure",
			msg:  gomidi.PolyAfterTouch(2, 64, 0),
			kind: "pressure",
			check: func(t *testing.T, n engine.Note) {
				if n.Pressure != 0 {
					t.Fatalf("pressure = %v, want 0", n.Pressure)
				}
			},
		},
		{
			name: "pitchbend",
			msg:  gomidi.Pitchbend(2, -8192),
			kind: "pitchbend",
			check: func(t *testing.T, n engine.Note) {
				if n.Pitchbend != -1 {
					t.Fatalf("pitchbend = %v, want -1", n.Pitchbend)
				}
			},
		},
		{
			name: "timbre",
			msg:  gomidi.ControlChange(2, 74, 127),
			kind: "timbre",
			check: func(t *testing.T, n engine.Note) {
				if n.Timbre != 1 {
					t.Fatalf("timbre = %v, want 1", n.Timbre)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ins.ProcessMessage(tc.msg)
			ev := l.last(t)
			if ev.kind != tc.kind {
				t.Fatalf("want %s event, got %s", tc.kind, ev.kind)
			}
			if ev.note.InitialNote != 64 {
				t.Fatalf("event for wrong note: %+v", ev.note)
			}
			tc.check(t, ev.note)
		})
	}
}

func TestControlsOnlyTouchMatchingChannel(t *testing.T) {
	l := &recordingListener{}
	ins := New(l)
	ins.ProcessMessage(gomidi.NoteOn(1, 60, 100))
	ins.ProcessMessage(gomidi.NoteOn(2, 64, 100))

	before := len(l.events)
	ins.ProcessMessage(gomidi.Pitchbend(1, 4096))
	if got := len(l.events) - before; got != 1 {
		t.Fatalf("bend on channel 1 produced %d events, want 1", got)
	}
	if ev := l.last(t); ev.note.Channel != 1 {
		t.Fatalf("bend routed to channel %d", ev.note.Channel)
	}
}

func TestSustainPedalKeyStates(t *testing.T) {
	l := &recordingListener{}
	ins := New(l)

	ins.ProcessMessage(gomidi.NoteOn(0, 60, 100))
	ins.ProcessMessage(gomidi.ControlChange(0, 64, 127)) // pedal down
	ev := l.last(t)
	if ev.kind != "keystate" || ev.note.KeyState != engine.KeyDownAndSustained {
		t.Fatalf("pedal down: got %s %v", ev.kind, ev.note.KeyState)
	}

	// Key released while the pedal holds it: state change, not a release.
	ins.ProcessMessage(gomidi.NoteOff(0, 60))
	ev = l.last(t)
	if ev.kind != "keystate" || ev.note.KeyState != engine.KeySustained {
		t.Fatalf("key up with pedal: got %s %v", ev.kind, ev.note.KeyState)
	}
	if got := len(ins.PlayingNotes()); got != 1 {
		t.Fatalf("sustained note must stay tracked, have %d", got)
	}

	// A note started with the pedal already down is down-and-sustained.
	ins.ProcessMessage(gomidi.NoteOn(0, 64, 100))
	if ev := l.last(t); ev.note.KeyState != engine.KeyDownAndSustained {
		t.Fatalf("note during pedal: %v", ev.note.KeyState)
	}

	// Pedal up: the sustained 60 is released, the held 64 returns to key-down.
	ins.ProcessMessage(gomidi.ControlChange(0, 64, 0))
	var released, backToDown bool
	for _, ev := range l.events {
		if ev.kind == "released" && ev.note.InitialNote == 60 {
			released = true
		}
		if ev.kind == "keystate" && ev.note.InitialNote == 64 && ev.note.KeyState == engine.KeyDown {
			backToDown = true
		}
	}
	if !released || !backToDown {
		t.Fatalf("pedal up handled wrong: released=%v backToDown=%v", released, backToDown)
	}
	if got := len(ins.PlayingNotes()); got != 1 {
		t.Fatalf("only the held note should remain, have %d", got)
	}
}

func TestRetriggerReleasesOldInstance(t *testing.T) {
	l := &recordingListener{}
	ins := New(l)

	ins.ProcessMessage(gomidi.NoteOn(0, 60, 100))
	ins.ProcessMessage(gomidi.NoteOn(0, 60, 80))

	kinds := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		kinds = append(kinds, ev.kind)
	}
	want := []string{"started", "released", "started"}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
	if got := len(ins.PlayingNotes()); got != 1 {
		t.Fatalf("tracked notes = %d, want 1", got)
	}
}

func TestReleaseAllNotes(t *testing.T) {
	l := &recordingListener{}
	ins := New(l)
	ins.ProcessMessage(gomidi.NoteOn(0, 60, 100))
	ins.ProcessMessage(gomidi.NoteOn(0, 64, 100))

	ins.ReleaseAllNotes()

	releases := 0
	for _, ev := range l.events {
		if ev.kind == "released" {
			releases++
		}
	}
	if releases != 2 {
		t.Fatalf("releases = %d, want 2", releases)
	}
	if got := len(ins.PlayingNotes()); got != 0 {
		t.Fatalf("tracked notes = %d, want 0", got)
	}

	// Second call is a no-op.
	before := len(l.events)
	ins.ReleaseAllNotes()
	if len(l.events) != before {
		t.Fatalf("repeated ReleaseAllNotes must not emit events")
	}
}
