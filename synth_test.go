package mpesynth

import (
	"encoding/binary"
	"math"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

func energyOf(samples []float32) float64 {
	var e float64
	for _, s := range samples {
		e += float64(s) * float64(s)
	}
	return e
}

func TestSynthProducesAudioForNoteOn(t *testing.T) {
	s, err := NewSynth(48000)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	s.NoteOn(0, 60, 100)
	out := make([]float32, 48000)
	s.Process(out)
	if energyOf(out) == 0 {
		t.Fatal("expected audible output after note on")
	}
	if s.ActiveVoiceCount() != 1 {
		t.Fatalf("active voices = %d, want 1", s.ActiveVoiceCount())
	}
}

func TestMasterVolumeScalesOutput(t *testing.T) {
	loud, err := NewSynth(48000)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	quiet, err := NewSynth(48000)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	quiet.SetMasterVolume(0.25)

	loud.NoteOn(0, 60, 100)
	quiet.NoteOn(0, 60, 100)
	a := make([]float32, 9600)
	b := make([]float32, 9600)
	loud.Process(a)
	quiet.Process(b)
	if energyOf(b) >= energyOf(a) {
		t.Fatal("quarter volume should carry less energy than full volume")
	}
}

func TestMasterVolumeClampsAtZero(t *testing.T) {
	s, err := NewSynth(48000)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	if got := s.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	s.SetMasterVolume(-2)
	if got := s.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
}

func TestPolyphonyOverflowSteals(t *testing.T) {
	s, err := NewSynth(48000, WithVoiceCount(2))
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	s.NoteOn(0, 40, 100)
	s.NoteOn(0, 60, 100)
	s.NoteOn(0, 80, 100)
	if got := s.ActiveVoiceCount(); got != 2 {
		t.Fatalf("active voices = %d, want 2", got)
	}
	if got := len(s.PlayingNotes()); got != 3 {
		t.Fatalf("tracked notes = %d, want 3", got)
	}
}

func TestOverflowDroppedWithoutStealing(t *testing.T) {
	s, err := NewSynth(48000, WithVoiceCount(1), WithVoiceStealing(false))
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	s.NoteOn(0, 60, 100)
	s.NoteOn(0, 64, 100)
	if got := s.ActiveVoiceCount(); got != 1 {
		t.Fatalf("active voices = %d, want 1", got)
	}
}

func TestControllerHookSeesControlChanges(t *testing.T) {
	var gotCh, gotCC, gotVal uint8
	s, err := NewSynth(48000, WithControllerHook(func(ch, cc, val uint8) {
		gotCh, gotCC, gotVal = ch, cc, val
	}))
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	s.HandleMessage(gomidi.ControlChange(3, 74, 90))
	if gotCh != 3 || gotCC != 74 || gotVal != 90 {
		t.Fatalf("hook saw (%d,%d,%d), want (3,74,90)", gotCh, gotCC, gotVal)
	}
}

func TestProgramChangeReachesHookOnly(t *testing.T) {
	var program uint8
	s, err := NewSynth(48000, WithProgramChangeHook(func(ch, p uint8) {
		program = p
	}))
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	s.HandleMessage(gomidi.ProgramChange(0, 42))
	if program != 42 {
		t.Fatalf("program hook saw %d, want 42", program)
	}
	if got := len(s.PlayingNotes()); got != 0 {
		t.Fatalf("program change should not create notes, got %d", got)
	}
}

func TestAllNotesOffReleasesEverything(t *testing.T) {
	s, err := NewSynth(48000, WithVoiceCount(4))
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	s.NoteOn(0, 60, 100)
	s.NoteOn(0, 64, 100)
	s.AllNotesOff()
	if got := len(s.PlayingNotes()); got != 0 {
		t.Fatalf("tracked notes after all-notes-off = %d, want 0", got)
	}
	// Release tails decay; after a couple of seconds all voices are idle.
	out := make([]float32, 48000*4)
	s.Process(out)
	if got := s.ActiveVoiceCount(); got != 0 {
		t.Fatalf("active voices after tail = %d, want 0", got)
	}
}

func TestRenderSamplesAppliesScriptInOrder(t *testing.T) {
	s, err := NewSynth(48000)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	out := s.RenderSamples([]TimedMessage{
		{Frame: 24000, Message: gomidi.NoteOff(0, 60)},
		{Frame: 0, Message: gomidi.NoteOn(0, 60, 100)},
	}, 1.0)
	if len(out) != 48000*2 {
		t.Fatalf("rendered %d samples, want %d", len(out), 48000*2)
	}
	first := energyOf(out[:24000*2])
	if first == 0 {
		t.Fatal("expected signal before the scheduled note off")
	}
	tailEnd := energyOf(out[len(out)-4800*2:])
	if tailEnd >= first/10 {
		t.Fatalf("expected the release tail to decay, start=%v end=%v", first, tailEnd)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1}
	wav := EncodeWAVFloat32LE(samples, 48000, 2)
	if len(wav) != 44+len(samples)*4 {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(samples)*4)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if binary.LittleEndian.Uint16(wav[20:]) != 3 {
		t.Fatal("format tag should be IEEE float")
	}
	if binary.LittleEndian.Uint32(wav[24:]) != 48000 {
		t.Fatal("sample rate mismatch")
	}
	got := math.Float32frombits(binary.LittleEndian.Uint32(wav[48:]))
	if got != 0.5 {
		t.Fatalf("second sample = %v, want 0.5", got)
	}
}
