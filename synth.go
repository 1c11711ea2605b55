// Package mpesynth is an expressive polyphonic software synthesizer driven by
// MIDI messages. Notes carry continuous per-note pressure, pitchbend, and
// timbre, and the voice pool reallocates with an oldest-first stealing
// heuristic when demand exceeds polyphony.
package mpesynth

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"

	intaudio "github.com/cbegin/mpesynth-go/internal/audio"
	intfx "github.com/cbegin/mpesynth-go/internal/effects"
	"github.com/cbegin/mpesynth-go/internal/engine"
	"github.com/cbegin/mpesynth-go/internal/instrument"
	"github.com/cbegin/mpesynth-go/internal/voicefm"
)

// Note re-exports the per-note state snapshot delivered to hooks.
type Note = engine.Note

// Voice is the contract a custom voice implementation must satisfy. Embed
// engine.BaseVoice to pick up the bookkeeping defaults.
type Voice = engine.Voice

const renderBlockFrames = 256

type Option func(*config)

type config struct {
	voiceCount    int
	voiceStealing bool
	newVoice      func() Voice
	effects       []intfx.Effector
	onControl     func(channel, controller, value uint8)
	onProgram     func(channel, program uint8)
}

func defaultConfig() config {
	return config{
		voiceCount:    16,
		voiceStealing: true,
		newVoice:      func() Voice { return voicefm.New(voicefm.DefaultParams()) },
	}
}

// WithVoiceCount sets the polyphony of the voice pool. Default 16.
func WithVoiceCount(n int) Option {
	return func(cfg *config) {
		cfg.voiceCount = n
	}
}

// WithVoiceStealing controls whether a full pool reclaims a sounding voice
// for a new note. Enabled by default; when disabled, overflow notes are
// dropped silently.
func WithVoiceStealing(enabled bool) Option {
	return func(cfg *config) {
		cfg.voiceStealing = enabled
	}
}

// WithVoiceFactory replaces the built-in FM voice with a custom
// implementation. The factory is invoked once per pool slot.
func WithVoiceFactory(newVoice func() Voice) Option {
	return func(cfg *config) {
		cfg.newVoice = newVoice
	}
}

// WithEffects appends master effects applied after voice summing, in order.
func WithEffects(effects ...intfx.Effector) Option {
	return func(cfg *config) {
		cfg.effects = append(cfg.effects, effects...)
	}
}

// WithControllerHook installs a callback invoked for every control change
// before the message reaches note tracking. Runs on the caller of
// HandleMessage; keep it brief.
func WithControllerHook(hook func(channel, controller, value uint8)) Option {
	return func(cfg *config) {
		cfg.onControl = hook
	}
}

// WithProgramChangeHook installs a callback invoked for program change
// messages, which the synth otherwise ignores.
func WithProgramChangeHook(hook func(channel, program uint8)) Option {
	return func(cfg *config) {
		cfg.onProgram = hook
	}
}

// Synth ties the note tracker, voice pool, and master effects together and
// streams the result to the audio backend.
type Synth struct {
	mu         sync.Mutex
	sampleRate int
	pool       *engine.Synth
	tracker    *instrument.Instrument
	fx         *intfx.Chain
	audio      *intaudio.Player
	onControl  func(channel, controller, value uint8)
	onProgram  func(channel, program uint8)

	masterGain atomic.Uint64

	// render scratch, audio thread only
	planar [][]float32
}

func NewSynth(sampleRate int, opts ...Option) (*Synth, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.voiceCount <= 0 {
		return nil, errors.New("voice count must be positive")
	}

	pool := engine.NewSynth()
	pool.SetCurrentPlaybackSampleRate(float64(sampleRate))
	pool.SetVoiceStealingEnabled(cfg.voiceStealing)
	for i := 0; i < cfg.voiceCount; i++ {
		pool.AddVoice(cfg.newVoice())
	}
	tracker := instrument.New(pool)
	pool.SetNoteTracker(tracker)

	s := &Synth{
		sampleRate: sampleRate,
		pool:       pool,
		tracker:    tracker,
		fx:         intfx.NewChain(cfg.effects...),
		onControl:  cfg.onControl,
		onProgram:  cfg.onProgram,
	}
	s.planar = [][]float32{
		make([]float32, renderBlockFrames),
		make([]float32, renderBlockFrames),
	}
	s.SetMasterVolume(1)
	return s, nil
}

// HandleMessage routes a MIDI message into the synth. Control change and
// program change hooks fire first; note tracking then updates the voice pool.
func (s *Synth) HandleMessage(msg gomidi.Message) {
	var ch, a, b uint8
	switch {
	case msg.GetControlChange(&ch, &a, &b):
		if s.onControl != nil {
			s.onControl(ch, a, b)
		}
	case msg.GetProgramChange(&ch, &a):
		if s.onProgram != nil {
			s.onProgram(ch, a)
		}
		return
	}
	s.tracker.ProcessMessage(msg)
}

// NoteOn starts a note without going through MIDI message parsing.
func (s *Synth) NoteOn(channel, key, velocity uint8) {
	s.HandleMessage(gomidi.NoteOn(channel, key, velocity))
}

// NoteOff releases a note previously started with NoteOn.
func (s *Synth) NoteOff(channel, key uint8) {
	s.HandleMessage(gomidi.NoteOff(channel, key))
}

// AllNotesOff releases every tracked note, letting voices ring out their
// release tails.
func (s *Synth) AllNotesOff() {
	s.tracker.ReleaseAllNotes()
}

// ActiveVoiceCount reports how many voices are currently sounding, tails
// included.
func (s *Synth) ActiveVoiceCount() int {
	return s.pool.ActiveVoiceCount()
}

// PlayingNotes returns a snapshot of the notes the tracker considers held.
func (s *Synth) PlayingNotes() []Note {
	return s.tracker.PlayingNotes()
}

// SetMasterVolume sets the output gain scalar. 1.0 is default. Safe to call
// from any goroutine; takes effect on the next render block.
func (s *Synth) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	s.masterGain.Store(math.Float64bits(volume))
}

func (s *Synth) MasterVolume() float64 {
	return math.Float64frombits(s.masterGain.Load())
}

// Start opens the audio backend and begins streaming. Returns an error if
// the backend cannot be opened at the synth's sample rate.
func (s *Synth) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != nil {
		s.audio.Play()
		return nil
	}
	backend, err := intaudio.NewPlayer(s.sampleRate, s)
	if err != nil {
		return err
	}
	s.audio = backend
	s.audio.Play()
	return nil
}

func (s *Synth) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != nil {
		s.audio.Pause()
	}
}

func (s *Synth) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio != nil {
		s.audio.Play()
	}
}

// Stop halts streaming and hard-stops every voice. The synth can be started
// again afterwards.
func (s *Synth) Stop() error {
	s.mu.Lock()
	audio := s.audio
	s.audio = nil
	s.mu.Unlock()
	s.pool.TurnOffAllVoices(false)
	if audio == nil {
		return nil
	}
	return audio.Stop()
}

// Process implements audio.SampleSource: it renders interleaved stereo
// float32 frames. Also usable directly for offline rendering.
func (s *Synth) Process(dst []float32) {
	gain := float32(s.MasterVolume())
	frames := len(dst) / 2
	for off := 0; off < frames; off += renderBlockFrames {
		n := min(frames-off, renderBlockFrames)
		l := s.planar[0][:n]
		r := s.planar[1][:n]
		clear(l)
		clear(r)
		s.pool.RenderBlock(s.planar, 0, n)
		for i := 0; i < n; i++ {
			l[i] *= gain
			r[i] *= gain
		}
		s.fx.ProcessBlock(l, r)
		for i := 0; i < n; i++ {
			dst[(off+i)*2] = l[i]
			dst[(off+i)*2+1] = r[i]
		}
	}
}

// SampleRate returns the fixed render rate chosen at construction.
func (s *Synth) SampleRate() int {
	return s.sampleRate
}
