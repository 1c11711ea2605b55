// Package voicefm implements a 2-operator FM voice for the voice engine.
// One instance renders one note at a time; polyphony comes from the engine
// pooling many of them.
package voicefm

import (
	"math"

	"github.com/cbegin/mpesynth-go/internal/engine"
	"github.com/cbegin/mpesynth-go/internal/lfo"
)

const twoPi = math.Pi * 2

type Params struct {
	CarrierMul float64
	ModMul     float64
	ModIndex   float64
	Feedback   float64 // modulator self-feedback 0..1

	AttackSec  float64
	DecaySec   float64
	SustainLvl float64
	ReleaseSec float64

	Gain           float64
	VelocityAmp    float64
	PitchbendRange float64 // in semitones; MPE default is 48
	VibratoDepth   float64 // in semitones
	VibratoRateHz  float64
}

func DefaultParams() Params {
	return Params{
		CarrierMul:     1.0,
		ModMul:         2.0,
		ModIndex:       1.6,
		Feedback:       0.1,
		AttackSec:      0.005,
		DecaySec:       0.12,
		SustainLvl:     0.75,
		ReleaseSec:     0.2,
		Gain:           0.4,
		VelocityAmp:    0.8,
		PitchbendRange: 48,
		VibratoDepth:   0.05,
		VibratoRateHz:  5.5,
	}
}

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type operator struct {
	phase   float64
	env     float64
	state   envState
	mul     float64
	ar      float64
	dr      float64
	sl      float64
	rr      float64
	prevOut float64
}

// Voice renders one note with serial 2-op FM (modulator into carrier, with
// modulator self-feedback). Pressure scales loudness, timbre scales
// modulation brightness, pitchbend scales frequency; vibrato retriggers with
// each note.
type Voice struct {
	engine.BaseVoice

	params   Params
	car, mod operator

	baseFreq       float64
	freq           float64
	velocity       float64
	pressure       float64 // smoothed toward pressureTarget per sample
	pressureTarget float64
	timbre         float64
	vib            lfo.LFO
}

func New(params Params) *Voice {
	return &Voice{params: params}
}

func (v *Voice) NoteStarted() {
	n := v.CurrentlyPlayingNote()

	v.velocity = n.NoteOnVelocity
	v.pressure = n.Pressure
	v.pressureTarget = n.Pressure
	v.timbre = n.Timbre
	v.baseFreq = noteToFreq(n.InitialNote)
	v.applyPitchbend(n.Pitchbend)

	p := &v.params
	v.car = operator{state: envAttack, mul: p.CarrierMul, ar: p.AttackSec, dr: p.DecaySec, sl: p.SustainLvl, rr: p.ReleaseSec}
	v.mod = operator{state: envAttack, mul: p.ModMul, ar: p.AttackSec, dr: p.DecaySec, sl: p.SustainLvl, rr: p.ReleaseSec}

	v.vib.Set(p.VibratoDepth, p.VibratoRateHz, lfo.WaveSine)
	v.vib.SetSampleRate(v.CurrentSampleRate())
	v.vib.Retrigger()
}

func (v *Voice) NoteStopped(allowTailOff bool) {
	if allowTailOff {
		v.car.state = envRelease
		v.mod.state = envRelease
		return
	}
	v.car = operator{state: envOff}
	v.mod = operator{state: envOff}
	v.ClearCurrentNote()
}

func (v *Voice) NotePressureChanged() {
	v.pressureTarget = v.CurrentlyPlayingNote().Pressure
}

func (v *Voice) NotePitchbendChanged() {
	v.applyPitchbend(v.CurrentlyPlayingNote().Pitchbend)
}

func (v *Voice) NoteTimbreChanged() {
	v.timbre = v.CurrentlyPlayingNote().Timbre
}

// NoteKeyStateChanged is a no-op: sustain-pedal consequences are resolved
// upstream into release events, so key-state flips need no sound change.
func (v *Voice) NoteKeyStateChanged() {}

func (v *Voice) SetCurrentSampleRate(rate float64) {
	if rate == v.CurrentSampleRate() {
		return
	}
	v.BaseVoice.SetCurrentSampleRate(rate)
	v.vib.SetSampleRate(rate)
	// The engine stops all voices before a rate change; just drop any
	// leftover phase state.
	v.car.phase = 0
	v.mod.phase = 0
	v.car.prevOut = 0
	v.mod.prevOut = 0
}

func (v *Voice) RenderBlock(out [][]float32, startSample, numSamples int) {
	renderInto(v, out, startSample, numSamples)
}

func (v *Voice) RenderBlockDouble(out [][]float64, startSample, numSamples int) {
	renderInto(v, out, startSample, numSamples)
}

type sample interface {
	~float32 | ~float64
}

func renderInto[F sample](v *Voice, out [][]F, startSample, numSamples int) {
	sr := v.CurrentSampleRate()
	if sr <= 0 || len(out) == 0 {
		return
	}

	for i := startSample; i < startSample+numSamples; i++ {
		advanceEnv(&v.car, sr)
		advanceEnv(&v.mod, sr)
		if v.car.state == envOff {
			v.ClearCurrentNote()
			return
		}

		v.pressure += (v.pressureTarget - v.pressure) * 0.002

		modLevel := v.params.ModIndex * (0.25 + 0.75*v.timbre)
		fb := v.mod.prevOut * v.params.Feedback * math.Pi
		m := math.Sin(v.mod.phase+fb) * v.mod.env
		v.mod.prevOut = m
		sig := math.Sin(v.car.phase+m*modLevel) * v.car.env
		sig *= v.params.Gain * (0.2 + v.velocity*v.params.VelocityAmp) * (0.3 + 0.7*v.pressure)

		freqMul := 1.0
		if vib := v.vib.Next(); vib != 0 {
			freqMul = math.Pow(2, vib/12)
		}
		step := twoPi * v.freq * freqMul / sr
		v.car.phase = wrapPhase(v.car.phase + step*v.car.mul)
		v.mod.phase = wrapPhase(v.mod.phase + step*v.mod.mul)

		s := F(sig)
		for c := range out {
			out[c][i] += s
		}
	}
}

func advanceEnv(op *operator, sampleRate float64) {
	switch op.state {
	case envAttack:
		step := 1.0 / (op.ar * sampleRate)
		if step <= 0 {
			step = 1
		}
		op.env += step
		if op.env >= 1 {
			op.env = 1
			op.state = envDecay
		}
	case envDecay:
		step := (1 - op.sl) / (op.dr * sampleRate)
		if step <= 0 {
			step = 1
		}
		op.env -= step
		if op.env <= op.sl {
			op.env = op.sl
			op.state = envSustain
		}
	case envSustain:
	case envRelease:
		step := op.sl / (op.rr * sampleRate)
		if step <= 0 {
			step = 1
		}
		op.env -= step
		if op.env <= 0.0001 {
			op.env = 0
			op.state = envOff
		}
	case envOff:
		op.env = 0
	}
}

func (v *Voice) applyPitchbend(bend float64) {
	v.freq = v.baseFreq * math.Pow(2, bend*v.params.PitchbendRange/12)
}

func wrapPhase(p float64) float64 {
	if p > twoPi {
		p -= twoPi
	}
	return p
}

func noteToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}
