package lfo

import "math"

// Waveform constants.
const (
	WaveSine     = 0
	WaveTriangle = 1
	WaveSaw      = 2
	WaveSquare   = 3
	WaveRandom   = 4
)

// LFO is a low-frequency oscillator producing per-sample modulation. Each
// voice owns its own instance and retriggers it at note start, so vibrato
// phase lines up with the note rather than with wall-clock time.
type LFO struct {
	depth      float64 // modulation depth (units depend on context: semitones, gain, cutoff)
	rateHz     float64
	waveform   int
	sampleRate float64
	inc        float64 // phase increment per sample
	phase      float64 // [0, 1)
	randVal    float64 // held value for sample-and-hold
}

// Set configures depth, rate and waveform.
func (l *LFO) Set(depth, rateHz float64, waveform int) {
	l.depth = depth
	l.rateHz = rateHz
	if waveform < WaveSine || waveform > WaveRandom {
		waveform = WaveSine
	}
	l.waveform = waveform
	l.updateInc()
}

// SetSampleRate fixes the rendering rate. Must be called before Next.
func (l *LFO) SetSampleRate(sampleRate float64) {
	l.sampleRate = sampleRate
	l.updateInc()
}

func (l *LFO) updateInc() {
	if l.sampleRate <= 0 {
		l.inc = 0
		return
	}
	l.inc = l.rateHz / l.sampleRate
}

// Retrigger zeroes the phase, restarting the modulation cycle.
func (l *LFO) Retrigger() {
	l.phase = 0
	l.randVal = 0
}

// Active reports whether the LFO produces non-zero modulation.
func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

// Next advances one sample and returns a value in [-depth, +depth].
func (l *LFO) Next() float64 {
	if l.depth == 0 || l.inc == 0 {
		return 0
	}

	var v float64
	switch l.waveform {
	case WaveTriangle:
		if l.phase < 0.5 {
			v = 4*l.phase - 1
		} else {
			v = 3 - 4*l.phase
		}
	case WaveSaw:
		v = 1 - 2*l.phase
	case WaveSquare:
		if l.phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case WaveRandom:
		v = l.randVal
	default:
		v = math.Sin(2 * math.Pi * l.phase)
	}

	old := l.phase
	l.phase += l.inc
	for l.phase >= 1 {
		l.phase -= 1
	}
	if l.waveform == WaveRandom && l.phase < old {
		// Cheap deterministic hash, held for one cycle.
		h := math.Sin(old*12345.6789 + l.randVal*67890.1234)
		h -= math.Floor(h)
		l.randVal = h*2 - 1
	}

	return v * l.depth
}
