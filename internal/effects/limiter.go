package effects

import "math"

// Limiter is a soft peak limiter for the master bus. A tracked gain follows
// the stereo peak envelope: it drops fast when the signal exceeds the
// threshold and recovers slowly, so chords under heavy polyphony saturate
// gracefully instead of clipping.
type Limiter struct {
	threshold float32
	release   float32 // per-sample recovery factor
	env       float32 // current peak envelope
}

// NewLimiter creates a limiter.
// threshold: output ceiling, typically just below 1
// releaseMs: recovery time in milliseconds
func NewLimiter(sampleRate int, threshold float32, releaseMs float64) *Limiter {
	if threshold <= 0 {
		threshold = 0.95
	}
	rel := float32(math.Exp(-1000.0 / (releaseMs * float64(sampleRate))))
	return &Limiter{threshold: threshold, release: rel}
}

func (lim *Limiter) ProcessBlock(l, r []float32) {
	for i := range l {
		peak := abs32(l[i])
		if rp := abs32(r[i]); rp > peak {
			peak = rp
		}
		if peak > lim.env {
			lim.env = peak // instant attack
		} else {
			lim.env = lim.threshold + (lim.env-lim.threshold)*lim.release
			if lim.env < lim.threshold {
				lim.env = lim.threshold
			}
		}
		if lim.env > lim.threshold {
			g := lim.threshold / lim.env
			l[i] *= g
			r[i] *= g
		}
	}
}

func (lim *Limiter) Reset() {
	lim.env = 0
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
