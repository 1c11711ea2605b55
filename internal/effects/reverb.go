package effects

// Reverb is a Schroeder-style reverb: four parallel comb filters into two
// serial allpass filters, mixed back over the dry signal.
type Reverb struct {
	combs   [4]combFilter
	allpass [2]allpassFilter
	wet     float32
}

type combFilter struct {
	buf []float32
	pos int
	fb  float32
}

type allpassFilter struct {
	buf []float32
	pos int
	fb  float32
}

// NewReverb creates a reverb effect.
// roomSize: 0..1 controls delay lengths
// feedback: 0..1 controls decay time
// wet: wet/dry mix 0..1
func NewReverb(sampleRate int, roomSize, feedback, wet float32) *Reverb {
	base := int(float32(sampleRate) * roomSize * 0.05)
	if base < 10 {
		base = 10
	}
	fb := clamp(feedback, 0, 0.95)
	r := &Reverb{wet: clamp(wet, 0, 1)}
	// Prime-ish length ratios to avoid resonances.
	combLens := [4]int{base, base * 1117 / 1000, base * 1271 / 1000, base * 1437 / 1000}
	for i := range r.combs {
		r.combs[i] = combFilter{buf: make([]float32, combLens[i]), fb: fb}
	}
	apLens := [2]int{base * 347 / 1000, base * 213 / 1000}
	for i := range r.allpass {
		r.allpass[i] = allpassFilter{buf: make([]float32, max(apLens[i], 1)), fb: 0.5}
	}
	return r
}

func (rv *Reverb) ProcessBlock(l, r []float32) {
	dry := 1 - rv.wet
	for i := range l {
		mono := (l[i] + r[i]) * 0.5
		var out float32
		for c := range rv.combs {
			out += rv.combs[c].process(mono)
		}
		out *= 0.25
		for a := range rv.allpass {
			out = rv.allpass[a].process(out)
		}
		l[i] = l[i]*dry + out*rv.wet
		r[i] = r[i]*dry + out*rv.wet
	}
}

func (rv *Reverb) Reset() {
	for i := range rv.combs {
		for j := range rv.combs[i].buf {
			rv.combs[i].buf[j] = 0
		}
		rv.combs[i].pos = 0
	}
	for i := range rv.allpass {
		for j := range rv.allpass[i].buf {
			rv.allpass[i].buf[j] = 0
		}
		rv.allpass[i].pos = 0
	}
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.buf[c.pos] = in + out*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (a *allpassFilter) process(in float32) float32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}
