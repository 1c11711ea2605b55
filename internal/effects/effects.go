// Package effects provides master-bus processors for the synthesizer
// output. Effects work on whole stereo blocks so the audio path touches
// each one once per render call.
package effects

// Effector processes one stereo block in place. Both slices have the same
// length. Implementations must not allocate in ProcessBlock.
type Effector interface {
	ProcessBlock(l, r []float32)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) ProcessBlock(l, r []float32) {
	for _, e := range c.effects {
		e.ProcessBlock(l, r)
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

// Len returns the number of effects in the chain.
func (c *Chain) Len() int { return len(c.effects) }

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
