// ABOUTME: Mix buses with per-bus effect chains
// ABOUTME: Buses form a tree rooted at the master bus and are processed children first
package sound

import "github.com/Resonate-Protocol/soundscape/pkg/sound/effect"

type busEffect struct {
	id EffectHandle
	fx *effect.Effect
}

// Bus sums the sources and child buses routed to it
type Bus struct {
	id     BusHandle
	name   string
	parent BusHandle
	depth  int

	gain     float32
	prevGain float32

	buf     []float32
	effects []busEffect
}

func newBus(id BusHandle, name string, parent BusHandle, depth, quantum, maxEffects int) *Bus {
	return &Bus{
		id:       id,
		name:     name,
		parent:   parent,
		depth:    depth,
		gain:     1,
		prevGain: 1,
		buf:      make([]float32, quantum*2),
		effects:  make([]busEffect, 0, maxEffects),
	}
}

// addEffect appends to the chain; capacity was reserved at creation
func (b *Bus) addEffect(id EffectHandle, fx *effect.Effect) bool {
	if len(b.effects) == cap(b.effects) {
		return false
	}
	b.effects = append(b.effects, busEffect{id: id, fx: fx})
	return true
}

func (b *Bus) findEffect(id EffectHandle) int {
	for i := range b.effects {
		if b.effects[i].id == id {
			return i
		}
	}
	return -1
}

func (b *Bus) removeEffect(id EffectHandle) bool {
	i := b.findEffect(id)
	if i < 0 {
		return false
	}
	copy(b.effects[i:], b.effects[i+1:])
	b.effects[len(b.effects)-1] = busEffect{}
	b.effects = b.effects[:len(b.effects)-1]
	return true
}

// process runs the chain and applies the bus gain, ramping from the
// previous pass's gain
func (b *Bus) process() int {
	replaced := zeroNonFinite(b.buf)
	for _, e := range b.effects {
		e.fx.Process(b.buf)
	}
	applyRamp(b.buf, b.prevGain, b.gain)
	b.prevGain = b.gain
	return replaced
}

// applyRamp scales an interleaved stereo block by a gain moving linearly
// from start to end
func applyRamp(buf []float32, start, end float32) {
	frames := len(buf) / 2
	if start == end {
		if end == 1 {
			return
		}
		for i := range buf {
			buf[i] *= end
		}
		return
	}
	step := (end - start) / float32(frames)
	g := start
	for i := 0; i < frames; i++ {
		g += step
		buf[i*2] *= g
		buf[i*2+1] *= g
	}
}

// zeroNonFinite silences NaN and infinite samples so they cannot reach
// effect state
func zeroNonFinite(buf []float32) int {
	n := 0
	for i, s := range buf {
		if !finite32(s) {
			buf[i] = 0
			n++
		}
	}
	return n
}

// sortBuses orders bus indices deepest first so every child is processed
// before its parent. Insertion sort keeps it allocation-free.
func sortBuses(order []int, buses []*Bus) {
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && buses[order[j]].depth > buses[order[j-1]].depth; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
}
