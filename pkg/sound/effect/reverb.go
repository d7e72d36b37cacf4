// ABOUTME: Schroeder-Moorer reverb with damped combs and series allpasses
// ABOUTME: Feedback derives from decay time and is capped below unity for stability
package effect

import "math"

// Delay lengths in samples at 44.1 kHz
var (
	combTuning    = [8]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTuning = [4]int{556, 441, 341, 225}
)

const (
	stereoSpread    = 23
	inputGain       = 0.015
	wetScale        = 3
	dampScale       = 0.4
	maxFeedback     = 0.98
	allpassFeedback = 0.5
)

type comb struct {
	buf      []float32
	idx      int
	feedback float32
	damp     float32
	store    float32
}

func (c *comb) process(x float32) float32 {
	out := c.buf[c.idx]
	c.store = flushDenormal(out*(1-c.damp) + c.store*c.damp)
	c.buf[c.idx] = x + c.store*c.feedback
	c.idx++
	if c.idx == len(c.buf) {
		c.idx = 0
	}
	return out
}

type allpass struct {
	buf []float32
	idx int
}

func (a *allpass) process(x float32) float32 {
	delayed := a.buf[a.idx]
	a.buf[a.idx] = flushDenormal(x + delayed*allpassFeedback)
	a.idx++
	if a.idx == len(a.buf) {
		a.idx = 0
	}
	return delayed - x
}

type reverb struct {
	combs     [2][8]comb
	allpasses [2][4]allpass
	wet, dry  float32
}

func newReverb(sampleRate int) *reverb {
	r := &reverb{}
	scale := float64(sampleRate) / 44100
	for ch := 0; ch < 2; ch++ {
		spread := ch * stereoSpread
		for i, n := range combTuning {
			r.combs[ch][i].buf = make([]float32, scaledLength(n+spread, scale))
		}
		for i, n := range allpassTuning {
			r.allpasses[ch][i].buf = make([]float32, scaledLength(n+spread, scale))
		}
	}
	return r
}

func scaledLength(n int, scale float64) int {
	l := int(float64(n)*scale + 0.5)
	if l < 1 {
		return 1
	}
	return l
}

// feedbackFor returns the comb gain that decays by 60 dB in decay seconds
func feedbackFor(length int, sampleRate int, decay float32) float32 {
	g := math.Pow(10, -3*float64(length)/(float64(sampleRate)*float64(decay)))
	if g > maxFeedback {
		g = maxFeedback
	}
	return float32(g)
}

func (r *reverb) configure(p Params, sampleRate int) {
	for ch := range r.combs {
		for i := range r.combs[ch] {
			c := &r.combs[ch][i]
			c.feedback = feedbackFor(len(c.buf), sampleRate, p.DecayTime)
			c.damp = p.Damping * dampScale
		}
	}
	r.wet = p.Wet * wetScale
	r.dry = p.Dry
}

func (r *reverb) process(block []float32) {
	for i := 0; i+1 < len(block); i += 2 {
		in := (block[i] + block[i+1]) * inputGain
		for ch := 0; ch < 2; ch++ {
			var acc float32
			for k := range r.combs[ch] {
				acc += r.combs[ch][k].process(in)
			}
			for k := range r.allpasses[ch] {
				acc = r.allpasses[ch][k].process(acc)
			}
			block[i+ch] = block[i+ch]*r.dry + acc*r.wet
		}
	}
}

func (r *reverb) reset() {
	for ch := range r.combs {
		for i := range r.combs[ch] {
			c := &r.combs[ch][i]
			clear(c.buf)
			c.idx = 0
			c.store = 0
		}
		for i := range r.allpasses[ch] {
			a := &r.allpasses[ch][i]
			clear(a.buf)
			a.idx = 0
		}
	}
}
