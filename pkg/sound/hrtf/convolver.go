// ABOUTME: Binaural overlap-save convolution of a mono signal with HRIR pairs
// ABOUTME: Crossfades between filters over one block when the direction changes
package hrtf

import (
	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/dsp/fourier"
)

// directions closer than this cosine reuse the current filter
const sameDirection = 0.99999

// Convolver renders one source through a sphere. All buffers are sized at
// construction so Process never allocates. A Convolver is owned by a
// single goroutine.
type Convolver struct {
	sphere *Sphere
	block  int
	size   int
	fft    *fourier.FFT

	history []float64
	spec    []complex128
	product []complex128
	time    []float64
	pad     []float64
	irLeft  []float32
	irRight []float32

	curLeft, curRight   []complex128
	prevLeft, prevRight []complex128

	dir       mgl32.Vec3
	hasFilter bool
	fade      bool
}

// NewConvolver prepares a convolver for blocks of the given frame count
func NewConvolver(s *Sphere, block int) *Convolver {
	size := nextPow2(block + s.Length - 1)
	bins := size/2 + 1
	return &Convolver{
		sphere:    s,
		block:     block,
		size:      size,
		fft:       fourier.NewFFT(size),
		history:   make([]float64, size),
		spec:      make([]complex128, bins),
		product:   make([]complex128, bins),
		time:      make([]float64, size),
		pad:       make([]float64, size),
		irLeft:    make([]float32, s.Length),
		irRight:   make([]float32, s.Length),
		curLeft:   make([]complex128, bins),
		curRight:  make([]complex128, bins),
		prevLeft:  make([]complex128, bins),
		prevRight: make([]complex128, bins),
	}
}

// BlockSize returns the frames consumed per Process call
func (c *Convolver) BlockSize() int {
	return c.block
}

// Reset clears the signal history so the next block starts from silence
func (c *Convolver) Reset() {
	for i := range c.history {
		c.history[i] = 0
	}
	c.hasFilter = false
	c.fade = false
}

// Process convolves one block of mono input for direction dir and adds
// gain-scaled results into the interleaved stereo out. Inputs shorter than
// the block are padded with silence.
func (c *Convolver) Process(in []float32, dir mgl32.Vec3, gain float32, out []float32) {
	b := c.block
	copy(c.history, c.history[b:])
	tail := c.history[c.size-b:]
	for i := range tail {
		if i < len(in) {
			tail[i] = float64(in[i])
		} else {
			tail[i] = 0
		}
	}
	c.fft.Coefficients(c.spec, c.history)

	c.updateFilter(dir)

	frames := len(out) / 2
	if frames > b {
		frames = b
	}
	c.render(c.curLeft, c.prevLeft, gain, out[0:], frames)
	c.render(c.curRight, c.prevRight, gain, out[1:], frames)
	c.fade = false
}

// render filters the current spectrum for one ear into every other sample of out
func (c *Convolver) render(cur, prev []complex128, gain float32, out []float32, frames int) {
	scale := 1 / float64(c.size)
	start := c.size - c.block

	for i := range c.spec {
		c.product[i] = c.spec[i] * cur[i]
	}
	c.fft.Sequence(c.time, c.product)

	if !c.fade {
		for i := 0; i < frames; i++ {
			out[i*2] += float32(c.time[start+i]*scale) * gain
		}
		return
	}

	// Old filter fades out while the new one fades in
	for i := 0; i < frames; i++ {
		out[i*2] += float32(c.time[start+i]*scale) * gain * float32(i+1) / float32(c.block)
	}
	for i := range c.spec {
		c.product[i] = c.spec[i] * prev[i]
	}
	c.fft.Sequence(c.time, c.product)
	for i := 0; i < frames; i++ {
		out[i*2] += float32(c.time[start+i]*scale) * gain * (1 - float32(i+1)/float32(c.block))
	}
}

// updateFilter samples the sphere for a new direction and keeps the
// previous spectra for the crossfade
func (c *Convolver) updateFilter(dir mgl32.Vec3) {
	if l := dir.Len(); l > 1e-6 {
		dir = dir.Mul(1 / l)
	} else {
		dir = mgl32.Vec3{0, 0, 1}
	}
	if c.hasFilter && c.dir.Dot(dir) > sameDirection {
		return
	}

	c.curLeft, c.prevLeft = c.prevLeft, c.curLeft
	c.curRight, c.prevRight = c.prevRight, c.curRight

	c.sphere.Sample(dir, c.irLeft, c.irRight)
	c.spectrum(c.irLeft, c.curLeft)
	c.spectrum(c.irRight, c.curRight)

	c.fade = c.hasFilter
	c.hasFilter = true
	c.dir = dir
}

func (c *Convolver) spectrum(ir []float32, dst []complex128) {
	for i := range c.pad {
		if i < len(ir) {
			c.pad[i] = float64(ir[i])
		} else {
			c.pad[i] = 0
		}
	}
	c.fft.Coefficients(dst, c.pad)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
