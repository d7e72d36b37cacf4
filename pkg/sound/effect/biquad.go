// ABOUTME: Second-order IIR filters from the RBJ audio EQ cookbook
// ABOUTME: Transposed direct form II with independent state per stereo channel
package effect

import "math"

type biquad struct {
	b0, b1, b2, a1, a2 float32
	z1, z2             [2]float32
}

func (f *biquad) configure(p Params, sampleRate int) {
	w0 := 2 * math.Pi * float64(p.Cutoff) / float64(sampleRate)
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * float64(p.Q))
	a := math.Pow(10, float64(p.GainDB)/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch p.Kind {
	case KindLowPass:
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = (1 - cosw) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw
		a2 = 1 - alpha
	case KindHighPass:
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = (1 + cosw) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw
		a2 = 1 - alpha
	case KindBandPass:
		// constant 0 dB peak gain
		b0 = alpha
		b1 = 0
		b2 = -alpha
		a0 = 1 + alpha
		a1 = -2 * cosw
		a2 = 1 - alpha
	case KindAllPass:
		b0 = 1 - alpha
		b1 = -2 * cosw
		b2 = 1 + alpha
		a0 = 1 + alpha
		a1 = -2 * cosw
		a2 = 1 - alpha
	case KindLowShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosw + sq)
		b1 = 2 * a * ((a - 1) - (a+1)*cosw)
		b2 = a * ((a + 1) - (a-1)*cosw - sq)
		a0 = (a + 1) + (a-1)*cosw + sq
		a1 = -2 * ((a - 1) + (a+1)*cosw)
		a2 = (a + 1) + (a-1)*cosw - sq
	case KindHighShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosw + sq)
		b1 = -2 * a * ((a - 1) + (a+1)*cosw)
		b2 = a * ((a + 1) + (a-1)*cosw - sq)
		a0 = (a + 1) - (a-1)*cosw + sq
		a1 = 2 * ((a - 1) - (a+1)*cosw)
		a2 = (a + 1) - (a-1)*cosw - sq
	}

	f.b0 = float32(b0 / a0)
	f.b1 = float32(b1 / a0)
	f.b2 = float32(b2 / a0)
	f.a1 = float32(a1 / a0)
	f.a2 = float32(a2 / a0)
}

func (f *biquad) process(block []float32) {
	for i := 0; i+1 < len(block); i += 2 {
		for c := 0; c < 2; c++ {
			x := block[i+c]
			y := f.b0*x + f.z1[c]
			f.z1[c] = f.b1*x - f.a1*y + f.z2[c]
			f.z2[c] = f.b2*x - f.a2*y
			block[i+c] = y
		}
	}
	for c := 0; c < 2; c++ {
		f.z1[c] = flushDenormal(f.z1[c])
		f.z2[c] = flushDenormal(f.z2[c])
	}
}

func (f *biquad) reset() {
	f.z1 = [2]float32{}
	f.z2 = [2]float32{}
}

func flushDenormal(v float32) float32 {
	if v > -1e-20 && v < 1e-20 {
		return 0
	}
	return v
}
