// ABOUTME: Streaming sample rate converter for interleaved float32 audio
// ABOUTME: Keeps a short frame history so consecutive blocks join without gaps
package resample

// history is the number of frames carried between calls. Cubic
// interpolation needs one frame behind and two ahead of the read position.
const history = 3

// Resampler converts interleaved audio between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	mode       Mode
	ratio      float64
	position   float64
	work       []float32
}

// New creates a new resampler
func New(inputRate, outputRate, channels int, mode Mode) *Resampler {
	if channels < 1 {
		channels = 1
	}
	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		mode:       mode,
		ratio:      float64(inputRate) / float64(outputRate),
	}
	r.Reset()
	return r
}

// Ratio returns input frames consumed per output frame
func (r *Resampler) Ratio() float64 {
	return r.ratio
}

// Resample converts input samples to the output rate. It returns the
// number of samples written to output. Input that cannot be consumed yet
// is kept for the next call.
func (r *Resampler) Resample(input []float32, output []float32) int {
	ch := r.channels
	r.work = append(r.work, input[:len(input)/ch*ch]...)
	total := len(r.work) / ch
	outputFrames := len(output) / ch

	outIdx := 0
	for outIdx < outputFrames {
		idx := int(r.position)
		if idx+2 >= total {
			break
		}
		frac := float32(r.position - float64(idx))
		for c := 0; c < ch; c++ {
			y0 := r.work[(idx-1)*ch+c]
			y1 := r.work[idx*ch+c]
			y2 := r.work[(idx+1)*ch+c]
			y3 := r.work[(idx+2)*ch+c]
			output[outIdx*ch+c] = Interpolate(r.mode, y0, y1, y2, y3, frac)
		}
		outIdx++
		r.position += r.ratio
	}

	// Keep the trailing frames as history for the next block
	if total > history {
		drop := total - history
		copy(r.work, r.work[drop*ch:])
		r.work = r.work[:history*ch]
		r.position -= float64(drop)
	}

	return outIdx * ch
}

// Reset clears the frame history
func (r *Resampler) Reset() {
	r.work = r.work[:0]
	for i := 0; i < history*r.channels; i++ {
		r.work = append(r.work, 0)
	}
	r.position = history
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}

// Convert resamples a complete interleaved buffer in one call. The tail
// is flushed with silence so the output covers the whole input.
func Convert(input []float32, channels, inputRate, outputRate int, mode Mode) []float32 {
	if inputRate == outputRate || len(input) == 0 {
		out := make([]float32, len(input))
		copy(out, input)
		return out
	}
	r := New(inputRate, outputRate, channels, mode)
	frames := len(input) / r.channels
	outFrames := int(float64(frames)/r.ratio + 0.5)
	if outFrames < 1 {
		outFrames = 1
	}
	out := make([]float32, outFrames*r.channels)
	n := r.Resample(input, out)
	if n < len(out) {
		pad := make([]float32, (history+int(r.ratio)+1)*r.channels)
		for n < len(out) {
			m := r.Resample(pad, out[n:])
			if m == 0 {
				break
			}
			n += m
		}
	}
	return out
}
