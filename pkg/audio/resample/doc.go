// ABOUTME: Sample rate conversion package
// ABOUTME: Provides interpolation kernels and a streaming float32 resampler
// Package resample converts audio between sample rates.
//
// The interpolation kernels (linear and Catmull-Rom cubic) are shared with
// the mixer, which evaluates them per sample while advancing a fractional
// read cursor. Resampler wraps the same kernels for block conversion and
// Convert handles whole buffers such as impulse responses.
//
// Example:
//
//	r := resample.New(44100, 48000, 2, resample.Cubic)
//	n := r.Resample(input, output)
package resample
