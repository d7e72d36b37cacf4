// ABOUTME: Bus effects package
// ABOUTME: Reverb, RBJ biquad filters and gain behind one tagged Effect type
// Package effect implements the DSP stages a bus can chain.
//
// Effect is a tagged variant: its Kind selects the algorithm and the
// relevant fields of Params. Parameters are clamped on every assignment
// so no setting can make a filter unstable or a reverb self-oscillate.
// State is allocated by New, never while processing.
package effect
