// ABOUTME: Head-related transfer function package
// ABOUTME: Loads HRIR spheres and convolves sources into binaural stereo
// Package hrtf renders mono sources binaurally.
//
// A Sphere holds measured (or synthesized) impulse responses for the left
// and right ear at points on the unit sphere around the listener. Sample
// blends the three responses around a direction. A Convolver keeps the
// signal history of one source and filters it block by block with FFT
// overlap-save, crossfading over one block whenever the direction moves.
//
// Listener space is +X right, +Y up, +Z forward.
package hrtf
