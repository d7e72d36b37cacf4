// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and float32 sample conversion functions
// Package audio provides fundamental audio types and utilities shared by
// the decoders, output devices and the mixing engine.
//
// Samples travel through the engine as interleaved float32 values in
// [-1, 1]. This package converts between that representation and the
// integer encodings found in files and device buffers:
//   - 16-bit and 24-bit integer conversions
//   - packed 24-bit little-endian bytes
//   - Sanitize and Clip for the final output stage
//
// Example:
//
//	format := audio.Format{
//	    Codec:      audio.CodecPCM,
//	    SampleRate: 48000,
//	    Channels:   2,
//	    BitDepth:   24,
//	}
//
//	f := audio.Int24ToFloat(audio.SampleFrom24Bit(b))
package audio
