// ABOUTME: Audio encoder package for writing rendered engine output
// ABOUTME: Provides the Encoder interface and raw PCM and WAV implementations
// Package encode writes interleaved float32 engine output to files.
//
// Supports: raw PCM (16-bit and 24-bit little-endian) and WAV (16-bit and
// 24-bit, through go-audio/wav).
//
// Samples are clipped to [-1, 1] before quantization.
//
// Example:
//
//	enc, err := encode.New(f, audio.Format{Codec: audio.CodecWAV, SampleRate: 48000, Channels: 2, BitDepth: 16})
//	err = enc.Write(block)
//	err = enc.Close()
package encode
