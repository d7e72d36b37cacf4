// ABOUTME: Audio output package for callback-driven playback backends
// ABOUTME: Provides the Device interface with malgo, oto, portaudio and manual devices
// Package output binds the mixing engine to playback hardware.
//
// Every backend is pull based: the device owns the real-time thread and
// calls a Callback to fill each block with interleaved float32 samples.
//
// Backends:
//   - Malgo: miniaudio through cgo, the default
//   - Oto: pure Go players on most platforms
//   - PortAudio: build with -tags portaudio
//   - Manual: no hardware, blocks are pulled explicitly or by a ticker
//
// Example:
//
//	dev, _ := output.New("malgo")
//	err := dev.Open(output.Config{SampleRate: 48000, Channels: 2, BlockFrames: 512}, render)
//	err = dev.Start()
package output
