// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides the Decoder capability, adapters and a codec registry
// Package decode wraps codec libraries behind a single pull interface.
//
// Supported: raw PCM (16 and 24-bit), WAV and AIFF (go-audio), MP3
// (go-mp3), Ogg Vorbis (oggvorbis), FLAC (mewkiz/flac) and Ogg Opus
// (libopusfile through hraban/opus).
//
// Every decoder produces interleaved float32 samples in [-1, 1] so sound
// buffers never deal with integer encodings. Malformed input is reported
// as a *DecodeError.
//
// Example:
//
//	dec, err := decode.Open("footsteps.ogg")
//	if err != nil {
//	    return err
//	}
//	defer dec.Close()
//	samples, err := decode.ReadAll(dec)
package decode
