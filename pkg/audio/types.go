// ABOUTME: Audio type definitions shared by decoders, devices and the mixer
// ABOUTME: Defines stream formats and float32 sample conversion helpers
package audio

import "math"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Codec names understood by the decode registry
const (
	CodecPCM    = "pcm"
	CodecWAV    = "wav"
	CodecAIFF   = "aiff"
	CodecMP3    = "mp3"
	CodecVorbis = "vorbis"
	CodecFLAC   = "flac"
	CodecOpus   = "opus"
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// FrameSize returns the number of interleaved samples in one frame.
func (f Format) FrameSize() int {
	if f.Channels < 1 {
		return 1
	}
	return f.Channels
}

// Int16ToFloat converts a signed 16-bit sample to [-1, 1)
func Int16ToFloat(sample int16) float32 {
	return float32(sample) / 32768
}

// FloatToInt16 converts a float sample to int16, clipping out-of-range input
func FloatToInt16(sample float32) int16 {
	v := Clip(sample) * 32767
	return int16(v)
}

// Int24ToFloat converts a sign-extended 24-bit sample to [-1, 1)
func Int24ToFloat(sample int32) float32 {
	return float32(sample) / 8388608
}

// FloatToInt24 converts a float sample to the 24-bit range, clipping out-of-range input
func FloatToInt24(sample float32) int32 {
	return int32(Clip(sample) * Max24Bit)
}

// IntToFloat normalizes an integer sample of the given bit depth
func IntToFloat(sample int, bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return float32(sample) / 128
	case 24:
		return float32(sample) / 8388608
	case 32:
		return float32(float64(sample) / 2147483648)
	default:
		return float32(sample) / 32768
	}
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// Clip hard-limits a sample to [-1, 1]. NaN maps to 0.
func Clip(sample float32) float32 {
	switch {
	case sample != sample:
		return 0
	case sample > 1:
		return 1
	case sample < -1:
		return -1
	}
	return sample
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// Sanitize replaces NaN and infinite samples with silence and clips the
// rest to [-1, 1] in place. It returns how many samples were replaced.
func Sanitize(buf []float32) int {
	replaced := 0
	for i, s := range buf {
		if !Finite(s) {
			buf[i] = 0
			replaced++
			continue
		}
		if s > 1 {
			buf[i] = 1
		} else if s < -1 {
			buf[i] = -1
		}
	}
	return replaced
}

// Peak returns the largest absolute sample value per channel of an
// interleaved stereo block.
func Peak(buf []float32) (left, right float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		l, r := buf[i], buf[i+1]
		if l < 0 {
			l = -l
		}
		if r < 0 {
			r = -r
		}
		if l > left {
			left = l
		}
		if r > right {
			right = r
		}
	}
	return left, right
}
