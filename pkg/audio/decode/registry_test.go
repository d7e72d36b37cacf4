// ABOUTME: Tests for the codec registry and format sniffing
// ABOUTME: Covers magic-byte detection, lookups and malformed input errors
package decode

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

func TestSniff(t *testing.T) {
	t.Parallel()

	oggPage := func(payload string) []byte {
		b := make([]byte, 28)
		copy(b, "OggS")
		b[26] = 1
		b[27] = byte(len(payload))
		return append(b, payload...)
	}

	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), audio.CodecWAV},
		{"aiff", []byte("FORM\x00\x00\x00\x00AIFFCOMM"), audio.CodecAIFF},
		{"aifc", []byte("FORM\x00\x00\x00\x00AIFCFVER"), audio.CodecAIFF},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), audio.CodecFLAC},
		{"opus", oggPage("OpusHead\x01\x02"), audio.CodecOpus},
		{"vorbis", oggPage("\x01vorbis\x00\x00"), audio.CodecVorbis},
		{"mp3 id3", []byte("ID3\x04\x00"), audio.CodecMP3},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90, 0x00}, audio.CodecMP3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := bytes.NewReader(tt.head)
			got, err := Sniff(r)
			if err != nil {
				t.Fatalf("Sniff: %v", err)
			}
			if got != tt.want {
				t.Errorf("Sniff = %q, want %q", got, tt.want)
			}
			if pos, _ := r.Seek(0, io.SeekCurrent); pos != 0 {
				t.Errorf("expected reader rewound, at %d", pos)
			}
		})
	}
}

func TestSniffUnknown(t *testing.T) {
	_, err := Sniff(bytes.NewReader([]byte("hello world")))
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	format := audio.Format{Codec: audio.CodecPCM, SampleRate: 8000, Channels: 1, BitDepth: 16}
	r.Register(audio.CodecPCM, PCMFactory(format), ".RAW")

	if codec, ok := r.CodecForPath("/tmp/x.raw"); !ok || codec != audio.CodecPCM {
		t.Errorf("expected extension lookup to be case-insensitive, got %q %v", codec, ok)
	}

	dec, err := r.NewDecoder(bytes.NewReader([]byte{0, 0x40}), audio.CodecPCM)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.Format().SampleRate != 8000 {
		t.Errorf("unexpected format %+v", dec.Format())
	}

	if _, err := r.NewDecoder(bytes.NewReader(nil), "speex"); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestDefaultRegistryCodecs(t *testing.T) {
	for _, codec := range []string{
		audio.CodecWAV, audio.CodecAIFF, audio.CodecMP3,
		audio.CodecVorbis, audio.CodecFLAC, audio.CodecOpus,
	} {
		if _, ok := DefaultRegistry.Lookup(codec); !ok {
			t.Errorf("default registry is missing %s", codec)
		}
	}
}

func TestMalformedInputIsDecodeError(t *testing.T) {
	garbage := bytes.Repeat([]byte{0x13, 0x37}, 512)

	tests := []struct {
		name    string
		factory Factory
	}{
		{"flac", NewFLAC},
		{"vorbis", NewVorbis},
		{"wav", NewWAV},
		{"opus", NewOpus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.factory(bytes.NewReader(garbage))
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %v", err)
			}
			if de.Codec != tt.name {
				t.Errorf("expected codec %q, got %q", tt.name, de.Codec)
			}
		})
	}
}

func TestOpusChannels(t *testing.T) {
	page := make([]byte, 28)
	copy(page, "OggS")
	page[26] = 1
	page[27] = 19
	page = append(page, []byte("OpusHead\x01\x02\x38\x01\x80\xbb\x00\x00\x00\x00\x00")...)

	r := bytes.NewReader(page)
	ch, err := opusChannels(r)
	if err != nil {
		t.Fatalf("opusChannels: %v", err)
	}
	if ch != 2 {
		t.Errorf("expected 2 channels, got %d", ch)
	}
}
