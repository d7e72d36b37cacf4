// ABOUTME: Codec registry mapping codec names and file extensions to decoders
// ABOUTME: Sniffs magic bytes when the caller does not name a codec
package decode

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// Registry holds decoder factories by codec name
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	exts      map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		exts:      make(map[string]string),
	}
}

// DefaultRegistry knows every container-based codec in this package
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(audio.CodecWAV, NewWAV, ".wav", ".wave")
	r.Register(audio.CodecAIFF, NewAIFF, ".aif", ".aiff", ".aifc")
	r.Register(audio.CodecMP3, NewMP3, ".mp3")
	r.Register(audio.CodecVorbis, NewVorbis, ".ogg", ".oga")
	r.Register(audio.CodecFLAC, NewFLAC, ".flac")
	r.Register(audio.CodecOpus, NewOpus, ".opus")
	return r
}

// Register adds or replaces the factory for codec and binds extensions to it
func (r *Registry) Register(codec string, f Factory, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[codec] = f
	for _, ext := range exts {
		r.exts[strings.ToLower(ext)] = codec
	}
}

// Lookup returns the factory registered for codec
func (r *Registry) Lookup(codec string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[codec]
	return f, ok
}

// CodecForPath returns the codec bound to the path's extension
func (r *Registry) CodecForPath(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, ok := r.exts[strings.ToLower(filepath.Ext(path))]
	return codec, ok
}

// NewDecoder builds a decoder for codec over rs. An empty codec is sniffed
// from the stream's leading bytes.
func (r *Registry) NewDecoder(rs io.ReadSeeker, codec string) (Decoder, error) {
	if codec == "" {
		sniffed, err := Sniff(rs)
		if err != nil {
			return nil, err
		}
		codec = sniffed
	}

	f, ok := r.Lookup(codec)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}

	d, err := f(rs)
	if err != nil {
		return nil, err
	}
	fmtInfo := d.Format()
	log.Debugf("Opened %s stream: %d Hz, %d channels, %d-bit",
		codec, fmtInfo.SampleRate, fmtInfo.Channels, fmtInfo.BitDepth)
	return d, nil
}

// Open opens a file and decodes it with the codec matching its contents,
// falling back to the extension. Closing the decoder closes the file.
func (r *Registry) Open(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	codec, err := Sniff(f)
	if err != nil {
		ext, ok := r.CodecForPath(path)
		if !ok {
			f.Close()
			return nil, err
		}
		codec = ext
	}

	d, err := r.NewDecoder(f, codec)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &fileDecoder{Decoder: d, f: f}, nil
}

// Open decodes a file using DefaultRegistry
func Open(path string) (Decoder, error) {
	return DefaultRegistry.Open(path)
}

// NewDecoder builds a decoder from DefaultRegistry
func NewDecoder(rs io.ReadSeeker, codec string) (Decoder, error) {
	return DefaultRegistry.NewDecoder(rs, codec)
}

// fileDecoder owns the file it decodes from
type fileDecoder struct {
	Decoder
	f *os.File
}

func (d *fileDecoder) Close() error {
	err := d.Decoder.Close()
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Sniff identifies the container from its magic bytes and rewinds rs
func Sniff(rs io.ReadSeeker) (string, error) {
	head := make([]byte, 64)
	n, err := io.ReadFull(rs, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	head = head[:n]
	if err := rewind(rs); err != nil {
		return "", err
	}

	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return audio.CodecWAV, nil
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("FORM")) &&
		(bytes.Equal(head[8:12], []byte("AIFF")) || bytes.Equal(head[8:12], []byte("AIFC"))):
		return audio.CodecAIFF, nil
	case bytes.HasPrefix(head, []byte("fLaC")):
		return audio.CodecFLAC, nil
	case bytes.HasPrefix(head, []byte("OggS")):
		if bytes.Contains(head, []byte("OpusHead")) {
			return audio.CodecOpus, nil
		}
		if bytes.Contains(head, []byte("\x01vorbis")) {
			return audio.CodecVorbis, nil
		}
	case bytes.HasPrefix(head, []byte("ID3")):
		return audio.CodecMP3, nil
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return audio.CodecMP3, nil
	}
	return "", ErrUnknownFormat
}
