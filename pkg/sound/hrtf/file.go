// ABOUTME: Binary HRIR sphere file reader and writer
// ABOUTME: Little-endian layout: header, face indices, then per-point responses
package hrtf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
)

// File layout, all little-endian:
//
//	magic       [4]byte "HRIR"
//	sample rate u32
//	length      u32  samples per response
//	points      u32
//	indices     u32  multiple of three
//	index data  [indices]u32
//	per point   x, y, z f32, left [length]f32, right [length]f32
var magic = [4]byte{'H', 'R', 'I', 'R'}

// Upper bounds that keep a corrupt header from forcing huge allocations
const (
	maxLength = 1 << 16
	maxPoints = 1 << 16
)

var ErrBadMagic = errors.New("not an HRIR sphere file")

type header struct {
	Magic      [4]byte
	SampleRate uint32
	Length     uint32
	Points     uint32
	Indices    uint32
}

// Load reads a sphere from r
func Load(r io.Reader) (*Sphere, error) {
	br := bufio.NewReader(r)

	var h header
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read hrir header: %w", err)
	}
	if h.Magic != magic {
		return nil, ErrBadMagic
	}
	if h.Length == 0 || h.Length > maxLength {
		return nil, ErrLengthInvalid
	}
	if h.Points < 3 || h.Points > maxPoints {
		return nil, ErrTooFewPoints
	}
	if h.Indices%3 != 0 || h.Indices > 6*maxPoints {
		return nil, fmt.Errorf("hrir index count %d is not a triangle list", h.Indices)
	}

	indices := make([]uint32, h.Indices)
	if err := binary.Read(br, binary.LittleEndian, indices); err != nil {
		return nil, fmt.Errorf("read hrir faces: %w", err)
	}

	s := &Sphere{
		SampleRate: int(h.SampleRate),
		Length:     int(h.Length),
		Points:     make([]Point, h.Points),
		Faces:      make([]Face, h.Indices/3),
	}
	for i := range s.Faces {
		s.Faces[i] = Face{indices[i*3], indices[i*3+1], indices[i*3+2]}
	}

	var pos [3]float32
	for i := range s.Points {
		p := &s.Points[i]
		if err := binary.Read(br, binary.LittleEndian, &pos); err != nil {
			return nil, fmt.Errorf("read hrir point %d: %w", i, err)
		}
		p.Pos = mgl32.Vec3(pos)
		p.Left = make([]float32, s.Length)
		p.Right = make([]float32, s.Length)
		if err := binary.Read(br, binary.LittleEndian, p.Left); err != nil {
			return nil, fmt.Errorf("read hrir point %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, p.Right); err != nil {
			return nil, fmt.Errorf("read hrir point %d: %w", i, err)
		}
		if !finite(p.Left) || !finite(p.Right) {
			return nil, fmt.Errorf("hrir point %d has non-finite samples", i)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile reads a sphere from disk
func LoadFile(path string) (*Sphere, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("Loaded HRIR sphere %s: %d points, %d faces, %d taps at %d Hz",
		path, len(s.Points), len(s.Faces), s.Length, s.SampleRate)
	return s, nil
}

// Write encodes the sphere in the binary layout read by Load
func (s *Sphere) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	h := header{
		Magic:      magic,
		SampleRate: uint32(s.SampleRate),
		Length:     uint32(s.Length),
		Points:     uint32(len(s.Points)),
		Indices:    uint32(len(s.Faces) * 3),
	}
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return err
	}
	for _, f := range s.Faces {
		if err := binary.Write(bw, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	for _, p := range s.Points {
		if err := binary.Write(bw, binary.LittleEndian, [3]float32(p.Pos)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, p.Left); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, p.Right); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func finite(v []float32) bool {
	for _, s := range v {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return false
		}
	}
	return true
}
