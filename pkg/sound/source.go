// ABOUTME: Source playback state, cursor and parameter sanitizing
// ABOUTME: Sources are owned by the render side and named by generational handles
package sound

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Resonate-Protocol/soundscape/pkg/audio/resample"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/hrtf"
)

// Renderer selects how a spatial source reaches the two output channels
type Renderer int

const (
	RendererPanning Renderer = iota
	RendererHRTF
)

func (r Renderer) String() string {
	if r == RendererHRTF {
		return "hrtf"
	}
	return "panning"
}

const (
	maxGain   = 16
	minPitch  = 1.0 / 64
	maxPitch  = 16
	minRadius = 1e-3
)

// SourceOptions describes a new source. Zero Gain, Pitch, Radius,
// MaxDistance, Rolloff and cone angles select their defaults.
type SourceOptions struct {
	Buffer   *Buffer
	Gain     float32
	Pitch    float32
	Looping  bool
	Spatial  bool
	Renderer Renderer
	PlayOnce bool // destroy automatically once stopped
	Bus      BusHandle

	Position  mgl32.Vec3
	Velocity  mgl32.Vec3
	Direction mgl32.Vec3 // zero is omnidirectional

	ConeInner     float32 // full angle in degrees
	ConeOuter     float32
	ConeOuterGain float32

	Radius      float32 // reference distance
	MaxDistance float32
	Rolloff     float32
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.Gain == 0 {
		o.Gain = 1
	}
	if o.Pitch == 0 {
		o.Pitch = 1
	}
	if o.Radius == 0 {
		o.Radius = 1
	}
	if o.MaxDistance == 0 {
		o.MaxDistance = math.MaxFloat32
	}
	if o.Rolloff == 0 {
		o.Rolloff = 1
	}
	if o.ConeInner == 0 {
		o.ConeInner = 360
	}
	if o.ConeOuter == 0 {
		o.ConeOuter = 360
	}
	return o
}

func (o SourceOptions) validate() error {
	for _, v := range []float32{o.Gain, o.Pitch, o.Radius, o.MaxDistance, o.Rolloff, o.ConeInner, o.ConeOuter, o.ConeOuterGain} {
		if !finite32(v) {
			return ErrInvalidParameter
		}
	}
	for _, v := range []mgl32.Vec3{o.Position, o.Velocity, o.Direction} {
		if !finiteVec3(v) {
			return ErrInvalidParameter
		}
	}
	return nil
}

func finiteVec3(v mgl32.Vec3) bool {
	return finite32(v[0]) && finite32(v[1]) && finite32(v[2])
}

func clampGain(g float32) float32   { return mgl32.Clamp(g, 0, maxGain) }
func clampPitch(p float32) float32  { return mgl32.Clamp(p, minPitch, maxPitch) }
func clampAngle(a float32) float32  { return mgl32.Clamp(a, 0, 360) }
func clampRadius(r float32) float32 { return max(r, minRadius) }

// Source is one playing voice. All fields belong to the render side once
// the source is published.
type Source struct {
	handle   Handle
	buffer   *Buffer
	state    State
	playOnce bool

	gain     float32
	pitch    float32
	looping  bool
	spatial  bool
	renderer Renderer
	bus      BusHandle

	position  mgl32.Vec3
	velocity  mgl32.Vec3
	direction mgl32.Vec3

	coneInner     float32
	coneOuter     float32
	coneOuterGain float32

	radius      float32
	maxDistance float32
	rolloff     float32

	// Interpolation window: window[1] is the frame at the cursor
	window [4][2]float32
	valid  [4]bool
	frac   float64
	next   int64 // static: next frame to fetch
	pos    int64 // frame index at window[1]
	primed bool
	cued   bool // seeked since the last rewind; Play starts here

	// Gains applied at the end of the previous pass
	prevLeft, prevRight float32
	prevMono            float32
	smoothed            bool

	underrunning bool
	conv         *hrtf.Convolver
}

func newSource(h Handle, o SourceOptions) *Source {
	return &Source{
		handle:        h,
		buffer:        o.Buffer,
		playOnce:      o.PlayOnce,
		gain:          clampGain(o.Gain),
		pitch:         clampPitch(o.Pitch),
		looping:       o.Looping,
		spatial:       o.Spatial,
		renderer:      o.Renderer,
		bus:           o.Bus,
		position:      o.Position,
		velocity:      o.Velocity,
		direction:     o.Direction,
		coneInner:     clampAngle(o.ConeInner),
		coneOuter:     clampAngle(o.ConeOuter),
		coneOuterGain: mgl32.Clamp(o.ConeOuterGain, 0, 1),
		radius:        clampRadius(o.Radius),
		maxDistance:   clampRadius(o.MaxDistance),
		rolloff:       max(o.Rolloff, 0),
	}
}

// play applies the Play transition
func (s *Source) play() {
	switch s.state {
	case Playing:
		return
	case Paused:
		s.state = Playing
		s.smoothed = false
		return
	}
	// Stopped or stopping restart from the beginning unless a seek cued
	// another position
	s.state = Playing
	if s.cued {
		s.cued = false
	} else {
		s.rewind()
	}
	s.smoothed = false
	if s.conv != nil {
		s.conv.Reset()
	}
}

// pause applies the Pause transition; pausing twice changes nothing
func (s *Source) pause() {
	if s.state == Playing {
		s.state = Paused
	}
}

// stop applies the Stop transition and reports whether a stop event is due
// now. Playing sources fade out during the current pass instead.
func (s *Source) stop() bool {
	switch s.state {
	case Playing:
		s.state = stopping
		return false
	case Paused:
		s.state = Stopped
		s.rewind()
		return true
	}
	return false
}

// finish moves an audible source to Stopped at the end of a pass
func (s *Source) finish() {
	s.state = Stopped
	s.rewind()
}

// setBuffer swaps the buffer, restarting the cursor. The caller releases
// the previous buffer.
func (s *Source) setBuffer(b *Buffer) *Buffer {
	old := s.buffer
	s.buffer = b
	s.primed = false
	s.cued = false
	s.pos = 0
	s.next = 0
	s.frac = 0
	return old
}

// rewind resets the cursor to frame 0, or to a stream seek the control
// side requested and the render side has not seen yet
func (s *Source) rewind() {
	s.primed = false
	s.cued = false
	s.pos = 0
	s.next = 0
	s.frac = 0
	s.underrunning = false
	if s.buffer != nil && s.buffer.stream != nil {
		s.pos = s.buffer.stream.rewind()
	}
}

// seek moves the cursor to frame
func (s *Source) seek(frame int64) {
	b := s.buffer
	if b == nil {
		return
	}
	if frame < 0 {
		frame = 0
	}
	s.primed = false
	s.cued = true
	s.frac = 0
	s.underrunning = false
	if b.stream != nil {
		b.stream.seek(frame)
		s.pos = frame
		return
	}
	if frame > b.frames {
		frame = b.frames
	}
	s.next = frame
	s.pos = frame
}

func (s *Source) setLooping(on bool) {
	s.looping = on
	if s.buffer != nil && s.buffer.stream != nil {
		s.buffer.stream.looping.Store(on)
	}
}

// fetch reads the next buffer frame into f and reports whether it exists
func (s *Source) fetch(f *[2]float32) (ok bool, underrun bool) {
	b := s.buffer
	if b == nil {
		f[0], f[1] = 0, 0
		return false, false
	}
	if st := b.stream; st != nil {
		switch st.nextFrame(f) {
		case frameOK:
			return true, false
		case frameUnderrun:
			return true, true
		}
		if s.looping {
			st.seek(0)
			return true, true
		}
		return false, false
	}

	if s.next >= b.frames {
		if !s.looping || b.frames == 0 {
			f[0], f[1] = 0, 0
			return false, false
		}
		s.next = 0
	}
	i := int(s.next) * b.channels
	f[0] = b.samples[i]
	f[1] = f[0]
	if b.channels == 2 {
		f[1] = b.samples[i+1]
	}
	s.next++
	return true, false
}

// prime fills the interpolation window at the cursor
func (s *Source) prime() (underrun bool) {
	s.window[0] = [2]float32{}
	s.valid[0] = false
	for i := 1; i < 4; i++ {
		ok, u := s.fetch(&s.window[i])
		s.valid[i] = ok
		underrun = underrun || u
	}
	s.primed = true
	return underrun
}

// read renders up to frames stereo frames into dst advancing by step
// buffer frames per output frame. It returns the number of frames produced
// before the buffer ended and whether any frame was an underrun.
func (s *Source) read(dst []float32, frames int, step float64, mode resample.Mode) (int, bool) {
	underrun := false
	if !s.primed {
		underrun = s.prime()
	}
	w := &s.window
	for i := 0; i < frames; i++ {
		if !s.valid[1] {
			return i, underrun
		}
		x := float32(s.frac)
		dst[i*2] = resample.Interpolate(mode, w[0][0], w[1][0], w[2][0], w[3][0], x)
		dst[i*2+1] = resample.Interpolate(mode, w[0][1], w[1][1], w[2][1], w[3][1], x)

		s.frac += step
		for s.frac >= 1 {
			s.frac--
			w[0], w[1], w[2] = w[1], w[2], w[3]
			s.valid[0], s.valid[1], s.valid[2] = s.valid[1], s.valid[2], s.valid[3]
			ok, u := s.fetch(&w[3])
			s.valid[3] = ok
			underrun = underrun || u
			s.advancePos()
		}
	}
	return frames, underrun
}

// exhausted reports whether the window has run past the last frame, so
// the next read would produce nothing
func (s *Source) exhausted() bool {
	return s.primed && !s.valid[1]
}

func (s *Source) advancePos() {
	s.pos++
	if b := s.buffer; b != nil && s.looping && b.frames > 0 && s.pos >= b.frames {
		s.pos -= b.frames
	}
}

// cursor returns the playback position in frames and seconds
func (s *Source) cursor() (int64, float64) {
	if s.buffer == nil {
		return 0, 0
	}
	return s.pos, (float64(s.pos) + s.frac) / float64(s.buffer.sampleRate)
}
