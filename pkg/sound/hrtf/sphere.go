// ABOUTME: Head-related impulse response sphere and direction sampling
// ABOUTME: Blends the three measured responses surrounding a direction
package hrtf

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Resonate-Protocol/soundscape/pkg/audio/resample"
)

var (
	ErrTooFewPoints  = errors.New("hrir sphere needs at least three points")
	ErrBadFaceIndex  = errors.New("hrir face index out of range")
	ErrLengthInvalid = errors.New("hrir length must be positive")
)

// Point is one measured direction with its left and right ear responses.
// Directions use listener space: +X right, +Y up, +Z forward.
type Point struct {
	Pos   mgl32.Vec3
	Left  []float32
	Right []float32
}

// Face is a triangle of point indices
type Face [3]uint32

// Sphere is an immutable set of impulse responses covering all directions.
// It is shared read-only between every HRTF renderer.
type Sphere struct {
	SampleRate int
	Length     int
	Points     []Point
	Faces      []Face
}

// Validate checks indices and response lengths and normalizes positions
func (s *Sphere) Validate() error {
	if s.Length <= 0 {
		return ErrLengthInvalid
	}
	if len(s.Points) < 3 {
		return ErrTooFewPoints
	}
	for i := range s.Points {
		p := &s.Points[i]
		if len(p.Left) != s.Length || len(p.Right) != s.Length {
			return fmt.Errorf("point %d: response length %d/%d, want %d", i, len(p.Left), len(p.Right), s.Length)
		}
		if l := p.Pos.Len(); l > 0 {
			p.Pos = p.Pos.Mul(1 / l)
		}
	}
	for i, f := range s.Faces {
		for _, idx := range f {
			if int(idx) >= len(s.Points) {
				return fmt.Errorf("face %d: %w", i, ErrBadFaceIndex)
			}
		}
	}
	return nil
}

// Resampled returns a copy of the sphere with responses converted to rate.
func (s *Sphere) Resampled(rate int) *Sphere {
	if rate == s.SampleRate {
		return s
	}
	out := &Sphere{
		SampleRate: rate,
		Faces:      s.Faces,
		Points:     make([]Point, len(s.Points)),
	}
	for i, p := range s.Points {
		out.Points[i] = Point{
			Pos:   p.Pos,
			Left:  resample.Convert(p.Left, 1, s.SampleRate, rate, resample.Cubic),
			Right: resample.Convert(p.Right, 1, s.SampleRate, rate, resample.Cubic),
		}
	}
	out.Length = len(out.Points[0].Left)
	// Conversion rounding can differ by a sample between points
	for i := range out.Points {
		out.Points[i].Left = fitLength(out.Points[i].Left, out.Length)
		out.Points[i].Right = fitLength(out.Points[i].Right, out.Length)
	}
	return out
}

func fitLength(ir []float32, n int) []float32 {
	if len(ir) == n {
		return ir
	}
	out := make([]float32, n)
	copy(out, ir)
	return out
}

// Sample writes the response pair for dir into left and right, which must
// hold Length samples. dir need not be normalized; a zero vector selects
// straight ahead. Sample does not allocate.
func (s *Sphere) Sample(dir mgl32.Vec3, left, right []float32) {
	l := dir.Len()
	if l < 1e-6 || math.IsNaN(float64(l)) {
		dir = mgl32.Vec3{0, 0, 1}
	} else {
		dir = dir.Mul(1 / l)
	}

	var idx [3]int
	var w [3]float32
	if !s.intersect(dir, &idx, &w) {
		s.nearest(dir, &idx, &w)
	}

	for i := 0; i < s.Length; i++ {
		left[i] = 0
		right[i] = 0
	}
	for k := 0; k < 3; k++ {
		if w[k] == 0 {
			continue
		}
		p := &s.Points[idx[k]]
		for i := 0; i < s.Length; i++ {
			left[i] += p.Left[i] * w[k]
			right[i] += p.Right[i] * w[k]
		}
	}
}

// intersect casts a ray from the sphere center along dir and returns the
// barycentric weights of the first face it crosses.
func (s *Sphere) intersect(dir mgl32.Vec3, idx *[3]int, w *[3]float32) bool {
	const eps = 1e-5
	for _, f := range s.Faces {
		a := s.Points[f[0]].Pos
		b := s.Points[f[1]].Pos
		c := s.Points[f[2]].Pos

		// Möller-Trumbore with the ray origin at zero
		e1 := b.Sub(a)
		e2 := c.Sub(a)
		p := dir.Cross(e2)
		det := e1.Dot(p)
		if det > -eps && det < eps {
			continue
		}
		inv := 1 / det
		tv := a.Mul(-1)
		u := tv.Dot(p) * inv
		if u < -eps || u > 1+eps {
			continue
		}
		q := tv.Cross(e1)
		v := dir.Dot(q) * inv
		if v < -eps || u+v > 1+eps {
			continue
		}
		if t := e2.Dot(q) * inv; t <= 0 {
			continue
		}

		u = clamp01(u)
		v = clamp01(v)
		if u+v > 1 {
			sum := u + v
			u /= sum
			v /= sum
		}
		idx[0], idx[1], idx[2] = int(f[0]), int(f[1]), int(f[2])
		w[0], w[1], w[2] = 1-u-v, u, v
		return true
	}
	return false
}

// nearest weights the three closest points by inverse distance
func (s *Sphere) nearest(dir mgl32.Vec3, idx *[3]int, w *[3]float32) {
	dist := [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	for i := range s.Points {
		d := s.Points[i].Pos.Sub(dir).Len()
		for k := 0; k < 3; k++ {
			if d < dist[k] {
				copy(dist[k+1:], dist[k:2])
				copy(idx[k+1:], idx[k:2])
				dist[k] = d
				idx[k] = i
				break
			}
		}
	}

	if dist[0] < 1e-6 {
		w[0], w[1], w[2] = 1, 0, 0
		return
	}
	var sum float32
	for k := 0; k < 3; k++ {
		w[k] = 1 / dist[k]
		sum += w[k]
	}
	for k := 0; k < 3; k++ {
		w[k] /= sum
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
