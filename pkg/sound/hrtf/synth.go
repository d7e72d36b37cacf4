// ABOUTME: Synthetic HRIR sphere from a rigid spherical head model
// ABOUTME: Models interaural delay and head shadow over a subdivided icosahedron
package hrtf

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	headRadius   = 0.0875 // metres
	speedOfSound = 343.0
)

// Synthesize builds a sphere whose responses model a spherical head:
// Woodworth interaural time difference plus a one-pole head shadow on the
// far ear. The mesh is an icosahedron subdivided twice (162 points).
func Synthesize(sampleRate, length int) *Sphere {
	if length <= 0 {
		length = 128
	}
	positions, faces := icosphere(2)

	s := &Sphere{
		SampleRate: sampleRate,
		Length:     length,
		Points:     make([]Point, len(positions)),
		Faces:      faces,
	}
	leftEar := mgl32.Vec3{-1, 0, 0}
	rightEar := mgl32.Vec3{1, 0, 0}
	for i, pos := range positions {
		s.Points[i] = Point{
			Pos:   pos,
			Left:  earResponse(pos, leftEar, sampleRate, length),
			Right: earResponse(pos, rightEar, sampleRate, length),
		}
	}
	return s
}

// earResponse renders one ear's impulse response for a source direction
func earResponse(dir, ear mgl32.Vec3, sampleRate, length int) []float32 {
	cos := float64(dir.Dot(ear))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	theta := math.Acos(cos)

	// Woodworth path difference around the head
	var delay float64
	if theta < math.Pi/2 {
		delay = headRadius / speedOfSound * (1 - cos)
	} else {
		delay = headRadius / speedOfSound * (theta - math.Pi/2 + 1)
	}

	gain := 0.35 + 0.65*(1+cos)/2
	pole := 0.6 * (1 - cos) / 2

	ir := make([]float32, length)
	pos := delay*float64(sampleRate) + 1
	i0 := int(pos)
	frac := pos - float64(i0)

	h := gain * (1 - pole)
	for m := 0; ; m++ {
		a := i0 + m
		if a >= length || h < 1e-6 {
			break
		}
		ir[a] += float32(h * (1 - frac))
		if a+1 < length {
			ir[a+1] += float32(h * frac)
		}
		h *= pole
		if pole == 0 {
			break
		}
	}
	return ir
}

// icosphere returns unit vertices and faces of a subdivided icosahedron
func icosphere(subdivisions int) ([]mgl32.Vec3, []Face) {
	t := float32((1 + math.Sqrt(5)) / 2)
	verts := []mgl32.Vec3{
		{-1, t, 0}, {1, t, 0}, {-1, -t, 0}, {1, -t, 0},
		{0, -1, t}, {0, 1, t}, {0, -1, -t}, {0, 1, -t},
		{t, 0, -1}, {t, 0, 1}, {-t, 0, -1}, {-t, 0, 1},
	}
	for i := range verts {
		verts[i] = verts[i].Normalize()
	}
	faces := []Face{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}

	for s := 0; s < subdivisions; s++ {
		mid := make(map[[2]uint32]uint32)
		midpoint := func(a, b uint32) uint32 {
			key := [2]uint32{a, b}
			if a > b {
				key = [2]uint32{b, a}
			}
			if idx, ok := mid[key]; ok {
				return idx
			}
			v := verts[a].Add(verts[b]).Normalize()
			verts = append(verts, v)
			idx := uint32(len(verts) - 1)
			mid[key] = idx
			return idx
		}

		next := make([]Face, 0, len(faces)*4)
		for _, f := range faces {
			ab := midpoint(f[0], f[1])
			bc := midpoint(f[1], f[2])
			ca := midpoint(f[2], f[0])
			next = append(next,
				Face{f[0], ab, ca},
				Face{f[1], bc, ab},
				Face{f[2], ca, bc},
				Face{ab, bc, ca},
			)
		}
		faces = next
	}
	return verts, faces
}
