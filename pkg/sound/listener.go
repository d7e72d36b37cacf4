// ABOUTME: Listener pose with an orthonormal basis
// ABOUTME: Converts world positions into listener-relative directions
package sound

import "github.com/go-gl/mathgl/mgl32"

const basisEpsilon = 1e-6

// Listener is the point of audition. Forward, Up and Right always form
// an orthonormal basis: +X right, +Y up, +Z forward.
type Listener struct {
	Position mgl32.Vec3
	Velocity mgl32.Vec3
	Forward  mgl32.Vec3
	Up       mgl32.Vec3
	Right    mgl32.Vec3
}

func defaultListener() Listener {
	return Listener{
		Forward: mgl32.Vec3{0, 0, 1},
		Up:      mgl32.Vec3{0, 1, 0},
		Right:   mgl32.Vec3{1, 0, 0},
	}
}

// setPose assigns a new pose. Forward is normalized and Up is made
// perpendicular to it; degenerate vectors keep the previous basis.
// It reports whether the basis was replaced.
func (l *Listener) setPose(position, forward, up, velocity mgl32.Vec3) bool {
	l.Position = finiteVec(position, l.Position)
	l.Velocity = finiteVec(velocity, l.Velocity)

	fl := forward.Len()
	if fl < basisEpsilon || !finite32(fl) {
		return false
	}
	f := forward.Mul(1 / fl)
	u := up.Sub(f.Mul(up.Dot(f)))
	ul := u.Len()
	if ul < basisEpsilon || !finite32(ul) {
		return false
	}
	u = u.Mul(1 / ul)

	l.Forward = f
	l.Up = u
	l.Right = u.Cross(f)
	return true
}

// local expresses a world-space offset in listener coordinates
func (l *Listener) local(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{v.Dot(l.Right), v.Dot(l.Up), v.Dot(l.Forward)}
}

func finiteVec(v, fallback mgl32.Vec3) mgl32.Vec3 {
	if !finite32(v[0]) || !finite32(v[1]) || !finite32(v[2]) {
		return fallback
	}
	return v
}
