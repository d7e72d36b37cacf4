// ABOUTME: Distance attenuation, cone attenuation, doppler and panning laws
// ABOUTME: Pure functions evaluated once per source per render pass
package sound

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// DistanceModel selects how gain falls off with distance
type DistanceModel int

const (
	DistanceInverse DistanceModel = iota
	DistanceInverseSquare
	DistanceLinear
	DistanceExponent
	DistanceNone
)

func (m DistanceModel) String() string {
	switch m {
	case DistanceInverse:
		return "inverse"
	case DistanceInverseSquare:
		return "inverse-square"
	case DistanceLinear:
		return "linear"
	case DistanceExponent:
		return "exponent"
	case DistanceNone:
		return "none"
	}
	return fmt.Sprintf("distance(%d)", int(m))
}

// ParseDistanceModel accepts the names produced by String
func ParseDistanceModel(s string) (DistanceModel, error) {
	for m := DistanceInverse; m <= DistanceNone; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown distance model %q", s)
}

// Attenuation returns the distance gain in [0, 1] for a source at
// distance d. d is clamped to [ref, max]; every model is non-increasing in d.
func Attenuation(model DistanceModel, d, ref, maxDist, rolloff float32) float32 {
	if ref <= 0 {
		ref = minRadius
	}
	if maxDist < ref {
		maxDist = ref
	}
	if d < ref || d != d {
		d = ref
	}
	if d > maxDist {
		d = maxDist
	}
	if rolloff < 0 {
		rolloff = 0
	}

	switch model {
	case DistanceInverse:
		return ref / (ref + rolloff*(d-ref))
	case DistanceInverseSquare:
		g := ref / (ref + rolloff*(d-ref))
		return g * g
	case DistanceLinear:
		if maxDist == ref {
			return 1
		}
		g := 1 - rolloff*(d-ref)/(maxDist-ref)
		if g < 0 {
			return 0
		}
		return g
	case DistanceExponent:
		return float32(math.Pow(float64(d/ref), float64(-rolloff)))
	}
	return 1
}

// ConeGain returns the directional gain of a source facing dir as heard
// from toListener. Angles are full cone widths in degrees.
func ConeGain(dir, toListener mgl32.Vec3, inner, outer, outerGain float32) float32 {
	dl := dir.Len()
	tl := toListener.Len()
	if dl < basisEpsilon || tl < basisEpsilon || inner >= 360 {
		return 1
	}
	cos := dir.Dot(toListener) / (dl * tl)
	cos = mgl32.Clamp(cos, -1, 1)
	angle := float32(math.Acos(float64(cos))) * 2 * 180 / math.Pi

	switch {
	case angle <= inner:
		return 1
	case angle >= outer || outer <= inner:
		return outerGain
	}
	t := (angle - inner) / (outer - inner)
	return 1 + t*(outerGain-1)
}

// DopplerFactor returns the pitch multiplier for a source moving relative
// to the listener, clamped to [0.5, 2]
func DopplerFactor(listenerPos, listenerVel, sourcePos, sourceVel mgl32.Vec3, factor, speedOfSound float32) float32 {
	if factor <= 0 || speedOfSound <= 0 {
		return 1
	}
	sl := listenerPos.Sub(sourcePos)
	dist := sl.Len()
	if dist < basisEpsilon {
		return 1
	}
	limit := speedOfSound / factor
	vls := mgl32.Clamp(listenerVel.Dot(sl)/dist, -limit, limit*0.999)
	vss := mgl32.Clamp(sourceVel.Dot(sl)/dist, -limit, limit*0.999)

	d := (speedOfSound - factor*vls) / (speedOfSound - factor*vss)
	if d != d {
		return 1
	}
	return mgl32.Clamp(d, 0.5, 2)
}

// PanGains maps a pan position in [-1, 1] to equal-power channel gains
func PanGains(pan float32) (left, right float32) {
	pan = mgl32.Clamp(pan, -1, 1)
	angle := float64(pan+1) * math.Pi / 4
	return float32(math.Cos(angle)), float32(math.Sin(angle))
}

func finite32(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
