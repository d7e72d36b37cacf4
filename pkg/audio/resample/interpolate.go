// ABOUTME: Sample interpolation kernels shared by the resampler and the mixer
// ABOUTME: Provides linear and Catmull-Rom cubic interpolation over a 4-frame window
package resample

// Mode selects the interpolation kernel
type Mode int

const (
	// Cubic uses a Catmull-Rom spline over four frames
	Cubic Mode = iota
	// Linear blends the two frames around the read position
	Linear
)

func (m Mode) String() string {
	switch m {
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	default:
		return "unknown"
	}
}

// ParseMode maps a config string to a Mode. Unknown names select Cubic.
func ParseMode(s string) Mode {
	if s == "linear" {
		return Linear
	}
	return Cubic
}

// CubicInterpolate performs Catmull-Rom interpolation.
// x is the fractional position between y1 and y2 (0 <= x <= 1).
func CubicInterpolate(y0, y1, y2, y3, x float32) float32 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1

	return ((a0*x+a1)*x+a2)*x + a3
}

// LinearInterpolate blends y1 and y2 at fractional position x.
func LinearInterpolate(y1, y2, x float32) float32 {
	return y1 + (y2-y1)*x
}

// Interpolate evaluates the kernel for mode over the window y0..y3.
// A zero fraction returns y1 exactly for every mode.
func Interpolate(mode Mode, y0, y1, y2, y3, x float32) float32 {
	if x == 0 {
		return y1
	}
	if mode == Linear {
		return LinearInterpolate(y1, y2, x)
	}
	return CubicInterpolate(y0, y1, y2, y3, x)
}
