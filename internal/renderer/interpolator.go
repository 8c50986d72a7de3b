package renderer

import (
	"math"

	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/scene"
)

// Mode selects the easing curve used between keyframes
type Mode int

const (
	// ModeRecord is evaluated once per output frame.
	ModeRecord Mode = iota
	// ModePreview drives the free-running preview loop.
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "record"
}

// At calculates the camera pose at time t by interpolating between the
// keyframes surrounding it. Times outside the path are clamped.
func At(set *director.KeyframeSet, t float64, mode Mode) scene.Pose {
	if math.IsNaN(t) || t <= 0 {
		return set.At(0).Pose()
	}
	if t >= set.Duration() {
		return set.At(set.Len() - 1).Pose()
	}

	i, j := set.Bracket(t)
	prev := set.At(i).Pose()
	if i == j {
		return prev
	}
	next := set.At(j).Pose()

	// Calculate interpolation factor (0.0 to 1.0)
	u := blendFactor(t, set.At(i).Time, set.At(j).Time)
	if u == 0 {
		return prev
	}
	eased := Ease(u, mode)

	return scene.Pose{
		Position: prev.Position.Lerp(next.Position, eased),
		LookAt:   prev.LookAt.Lerp(next.LookAt, eased),
		FOV:      lerp(prev.FOV, next.FOV, u),
	}
}

func blendFactor(t, from, to float64) float64 {
	span := to - from
	if span <= 0 {
		return 0
	}
	return (t - from) / span
}

// Ease applies the curve for mode to a blend factor in [0, 1].
func Ease(u float64, mode Mode) float64 {
	if mode == ModePreview {
		return smootherStep(u)
	}
	return smoothStep(u)
}

// smoothStep is the hermite curve 3u²-2u³
func smoothStep(u float64) float64 {
	return u * u * (3 - 2*u)
}

// smootherStep is the quintic curve 6u⁵-15u⁴+10u³
func smootherStep(u float64) float64 {
	return u * u * u * (u*(u*6-15) + 10)
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
