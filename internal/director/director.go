package director

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/scene2video/internal/scene"
)

const (
	DefaultDuration = 20.0 // Single asset orbit and minimum video length (seconds)
	IntroDuration   = 6.0  // Establishing phase of a multi-asset tour
	MinPerAsset     = 4.0  // Minimum tour slice per asset
)

// orbitStep is one shot of the single-asset close orbit.
type orbitStep struct {
	time     float64
	focus    string
	distance float64
	height   float64
	fov      float64
	angle    float64 // radians added to the seed angle
}

// The orbit closes in to the closest approach at 12s and pulls back out.
var closeOrbit = []orbitStep{
	{0, "establishing", 12, 4, 55, 0},
	{3, "approach", 9, 3, 50, 0.5},
	{6, "approach", 7, 2.2, 45, 1.0},
	{9, "approach", 5, 1.5, 38, 1.6},
	{12, "closest", 3, 0.8, 30, 2.3},
	{15, "retreat", 5.5, 1.8, 40, 3.0},
	{18, "retreat", 9, 3, 50, 3.6},
	{20, "wide", 13, 5, 58, 4.0},
}

// Director generates camera paths from the asset layout of a scene
type Director struct {
	IntroDuration   float64
	MinPerAsset     float64
	DefaultDuration float64
	Logger          zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDirector creates a Director with default timings. A nil rng is seeded
// from the clock, so paths differ between recordings.
func NewDirector(rng *rand.Rand) *Director {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Director{
		IntroDuration:   IntroDuration,
		MinPerAsset:     MinPerAsset,
		DefaultDuration: DefaultDuration,
		Logger:          zerolog.Nop(),
		rng:             rng,
	}
}

// Generate builds the camera path for the given assets and returns it with
// the target video duration. start, if not nil, is the pose the user was
// looking through and becomes the first keyframe.
func (d *Director) Generate(assets []scene.AssetPlacement, start *scene.Pose) (*KeyframeSet, float64) {
	valid := d.validAssets(assets)

	d.mu.Lock()
	seed := d.rng.Float64() * 2 * math.Pi
	d.mu.Unlock()

	var (
		frames []Keyframe
		target float64
	)
	switch len(valid) {
	case 0:
		frames, target = defaultFrames(), d.DefaultDuration
	case 1:
		frames, target = d.closeOrbit(valid[0], start, seed), d.DefaultDuration
	default:
		frames, target = d.tour(valid, start, seed)
	}

	set, err := NewKeyframeSet(frames)
	if err != nil {
		// Unreachable with the generators above, degrade anyway.
		d.Logger.Warn().Err(err).Msg("path generation failed, using default path")
		set = DefaultPath()
		target = d.DefaultDuration
	}

	d.Logger.Debug().
		Int("assets", len(valid)).
		Int("keyframes", set.Len()).
		Float64("duration", target).
		Msg("camera path generated")

	return set, target
}

// TargetDuration is the video length for a tour of n assets.
func (d *Director) TargetDuration(n int) float64 {
	if n < 2 {
		return d.DefaultDuration
	}
	return math.Max(d.DefaultDuration, d.IntroDuration+float64(n)*d.MinPerAsset)
}

// validAssets drops placements with non-finite coordinates.
func (d *Director) validAssets(assets []scene.AssetPlacement) []scene.AssetPlacement {
	valid := make([]scene.AssetPlacement, 0, len(assets))
	for _, a := range assets {
		if !a.Position.Finite() {
			d.Logger.Warn().Str("asset", a.ID).Msg("ignoring asset with invalid position")
			continue
		}
		valid = append(valid, a)
	}
	return valid
}

// DefaultPath is the single keyframe path used when there is nothing to frame.
func DefaultPath() *KeyframeSet {
	set, _ := NewKeyframeSet(defaultFrames())
	return set
}

func defaultFrames() []Keyframe {
	p := scene.DefaultPose()
	return []Keyframe{{
		Time:     0,
		Focus:    "origin",
		Position: p.Position,
		LookAt:   scene.Vec3{},
		FOV:      p.FOV,
	}}
}

func (d *Director) closeOrbit(asset scene.AssetPlacement, start *scene.Pose, seed float64) []Keyframe {
	target := asset.Position
	frames := make([]Keyframe, 0, len(closeOrbit))

	for i, step := range closeOrbit {
		if i == 0 && start != nil {
			frames = append(frames, startKeyframe(*start))
			continue
		}
		frames = append(frames, Keyframe{
			Time:     step.time * d.DefaultDuration / DefaultDuration,
			Focus:    fmt.Sprintf("%s:%s", step.focus, asset.ID),
			Position: orbitPoint(target, seed+step.angle, step.distance, step.height),
			LookAt:   target,
			FOV:      step.fov,
		})
	}

	return frames
}

func (d *Director) tour(assets []scene.AssetPlacement, start *scene.Pose, seed float64) ([]Keyframe, float64) {
	n := len(assets)
	target := d.TargetDuration(n)
	perAsset := (target - d.IntroDuration) / float64(n)

	center := centroid(assets)
	radius := spread(assets, center)

	var frames []Keyframe

	// Intro: establishing shots circling the centroid
	introShots := []struct {
		at, angle, distance, height, fov float64
	}{
		{0, 0, 2.6, 1.2, 55},
		{d.IntroDuration / 3, 0.6, 2.3, 1.0, 52},
		{2 * d.IntroDuration / 3, 1.2, 2.0, 0.8, 50},
	}
	for i, shot := range introShots {
		if i == 0 && start != nil {
			frames = append(frames, startKeyframe(*start))
			continue
		}
		frames = append(frames, Keyframe{
			Time:     shot.at,
			Focus:    "establishing",
			Position: orbitPoint(center, seed+shot.angle, shot.distance*radius, shot.height*radius),
			LookAt:   center,
			FOV:      shot.fov,
		})
	}

	// Tour: approach and close-up per asset, transitions look ahead
	for i, a := range assets {
		sliceStart := d.IntroDuration + float64(i)*perAsset
		out := outward(a.Position, center, seed)

		frames = append(frames,
			Keyframe{
				Time:     sliceStart,
				Focus:    "approach:" + a.ID,
				Position: a.Position.Add(out.Scale(6)).Add(scene.V(0, 2, 0)),
				LookAt:   a.Position,
				FOV:      45,
			},
			Keyframe{
				Time:     sliceStart + 0.5*perAsset,
				Focus:    "closeup:" + a.ID,
				Position: a.Position.Add(out.Scale(2.5)).Add(scene.V(0, 0.8, 0)),
				LookAt:   a.Position,
				FOV:      32,
			},
		)

		if i+1 < n {
			next := assets[i+1]
			nextApproach := next.Position.Add(outward(next.Position, center, seed).Scale(6)).Add(scene.V(0, 2, 0))
			closeup := a.Position.Add(out.Scale(2.5)).Add(scene.V(0, 0.8, 0))
			frames = append(frames, Keyframe{
				Time:     sliceStart + 0.85*perAsset,
				Focus:    "transition:" + next.ID,
				Position: closeup.Lerp(nextApproach, 0.5).Add(scene.V(0, 1, 0)),
				LookAt:   next.Position,
				FOV:      42,
			})
		}
	}

	// Closing pull-back
	frames = append(frames, Keyframe{
		Time:     target,
		Focus:    "pullback",
		Position: orbitPoint(center, seed+math.Pi, 2.6*radius, 1.4*radius),
		LookAt:   center,
		FOV:      55,
	})

	return frames, target
}

func startKeyframe(p scene.Pose) Keyframe {
	return Keyframe{
		Time:     0,
		Focus:    "start",
		Position: p.Position,
		LookAt:   p.LookAt,
		FOV:      p.FOV,
	}
}

// orbitPoint places the camera on a circle around target.
func orbitPoint(target scene.Vec3, angle, distance, height float64) scene.Vec3 {
	return scene.Vec3{
		X: target.X + distance*math.Sin(angle),
		Y: target.Y + height,
		Z: target.Z + distance*math.Cos(angle),
	}
}

func centroid(assets []scene.AssetPlacement) scene.Vec3 {
	var sum scene.Vec3
	for _, a := range assets {
		sum = sum.Add(a.Position)
	}
	return sum.Scale(1 / float64(len(assets)))
}

// spread is the largest distance of an asset from the centroid, at least 4 units.
func spread(assets []scene.AssetPlacement, center scene.Vec3) float64 {
	r := 4.0
	for _, a := range assets {
		r = math.Max(r, a.Position.Sub(center).Len())
	}
	return r
}

// outward is the horizontal direction from the centroid to an asset. Assets
// sitting on the centroid use the seed direction.
func outward(p, center scene.Vec3, seed float64) scene.Vec3 {
	dir := p.Sub(center)
	dir.Y = 0
	if dir.Len() < 1e-6 {
		return scene.V(math.Sin(seed), 0, math.Cos(seed))
	}
	return dir.Normalize()
}
