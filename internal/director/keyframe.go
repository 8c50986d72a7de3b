package director

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ivlev/scene2video/internal/scene"
)

// Path is the on-disk form of a generated camera path
type Path struct {
	Version   string     `yaml:"version"`
	Scene     string     `yaml:"scene,omitempty"`
	Duration  float64    `yaml:"duration"` // Target video duration in seconds
	Keyframes []Keyframe `yaml:"keyframes"`
}

// Keyframe represents a camera pose anchored at a specific time
type Keyframe struct {
	Time     float64    `yaml:"time"`  // Time offset in seconds
	Focus    string     `yaml:"focus"` // Description of what the shot frames
	Position scene.Vec3 `yaml:"position"`
	LookAt   scene.Vec3 `yaml:"look_at"`
	FOV      float64    `yaml:"fov,omitempty"` // Degrees, 0 means scene.DefaultFOV
}

// Pose returns the camera pose of the keyframe with the field of view resolved.
func (k Keyframe) Pose() scene.Pose {
	fov := k.FOV
	if fov <= 0 {
		fov = scene.DefaultFOV
	}
	return scene.Pose{Position: k.Position, LookAt: k.LookAt, FOV: fov}
}

var ErrEmptyPath = errors.New("keyframe set needs at least one keyframe")

// KeyframeSet is an immutable camera path sorted ascending by time.
type KeyframeSet struct {
	frames []Keyframe
}

// NewKeyframeSet copies and sorts frames. Keyframes with equal times keep
// their relative order.
func NewKeyframeSet(frames []Keyframe) (*KeyframeSet, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyPath
	}

	sorted := make([]Keyframe, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time < sorted[j].Time
	})

	if sorted[0].Time < 0 {
		return nil, fmt.Errorf("keyframe at negative time %.3f", sorted[0].Time)
	}

	return &KeyframeSet{frames: sorted}, nil
}

func (s *KeyframeSet) Len() int {
	return len(s.frames)
}

func (s *KeyframeSet) At(i int) Keyframe {
	return s.frames[i]
}

// Keyframes returns a copy of the keyframes.
func (s *KeyframeSet) Keyframes() []Keyframe {
	out := make([]Keyframe, len(s.frames))
	copy(out, s.frames)
	return out
}

// Duration is the time of the last keyframe.
func (s *KeyframeSet) Duration() float64 {
	return s.frames[len(s.frames)-1].Time
}

// Bracket returns the indices of the keyframes surrounding t. t must already
// be clamped into [0, Duration].
func (s *KeyframeSet) Bracket(t float64) (int, int) {
	// first keyframe strictly after t
	after := sort.Search(len(s.frames), func(i int) bool {
		return s.frames[i].Time > t
	})
	if after == 0 {
		return 0, 0
	}
	if after == len(s.frames) {
		last := len(s.frames) - 1
		return last, last
	}
	return after - 1, after
}
