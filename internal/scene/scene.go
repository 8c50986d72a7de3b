package scene

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFOV is the vertical field of view in degrees used when none is set.
const DefaultFOV = 50.0

// Pose is a camera position, the point it looks at and its field of view.
type Pose struct {
	Position Vec3    `yaml:"position"`
	LookAt   Vec3    `yaml:"look_at"`
	FOV      float64 `yaml:"fov"`
}

// DefaultPose is the camera the tool starts with and returns to on reset.
func DefaultPose() Pose {
	return Pose{
		Position: V(0, 2, 10),
		LookAt:   V(0, 0, 0),
		FOV:      DefaultFOV,
	}
}

// AssetPlacement is an imported asset positioned in the scene.
type AssetPlacement struct {
	ID       string `yaml:"id"`
	Position Vec3   `yaml:"position"`
	// Texture is an optional image or PDF used by the billboard renderer.
	Texture string `yaml:"texture,omitempty"`
}

// Scene is the set of assets and the camera the user was looking through.
type Scene struct {
	Name   string           `yaml:"name"`
	Assets []AssetPlacement `yaml:"assets"`
	Camera *Pose            `yaml:"camera,omitempty"`
}

// Placements returns a snapshot of the asset list.
func (s *Scene) Placements() []AssetPlacement {
	if s == nil {
		return nil
	}
	out := make([]AssetPlacement, len(s.Assets))
	copy(out, s.Assets)
	return out
}

// Load reads a scene description from a YAML file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scene %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range s.Assets {
		a := &s.Assets[i]
		if a.ID == "" {
			a.ID = fmt.Sprintf("asset_%d", i+1)
		}
		// textures are relative to the scene file
		if a.Texture != "" && !filepath.IsAbs(a.Texture) {
			a.Texture = filepath.Join(base, a.Texture)
		}
	}
	if s.Camera != nil && s.Camera.FOV == 0 {
		s.Camera.FOV = DefaultFOV
	}

	return &s, nil
}
