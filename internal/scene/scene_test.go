package scene

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "showroom.yaml")
	content := `name: showroom
camera:
  position: {x: 1, y: 2, z: 8}
  look_at: {x: 0, y: 0, z: 0}
assets:
  - id: chair
    position: {x: -2, y: 0, z: 0}
    texture: textures/chair.png
  - position: {x: 2, y: 0, z: 1}
    texture: /abs/lamp.pdf
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "showroom", s.Name)
	require.Len(t, s.Assets, 2)
	assert.Equal(t, "chair", s.Assets[0].ID)
	assert.Equal(t, filepath.Join(dir, "textures/chair.png"), s.Assets[0].Texture)
	assert.Equal(t, "asset_2", s.Assets[1].ID)
	assert.Equal(t, "/abs/lamp.pdf", s.Assets[1].Texture)
	assert.Equal(t, V(2, 0, 1), s.Assets[1].Position)

	require.NotNil(t, s.Camera)
	assert.Equal(t, DefaultFOV, s.Camera.FOV)
	assert.Equal(t, V(1, 2, 8), s.Camera.Position)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("assets: [oops"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestPlacementsIsACopy(t *testing.T) {
	s := &Scene{Assets: []AssetPlacement{{ID: "a"}}}
	p := s.Placements()
	p[0].ID = "changed"
	assert.Equal(t, "a", s.Assets[0].ID)

	var empty *Scene
	assert.Nil(t, empty.Placements())
}

func TestVec3(t *testing.T) {
	a, b := V(1, 0, 0), V(0, 1, 0)
	assert.Equal(t, V(0, 0, 1), a.Cross(b))
	assert.Equal(t, 0.0, a.Dot(b))
	assert.Equal(t, V(0.5, 0.5, 0), a.Lerp(b, 0.5))
	assert.InDelta(t, 1.0, V(3, 4, 0).Normalize().Len(), 1e-12)
	assert.Equal(t, Vec3{}, Vec3{}.Normalize())
	assert.True(t, a.Finite())
	assert.False(t, V(math.NaN(), 0, 0).Finite())
	assert.False(t, V(0, math.Inf(1), 0).Finite())
}
