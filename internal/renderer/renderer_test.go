package renderer

import (
	"context"
	"image/color"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/scene"
)

func twoKeyframes(t *testing.T) *director.KeyframeSet {
	t.Helper()
	set, err := director.NewKeyframeSet([]director.Keyframe{
		{Time: 0, Position: scene.V(0, 0, 0), LookAt: scene.V(0, 0, -1), FOV: 60},
		{Time: 10, Position: scene.V(10, 4, -2), LookAt: scene.V(2, 0, -1), FOV: 30},
	})
	require.NoError(t, err)
	return set
}

func TestInterpolateKeyframes(t *testing.T) {
	keyframes, err := director.NewKeyframeSet([]director.Keyframe{
		{Time: 0.0, Position: scene.V(0, 0, 10), FOV: 50},
		{Time: 2.0, Position: scene.V(0, 0, 6), FOV: 40},
		{Time: 4.0, Position: scene.V(0, 0, 2), FOV: 30},
	})
	require.NoError(t, err)

	tests := []struct {
		time        float64
		expectedZ   float64
		expectedFOV float64
	}{
		{-1.0, 10, 50}, // Before first keyframe
		{0.0, 10, 50},  // First keyframe
		{1.0, 8, 45},   // Midpoint between first and second
		{2.0, 6, 40},   // Second keyframe
		{3.0, 4, 35},   // Midpoint between second and third
		{4.0, 2, 30},   // Third keyframe
		{5.0, 2, 30},   // After last keyframe
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			pose := At(keyframes, tt.time, ModeRecord)

			if math.Abs(pose.Position.Z-tt.expectedZ) > 1e-9 {
				t.Errorf("At time %.1f: expected z %.2f, got %.4f", tt.time, tt.expectedZ, pose.Position.Z)
			}
			if math.Abs(pose.FOV-tt.expectedFOV) > 1e-9 {
				t.Errorf("At time %.1f: expected fov %.2f, got %.4f", tt.time, tt.expectedFOV, pose.FOV)
			}
		})
	}
}

func TestAt_ClampsToEndpointsExactly(t *testing.T) {
	set := twoKeyframes(t)

	for _, mode := range []Mode{ModeRecord, ModePreview} {
		assert.Equal(t, set.At(0).Pose(), At(set, 0, mode))
		assert.Equal(t, set.At(0).Pose(), At(set, -3, mode))
		assert.Equal(t, set.At(0).Pose(), At(set, math.NaN(), mode))
		assert.Equal(t, set.At(1).Pose(), At(set, 10, mode))
		assert.Equal(t, set.At(1).Pose(), At(set, 99, mode))
	}
}

func TestAt_MidpointIsHalfway(t *testing.T) {
	set := twoKeyframes(t)
	a, b := set.At(0), set.At(1)

	pose := At(set, 5, ModeRecord)

	mid := a.Position.Add(b.Position).Scale(0.5)
	assert.InDelta(t, mid.X, pose.Position.X, 1e-9)
	assert.InDelta(t, mid.Y, pose.Position.Y, 1e-9)
	assert.InDelta(t, mid.Z, pose.Position.Z, 1e-9)
	assert.InDelta(t, 45.0, pose.FOV, 1e-9)

	// strictly between the endpoints
	assert.Greater(t, pose.Position.X, a.Position.X)
	assert.Less(t, pose.Position.X, b.Position.X)
}

func TestAt_EasedPositionLinearFOV(t *testing.T) {
	set := twoKeyframes(t)

	pose := At(set, 2.5, ModeRecord)
	hermite := 3*0.25*0.25 - 2*0.25*0.25*0.25
	assert.InDelta(t, 10*hermite, pose.Position.X, 1e-9)
	assert.InDelta(t, 60-30*0.25, pose.FOV, 1e-9)

	preview := At(set, 2.5, ModePreview)
	quintic := 6*math.Pow(0.25, 5) - 15*math.Pow(0.25, 4) + 10*math.Pow(0.25, 3)
	assert.InDelta(t, 10*quintic, preview.Position.X, 1e-9)
	assert.InDelta(t, pose.FOV, preview.FOV, 1e-9)
}

func TestAt_ZeroLengthInterval(t *testing.T) {
	set, err := director.NewKeyframeSet([]director.Keyframe{
		{Time: 0, Position: scene.V(0, 0, 0)},
		{Time: 3, Position: scene.V(1, 0, 0)},
		{Time: 3, Position: scene.V(2, 0, 0)},
		{Time: 6, Position: scene.V(3, 0, 0)},
	})
	require.NoError(t, err)

	pose := At(set, 3, ModeRecord)
	assert.Equal(t, 2.0, pose.Position.X)
	assert.Equal(t, scene.DefaultFOV, pose.FOV)
}

func TestAt_ConcurrentQueries(t *testing.T) {
	set := twoKeyframes(t)
	want := At(set, 7.5, ModePreview)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, At(set, 7.5, ModePreview))
		}()
	}
	wg.Wait()
}

func TestEase(t *testing.T) {
	for _, mode := range []Mode{ModeRecord, ModePreview} {
		assert.Equal(t, 0.0, Ease(0, mode))
		assert.Equal(t, 1.0, Ease(1, mode))
		assert.InDelta(t, 0.5, Ease(0.5, mode), 1e-12)
	}
	assert.Equal(t, "record", ModeRecord.String())
	assert.Equal(t, "preview", ModePreview.String())
}

func TestSoftwareRender(t *testing.T) {
	r := NewSoftware(64, 48, zerolog.Nop())
	assert.False(t, r.Attached())

	r.Mount([]scene.AssetPlacement{{ID: "crate", Position: scene.V(0, 0, 0)}})
	require.True(t, r.Attached())

	r.SetPose(scene.V(0, 0, 3), scene.V(0, 0, 0), 50)
	require.NoError(t, r.Render(context.Background()))

	frame := r.Snapshot()
	assert.Equal(t, 64, frame.Bounds().Dx())
	assert.Equal(t, 48, frame.Bounds().Dy())

	// corner shows background, the centre is covered by the billboard
	assert.Equal(t, color.RGBAModel.Convert(background), color.RGBAModel.Convert(frame.At(0, 0)))
	assert.NotEqual(t, color.RGBAModel.Convert(background), color.RGBAModel.Convert(frame.At(32, 24)))
}

func TestSoftwareSkipsAssetsBehindCamera(t *testing.T) {
	r := NewSoftware(32, 32, zerolog.Nop())
	r.Mount([]scene.AssetPlacement{{ID: "behind", Position: scene.V(0, 0, 10)}})
	r.SetPose(scene.V(0, 0, 3), scene.V(0, 0, 0), 50)

	require.NoError(t, r.Render(context.Background()))

	frame := r.Snapshot()
	assert.Equal(t, color.RGBAModel.Convert(background), color.RGBAModel.Convert(frame.At(16, 16)))
}

func TestSoftwareResize(t *testing.T) {
	r := NewSoftware(32, 32, zerolog.Nop())
	r.Resize(40, 20)

	w, h := r.Size()
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)

	require.NoError(t, r.Render(context.Background()))
	assert.Equal(t, 40, r.Snapshot().Bounds().Dx())
}

func TestSoftwareTickRunsCallbacksBeforeRender(t *testing.T) {
	r := NewSoftware(16, 16, zerolog.Nop())
	var calls []string
	r.OnTick(func(time.Time) { calls = append(calls, "first") })
	r.OnTick(func(time.Time) { calls = append(calls, "second") })

	require.NoError(t, r.Tick(context.Background(), time.Now()))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRunLoopStopsAfterDuration(t *testing.T) {
	r := NewSoftware(8, 8, zerolog.Nop())
	ticks := 0
	r.OnTick(func(time.Time) { ticks++ })

	err := RunLoop(context.Background(), r, 100*time.Millisecond)

	require.NoError(t, err)
	assert.Greater(t, ticks, 0)
}
