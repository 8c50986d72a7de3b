package renderer

import "github.com/ivlev/scene2video/internal/scene"

// Camera is the part of a renderer the animation driver steers.
type Camera interface {
	CurrentPose() scene.Pose
	SetPose(position, lookAt scene.Vec3, fov float64)
}

// basis is an orthonormal camera frame.
type basis struct {
	forward, right, up scene.Vec3
}

func cameraBasis(p scene.Pose) basis {
	forward := p.LookAt.Sub(p.Position).Normalize()
	if forward.Len() == 0 {
		forward = scene.V(0, 0, -1)
	}
	right := forward.Cross(scene.V(0, 1, 0)).Normalize()
	if right.Len() == 0 {
		// looking straight up or down
		right = scene.V(1, 0, 0)
	}
	return basis{
		forward: forward,
		right:   right,
		up:      right.Cross(forward),
	}
}
