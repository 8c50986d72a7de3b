package renderer

import (
	"context"
	"image"
	"image/color"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/system"
)

const (
	billboardSize = 1.5 // world units
	nearPlane     = 0.1
	textureDPI    = 72
)

var background = color.RGBA{R: 18, G: 20, B: 28, A: 255}

type billboard struct {
	id       string
	position scene.Vec3
	texture  image.Image
}

// Software is a CPU billboard renderer: every asset is drawn as a camera
// facing textured quad. It implements Camera and the capture surface.
type Software struct {
	logger zerolog.Logger

	mu         sync.Mutex
	pose       scene.Pose
	width      int
	height     int
	billboards []billboard
	frame      *image.RGBA
	attached   bool
	ticks      []func(time.Time)
}

func NewSoftware(width, height int, logger zerolog.Logger) *Software {
	return &Software{
		logger: logger.With().Str("component", "renderer").Logger(),
		pose:   scene.DefaultPose(),
		width:  width,
		height: height,
		frame:  system.GetFrame(width, height),
	}
}

// Mount loads the asset textures and attaches the renderer. A texture that
// fails to load falls back to the asset's QR placeholder.
func (r *Software) Mount(assets []scene.AssetPlacement) {
	boards := make([]billboard, 0, len(assets))
	for _, a := range assets {
		tex, err := source.Texture(a.Texture, a.ID, textureDPI)
		if err != nil {
			r.logger.Warn().Err(err).Str("asset", a.ID).Msg("texture unavailable, using placeholder")
			tex, err = source.Texture("", a.ID, textureDPI)
			if err != nil {
				r.logger.Warn().Err(err).Str("asset", a.ID).Msg("placeholder unavailable")
				tex = image.NewUniform(color.White)
			}
		}
		boards = append(boards, billboard{id: a.ID, position: a.Position, texture: tex})
	}

	r.mu.Lock()
	r.billboards = boards
	r.attached = true
	r.mu.Unlock()

	r.logger.Debug().Int("assets", len(boards)).Msg("renderer mounted")
}

func (r *Software) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attached
}

func (r *Software) CurrentPose() scene.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose
}

func (r *Software) SetPose(position, lookAt scene.Vec3, fov float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pose = scene.Pose{Position: position, LookAt: lookAt, FOV: fov}
}

func (r *Software) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *Software) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width == r.width && height == r.height {
		return
	}
	system.PutFrame(r.frame)
	r.width, r.height = width, height
	r.frame = system.GetFrame(width, height)
}

// OnTick registers a callback run at the start of every Tick, before the
// frame is drawn.
func (r *Software) OnTick(fn func(now time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, fn)
}

// Tick runs the registered callbacks and renders one frame.
func (r *Software) Tick(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	ticks := append([]func(time.Time){}, r.ticks...)
	r.mu.Unlock()

	for _, fn := range ticks {
		fn(now)
	}
	return r.Render(ctx)
}

// Render draws the scene from the current pose.
func (r *Software) Render(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	back := system.GetFrame(r.width, r.height)
	draw.Draw(back, back.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	cam := cameraBasis(r.pose)
	focal := float64(r.height) / 2 / math.Tan(r.pose.FOV*math.Pi/360)

	type projected struct {
		rect  image.Rectangle
		depth float64
		tex   image.Image
	}
	var visible []projected

	for _, b := range r.billboards {
		rel := b.position.Sub(r.pose.Position)
		depth := rel.Dot(cam.forward)
		if depth <= nearPlane {
			continue
		}
		sx := float64(r.width)/2 + rel.Dot(cam.right)*focal/depth
		sy := float64(r.height)/2 - rel.Dot(cam.up)*focal/depth
		half := billboardSize * focal / depth / 2

		rect := image.Rect(int(sx-half), int(sy-half), int(sx+half), int(sy+half))
		if rect.Empty() || !rect.Overlaps(back.Bounds()) {
			continue
		}
		visible = append(visible, projected{rect: rect, depth: depth, tex: b.texture})
	}

	// back to front
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].depth > visible[j].depth
	})
	for _, v := range visible {
		draw.ApproxBiLinear.Scale(back, v.rect, v.tex, v.tex.Bounds(), draw.Over, nil)
	}

	system.PutFrame(r.frame)
	r.frame = back
	return nil
}

// Snapshot returns the last rendered frame. The image is valid until the
// next Render or Resize.
func (r *Software) Snapshot() image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}
