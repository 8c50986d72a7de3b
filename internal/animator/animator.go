package animator

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/scene2video/internal/director"
	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/scene"
)

const (
	DefaultFrameRate = 30
	// PreviewSpeed slows the preview loop relative to wall time.
	PreviewSpeed = 0.5
	// FollowFactor is how far the preview camera moves toward its target per tick.
	FollowFactor = 0.05
)

type State int

const (
	Idle State = iota
	Recording
	Previewing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Previewing:
		return "previewing"
	default:
		return "idle"
	}
}

var (
	ErrBusy          = errors.New("animation driver busy")
	ErrNotRecording  = errors.New("animation driver is not recording")
	ErrNotPreviewing = errors.New("animation driver is not previewing")
)

// AssetProvider exposes the asset placements at the moment recording starts.
type AssetProvider interface {
	Placements() []scene.AssetPlacement
}

// Driver owns the camera path and the virtual clock and applies the
// interpolated pose to the camera on every tick.
type Driver struct {
	cam      renderer.Camera
	assets   AssetProvider
	director *director.Director
	logger   zerolog.Logger

	frameRate    int
	previewSpeed float64
	follow       float64

	mu            sync.Mutex
	state         State
	path          *director.KeyframeSet
	target        float64
	origin        time.Time
	originSet     bool
	elapsed       float64
	previewOrigin time.Time
}

type Option func(*Driver)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger.With().Str("component", "animator").Logger()
	}
}

func WithFrameRate(fps int) Option {
	return func(d *Driver) {
		if fps > 0 {
			d.frameRate = fps
		}
	}
}

func WithPreviewSpeed(speed float64) Option {
	return func(d *Driver) {
		if speed > 0 {
			d.previewSpeed = speed
		}
	}
}

func New(cam renderer.Camera, assets AssetProvider, dir *director.Director, opts ...Option) *Driver {
	d := &Driver{
		cam:          cam,
		assets:       assets,
		director:     dir,
		logger:       zerolog.Nop(),
		frameRate:    DefaultFrameRate,
		previewSpeed: PreviewSpeed,
		follow:       FollowFactor,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StartRecording generates a fresh path from the current assets, starting
// at the current camera pose.
func (d *Driver) StartRecording() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Idle {
		return fmt.Errorf("%w: %s", ErrBusy, d.state)
	}

	start := d.cam.CurrentPose()
	d.path, d.target = d.director.Generate(d.assets.Placements(), &start)
	d.originSet = false
	d.elapsed = 0
	d.state = Recording

	d.logger.Info().
		Int("keyframes", d.path.Len()).
		Float64("duration", d.target).
		Msg("recording started")
	return nil
}

// Tick applies the pose for output frame frameIndex. The first tick latches
// the clock origin, so recording starts at elapsed time 0.
func (d *Driver) Tick(frameIndex int, wall time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Recording {
		return ErrNotRecording
	}

	if !d.originSet {
		d.origin = wall
		d.originSet = true
	}

	d.elapsed = float64(frameIndex) / float64(d.frameRate)
	pose := renderer.At(d.path, d.elapsed, renderer.ModeRecord)
	d.cam.SetPose(pose.Position, pose.LookAt, pose.FOV)
	return nil
}

// StopRecording returns to Idle and leaves the camera where it is.
func (d *Driver) StopRecording() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Recording {
		return
	}
	d.state = Idle
	d.logger.Info().
		Float64("elapsed", d.elapsed).
		Dur("wall", time.Since(d.origin)).
		Msg("recording stopped")
}

func (d *Driver) StartPreview(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Recording:
		return fmt.Errorf("%w: %s", ErrBusy, d.state)
	case Previewing:
		return nil
	}
	d.state = Previewing
	d.previewOrigin = now
	return nil
}

func (d *Driver) StopPreview() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Previewing {
		d.state = Idle
	}
}

// PreviewTick moves the camera a step toward the looping preview pose.
func (d *Driver) PreviewTick(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Previewing {
		return ErrNotPreviewing
	}

	path := d.path
	if path == nil {
		path = director.DefaultPath()
	}

	wall := now.Sub(d.previewOrigin).Seconds() * d.previewSpeed
	d.elapsed = math.Mod(math.Max(wall, 0), director.DefaultDuration)

	target := renderer.At(path, d.elapsed, renderer.ModePreview)
	cur := d.cam.CurrentPose()
	d.cam.SetPose(
		cur.Position.Lerp(target.Position, d.follow),
		cur.LookAt.Lerp(target.LookAt, d.follow),
		cur.FOV+(target.FOV-cur.FOV)*d.follow,
	)
	return nil
}

// Reset clears the path and puts the camera back at the default pose.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.path = nil
	d.target = 0
	d.elapsed = 0
	d.originSet = false
	d.state = Idle

	p := scene.DefaultPose()
	d.cam.SetPose(p.Position, p.LookAt, p.FOV)
}

// TargetDuration is the video length computed by the last StartRecording.
func (d *Driver) TargetDuration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

// Path is the current camera path, nil before the first recording or after Reset.
func (d *Driver) Path() *director.KeyframeSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Elapsed is the virtual clock value of the last tick.
func (d *Driver) Elapsed() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elapsed
}

func (d *Driver) FrameRate() int {
	return d.frameRate
}
