package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	// DefaultGain is the constant background music level.
	DefaultGain = 0.3
	// DrainPadding is rendered past the video end so the encoder never runs
	// out of samples before the last frame.
	DrainPadding = 0.5

	sampleRate = 48000
)

// AudioError reports a failure preparing the soundtrack. Captures treat it
// as non-fatal and continue without audio.
type AudioError struct {
	Op   string
	Path string
	Err  error
}

func (e *AudioError) Error() string {
	return fmt.Sprintf("audio %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *AudioError) Unwrap() error {
	return e.Err
}

// Backend probes and renders audio files.
type Backend interface {
	Probe(ctx context.Context, path string) (float64, error)
	Render(ctx context.Context, req RenderRequest) error
}

type RenderRequest struct {
	Source   string
	Output   string
	Offset   float64
	Duration float64
	Gain     float64
	Loop     bool
}

// Track is a rendered soundtrack ready to be muxed.
type Track struct {
	Path     string
	Offset   float64
	Gain     float64
	Looped   bool
	Duration float64

	dir     string
	cleanup sync.Once
}

// Cleanup removes the rendered file. Only the first call has an effect.
func (t *Track) Cleanup() {
	t.cleanup.Do(func() {
		if t.dir != "" {
			os.RemoveAll(t.dir)
		}
	})
}

type Adapter struct {
	backend Backend
	gain    float64
	logger  zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Adapter)

func WithBackend(b Backend) Option {
	return func(a *Adapter) { a.backend = b }
}

func WithRand(rng *rand.Rand) Option {
	return func(a *Adapter) { a.rng = rng }
}

func WithGain(gain float64) Option {
	return func(a *Adapter) {
		if gain > 0 {
			a.gain = gain
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger.With().Str("component", "audio").Logger()
	}
}

func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		backend: FFmpegBackend{},
		gain:    DefaultGain,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return a
}

// Open prepares a WAV of duration+DrainPadding seconds cut from a random
// offset of the source, looping the source when it is too short.
func (a *Adapter) Open(ctx context.Context, sourcePath string, duration float64) (*Track, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, &AudioError{Op: "open", Path: sourcePath, Err: fmt.Errorf("invalid duration %v", duration)}
	}

	srcDur, err := a.backend.Probe(ctx, sourcePath)
	if err != nil {
		return nil, &AudioError{Op: "probe", Path: sourcePath, Err: err}
	}
	if srcDur <= 0 {
		return nil, &AudioError{Op: "probe", Path: sourcePath, Err: fmt.Errorf("source has no duration")}
	}

	offset := a.randomOffset(math.Max(0, srcDur-duration))
	length := duration + DrainPadding
	loop := srcDur-offset < length

	dir, err := os.MkdirTemp("", "scene2video_audio_")
	if err != nil {
		return nil, &AudioError{Op: "render", Path: sourcePath, Err: err}
	}

	track := &Track{
		Path:     filepath.Join(dir, "track.wav"),
		Offset:   offset,
		Gain:     a.gain,
		Looped:   loop,
		Duration: length,
		dir:      dir,
	}

	err = a.backend.Render(ctx, RenderRequest{
		Source:   sourcePath,
		Output:   track.Path,
		Offset:   offset,
		Duration: length,
		Gain:     a.gain,
		Loop:     loop,
	})
	if err != nil {
		track.Cleanup()
		return nil, &AudioError{Op: "render", Path: sourcePath, Err: err}
	}

	a.logger.Debug().
		Str("source", sourcePath).
		Float64("source_duration", srcDur).
		Float64("offset", offset).
		Bool("looped", loop).
		Msg("soundtrack rendered")
	return track, nil
}

func (a *Adapter) randomOffset(limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64() * limit
}

// FFmpegBackend shells out to ffprobe and ffmpeg through ffmpeg-go.
type FFmpegBackend struct{}

func (FFmpegBackend) Probe(ctx context.Context, path string) (float64, error) {
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	out, err := ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
	if err != nil {
		return 0, err
	}
	return parseProbeDuration(out)
}

func parseProbeDuration(out string) (float64, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, fmt.Errorf("parse probe output: %w", err)
	}
	if probe.Format.Duration == "" {
		return 0, fmt.Errorf("probe output has no duration")
	}
	return strconv.ParseFloat(probe.Format.Duration, 64)
}

func (FFmpegBackend) Render(ctx context.Context, req RenderRequest) error {
	args := renderStream(req).GetArgs()
	out, err := exec.CommandContext(ctx, "ffmpeg", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, out)
	}
	return nil
}

func renderStream(req RenderRequest) *ffmpeg.Stream {
	in := ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", req.Offset)}
	if req.Loop {
		in["stream_loop"] = "-1"
	}

	return ffmpeg.Input(req.Source, in).
		Filter("volume", ffmpeg.Args{fmt.Sprintf("%.3f", req.Gain)}).
		Output(req.Output, ffmpeg.KwArgs{
			"t":      fmt.Sprintf("%.3f", req.Duration),
			"vn":     "",
			"acodec": "pcm_s16le",
			"ar":     sampleRate,
			"ac":     2,
		}).
		OverWriteOutput()
}
