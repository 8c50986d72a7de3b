package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/scene2video/internal/animator"
	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/video"
)

// Surface is the rendered scene a capture samples from.
type Surface interface {
	renderer.Camera
	Size() (int, int)
	Resize(width, height int)
	Render(ctx context.Context) error
	Snapshot() image.Image
	Attached() bool
	OnTick(fn func(now time.Time))
}

// MuxerFactory creates a fresh muxer for every capture.
type MuxerFactory func() (video.Muxer, error)

// AudioOpener prepares the soundtrack for a capture.
type AudioOpener interface {
	Open(ctx context.Context, sourcePath string, duration float64) (*audio.Track, error)
}

type Options struct {
	FPS     int
	Codec   string
	Quality int

	AudioPath string

	MountRetries       int
	MountInterval      time.Duration
	EncoderInitTimeout time.Duration

	ShowStats    bool
	BenchmarkLog string
}

func DefaultOptions() Options {
	return Options{
		FPS:                animator.DefaultFrameRate,
		Codec:              "libx264",
		MountRetries:       10,
		MountInterval:      100 * time.Millisecond,
		EncoderInitTimeout: 10 * time.Second,
		BenchmarkLog:       "benchmark.log",
	}
}

// Scheduler runs frame-accurate captures: for every output frame it advances
// the animation on the virtual clock, renders, and hands the frame to the
// muxer with an exact timestamp.
type Scheduler struct {
	driver   *animator.Driver
	newMuxer MuxerFactory
	audio    AudioOpener
	opts     Options
	clock    Clock
	logger   zerolog.Logger
	metrics  *captureMetrics

	mu     sync.Mutex
	active map[Surface]*session
	report *CaptureReport
}

type SchedulerOption func(*Scheduler)

func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithAudio(a AudioOpener) SchedulerOption {
	return func(s *Scheduler) { s.audio = a }
}

func WithLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger.With().Str("component", "capture").Logger()
	}
}

func NewScheduler(driver *animator.Driver, muxers MuxerFactory, opts Options, options ...SchedulerOption) (*Scheduler, error) {
	if opts.FPS <= 0 {
		opts.FPS = animator.DefaultFrameRate
	}
	if opts.FPS != animator.DefaultFrameRate {
		return nil, fmt.Errorf("unsupported frame rate %d, captures run at %d fps", opts.FPS, animator.DefaultFrameRate)
	}
	if opts.Codec == "" {
		opts.Codec = "libx264"
	}

	metrics, err := newCaptureMetrics()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		driver:   driver,
		newMuxer: muxers,
		opts:     opts,
		clock:    DefaultClock(),
		logger:   zerolog.Nop(),
		metrics:  metrics,
		active:   make(map[Surface]*session),
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// CaptureSession is the fixed plan of one capture. The frame count is decided
// before the first frame and the capture always stops exactly there.
type CaptureSession struct {
	TargetDuration float64
	FrameRate      int
	FrameCount     int
	AudioEnabled   bool
	Width, Height  int
}

func NewCaptureSession(targetDuration float64, fps int, audioEnabled bool, width, height int) (CaptureSession, error) {
	if targetDuration <= 0 || math.IsNaN(targetDuration) || math.IsInf(targetDuration, 0) {
		return CaptureSession{}, fmt.Errorf("invalid capture duration %v", targetDuration)
	}
	if fps <= 0 {
		return CaptureSession{}, fmt.Errorf("invalid frame rate %d", fps)
	}
	return CaptureSession{
		TargetDuration: targetDuration,
		FrameRate:      fps,
		FrameCount:     max(int(math.Round(targetDuration*float64(fps))), 1),
		AudioEnabled:   audioEnabled,
		Width:          width,
		Height:         height,
	}, nil
}

// session is one capture on one surface.
type session struct {
	stop     chan struct{}
	stopOnce sync.Once

	releaseOnce sync.Once
	muxer       video.Muxer
	track       *audio.Track
	finalized   bool
}

func (ss *session) cancel() {
	ss.stopOnce.Do(func() { close(ss.stop) })
}

func (ss *session) canceled() bool {
	select {
	case <-ss.stop:
		return true
	default:
		return false
	}
}

// release discards unfinished output and removes the audio file. Only the
// first call has an effect.
func (ss *session) release() {
	ss.releaseOnce.Do(func() {
		if ss.muxer != nil && !ss.finalized {
			ss.muxer.Cancel()
		}
		if ss.track != nil {
			ss.track.Cleanup()
		}
	})
}

func (s *Scheduler) acquire(surface Surface) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[surface]; busy {
		return nil, ErrConcurrentSession
	}
	ss := &session{stop: make(chan struct{})}
	s.active[surface] = ss
	return ss, nil
}

func (s *Scheduler) done(surface Surface, ss *session) {
	ss.release()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[surface] == ss {
		delete(s.active, surface)
	}
}

// Cancel stops the capture running on surface at its next frame boundary.
// The output is discarded and the capture returns ErrCanceled. Cancelling an
// idle surface does nothing.
func (s *Scheduler) Cancel(surface Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss, ok := s.active[surface]; ok {
		ss.cancel()
	}
}

// Busy reports whether a capture is running on surface.
func (s *Scheduler) Busy(surface Surface) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[surface]
	return ok
}

// LastReport is the report of the last successful capture, nil if none.
func (s *Scheduler) LastReport() *CaptureReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Record waits for the surface to mount, starts the animation, captures the
// whole path and stops the animation again.
func (s *Scheduler) Record(ctx context.Context, surface Surface, audioEnabled bool) ([]byte, error) {
	if s.driver == nil {
		return nil, errors.New("scheduler has no animation driver")
	}
	ss, err := s.acquire(surface)
	if err != nil {
		return nil, err
	}
	defer s.done(surface, ss)

	if err := s.waitMounted(ctx, surface, ss); err != nil {
		s.metrics.session(outcome(err))
		return nil, err
	}

	if err := s.driver.StartRecording(); err != nil {
		s.metrics.session("error")
		return nil, err
	}
	defer s.driver.StopRecording()

	return s.run(ctx, surface, ss, s.driver.TargetDuration(), audioEnabled)
}

// Capture records targetDuration seconds from surface. The animation driver
// must already be recording.
func (s *Scheduler) Capture(ctx context.Context, surface Surface, targetDuration float64, audioEnabled bool) ([]byte, error) {
	ss, err := s.acquire(surface)
	if err != nil {
		return nil, err
	}
	defer s.done(surface, ss)

	return s.run(ctx, surface, ss, targetDuration, audioEnabled)
}

func (s *Scheduler) waitMounted(ctx context.Context, surface Surface, ss *session) error {
	for attempt := 0; ; attempt++ {
		if surface.Attached() {
			return nil
		}
		if attempt >= s.opts.MountRetries {
			return fmt.Errorf("%w after %d retries", ErrMount, attempt)
		}
		if ss.canceled() {
			return ErrCanceled
		}
		if err := s.clock.Sleep(ctx, s.opts.MountInterval); err != nil {
			return fmt.Errorf("%w: %v", ErrCanceled, err)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, surface Surface, ss *session, targetDuration float64, audioEnabled bool) ([]byte, error) {
	data, err := s.capture(ctx, surface, ss, targetDuration, audioEnabled)
	s.metrics.session(outcome(err))
	if err != nil {
		s.logger.Error().Err(err).Msg("capture failed")
	}
	return data, err
}

func outcome(err error) string {
	var encErr *EncodingError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.As(err, &encErr):
		return "encoding_error"
	default:
		return "error"
	}
}

func (s *Scheduler) capture(ctx context.Context, surface Surface, ss *session, targetDuration float64, audioEnabled bool) ([]byte, error) {
	width, height := lockSize(surface)
	cs, err := NewCaptureSession(targetDuration, s.opts.FPS, audioEnabled, width, height)
	if err != nil {
		return nil, err
	}
	fps, frameCount := cs.FrameRate, cs.FrameCount
	frameDur := 1 / float64(fps)
	framePeriod := time.Second / time.Duration(fps)

	mux, err := s.newMuxer()
	if err != nil {
		return nil, &EncodingError{Stage: "init", Err: err}
	}
	ss.muxer = mux

	initCtx, cancelInit := context.WithTimeout(ctx, s.opts.EncoderInitTimeout)
	sink, err := mux.OpenVideoTrack(initCtx, video.VideoConfig{
		Width:   width,
		Height:  height,
		FPS:     fps,
		Codec:   s.opts.Codec,
		Quality: s.opts.Quality,
	})
	cancelInit()
	if err != nil {
		return nil, &EncodingError{Stage: "init", Err: err}
	}

	withAudio := false
	if cs.AudioEnabled {
		withAudio = s.openAudio(ctx, ss, float64(frameCount)/float64(fps))
	}

	s.logger.Info().
		Int("frames", frameCount).
		Int("fps", fps).
		Int("width", width).
		Int("height", height).
		Bool("audio", withAudio).
		Msg("capture started")

	start := s.clock.Now()
	for i := 0; i < frameCount; i++ {
		if ss.canceled() {
			return nil, ErrCanceled
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCanceled, err)
		}

		// Throttle when ahead of the ideal schedule. Frames are never dropped
		// when behind.
		ideal := start.Add(time.Duration(i) * framePeriod)
		now := s.clock.Now()
		if wait := ideal.Sub(now); wait > 0 {
			if err := s.clock.Sleep(ctx, min(wait, framePeriod)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCanceled, err)
			}
			now = s.clock.Now()
		} else {
			s.metrics.lag.Record(ctx, float64(-wait)/float64(time.Millisecond))
		}

		if w, h := surface.Size(); w != width || h != height {
			s.logger.Warn().
				Int("width", w).
				Int("height", h).
				Msg("surface resized during capture, restoring locked size")
			surface.Resize(width, height)
		}

		if s.driver != nil {
			if err := s.driver.Tick(i, now); err != nil {
				if i > 0 && errors.Is(err, animator.ErrNotRecording) {
					// Recording stopped from outside mid-capture, same as Cancel.
					ss.cancel()
				}
				if ss.canceled() {
					return nil, ErrCanceled
				}
				return nil, fmt.Errorf("animation tick %d: %w", i, err)
			}
		}

		if err := surface.Render(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
			}
			return nil, fmt.Errorf("render frame %d: %w", i, err)
		}

		if err := mux.SubmitFrame(sink, float64(i)*frameDur, frameDur, surface.Snapshot()); err != nil {
			return nil, &EncodingError{Stage: "frame", Frame: i, Err: err}
		}
		s.metrics.frames.Add(ctx, 1)
	}

	if ss.canceled() {
		return nil, ErrCanceled
	}

	data, err := mux.Finalize(ctx)
	ss.finalized = true
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		}
		return nil, &EncodingError{Stage: "finalize", Err: err}
	}
	ss.release()

	wall := s.clock.Now().Sub(start)
	report := newReport(ctx, frameCount, fps, wall, withAudio, len(data))
	s.mu.Lock()
	s.report = &report
	s.mu.Unlock()

	s.logger.Info().
		Int("frames", report.Frames).
		Dur("wall", report.WallTime).
		Float64("effective_fps", report.EffectiveFPS).
		Int("bytes", report.Bytes).
		Msg("capture finished")

	if s.opts.ShowStats {
		fmt.Print(report.String())
		if s.opts.BenchmarkLog != "" {
			if err := system.AppendBenchmark(s.opts.BenchmarkLog, report.BenchmarkLine()); err != nil {
				s.logger.Warn().Err(err).Str("path", s.opts.BenchmarkLog).Msg("cannot write benchmark log")
			}
		}
	}

	return data, nil
}

// openAudio attaches the soundtrack. Failures are logged and the capture
// continues without audio.
func (s *Scheduler) openAudio(ctx context.Context, ss *session, duration float64) bool {
	if s.audio == nil || s.opts.AudioPath == "" {
		s.logger.Warn().Msg("audio requested but no source configured")
		return false
	}

	track, err := s.audio.Open(ctx, s.opts.AudioPath, duration)
	if err != nil {
		s.logger.Warn().Err(err).Msg("continuing without audio")
		return false
	}

	if _, err := ss.muxer.OpenAudioTrack(ctx, video.AudioConfig{Path: track.Path, Duration: track.Duration}); err != nil {
		s.logger.Warn().Err(err).Msg("muxer rejected audio track, continuing without audio")
		track.Cleanup()
		return false
	}
	ss.track = track
	return true
}

// lockSize rounds the surface size down to even numbers, which the H.264
// encoders require, and applies it.
func lockSize(surface Surface) (int, int) {
	w, h := surface.Size()
	ew, eh := max(w-w%2, 2), max(h-h%2, 2)
	if ew != w || eh != h {
		surface.Resize(ew, eh)
	}
	return ew, eh
}
