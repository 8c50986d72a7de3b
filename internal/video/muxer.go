package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// VideoConfig describes the single video track of a capture.
type VideoConfig struct {
	Width, Height int
	FPS           int
	Codec         string // ffmpeg encoder name, ignored by containers with a fixed codec
	Quality       int
}

// AudioConfig points at a prepared PCM track that is muxed as is.
type AudioConfig struct {
	Path     string
	Duration float64
}

// Muxer combines timestamped video frames and an optional audio track into
// one container file.
type Muxer interface {
	OpenVideoTrack(ctx context.Context, cfg VideoConfig) (*VideoSink, error)
	OpenAudioTrack(ctx context.Context, cfg AudioConfig) (*AudioSink, error)
	SubmitFrame(sink *VideoSink, timestamp, duration float64, img image.Image) error
	Finalize(ctx context.Context) ([]byte, error)
	Cancel() error
}

var (
	ErrClosed           = errors.New("muxer is finalized or canceled")
	ErrNoVideoTrack     = errors.New("muxer has no video track")
	ErrTrackOpen        = errors.New("track already open")
	ErrAudioUnsupported = errors.New("container does not support audio")
	ErrTimestamp        = errors.New("frame timestamp out of order")
)

// timestampTolerance absorbs float error of i/fps arithmetic.
const timestampTolerance = 1e-6

type VideoSink struct {
	Config VideoConfig

	frames int
	lastTS float64
}

// Frames is the number of frames accepted so far.
func (s *VideoSink) Frames() int {
	return s.frames
}

// accept checks that frames arrive in order on the fixed frame grid.
func (s *VideoSink) accept(timestamp, duration float64) error {
	want := 1 / float64(s.Config.FPS)
	if math.Abs(duration-want) > timestampTolerance {
		return fmt.Errorf("%w: frame duration %.6f, want %.6f", ErrTimestamp, duration, want)
	}
	if s.frames > 0 && timestamp <= s.lastTS {
		return fmt.Errorf("%w: %.6f after %.6f", ErrTimestamp, timestamp, s.lastTS)
	}
	if expected := float64(s.frames) * want; math.Abs(timestamp-expected) > timestampTolerance {
		return fmt.Errorf("%w: frame %d at %.6f, want %.6f", ErrTimestamp, s.frames, timestamp, expected)
	}
	s.frames++
	s.lastTS = timestamp
	return nil
}

type AudioSink struct {
	Config AudioConfig
}

func validateVideoConfig(cfg VideoConfig) error {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return fmt.Errorf("video size %dx%d must be positive and even", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return fmt.Errorf("invalid frame rate %d", cfg.FPS)
	}
	return nil
}
