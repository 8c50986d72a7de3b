package video

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/system"
)

// stderrTail is how many ffmpeg log lines are kept for error reports.
const stderrTail = 20

// FFmpegMuxer pipes raw RGBA frames into an ffmpeg process that writes an
// MP4 file into a private temp directory.
type FFmpegMuxer struct {
	logger zerolog.Logger
	binary string
	tmpDir string

	mu      sync.Mutex
	video   *VideoSink
	audio   *AudioSink
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	group   *errgroup.Group
	cancel  context.CancelFunc
	scratch *image.RGBA
	closed  bool

	// logMu guards tail. The stderr reader never takes mu.
	logMu sync.Mutex
	tail  []string
}

func NewFFmpegMuxer(logger zerolog.Logger) (*FFmpegMuxer, error) {
	binary, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "scene2video_")
	if err != nil {
		return nil, err
	}

	return &FFmpegMuxer{
		logger: logger.With().Str("component", "ffmpeg").Logger(),
		binary: binary,
		tmpDir: tmpDir,
	}, nil
}

// OpenVideoTrack checks that ffmpeg offers the configured encoder.
func (m *FFmpegMuxer) OpenVideoTrack(ctx context.Context, cfg VideoConfig) (*VideoSink, error) {
	if err := validateVideoConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Codec == "" {
		cfg.Codec = "libx264"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.video != nil {
		return nil, fmt.Errorf("video %w", ErrTrackOpen)
	}

	out, err := exec.CommandContext(ctx, m.binary, "-hide_banner", "-h", "encoder="+cfg.Codec).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoder probe %s: %w", cfg.Codec, err)
	}
	if strings.Contains(string(out), "is not recognized") {
		return nil, fmt.Errorf("ffmpeg has no encoder %s", cfg.Codec)
	}

	m.video = &VideoSink{Config: cfg}
	return m.video, nil
}

// OpenAudioTrack adds a prepared audio file. It must be opened before the
// first frame is submitted.
func (m *FFmpegMuxer) OpenAudioTrack(ctx context.Context, cfg AudioConfig) (*AudioSink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return nil, ErrClosed
	case m.audio != nil:
		return nil, fmt.Errorf("audio %w", ErrTrackOpen)
	case m.cmd != nil:
		return nil, fmt.Errorf("audio track must be opened before the first frame")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, err
	}

	m.audio = &AudioSink{Config: cfg}
	return m.audio, nil
}

func (m *FFmpegMuxer) SubmitFrame(sink *VideoSink, timestamp, duration float64, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.video == nil || sink != m.video {
		return ErrNoVideoTrack
	}
	if err := sink.accept(timestamp, duration); err != nil {
		return err
	}

	if m.cmd == nil {
		if err := m.start(); err != nil {
			return err
		}
	}

	if err := m.writeRawRGBA(m.stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w (%s)", err, m.lastLog())
	}
	return nil
}

func (m *FFmpegMuxer) outputPath() string {
	return filepath.Join(m.tmpDir, "capture.mp4")
}

func (m *FFmpegMuxer) start() error {
	args := m.buildFFmpegArgs()

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, m.binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe error: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe error: %w", err)
	}

	m.logger.Debug().Strs("args", args).Msg("starting ffmpeg")
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	m.cmd, m.stdin, m.cancel = cmd, stdin, cancel
	m.group = &errgroup.Group{}
	m.group.Go(func() error {
		m.drainLog(stderr)
		return nil
	})
	return nil
}

func (m *FFmpegMuxer) buildFFmpegArgs() []string {
	v := m.video.Config
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", v.Width, v.Height),
		"-framerate", fmt.Sprintf("%d", v.FPS),
		"-i", "-",
	}
	if m.audio != nil {
		args = append(args, "-i", m.audio.Config.Path)
	}

	args = append(args, "-map", "0:v")
	if m.audio != nil {
		args = append(args, "-map", "1:a", "-c:a", "aac", "-b:a", "160k", "-shortest")
	}

	args = append(args, "-pix_fmt", "yuv420p", "-c:v", v.Codec)
	args = append(args, qualityArgs(v.Codec, v.Quality)...)
	args = append(args, "-movflags", "+faststart", m.outputPath())
	return args
}

// qualityArgs maps the quality setting onto each encoder's own scale.
func qualityArgs(encoder string, quality int) []string {
	if quality <= 0 {
		quality = system.DefaultQuality(encoder)
	}
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox часто не поддерживает -q:v напрямую. Используем битрейт.
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}

func (m *FFmpegMuxer) drainLog(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		m.logger.Debug().Str("ffmpeg", line).Msg("encoder output")

		m.logMu.Lock()
		m.tail = append(m.tail, line)
		if len(m.tail) > stderrTail {
			m.tail = m.tail[1:]
		}
		m.logMu.Unlock()
	}
}

func (m *FFmpegMuxer) lastLog() string {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	return strings.Join(m.tail, "; ")
}

// writeRawRGBA writes the frame at the track size, rescaling if the
// surface delivered a different size.
func (m *FFmpegMuxer) writeRawRGBA(w io.Writer, img image.Image) error {
	v := m.video.Config
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if ok && bounds.Dx() == v.Width && bounds.Dy() == v.Height && rgba.Stride == v.Width*4 && rgba.Rect.Min == (image.Point{}) {
		_, err := w.Write(rgba.Pix)
		return err
	}

	if m.scratch == nil {
		m.scratch = image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	}
	if bounds.Dx() == v.Width && bounds.Dy() == v.Height {
		draw.Draw(m.scratch, m.scratch.Bounds(), img, bounds.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(m.scratch, m.scratch.Bounds(), img, bounds, draw.Src, nil)
	}
	_, err := w.Write(m.scratch.Pix)
	return err
}

// Finalize closes the input, waits for ffmpeg and returns the MP4 bytes.
func (m *FFmpegMuxer) Finalize(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.closed = true
	cmd, stdin, group, cancel := m.cmd, m.stdin, m.group, m.cancel
	m.mu.Unlock()
	defer os.RemoveAll(m.tmpDir)

	if cmd == nil {
		return nil, fmt.Errorf("no frames submitted")
	}
	defer cancel()

	stdin.Close()

	done := make(chan error, 1)
	go func() {
		group.Wait()
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg wait error: %w, output: %s", err, m.lastLog())
		}
	case <-ctx.Done():
		cancel()
		<-done
		return nil, ctx.Err()
	}

	data, err := os.ReadFile(m.outputPath())
	if err != nil {
		return nil, err
	}

	m.logger.Debug().Int("bytes", len(data)).Int("frames", m.video.Frames()).Msg("mp4 finalized")
	return data, nil
}

// Cancel kills ffmpeg and removes partial output. Calling it again or after
// Finalize is a no-op.
func (m *FFmpegMuxer) Cancel() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cmd, stdin, group, cancel := m.cmd, m.stdin, m.group, m.cancel
	m.mu.Unlock()

	if cmd != nil {
		cancel()
		stdin.Close()
		group.Wait()
		cmd.Wait()
	}
	return os.RemoveAll(m.tmpDir)
}
