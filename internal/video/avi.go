package video

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

const (
	aviHasIndex = 0x10
	aviKeyframe = 0x10
)

// AVIMuxer writes a Motion JPEG AVI without external tools. Frames are
// JPEG-encoded as they arrive and the container is assembled on Finalize.
// It has no audio support.
type AVIMuxer struct {
	logger  zerolog.Logger
	quality int

	mu      sync.Mutex
	video   *VideoSink
	frames  [][]byte
	scratch *image.RGBA
	closed  bool
}

// NewAVIMuxer creates a muxer with the given JPEG quality (1-100, 0 means 90).
func NewAVIMuxer(logger zerolog.Logger, quality int) *AVIMuxer {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &AVIMuxer{
		logger:  logger.With().Str("component", "avi").Logger(),
		quality: quality,
	}
}

func (m *AVIMuxer) OpenVideoTrack(ctx context.Context, cfg VideoConfig) (*VideoSink, error) {
	if err := validateVideoConfig(cfg); err != nil {
		return nil, err
	}
	cfg.Codec = "mjpeg"

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.video != nil {
		return nil, fmt.Errorf("video %w", ErrTrackOpen)
	}
	m.video = &VideoSink{Config: cfg}
	return m.video, nil
}

func (m *AVIMuxer) OpenAudioTrack(ctx context.Context, cfg AudioConfig) (*AudioSink, error) {
	return nil, ErrAudioUnsupported
}

func (m *AVIMuxer) SubmitFrame(sink *VideoSink, timestamp, duration float64, img image.Image) error {
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

	v := m.video.Config
	if b := img.Bounds(); b.Dx() != v.Width || b.Dy() != v.Height {
		if m.scratch == nil {
			m.scratch = image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
		}
		draw.ApproxBiLinear.Scale(m.scratch, m.scratch.Bounds(), img, b, draw.Src, nil)
		img = m.scratch
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.quality}); err != nil {
		return fmt.Errorf("encode JPEG frame: %w", err)
	}
	m.frames = append(m.frames, buf.Bytes())
	return nil
}

func (m *AVIMuxer) Finalize(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	m.closed = true
	if len(m.frames) == 0 {
		return nil, fmt.Errorf("no frames submitted")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := new(bytes.Buffer)
	if err := writeAVI(out, m.video.Config, m.frames); err != nil {
		return nil, err
	}
	m.frames = nil

	m.logger.Debug().Int("bytes", out.Len()).Int("frames", m.video.Frames()).Msg("avi finalized")
	return out.Bytes(), nil
}

func (m *AVIMuxer) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.frames = nil
	return nil
}

// binaryWriter keeps the first write error.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) fourCC(s string) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write([]byte(s))
}

func (bw *binaryWriter) u32(v uint32) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) u16(v uint16) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binaryWriter) bytes(data []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(data)
}

func padded(n uint32) uint32 {
	return n + n%2
}

func writeAVI(w io.Writer, cfg VideoConfig, frames [][]byte) error {
	width, height := uint32(cfg.Width), uint32(cfg.Height)
	fps := uint32(cfg.FPS)
	count := uint32(len(frames))

	var maxFrame, moviData uint32
	for _, f := range frames {
		size := uint32(len(f))
		if size > maxFrame {
			maxFrame = size
		}
		moviData += 8 + padded(size)
	}

	moviSize := 4 + moviData
	idx1Size := 8 + count*16
	hdrlSize := uint32(4 + 64 + 124) // "hdrl" + avih + strl
	fileSize := 4 + (8 + hdrlSize) + (8 + moviSize) + idx1Size

	bw := &binaryWriter{w: w}

	bw.fourCC("RIFF")
	bw.u32(fileSize)
	bw.fourCC("AVI ")

	bw.fourCC("LIST")
	bw.u32(hdrlSize)
	bw.fourCC("hdrl")

	// avih
	bw.fourCC("avih")
	bw.u32(56)
	bw.u32(1_000_000 / fps)
	bw.u32(maxFrame * fps)
	bw.u32(0)
	bw.u32(aviHasIndex)
	bw.u32(count)
	bw.u32(0)
	bw.u32(1) // streams
	bw.u32(maxFrame)
	bw.u32(width)
	bw.u32(height)
	for i := 0; i < 4; i++ {
		bw.u32(0)
	}

	bw.fourCC("LIST")
	bw.u32(116)
	bw.fourCC("strl")

	// strh
	bw.fourCC("strh")
	bw.u32(56)
	bw.fourCC("vids")
	bw.fourCC("MJPG")
	bw.u32(0)
	bw.u16(0)
	bw.u16(0)
	bw.u32(0)
	bw.u32(1) // scale
	bw.u32(fps)
	bw.u32(0)
	bw.u32(count)
	bw.u32(maxFrame)
	bw.u32(0)
	bw.u32(0)
	bw.u16(0)
	bw.u16(0)
	bw.u16(uint16(width))
	bw.u16(uint16(height))

	// strf, BITMAPINFOHEADER
	bw.fourCC("strf")
	bw.u32(40)
	bw.u32(40)
	bw.u32(width)
	bw.u32(height)
	bw.u16(1)
	bw.u16(24)
	bw.fourCC("MJPG")
	bw.u32(width * height * 3)
	for i := 0; i < 4; i++ {
		bw.u32(0)
	}

	bw.fourCC("LIST")
	bw.u32(moviSize)
	bw.fourCC("movi")
	for _, f := range frames {
		bw.fourCC("00dc")
		bw.u32(uint32(len(f)))
		bw.bytes(f)
		if len(f)%2 != 0 {
			bw.bytes([]byte{0})
		}
	}

	// idx1 offsets are relative to the "movi" fourcc
	bw.fourCC("idx1")
	bw.u32(count * 16)
	offset := uint32(4)
	for _, f := range frames {
		bw.fourCC("00dc")
		bw.u32(aviKeyframe)
		bw.u32(offset)
		bw.u32(uint32(len(f)))
		offset += 8 + padded(uint32(len(f)))
	}

	if bw.err != nil {
		return fmt.Errorf("write AVI: %w", bw.err)
	}
	return nil
}
