package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/skip2/go-qrcode"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageSource serves a single decoded image file as one page
type ImageSource struct {
	path string
}

func NewImageSource(path string) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("texture %s is a directory", path)
	}
	return &ImageSource{path: path}, nil
}

func (s *ImageSource) PageCount() int {
	return 1
}

func (s *ImageSource) GetPageDimensions(index int) (float64, float64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

func (s *ImageSource) RenderPage(index int, dpi int) (image.Image, error) {
	if index != 0 {
		return nil, fmt.Errorf("image texture has no page %d", index)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return img, nil
}

func (s *ImageSource) Close() error {
	return nil
}

// QRSource is the placeholder texture for assets without one: a QR code of
// the asset id, so billboards stay distinguishable in the video.
type QRSource struct {
	content string
}

// qrSize is the edge length in pixels at 72 dpi.
const qrSize = 256

func NewQRSource(content string) *QRSource {
	return &QRSource{content: content}
}

func (s *QRSource) PageCount() int {
	return 1
}

func (s *QRSource) GetPageDimensions(index int) (float64, float64, error) {
	return qrSize, qrSize, nil
}

func (s *QRSource) RenderPage(index int, dpi int) (image.Image, error) {
	if dpi <= 0 {
		dpi = 72
	}
	qr, err := qrcode.New(s.content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr texture for %q: %w", s.content, err)
	}
	return qr.Image(qrSize * dpi / 72), nil
}

func (s *QRSource) Close() error {
	return nil
}
