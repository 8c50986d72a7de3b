package source

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 200, 255
	}
	path := filepath.Join(t.TempDir(), "tex.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestOpenPicksSource(t *testing.T) {
	src, err := Open("", "asset_1")
	require.NoError(t, err)
	assert.IsType(t, &QRSource{}, src)

	path := writePNG(t, 32, 16)
	src, err = Open(path, "asset_1")
	require.NoError(t, err)
	assert.IsType(t, &ImageSource{}, src)

	_, err = Open(filepath.Join(t.TempDir(), "missing.pdf"), "asset_1")
	assert.Error(t, err)
}

func TestImageSource(t *testing.T) {
	path := writePNG(t, 32, 16)
	src, err := NewImageSource(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 1, src.PageCount())
	w, h, err := src.GetPageDimensions(0)
	require.NoError(t, err)
	assert.Equal(t, 32.0, w)
	assert.Equal(t, 16.0, h)

	img, err := src.RenderPage(0, 72)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(32, 16), img.Bounds().Size())

	_, err = src.RenderPage(1, 72)
	assert.Error(t, err)

	_, err = NewImageSource(t.TempDir())
	assert.Error(t, err)
}

func TestQRSourceTexture(t *testing.T) {
	img, err := Texture("", "chair", 72)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(qrSize, qrSize), img.Bounds().Size())

	big, err := NewQRSource("chair").RenderPage(0, 144)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(2*qrSize, 2*qrSize), big.Bounds().Size())
}

func TestTrimMargins(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if x >= 60 && x < 140 && y >= 100 && y < 180 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	trimmed := TrimMargins(img, 4)
	b := trimmed.Bounds()
	assert.True(t, image.Rect(60, 100, 140, 180).In(b), "bounds %v", b)
	assert.Less(t, b.Dx(), 120)
	assert.Less(t, b.Dy(), 120)

	blank := image.NewRGBA(image.Rect(0, 0, 50, 50))
	assert.Equal(t, blank.Bounds(), TrimMargins(blank, 4).Bounds())
}
