package analyzer

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// page is a white page with dark filled rectangles on it.
func page(w, h int, blocks ...image.Rectangle) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for _, b := range blocks {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func TestRegions(t *testing.T) {
	img := page(200, 200, image.Rect(50, 50, 150, 150))

	regions := NewEdgeDetector().Regions(img)
	require.Len(t, regions, 1)

	r := regions[0].Rect
	assert.True(t, r.Dx() >= 100 && r.Dy() >= 100, "region %v", r)
	assert.True(t, r.In(image.Rect(40, 40, 160, 160)), "region %v", r)
}

func TestRegions_DropsNoise(t *testing.T) {
	img := page(100, 100, image.Rect(10, 10, 12, 12))
	assert.Empty(t, NewEdgeDetector().Regions(img))
}

func TestContentBounds(t *testing.T) {
	img := page(300, 400,
		image.Rect(40, 60, 120, 100),
		image.Rect(150, 300, 260, 340),
	)

	bounds, ok := NewEdgeDetector().ContentBounds(img, 10)
	require.True(t, ok)
	assert.True(t, image.Rect(40, 60, 260, 340).In(bounds), "bounds %v", bounds)
	assert.True(t, bounds.In(image.Rect(25, 45, 275, 355)), "bounds %v", bounds)
}

func TestContentBounds_BlankPage(t *testing.T) {
	img := page(120, 80)
	bounds, ok := NewEdgeDetector().ContentBounds(img, 4)
	assert.False(t, ok)
	assert.Equal(t, img.Bounds(), bounds)
}

func TestContentBounds_OffsetImage(t *testing.T) {
	full := page(200, 200, image.Rect(120, 120, 160, 160))
	sub := full.SubImage(image.Rect(100, 100, 200, 200))

	bounds, ok := NewEdgeDetector().ContentBounds(sub, 0)
	require.True(t, ok)
	assert.True(t, bounds.In(sub.Bounds()))
	assert.True(t, image.Rect(120, 120, 160, 160).In(bounds.Inset(-3)), "bounds %v", bounds)
}
