package analyzer

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Region is a connected area of strong edges.
type Region struct {
	Rect image.Rectangle
	Area int // bounding box area in pixels²
}

// EdgeDetector finds content in a texture with a Sobel filter: edges are
// thresholded, dilated to merge nearby strokes and grouped into regions.
type EdgeDetector struct {
	MinArea   int     // Regions smaller than this are noise
	Threshold float64 // Gradient magnitude threshold
	Dilation  int     // Dilation radius in pixels
}

func NewEdgeDetector() *EdgeDetector {
	return &EdgeDetector{
		MinArea:   100,
		Threshold: 30.0,
		Dilation:  2,
	}
}

// Regions returns the content regions of img in img's coordinate space.
func (d *EdgeDetector) Regions(img image.Image) []Region {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil
	}

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	mask := d.dilate(d.edges(gray), b.Dx(), b.Dy())

	var regions []Region
	for _, r := range components(mask, b.Dx(), b.Dy()) {
		area := r.Dx() * r.Dy()
		if area < d.MinArea {
			continue
		}
		regions = append(regions, Region{Rect: r.Add(b.Min), Area: area})
	}
	return regions
}

// ContentBounds is the union of all regions grown by pad and clipped to the
// image. ok is false when the image has no content.
func (d *EdgeDetector) ContentBounds(img image.Image, pad int) (image.Rectangle, bool) {
	var union image.Rectangle
	for _, r := range d.Regions(img) {
		union = union.Union(r.Rect)
	}
	if union.Empty() {
		return img.Bounds(), false
	}
	return union.Inset(-pad).Intersect(img.Bounds()), true
}

func (d *EdgeDetector) edges(gray *image.Gray) []bool {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	mask := make([]bool, w*h)
	px := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x])
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1)
			gy := px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1)
			mask[y*w+x] = math.Hypot(gx, gy) > d.Threshold
		}
	}
	return mask
}

// dilate grows the mask by a square of radius d.Dilation, one axis at a time.
func (d *EdgeDetector) dilate(mask []bool, w, h int) []bool {
	r := d.Dilation
	if r <= 0 {
		return mask
	}

	horiz := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		row := mask[y*w : (y+1)*w]
		for x := range row {
			if !row[x] {
				continue
			}
			for i := max(0, x-r); i <= min(w-1, x+r); i++ {
				horiz[y*w+i] = true
			}
		}
	}

	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !horiz[y*w+x] {
				continue
			}
			for j := max(0, y-r); j <= min(h-1, y+r); j++ {
				out[j*w+x] = true
			}
		}
	}
	return out
}

// components returns the bounding boxes of 4-connected regions of the mask.
func components(mask []bool, w, h int) []image.Rectangle {
	visited := make([]bool, len(mask))
	var rects []image.Rectangle
	var stack []int

	for start, set := range mask {
		if !set || visited[start] {
			continue
		}

		minX, minY := start%w, start/w
		maxX, maxY := minX, minY
		visited[start] = true
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%w, p/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				i := ny*w + nx
				if mask[i] && !visited[i] {
					visited[i] = true
					stack = append(stack, i)
				}
			}
		}

		rects = append(rects, image.Rect(minX, minY, maxX+1, maxY+1))
	}
	return rects
}
