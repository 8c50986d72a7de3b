package source

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/scene2video/internal/analyzer"
)

// Source is a paged image provider used as billboard texture.
type Source interface {
	PageCount() int
	GetPageDimensions(index int) (width, height float64, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	Close() error
}

// Open picks a source for an asset texture: a PDF document, an image file,
// or a QR placeholder encoding the asset id when no texture is set.
func Open(path, assetID string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		return NewQRSource(assetID), nil
	case ".pdf":
		return NewFitzPDFSource(path)
	default:
		return NewImageSource(path)
	}
}

// marginPad is kept around the detected content of a PDF page.
const marginPad = 8

// Texture renders the first page of the asset texture. PDF pages are
// trimmed to their content so the billboard does not show blank margins.
func Texture(path, assetID string, dpi int) (image.Image, error) {
	src, err := Open(path, assetID)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, err := src.RenderPage(0, dpi)
	if err != nil {
		return nil, err
	}
	if _, isPDF := src.(*FitzPDFSource); isPDF {
		img = TrimMargins(img, marginPad)
	}
	return img, nil
}

// TrimMargins crops img to its detected content plus pad pixels. Blank
// images are returned unchanged.
func TrimMargins(img image.Image, pad int) image.Image {
	bounds, ok := analyzer.NewEdgeDetector().ContentBounds(img, pad)
	if !ok || bounds == img.Bounds() {
		return img
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return img
	}
	return sub.SubImage(bounds)
}

type FitzPDFSource struct {
	doc *fitz.Document
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzPDFSource{doc: doc}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) GetPageDimensions(index int) (float64, float64, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// RenderPage rasterises a page. Textures load once at mount time, so the
// shared document is used directly.
func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	return f.doc.ImageDPI(index, float64(dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
