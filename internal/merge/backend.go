package merge

import (
	"image"

	"github.com/local/pagemerge/internal/pages"
)

// Document is a decoded source file.
type Document interface {
	NumPages() int
	// PageSize returns the natural size of a zero-based page in points.
	PageSize(index int) (float64, float64, error)
	// Rotation returns the page's own /Rotate, normalized.
	Rotation(index int) int
}

// Writer assembles the output document one page at a time.
type Writer interface {
	// CopyPage copies a page verbatim, adding rotation to its /Rotate.
	CopyPage(doc Document, index, rotation int) error
	// DrawScaled embeds a page as a reusable form and draws it scaled into a
	// new page of the scaled size.
	DrawScaled(doc Document, index int, scale float64, rotation int) error
	// AddImage appends a page of width x height points filled by img.
	AddImage(img image.Image, width, height float64) error
	// Finish serializes the document. It is called once, after all pages.
	Finish() ([]byte, error)
}

// Backend decodes sources and creates writers for one PDF implementation.
type Backend interface {
	Decode(src *pages.SourceFile) (Document, error)
	NewWriter() Writer
}

// RasterDocument renders pages of one source to pixels. rotation is applied
// to the rendered image clockwise.
type RasterDocument interface {
	Render(index int, scale float64, rotation int) (image.Image, error)
	Close() error
}

// RasterOpener opens a source for rasterization.
type RasterOpener interface {
	OpenRaster(data []byte) (RasterDocument, error)
}

// RasterOpenFunc adapts a function to RasterOpener.
type RasterOpenFunc func(data []byte) (RasterDocument, error)

func (f RasterOpenFunc) OpenRaster(data []byte) (RasterDocument, error) { return f(data) }
