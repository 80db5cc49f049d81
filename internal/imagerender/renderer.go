package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pagemerge/internal/merge"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// pointsDPI is the resolution at which one pixel equals one PDF point.
const pointsDPI = 72.0

// Document is an open PDF ready for rasterizing. MuPDF documents are not safe
// for concurrent use, so calls are serialized.
type Document struct {
	mu   sync.Mutex
	doc  *fitz.Document
	mode ColorMode
}

// Open loads a PDF held in memory.
func Open(data []byte, mode ColorMode) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &Document{doc: doc, mode: mode}, nil
}

// Opener returns a merge.RasterOpener backed by go-fitz.
func Opener(mode ColorMode) merge.RasterOpener {
	return merge.RasterOpenFunc(func(data []byte) (merge.RasterDocument, error) {
		doc, err := Open(data, mode)
		if err != nil {
			return nil, err
		}
		return doc, nil
	})
}

func (d *Document) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

// Render draws a zero-based page at scale pixels per point and turns the
// result clockwise by rotation degrees.
func (d *Document) Render(index int, scale float64, rotation int) (image.Image, error) {
	if scale <= 0 {
		scale = 1
	}
	d.mu.Lock()
	img, err := d.doc.ImageDPI(index, pointsDPI*scale)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index+1, err)
	}

	var out image.Image = img
	if d.mode == ColorGray {
		gray := image.NewGray(img.Bounds())
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
		out = gray
	}
	out = Rotate(out, rotation)

	b := out.Bounds()
	log.Debug().
		Int("page", index+1).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("rotation", rotation).
		Str("color", string(d.mode)).
		Msg("rendered page")
	return out, nil
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}

// Thumbnail renders a page as JPEG. scale is relative to 72 DPI.
// Returns JPEG bytes, width, height, error
func (d *Document) Thumbnail(index int, scale float64, rotation, quality int) ([]byte, int, int, error) {
	img, err := d.Render(index, scale, rotation)
	if err != nil {
		return nil, 0, 0, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	b := img.Bounds()
	log.Debug().
		Int("page", index+1).
		Int("jpeg_size", buf.Len()).
		Int("quality", quality).
		Float64("scale", scale).
		Msg("encoded thumbnail")
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}

// Rotate returns img turned clockwise by deg, a multiple of 90.
func Rotate(img image.Image, deg int) image.Image {
	deg = ((deg % 360) + 360) % 360
	if deg == 0 {
		return img
	}
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	var dst draw.Image
	if deg == 180 {
		dst = newLike(img, image.Rect(0, 0, w, h))
	} else {
		dst = newLike(img, image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(src.Min.X+x, src.Min.Y+y)
			switch deg {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

func newLike(img image.Image, r image.Rectangle) draw.Image {
	if _, ok := img.(*image.Gray); ok {
		return image.NewGray(r)
	}
	return image.NewRGBA(r)
}

// Thumbnailer renders single page previews straight from source bytes.
type Thumbnailer struct {
	Mode    ColorMode
	Quality int
}

// Page opens data, renders one page as JPEG and closes the document again.
func (t Thumbnailer) Page(data []byte, index int, scale float64, rotation int) ([]byte, int, int, error) {
	q := t.Quality
	if q <= 0 || q > 100 {
		q = 75
	}
	doc, err := Open(data, t.Mode)
	if err != nil {
		return nil, 0, 0, err
	}
	defer doc.Close()
	if index < 0 || index >= doc.NumPages() {
		return nil, 0, 0, fmt.Errorf("page %d out of range", index+1)
	}
	return doc.Thumbnail(index, scale, rotation, q)
}

// probePDF is a one page document without an xref table. MuPDF repairs it on open.
const probePDF = "%PDF-1.4\n" +
	"1 0 obj <</Type /Catalog /Pages 2 0 R>> endobj\n" +
	"2 0 obj <</Type /Pages /Kids [3 0 R] /Count 1>> endobj\n" +
	"3 0 obj <</Type /Page /Parent 2 0 R /MediaBox [0 0 72 72]>> endobj\n" +
	"trailer <</Root 1 0 R>>\n%%EOF\n"

// Probe checks that MuPDF can open and render a document.
func Probe() error {
	doc, err := Open([]byte(probePDF), ColorGray)
	if err != nil {
		return err
	}
	defer doc.Close()
	_, err = doc.Render(0, 0.5, 0)
	return err
}
