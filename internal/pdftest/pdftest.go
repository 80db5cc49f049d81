// Package pdftest builds small PDF fixtures and reads back the page geometry
// of generated documents.
package pdftest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Page describes one fixture page, or one page found by Inspect.
type Page struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Rotate int     `json:"rotate,omitempty"`
	// Plain pages draw a filled rectangle with an unfiltered content stream.
	Plain bool `json:"-"`
}

// Letter is a US Letter portrait page.
var Letter = Page{Width: 612, Height: 792}

func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// swatch is a tiny solid image so every fixture page has real content.
func swatch(i int) (io.Reader, error) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	c := color.RGBA{R: uint8(40 * i), G: 120, B: 200, A: 255}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return &buf, nil
}

func onePage(i int, p Page) ([]byte, error) {
	r, err := swatch(i)
	if err != nil {
		return nil, err
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: p.Width, Height: p.Height}
	imp.PageSize = ""
	imp.UserDim = true
	imp.Pos = types.Center
	imp.Scale = 1.0
	imp.ScaleAbs = false
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{r}, imp, newConf()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// New builds a PDF with one page per entry in ps.
func New(ps ...Page) ([]byte, error) {
	if len(ps) == 0 {
		return nil, errors.New("no pages")
	}
	readers := make([]io.ReadSeeker, 0, len(ps))
	for i, p := range ps {
		b, err := onePage(i, p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		readers = append(readers, bytes.NewReader(b))
	}
	var merged bytes.Buffer
	if err := api.MergeRaw(readers, &merged, false, newConf()); err != nil {
		return nil, err
	}

	edited := false
	for _, p := range ps {
		edited = edited || p.Rotate != 0 || p.Plain
	}
	if !edited {
		return merged.Bytes(), nil
	}

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(merged.Bytes()), newConf())
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	for i, p := range ps {
		if p.Rotate == 0 && !p.Plain {
			continue
		}
		d, _, _, err := ctx.PageDict(i+1, false)
		if err != nil {
			return nil, err
		}
		if p.Rotate != 0 {
			d["Rotate"] = types.Integer(p.Rotate)
		}
		if p.Plain {
			if err := setPlainContent(ctx, d, p); err != nil {
				return nil, err
			}
		}
	}
	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func setPlainContent(ctx *model.Context, d types.Dict, p Page) error {
	sd := types.StreamDict{Dict: types.NewDict()}
	sd.Content = []byte(fmt.Sprintf("0.2 0.4 0.8 rg 0 0 %.2f %.2f re f", p.Width, p.Height))
	if err := sd.Encode(); err != nil {
		return err
	}
	ref, err := ctx.IndRefForNewObject(sd)
	if err != nil {
		return err
	}
	d["Contents"] = *ref
	return nil
}

// MustNew is New for tests.
func MustNew(t testing.TB, ps ...Page) []byte {
	t.Helper()
	b, err := New(ps...)
	if err != nil {
		t.Fatalf("building fixture pdf: %v", err)
	}
	return b
}

// Repeat returns n copies of p.
func Repeat(p Page, n int) []Page {
	out := make([]Page, n)
	for i := range out {
		out[i] = p
	}
	return out
}

// Inspect returns the visible box size and /Rotate of every page in data.
func Inspect(data []byte) ([]Page, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), newConf())
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	out := make([]Page, 0, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		_, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, err
		}
		box := inh.CropBox
		if box == nil {
			box = inh.MediaBox
		}
		if box == nil {
			return nil, fmt.Errorf("page %d has no media box", i)
		}
		out = append(out, Page{Width: box.Width(), Height: box.Height(), Rotate: inh.Rotate})
	}
	return out, nil
}

// MustInspect is Inspect for tests.
func MustInspect(t testing.TB, data []byte) []Page {
	t.Helper()
	ps, err := Inspect(data)
	if err != nil {
		t.Fatalf("inspecting pdf: %v", err)
	}
	return ps
}
