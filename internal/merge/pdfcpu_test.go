package merge

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/local/pagemerge/internal/pages"
	"github.com/local/pagemerge/internal/pdftest"
)

func near(a, b float64) bool { return math.Abs(a-b) < 0.5 }

func TestPDFCPUDecode(t *testing.T) {
	data := pdftest.MustNew(t, pdftest.Letter, pdftest.Page{Width: 842, Height: 595})
	doc, err := NewPDFCPUBackend(0).Decode(pages.NewSourceFile("a.pdf", data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.NumPages() != 2 {
		t.Fatalf("NumPages = %d, want 2", doc.NumPages())
	}
	w, h, err := doc.PageSize(1)
	if err != nil {
		t.Fatalf("PageSize: %v", err)
	}
	if !near(w, 842) || !near(h, 595) {
		t.Errorf("PageSize(1) = %vx%v, want 842x595", w, h)
	}
}

func TestPDFCPUDecodeRejectsGarbage(t *testing.T) {
	if _, err := NewPDFCPUBackend(0).Decode(pages.NewSourceFile("x.pdf", []byte("%PDF-1.4 nope"))); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPDFCPUMergeEndToEnd(t *testing.T) {
	a := pages.NewSourceFile("a.pdf", pdftest.MustNew(t, pdftest.Letter, pdftest.Letter))
	b := pages.NewSourceFile("b.pdf", pdftest.MustNew(t, pdftest.Page{Width: 1000, Height: 1300}))
	entries := []pages.PageEntry{
		{ID: "p3", Source: b, SourcePageIndex: 0, Width: 1000, Height: 1300},
		{ID: "p1", Source: a, SourcePageIndex: 0, Rotation: 90, Width: 612, Height: 792},
		{ID: "p2", Source: a, SourcePageIndex: 1, Width: 612, Height: 792},
	}

	res, err := New(NewPDFCPUBackend(85), nil).Merge(context.Background(), entries, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got := pdftest.MustInspect(t, res.Data)
	if len(got) != 3 {
		t.Fatalf("output has %d pages, want 3", len(got))
	}
	if !near(got[0].Width, 609.2) || !near(got[0].Height, 792) || got[0].Rotate != 0 {
		t.Errorf("scaled page = %+v, want about 609.2x792", got[0])
	}
	if !near(got[1].Width, 612) || got[1].Rotate != 90 {
		t.Errorf("rotated page = %+v, want 612x792 rotated 90", got[1])
	}
	if got[2].Rotate != 0 {
		t.Errorf("third page rotation = %d, want 0", got[2].Rotate)
	}
	if res.Scaled != 1 || res.Copied != 2 || res.Decodes != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestPDFCPURotationComposesWithExisting(t *testing.T) {
	src := pages.NewSourceFile("r.pdf", pdftest.MustNew(t, pdftest.Page{Width: 612, Height: 792, Rotate: 90}))
	entries := []pages.PageEntry{{ID: "p1", Source: src, Rotation: 270, Width: 612, Height: 792}}

	res, err := New(NewPDFCPUBackend(0), nil).Merge(context.Background(), entries, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := pdftest.MustInspect(t, res.Data); got[0].Rotate != 0 {
		t.Errorf("rotation = %d, want 0 (90+270)", got[0].Rotate)
	}
}

type solidRaster struct{}

func (solidRaster) Render(index int, scale float64, rotation int) (image.Image, error) {
	w, h := 612, 792
	if rotation%180 != 0 {
		w, h = h, w
	}
	return image.NewGray(image.Rect(0, 0, w/8, h/8)), nil
}

func (solidRaster) Close() error { return nil }

func TestPDFCPUFlatten(t *testing.T) {
	src := pages.NewSourceFile("a.pdf", pdftest.MustNew(t, pdftest.Letter, pdftest.Letter))
	entries := []pages.PageEntry{
		{ID: "p1", Source: src, SourcePageIndex: 0, Rotation: 90, Width: 612, Height: 792},
		{ID: "p2", Source: src, SourcePageIndex: 1, Width: 612, Height: 792},
	}
	opts := DefaultOptions()
	opts.Flatten = true
	opener := RasterOpenFunc(func([]byte) (RasterDocument, error) { return solidRaster{}, nil })

	res, err := New(NewPDFCPUBackend(0), opener).Merge(context.Background(), entries, opts, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got := pdftest.MustInspect(t, res.Data)
	if len(got) != 2 {
		t.Fatalf("output has %d pages, want 2", len(got))
	}
	if !near(got[0].Width, 792) || !near(got[0].Height, 612) || got[0].Rotate != 0 {
		t.Errorf("flattened rotated page = %+v, want 792x612 with no rotation", got[0])
	}
	if !near(got[1].Width, 612) || !near(got[1].Height, 792) {
		t.Errorf("flattened page = %+v", got[1])
	}
}

func TestPDFCPUScalesUnfilteredContent(t *testing.T) {
	src := pages.NewSourceFile("plain.pdf", pdftest.MustNew(t, pdftest.Page{Width: 1224, Height: 1584, Plain: true}))
	entries := []pages.PageEntry{{ID: "p1", Source: src, Width: 1224, Height: 1584}}

	res, err := New(NewPDFCPUBackend(0), nil).Merge(context.Background(), entries, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Scaled != 1 {
		t.Fatalf("Scaled = %d, want 1", res.Scaled)
	}
	got := pdftest.MustInspect(t, res.Data)
	if !near(got[0].Width, 612) || !near(got[0].Height, 792) {
		t.Errorf("scaled page = %+v, want 612x792", got[0])
	}
}

func TestPDFCPUFlattenSourceRotation(t *testing.T) {
	src := pages.NewSourceFile("r.pdf", pdftest.MustNew(t, pdftest.Page{Width: 612, Height: 792, Rotate: 90}))
	entries := []pages.PageEntry{{ID: "p1", Source: src, Width: 612, Height: 792}}
	opts := DefaultOptions()
	opts.Flatten = true
	opener := RasterOpenFunc(func([]byte) (RasterDocument, error) { return solidRaster{}, nil })

	res, err := New(NewPDFCPUBackend(0), opener).Merge(context.Background(), entries, opts, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got := pdftest.MustInspect(t, res.Data)
	if !near(got[0].Width, 792) || !near(got[0].Height, 612) || got[0].Rotate != 0 {
		t.Errorf("flattened page = %+v, want 792x612 with no rotation", got[0])
	}
}

func TestPDFCPUImagePageUsesPointSize(t *testing.T) {
	w := NewPDFCPUBackend(0).NewWriter()
	// 2x oversampled letter raster
	if err := w.AddImage(image.NewGray(image.Rect(0, 0, 1224, 1584)), 612, 792); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if err := w.AddImage(image.NewGray(image.Rect(0, 0, 1584, 1224)), 792, 612); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	data, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got := pdftest.MustInspect(t, data)
	if len(got) != 2 {
		t.Fatalf("output has %d pages, want 2", len(got))
	}
	if !near(got[0].Width, 612) || !near(got[0].Height, 792) {
		t.Errorf("portrait page = %+v, want 612x792", got[0])
	}
	if !near(got[1].Width, 792) || !near(got[1].Height, 612) {
		t.Errorf("landscape page = %+v, want 792x612", got[1])
	}
}
