package merge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/local/pagemerge/internal/pages"
)

type fakeDoc struct {
	sizes   [][2]float64
	rotates map[int]int
}

func (d *fakeDoc) NumPages() int { return len(d.sizes) }

func (d *fakeDoc) PageSize(i int) (float64, float64, error) {
	return d.sizes[i][0], d.sizes[i][1], nil
}

func (d *fakeDoc) Rotation(i int) int { return d.rotates[i] }

type op struct {
	kind     string
	src      string
	index    int
	scale    float64
	rotation int
	w, h     float64
}

type fakeWriter struct {
	ops       []op
	docs      map[*fakeDoc]string
	failAt    int
	finishErr error
}

func (w *fakeWriter) name(doc Document) string { return w.docs[doc.(*fakeDoc)] }

func (w *fakeWriter) check() error {
	if w.failAt > 0 && len(w.ops)+1 == w.failAt {
		return errors.New("boom")
	}
	return nil
}

func (w *fakeWriter) CopyPage(doc Document, index, rotation int) error {
	if err := w.check(); err != nil {
		return err
	}
	w.ops = append(w.ops, op{kind: "copy", src: w.name(doc), index: index, rotation: rotation})
	return nil
}

func (w *fakeWriter) DrawScaled(doc Document, index int, scale float64, rotation int) error {
	if err := w.check(); err != nil {
		return err
	}
	w.ops = append(w.ops, op{kind: "scaled", src: w.name(doc), index: index, scale: scale, rotation: rotation})
	return nil
}

func (w *fakeWriter) AddImage(img image.Image, width, height float64) error {
	if err := w.check(); err != nil {
		return err
	}
	w.ops = append(w.ops, op{kind: "image", w: width, h: height})
	return nil
}

func (w *fakeWriter) Finish() ([]byte, error) {
	if w.finishErr != nil {
		return nil, w.finishErr
	}
	var parts []string
	for _, o := range w.ops {
		parts = append(parts, fmt.Sprintf("%s:%s:%d", o.kind, o.src, o.index))
	}
	return []byte(strings.Join(parts, ",")), nil
}

type fakeBackend struct {
	docs    map[string]*fakeDoc
	decodes map[string]int
	writer  *fakeWriter
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{docs: map[string]*fakeDoc{}, decodes: map[string]int{}}
	b.writer = &fakeWriter{docs: map[*fakeDoc]string{}}
	return b
}

func (b *fakeBackend) add(name string, sizes ...[2]float64) *pages.SourceFile {
	src := pages.NewSourceFile(name, []byte(name))
	d := &fakeDoc{sizes: sizes}
	b.docs[string(src.Data)] = d
	b.writer.docs[d] = name
	return src
}

func (b *fakeBackend) Decode(src *pages.SourceFile) (Document, error) {
	d, ok := b.docs[string(src.Data)]
	if !ok {
		return nil, errors.New("not a pdf")
	}
	b.decodes[src.Name]++
	return d, nil
}

func (b *fakeBackend) NewWriter() Writer { return b.writer }

type fakeRaster struct {
	renders []int
	closed  bool
}

func (r *fakeRaster) Render(index int, scale float64, rotation int) (image.Image, error) {
	r.renders = append(r.renders, rotation)
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func (r *fakeRaster) Close() error { r.closed = true; return nil }

var letter = [2]float64{612, 792}

func entry(id string, src *pages.SourceFile, idx, rot int) pages.PageEntry {
	return pages.PageEntry{ID: id, Source: src, SourcePageIndex: idx, Rotation: rot, Width: 612, Height: 792}
}

func TestMergeKeepsEntryOrder(t *testing.T) {
	b := newFakeBackend()
	a := b.add("a.pdf", letter, letter)
	c := b.add("c.pdf", letter)
	entries := []pages.PageEntry{entry("p3", c, 0, 0), entry("p2", a, 1, 0), entry("p1", a, 0, 0)}

	res, err := New(b, nil).Merge(context.Background(), entries, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got, want := string(res.Data), "copy:c.pdf:0,copy:a.pdf:1,copy:a.pdf:0"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if res.Pages != 3 || res.Copied != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestMergeDecodesEachSourceOnce(t *testing.T) {
	b := newFakeBackend()
	a := b.add("a.pdf", letter, letter, letter)
	c := b.add("c.pdf", letter)
	entries := []pages.PageEntry{entry("p1", a, 0, 0), entry("p4", c, 0, 0), entry("p2", a, 1, 0), entry("p3", a, 2, 0)}

	res, err := New(b, nil).Merge(context.Background(), entries, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if b.decodes["a.pdf"] != 1 || b.decodes["c.pdf"] != 1 {
		t.Errorf("decodes = %v, want one per source", b.decodes)
	}
	if res.Decodes != 2 {
		t.Errorf("Decodes = %d, want 2", res.Decodes)
	}
}

func TestMergeScalesOversizedPages(t *testing.T) {
	b := newFakeBackend()
	big := b.add("big.pdf", [2]float64{1000, 1300})
	small := b.add("small.pdf", [2]float64{500, 500})

	res, err := New(b, nil).Merge(context.Background(), []pages.PageEntry{entry("p1", big, 0, 0), entry("p2", small, 0, 0)}, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	ops := b.writer.ops
	if ops[0].kind != "scaled" {
		t.Fatalf("big page op = %q, want scaled", ops[0].kind)
	}
	want := 792.0 / 1300.0
	if math.Abs(ops[0].scale-want) > 1e-9 {
		t.Errorf("scale = %v, want %v", ops[0].scale, want)
	}
	if w, h := 1000*ops[0].scale, 1300*ops[0].scale; math.Abs(w-609.23) > 0.01 || math.Abs(h-792) > 1e-6 {
		t.Errorf("scaled size = %.2fx%.2f, want about 609.23x792", w, h)
	}
	if ops[1].kind != "copy" {
		t.Errorf("small page op = %q, want copy", ops[1].kind)
	}
	if res.Scaled != 1 || res.Copied != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestMergeWithoutNormalizeCopiesEverything(t *testing.T) {
	b := newFakeBackend()
	big := b.add("big.pdf", [2]float64{1000, 1300})
	opts := DefaultOptions()
	opts.NormalizeCanvas = false

	if _, err := New(b, nil).Merge(context.Background(), []pages.PageEntry{entry("p1", big, 0, 90)}, opts, nil); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if o := b.writer.ops[0]; o.kind != "copy" || o.rotation != 90 {
		t.Errorf("op = %+v, want copy with rotation 90", o)
	}
}

func TestMergeFlattenBakesRotation(t *testing.T) {
	b := newFakeBackend()
	a := b.add("a.pdf", letter, letter)
	raster := &fakeRaster{}
	opener := RasterOpenFunc(func(data []byte) (RasterDocument, error) { return raster, nil })
	opts := DefaultOptions()
	opts.Flatten = true

	res, err := New(b, opener).Merge(context.Background(), []pages.PageEntry{entry("p1", a, 0, 90), entry("p2", a, 1, 0)}, opts, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(raster.renders) != 2 || raster.renders[0] != 90 || raster.renders[1] != 0 {
		t.Errorf("render rotations = %v, want [90 0]", raster.renders)
	}
	ops := b.writer.ops
	if ops[0].kind != "image" || ops[0].w != 792 || ops[0].h != 612 {
		t.Errorf("rotated page = %+v, want 792x612 image", ops[0])
	}
	if ops[1].w != 612 || ops[1].h != 792 {
		t.Errorf("upright page = %+v, want 612x792 image", ops[1])
	}
	for _, o := range ops {
		if o.rotation != 0 {
			t.Errorf("flattened op carries rotation %d", o.rotation)
		}
	}
	if !raster.closed {
		t.Error("raster document not closed")
	}
	if res.Flattened != 2 {
		t.Errorf("Flattened = %d, want 2", res.Flattened)
	}
}

func TestMergeFlattenHonoursSourceRotation(t *testing.T) {
	b := newFakeBackend()
	a := b.add("a.pdf", letter, letter)
	b.docs["a.pdf"].rotates = map[int]int{0: 90, 1: 90}
	opener := RasterOpenFunc(func(data []byte) (RasterDocument, error) { return &fakeRaster{}, nil })
	opts := DefaultOptions()
	opts.Flatten = true

	_, err := New(b, opener).Merge(context.Background(), []pages.PageEntry{entry("p1", a, 0, 0), entry("p2", a, 1, 90)}, opts, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	ops := b.writer.ops
	if ops[0].w != 792 || ops[0].h != 612 {
		t.Errorf("page shown landscape = %+v, want 792x612 image", ops[0])
	}
	if ops[1].w != 612 || ops[1].h != 792 {
		t.Errorf("page turned back upright = %+v, want 612x792 image", ops[1])
	}
}

func TestMergeFlattenWithoutRasterizer(t *testing.T) {
	b := newFakeBackend()
	a := b.add("a.pdf", letter)
	opts := DefaultOptions()
	opts.Flatten = true

	_, err := New(b, nil).Merge(context.Background(), []pages.PageEntry{entry("p1", a, 0, 0)}, opts, nil)
	if !pages.IsEncodingError(err) {
		t.Fatalf("err = %v, want encoding error", err)
	}
}

func TestMergeReportsProgress(t *testing.T) {
	b := newFakeBackend()
	a := b.add("a.pdf", letter, letter, letter)
	var seen []int
	_, err := New(b, nil).Merge(context.Background(), []pages.PageEntry{entry("p1", a, 0, 0), entry("p2", a, 1, 0), entry("p3", a, 2, 0)}, DefaultOptions(),
		func(done, total int) {
			if total != 3 {
				t.Errorf("total = %d", total)
			}
			seen = append(seen, done)
		})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if fmt.Sprint(seen) != "[1 2 3]" {
		t.Errorf("progress = %v", seen)
	}
}

func TestMergeCancelledBetweenPages(t *testing.T) {
	b := newFakeBackend()
	a := b.add("a.pdf", letter, letter, letter)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := New(b, nil).Merge(ctx, []pages.PageEntry{entry("p1", a, 0, 0), entry("p2", a, 1, 0), entry("p3", a, 2, 0)}, DefaultOptions(),
		func(done, total int) {
			if done == 1 {
				cancel()
			}
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Error("cancelled merge returned a result")
	}
	if len(b.writer.ops) != 1 {
		t.Errorf("%d pages written after cancel, want 1", len(b.writer.ops))
	}
}

func TestMergeFailuresReturnNoData(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := New(newFakeBackend(), nil).Merge(context.Background(), nil, DefaultOptions(), nil)
		if !pages.IsInvalidDocument(err) {
			t.Errorf("err = %v, want invalid document", err)
		}
	})
	t.Run("undecodable source", func(t *testing.T) {
		b := newFakeBackend()
		a := b.add("a.pdf", letter)
		bad := pages.NewSourceFile("bad.pdf", []byte("garbage"))
		res, err := New(b, nil).Merge(context.Background(), []pages.PageEntry{entry("p1", a, 0, 0), entry("p2", bad, 0, 0)}, DefaultOptions(), nil)
		if res != nil || !pages.IsInvalidDocument(err) {
			t.Errorf("res = %v, err = %v", res, err)
		}
	})
	t.Run("page index out of range", func(t *testing.T) {
		b := newFakeBackend()
		a := b.add("a.pdf", letter)
		_, err := New(b, nil).Merge(context.Background(), []pages.PageEntry{entry("p1", a, 3, 0)}, DefaultOptions(), nil)
		if !pages.IsInvalidDocument(err) {
			t.Errorf("err = %v, want invalid document", err)
		}
	})
	t.Run("writer failure", func(t *testing.T) {
		b := newFakeBackend()
		a := b.add("a.pdf", letter, letter)
		b.writer.failAt = 2
		res, err := New(b, nil).Merge(context.Background(), []pages.PageEntry{entry("p1", a, 0, 0), entry("p2", a, 1, 0)}, DefaultOptions(), nil)
		var encErr *pages.EncodingError
		if res != nil || !errors.As(err, &encErr) {
			t.Fatalf("res = %v, err = %v", res, err)
		}
		if encErr.PageID != "p2" || encErr.Stage != "copy page" {
			t.Errorf("encoding error = %+v", encErr)
		}
	})
	t.Run("serialize failure", func(t *testing.T) {
		b := newFakeBackend()
		a := b.add("a.pdf", letter)
		b.writer.finishErr = errors.New("disk full")
		_, err := New(b, nil).Merge(context.Background(), []pages.PageEntry{entry("p1", a, 0, 0)}, DefaultOptions(), nil)
		if !pages.IsEncodingError(err) {
			t.Errorf("err = %v, want encoding error", err)
		}
	})
}

func TestFitScale(t *testing.T) {
	cases := []struct {
		w, h, want float64
	}{
		{612, 792, 1},
		{306, 396, 1},
		{1224, 792, 0.5},
		{1000, 1300, 792.0 / 1300.0},
		{0, 10, 1},
	}
	for _, c := range cases {
		if got := FitScale(c.w, c.h, LetterWidth, LetterHeight); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("FitScale(%v, %v) = %v, want %v", c.w, c.h, got, c.want)
		}
	}
}
