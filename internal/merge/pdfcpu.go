package merge

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pagemerge/internal/pages"
)

const formName = "Pg0"

// PDFCPUBackend implements Backend with pdfcpu. Every output page is built as
// a single-page document and the pages are merged in Finish.
//
// pdfcpu writes into its Configuration, so every decode and writer gets its own.
type PDFCPUBackend struct {
	jpegQuality int
}

func NewPDFCPUBackend(jpegQuality int) *PDFCPUBackend {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 90
	}
	return &PDFCPUBackend{jpegQuality: jpegQuality}
}

// NewPDFConfig is the relaxed pdfcpu configuration used for reading uploads.
func NewPDFConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

type pdfDoc struct {
	ctx *model.Context
}

func (d *pdfDoc) NumPages() int { return d.ctx.PageCount }

func (d *pdfDoc) PageSize(index int) (float64, float64, error) {
	_, _, inh, err := d.ctx.PageDict(index+1, false)
	if err != nil {
		return 0, 0, err
	}
	box := visibleBox(inh)
	if box == nil {
		return 0, 0, fmt.Errorf("page %d has no media box", index+1)
	}
	return box.Width(), box.Height(), nil
}

func (d *pdfDoc) Rotation(index int) int {
	_, _, inh, err := d.ctx.PageDict(index+1, false)
	if err != nil || inh == nil {
		return 0
	}
	return pages.NormalizeRotation(inh.Rotate)
}

// ReadContext parses, validates and optimizes a PDF held in memory.
func ReadContext(data []byte, conf *model.Configuration) (*model.Context, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	return ctx, nil
}

func (b *PDFCPUBackend) Decode(src *pages.SourceFile) (Document, error) {
	ctx, err := ReadContext(src.Data, NewPDFConfig())
	if err != nil {
		return nil, err
	}
	if ctx.PageCount == 0 {
		return nil, errors.New("document has no pages")
	}
	return &pdfDoc{ctx: ctx}, nil
}

func (b *PDFCPUBackend) NewWriter() Writer {
	return &pdfWriter{conf: NewPDFConfig(), jpegQuality: b.jpegQuality}
}

type pdfWriter struct {
	conf        *model.Configuration
	jpegQuality int
	segments    [][]byte
}

func asPDFDoc(doc Document) (*pdfDoc, error) {
	d, ok := doc.(*pdfDoc)
	if !ok {
		return nil, fmt.Errorf("document %T was not decoded by pdfcpu", doc)
	}
	return d, nil
}

// extract copies one page of doc into its own context.
func extract(doc Document, index int) (*model.Context, types.Dict, *model.InheritedPageAttrs, error) {
	d, err := asPDFDoc(doc)
	if err != nil {
		return nil, nil, nil, err
	}
	pageCtx, err := pdfcpu.ExtractPages(d.ctx, []int{index + 1}, false)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("extract page %d: %w", index+1, err)
	}
	if err := pageCtx.EnsurePageCount(); err != nil {
		return nil, nil, nil, err
	}
	pageDict, _, inh, err := pageCtx.PageDict(1, false)
	if err != nil {
		return nil, nil, nil, err
	}
	if pageDict == nil {
		return nil, nil, nil, fmt.Errorf("page %d not found after extraction", index+1)
	}
	return pageCtx, pageDict, inh, nil
}

func (w *pdfWriter) CopyPage(doc Document, index, rotation int) error {
	pageCtx, pageDict, inh, err := extract(doc, index)
	if err != nil {
		return err
	}
	if rotation != 0 {
		setRotate(pageDict, inh.Rotate+rotation)
	}
	return w.appendContext(pageCtx)
}

func (w *pdfWriter) DrawScaled(doc Document, index int, scale float64, rotation int) error {
	pageCtx, pageDict, inh, err := extract(doc, index)
	if err != nil {
		return err
	}
	box := visibleBox(inh)
	if box == nil {
		return fmt.Errorf("page %d has no media box", index+1)
	}
	content, err := pageContent(pageCtx, pageDict)
	if err != nil {
		return fmt.Errorf("read page content: %w", err)
	}

	form, err := pageCtx.NewStreamDictForBuf(content)
	if err != nil {
		return err
	}
	form.InsertName("Type", "XObject")
	form.InsertName("Subtype", "Form")
	form.Insert("BBox", box.Array())
	if inh.Resources != nil {
		form.Insert("Resources", inh.Resources)
	}
	if err := form.Encode(); err != nil {
		return err
	}
	formRef, err := pageCtx.IndRefForNewObject(*form)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "q %.5f 0 0 %.5f %.5f %.5f cm /%s Do Q", scale, scale, -box.LL.X*scale, -box.LL.Y*scale, formName)
	drawing, err := pageCtx.NewStreamDictForBuf(buf.Bytes())
	if err != nil {
		return err
	}
	if err := drawing.Encode(); err != nil {
		return err
	}
	drawRef, err := pageCtx.IndRefForNewObject(*drawing)
	if err != nil {
		return err
	}

	newBox := types.RectForWidthAndHeight(0, 0, box.Width()*scale, box.Height()*scale)
	pageDict["MediaBox"] = newBox.Array()
	for _, k := range []string{"CropBox", "BleedBox", "TrimBox", "ArtBox", "Annots"} {
		pageDict.Delete(k)
	}
	pageDict["Resources"] = types.Dict{"XObject": types.Dict{formName: *formRef}}
	pageDict["Contents"] = *drawRef
	setRotate(pageDict, inh.Rotate+rotation)

	return w.appendContext(pageCtx)
}

// pageContent returns the decoded content of a page. Streams written without a
// filter carry their bytes in Content only, so they are not decoded again.
func pageContent(ctx *model.Context, pageDict types.Dict) ([]byte, error) {
	obj, found := pageDict.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case types.StreamDict:
		return streamContent(&o)
	case types.Array:
		var buf bytes.Buffer
		for i, el := range o {
			el, err := ctx.Dereference(el)
			if err != nil {
				return nil, err
			}
			sd, ok := el.(types.StreamDict)
			if !ok {
				return nil, fmt.Errorf("content part %d is %T, not a stream", i, el)
			}
			b, err := streamContent(&sd)
			if err != nil {
				return nil, err
			}
			if i > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(b)
		}
		return buf.Bytes(), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("page contents is %T", obj)
}

func streamContent(sd *types.StreamDict) ([]byte, error) {
	if sd.Content != nil {
		return sd.Content, nil
	}
	if len(sd.FilterPipeline) == 0 {
		return sd.Raw, nil
	}
	if sd.Raw == nil {
		return nil, errors.New("content stream has no data")
	}
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("decode content stream: %w", err)
	}
	return sd.Content, nil
}

func (w *pdfWriter) AddImage(img image.Image, width, height float64) error {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, &jpeg.Options{Quality: w.jpegQuality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: width, Height: height}
	imp.PageSize = ""
	imp.UserDim = true
	// Fit the image to the page. types.Full would size the page to the pixels.
	imp.Pos = types.Center
	imp.Scale = 1.0
	imp.ScaleAbs = false

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{&jpg}, imp, w.conf); err != nil {
		return fmt.Errorf("import image: %w", err)
	}
	w.segments = append(w.segments, out.Bytes())
	return nil
}

func (w *pdfWriter) appendContext(ctx *model.Context) error {
	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	w.segments = append(w.segments, out.Bytes())
	return nil
}

func (w *pdfWriter) Finish() ([]byte, error) {
	switch len(w.segments) {
	case 0:
		return nil, errNoPages
	case 1:
		return w.segments[0], nil
	}
	readers := make([]io.ReadSeeker, len(w.segments))
	for i, seg := range w.segments {
		readers[i] = bytes.NewReader(seg)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, w.conf); err != nil {
		return nil, fmt.Errorf("merge pages: %w", err)
	}
	w.segments = nil
	return out.Bytes(), nil
}

func visibleBox(inh *model.InheritedPageAttrs) *types.Rectangle {
	if inh == nil {
		return nil
	}
	if inh.CropBox != nil {
		return inh.CropBox
	}
	return inh.MediaBox
}

func setRotate(pageDict types.Dict, deg int) {
	deg = pages.NormalizeRotation(deg)
	if deg == 0 {
		pageDict.Delete("Rotate")
		return
	}
	pageDict["Rotate"] = types.Integer(deg)
}
