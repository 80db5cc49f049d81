package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pagemerge/internal/pages"
)

var (
	errNoRasterizer = errors.New("no rasterizer configured")
	errNoPages      = errors.New("nothing to merge")
)

// ProgressFunc is called after each page with the number of pages done.
type ProgressFunc func(done, total int)

// Result is a finished merge.
type Result struct {
	Data      []byte
	Pages     int
	Copied    int
	Scaled    int
	Flattened int
	Decodes   int
	Duration  time.Duration
}

// Pipeline turns an ordered list of page entries into one PDF.
type Pipeline struct {
	backend Backend
	raster  RasterOpener
}

// New returns a pipeline. raster may be nil when flattening is never used.
func New(backend Backend, raster RasterOpener) *Pipeline {
	return &Pipeline{backend: backend, raster: raster}
}

// Merge builds the output document from entries in order. Pages are processed
// one at a time; ctx is only checked between pages. Either the whole document
// is returned or an error and no data.
func (p *Pipeline) Merge(ctx context.Context, entries []pages.PageEntry, opts Options, progress ProgressFunc) (*Result, error) {
	if len(entries) == 0 {
		return nil, &pages.InvalidDocumentError{Name: "merge", Reason: errNoPages.Error()}
	}
	opts = opts.withDefaults()
	start := time.Now()

	cache := newDecodeCache(p.backend, p.raster)
	defer cache.Close()

	w := p.backend.NewWriter()
	res := &Result{Pages: len(entries)}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			log.Info().Int("done", i).Int("total", len(entries)).Msg("merge cancelled")
			return nil, err
		}
		if err := p.mergePage(cache, w, e, opts, res); err != nil {
			log.Warn().Err(err).Str("page_id", e.ID).Int("position", i+1).Msg("merge aborted")
			return nil, err
		}
		if progress != nil {
			progress(i+1, len(entries))
		}
	}

	data, err := w.Finish()
	if err != nil {
		return nil, &pages.EncodingError{Stage: "serialize", Err: err}
	}
	res.Data = data
	res.Decodes = cache.decodes
	res.Duration = time.Since(start)

	log.Info().
		Int("pages", res.Pages).
		Int("copied", res.Copied).
		Int("scaled", res.Scaled).
		Int("flattened", res.Flattened).
		Int("sources", res.Decodes).
		Int("bytes", len(data)).
		Dur("took", res.Duration).
		Msg("merge complete")
	return res, nil
}

func (p *Pipeline) mergePage(cache *decodeCache, w Writer, e pages.PageEntry, opts Options, res *Result) error {
	doc, err := cache.document(e.Source)
	if err != nil {
		return err
	}
	idx := e.SourcePageIndex
	if idx < 0 || idx >= doc.NumPages() {
		return &pages.InvalidDocumentError{Name: e.Source.Name, Reason: fmt.Sprintf("page %d missing (document has %d pages)", idx+1, doc.NumPages())}
	}
	width, height, err := doc.PageSize(idx)
	if err != nil {
		return &pages.InvalidDocumentError{Name: e.Source.Name, Reason: fmt.Sprintf("page %d has no size", idx+1), Err: err}
	}
	rotation := pages.NormalizeRotation(e.Rotation)

	if opts.Flatten {
		rd, err := cache.rasterDocument(e.Source)
		if err != nil {
			return err
		}
		img, err := rd.Render(idx, opts.Oversample, rotation)
		if err != nil {
			return &pages.EncodingError{PageID: e.ID, Stage: "rasterize", Err: err}
		}
		// The raster shows the page as displayed, so the page takes its shape.
		if pages.NormalizeRotation(doc.Rotation(idx)+rotation)%180 != 0 {
			width, height = height, width
		}
		if err := w.AddImage(img, width, height); err != nil {
			return &pages.EncodingError{PageID: e.ID, Stage: "embed image", Err: err}
		}
		res.Flattened++
		log.Debug().Str("page_id", e.ID).Int("rotation", rotation).Msg("flattened page")
		return nil
	}

	if opts.NormalizeCanvas {
		if scale := FitScale(width, height, opts.MaxWidth, opts.MaxHeight); scale < 1 {
			if err := w.DrawScaled(doc, idx, scale, rotation); err != nil {
				return &pages.EncodingError{PageID: e.ID, Stage: "embed page", Err: err}
			}
			res.Scaled++
			log.Debug().Str("page_id", e.ID).Float64("scale", scale).Msg("scaled page")
			return nil
		}
	}

	if err := w.CopyPage(doc, idx, rotation); err != nil {
		return &pages.EncodingError{PageID: e.ID, Stage: "copy page", Err: err}
	}
	res.Copied++
	return nil
}
