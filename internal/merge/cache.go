package merge

import (
	"github.com/rs/zerolog/log"

	"github.com/local/pagemerge/internal/pages"
)

// decodeCache memoizes decoded sources for a single merge call, keyed by
// SourceFile id. It must not outlive that call.
type decodeCache struct {
	backend Backend
	raster  RasterOpener
	docs    map[string]Document
	rasters map[string]RasterDocument
	decodes int
}

func newDecodeCache(b Backend, r RasterOpener) *decodeCache {
	return &decodeCache{
		backend: b,
		raster:  r,
		docs:    map[string]Document{},
		rasters: map[string]RasterDocument{},
	}
}

func (c *decodeCache) document(src *pages.SourceFile) (Document, error) {
	if src == nil {
		return nil, &pages.InvalidDocumentError{Reason: "page has no source file"}
	}
	if doc, ok := c.docs[src.ID]; ok {
		return doc, nil
	}
	doc, err := c.backend.Decode(src)
	if err != nil {
		return nil, &pages.InvalidDocumentError{Name: src.Name, Reason: "cannot decode", Err: err}
	}
	c.decodes++
	c.docs[src.ID] = doc
	log.Debug().Str("source", src.Name).Int("pages", doc.NumPages()).Msg("decoded source for merge")
	return doc, nil
}

func (c *decodeCache) rasterDocument(src *pages.SourceFile) (RasterDocument, error) {
	if rd, ok := c.rasters[src.ID]; ok {
		return rd, nil
	}
	if c.raster == nil {
		return nil, &pages.EncodingError{Stage: "rasterize", Err: errNoRasterizer}
	}
	rd, err := c.raster.OpenRaster(src.Data)
	if err != nil {
		return nil, &pages.InvalidDocumentError{Name: src.Name, Reason: "cannot open for rasterizing", Err: err}
	}
	c.rasters[src.ID] = rd
	return rd, nil
}

// Close releases raster documents.
func (c *decodeCache) Close() {
	for id, rd := range c.rasters {
		if err := rd.Close(); err != nil {
			log.Warn().Err(err).Str("source_id", id).Msg("closing raster document")
		}
	}
	c.docs = nil
	c.rasters = nil
}
