// Package intake turns uploaded or referenced bytes into a SourceFile and its
// page descriptors.
package intake

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/pagemerge/internal/filetype"
	"github.com/local/pagemerge/internal/merge"
	"github.com/local/pagemerge/internal/pages"
)

// Loaded is one accepted file.
type Loaded struct {
	Source      *pages.SourceFile
	Descriptors []pages.PageDescriptor
}

type Intake struct {
	detector *filetype.Detector
	fetcher  *Fetcher
	maxBytes int64
}

// New returns an Intake. fetcher may be nil when references are not accepted.
func New(fetcher *Fetcher, maxBytes int64) *Intake {
	return &Intake{detector: filetype.New(), fetcher: fetcher, maxBytes: maxBytes}
}

// Load validates data as a PDF and reads the size of each page.
func (in *Intake) Load(name string, data []byte) (*Loaded, error) {
	if len(data) == 0 {
		return nil, &pages.InvalidDocumentError{Name: name, Reason: "empty file"}
	}
	if in.maxBytes > 0 && int64(len(data)) > in.maxBytes {
		return nil, &pages.InvalidDocumentError{Name: name, Reason: fmt.Sprintf("file exceeds %d bytes", in.maxBytes)}
	}
	info := in.detector.Detect(name, data)
	if !info.Supported {
		return nil, &pages.InvalidDocumentError{Name: name, Reason: info.Description}
	}
	descs, err := Describe(data)
	if err != nil {
		return nil, &pages.InvalidDocumentError{Name: name, Reason: "cannot read pdf", Err: err}
	}
	if len(descs) == 0 {
		return nil, &pages.InvalidDocumentError{Name: name, Reason: "document has no pages"}
	}
	src := pages.NewSourceFile(name, data)
	log.Info().Str("file", src.Name).Str("source_id", src.ID).Int("pages", len(descs)).Int("bytes", len(data)).Msg("accepted upload")
	return &Loaded{Source: src, Descriptors: descs}, nil
}

// Describe returns the unrotated visible size of every page, CropBox first and
// MediaBox otherwise.
func Describe(data []byte) ([]pages.PageDescriptor, error) {
	ctx, err := merge.ReadContext(data, merge.NewPDFConfig())
	if err != nil {
		return nil, err
	}
	out := make([]pages.PageDescriptor, 0, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		_, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if inh == nil {
			return nil, fmt.Errorf("page %d: missing attributes", i)
		}
		box := inh.CropBox
		if box == nil {
			box = inh.MediaBox
		}
		if box == nil {
			return nil, fmt.Errorf("page %d: no media box", i)
		}
		out = append(out, pages.PageDescriptor{Width: box.Width(), Height: box.Height()})
	}
	return out, nil
}
