package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const PDF = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs data using magic bytes, not the name. name is only used for logging
// and the description of unsupported uploads.
func (d *Detector) Detect(name string, data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(name, info)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", name).Bool("supported", info.Supported).Msg("detected file type")
	return info
}

// classify marks PDFs as supported. Everything else is rejected at intake.
func (d *Detector) classify(name string, info *FileTypeInfo) {
	switch {
	case mimetype.EqualsAny(info.MIMEType, PDF):
		info.Supported = true
		info.Description = "PDF document"

	// A PDF extension on something else is the most common upload mistake.
	case strings.EqualFold(filepath.Ext(name), ".pdf"):
		info.Description = fmt.Sprintf("File named %s is not a PDF (%s)", name, info.MIMEType)

	case strings.HasPrefix(info.MIMEType, "image/"):
		info.Description = "Image file; only PDF documents can be merged"

	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
