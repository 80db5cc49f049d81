package pages

import (
	"github.com/google/uuid"
)

// SourceFile is one uploaded document. It is never modified after intake and is
// shared by every PageEntry cut from it.
type SourceFile struct {
	ID   string
	Name string
	Data []byte
}

// NewSourceFile wraps uploaded bytes with a fresh identity.
func NewSourceFile(name string, data []byte) *SourceFile {
	if name == "" {
		name = "upload.pdf"
	}
	return &SourceFile{ID: uuid.NewString(), Name: name, Data: data}
}

// PageDescriptor is what intake knows about one page before it enters the registry.
type PageDescriptor struct {
	Width  float64
	Height float64
}

// PageEntry is one logical page in the registry.
type PageEntry struct {
	ID              string
	Source          *SourceFile
	SourcePageIndex int
	Rotation        int // 0, 90, 180 or 270
	Width           float64
	Height          float64
}

// DisplaySize returns the page size as seen after applying Rotation.
func (p PageEntry) DisplaySize() (float64, float64) {
	if p.Rotation%180 != 0 {
		return p.Height, p.Width
	}
	return p.Width, p.Height
}

// IDSet is an unordered set of page ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// NormalizeRotation maps any multiple of 90 into [0, 360).
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
