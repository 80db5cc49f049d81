package merge

import "math"

// US Letter in points.
const (
	LetterWidth  = 612.0
	LetterHeight = 792.0
)

// DefaultOversample is the raster resolution factor used when flattening.
const DefaultOversample = 2.0

// Options control how pages are rebuilt in the output document.
type Options struct {
	NormalizeCanvas bool
	Flatten         bool
	Oversample      float64
	MaxWidth        float64
	MaxHeight       float64
}

func DefaultOptions() Options {
	return Options{
		NormalizeCanvas: true,
		Oversample:      DefaultOversample,
		MaxWidth:        LetterWidth,
		MaxHeight:       LetterHeight,
	}
}

func (o Options) withDefaults() Options {
	if o.Oversample <= 0 {
		o.Oversample = DefaultOversample
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = LetterWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = LetterHeight
	}
	return o
}

// FitScale returns min(maxW/w, maxH/h, 1).
func FitScale(w, h, maxW, maxH float64) float64 {
	if w <= 0 || h <= 0 {
		return 1
	}
	return math.Min(math.Min(maxW/w, maxH/h), 1)
}
