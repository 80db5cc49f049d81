package pages

import "fmt"

const (
	MinThumbnailScale = 0.1
	MaxThumbnailScale = 3.0
)

// Settings are the per-session options exposed to clients. ThumbnailScale is
// display-only and never reaches the merge.
type Settings struct {
	NormalizeCanvas bool    `json:"normalize_canvas"`
	Flatten         bool    `json:"flatten"`
	ThumbnailScale  float64 `json:"thumbnail_scale"`
}

func DefaultSettings() Settings {
	return Settings{NormalizeCanvas: true, Flatten: false, ThumbnailScale: 1.0}
}

// Validate checks the thumbnail scale range.
func (s Settings) Validate() error {
	return ValidateThumbnailScale(s.ThumbnailScale)
}

func ValidateThumbnailScale(scale float64) error {
	// written so NaN fails too
	if !(scale >= MinThumbnailScale && scale <= MaxThumbnailScale) {
		return fmt.Errorf("thumbnail scale %.2f outside [%.1f, %.1f]", scale, MinThumbnailScale, MaxThumbnailScale)
	}
	return nil
}
