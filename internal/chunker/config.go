package chunker

import (
	"fmt"

	"github.com/local/pdfchunk/internal/imaging"
)

// Config is the explicit parameter set of one run. There are no package
// level defaults; callers fill every budget field.
type Config struct {
	// MaxChunkSize is the byte budget of a single output PDF.
	MaxChunkSize int64
	// ImageMaxDim bounds the longer edge of every transcoded image.
	ImageMaxDim int
	// JPEGQuality is the recompression quality, 1..100.
	JPEGQuality int
	// RecompressJPEG re-encodes JPEG images that are already small enough.
	RecompressJPEG bool
	// Workers bounds concurrent image transcodes. Zero means one.
	Workers int
	// Lookahead is the number of pages past the current one whose images
	// are transcoded ahead of time.
	Lookahead int
	// BaseName prefixes chunk names: <BaseName>_part<NN>.pdf.
	BaseName string
}

// Validate reports the first invalid field as a *ConfigError.
func (c Config) Validate() error {
	switch {
	case c.MaxChunkSize <= 0:
		return &ConfigError{Field: "MaxChunkSize", Reason: fmt.Sprintf("must be positive, got %d", c.MaxChunkSize)}
	case c.ImageMaxDim <= 0:
		return &ConfigError{Field: "ImageMaxDim", Reason: fmt.Sprintf("must be positive, got %d", c.ImageMaxDim)}
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return &ConfigError{Field: "JPEGQuality", Reason: fmt.Sprintf("must be within 1..100, got %d", c.JPEGQuality)}
	case c.Workers < 0:
		return &ConfigError{Field: "Workers", Reason: "must not be negative"}
	case c.Lookahead < 0:
		return &ConfigError{Field: "Lookahead", Reason: "must not be negative"}
	}
	return nil
}

func (c Config) imageOptions() imaging.Options {
	return imaging.Options{MaxDim: c.ImageMaxDim, Quality: c.JPEGQuality, RecompressJPEG: c.RecompressJPEG}
}
