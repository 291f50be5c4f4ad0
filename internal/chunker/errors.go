package chunker

import "fmt"

// InputError is fatal and raised before any chunk is produced: the input
// is missing, not a PDF or structurally corrupt.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// ImageTranscodeError is a warning: the image keeps its original stream
// and partitioning continues.
type ImageTranscodeError struct {
	Page   int // 1-based page on which the image was first reached
	Image  string
	Object int
	Err    error
}

func (e *ImageTranscodeError) Error() string {
	if e.Image == "" {
		return fmt.Sprintf("page %d images: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("page %d image %s (obj %d): %v", e.Page, e.Image, e.Object, e.Err)
}

func (e *ImageTranscodeError) Unwrap() error { return e.Err }

// OversizeChunkWarning reports a single-page chunk that exceeds the budget
// on its own. The chunk is still emitted.
type OversizeChunkWarning struct {
	Chunk int
	Page  int
	Size  int64
	Limit int64
}

func (e *OversizeChunkWarning) Error() string {
	return fmt.Sprintf("chunk %d: page %d alone is %d bytes, over the %d byte limit", e.Chunk, e.Page, e.Size, e.Limit)
}

// MeasureError is fatal: a trial build of a page range failed.
type MeasureError struct {
	Pages string
	Err   error
}

func (e *MeasureError) Error() string {
	return fmt.Sprintf("measure pages %s: %v", e.Pages, e.Err)
}

func (e *MeasureError) Unwrap() error { return e.Err }

// OutputWriteError is fatal for the rest of the run. Chunks emitted before
// Chunk are not retracted.
type OutputWriteError struct {
	Chunk int
	Name  string
	Pages string
	Err   error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("emit chunk %d (%s, pages %s): %v", e.Chunk, e.Name, e.Pages, e.Err)
}

func (e *OutputWriteError) Unwrap() error { return e.Err }

// ConfigError rejects an option set before any work starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}
