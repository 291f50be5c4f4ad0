// Package sink delivers finished chunks. The partitioner calls Emit once
// per chunk, in chunk order, and waits for it to return.
package sink

import (
	"context"
	"fmt"
	"io"
)

// Document is a built sub-document. It stays valid only for the duration
// of the Emit call; sinks that need it afterwards copy the bytes.
type Document interface {
	io.WriterTo
	Bytes() ([]byte, error)
}

// Chunk is one finished output PDF.
type Chunk struct {
	// Index is 1-based and strictly increasing across a run.
	Index int
	// Name is the suggested file name, e.g. "report_part03.pdf".
	Name string
	// FirstPage and LastPage are 1-based and inclusive.
	FirstPage int
	LastPage  int
	Size      int64
	Oversize  bool
	Doc       Document
}

// Emitter receives chunks.
type Emitter interface {
	Emit(ctx context.Context, c *Chunk) error
}

// Func adapts a function to Emitter.
type Func func(ctx context.Context, c *Chunk) error

// Emit calls f.
func (f Func) Emit(ctx context.Context, c *Chunk) error { return f(ctx, c) }

// PartName returns the conventional chunk name <base>_part<NN>.pdf.
func PartName(base string, index int) string {
	return fmt.Sprintf("%s_part%02d.pdf", base, index)
}
