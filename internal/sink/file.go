package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/local/pdfchunk/internal/logger"
)

// FileSink writes each chunk to <dir>/<name>. Files are written to a
// temporary name and renamed, so a failed write never leaves a truncated
// chunk behind.
type FileSink struct {
	dir string
}

// NewFileSink returns a sink writing into dir. The directory is created on
// the first Emit.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Emit writes c.Doc to the output directory.
func (s *FileSink) Emit(ctx context.Context, c *Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".pdfchunk-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := c.Doc.WriteTo(tmp)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", c.Name, err)
	}

	dst := filepath.Join(s.dir, c.Name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename %s: %w", c.Name, err)
	}
	logger.FromContext(ctx).Info().Str("path", dst).Int64("bytes", n).Int("first_page", c.FirstPage).Int("last_page", c.LastPage).Msg("chunk written")
	return nil
}
