package chunker

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/local/pdfchunk/internal/filetype"
	"github.com/local/pdfchunk/internal/logger"
	"github.com/local/pdfchunk/internal/pdfdoc"
	"github.com/local/pdfchunk/internal/sink"
)

// DefaultOutputDir is used when neither OutputDir nor Emitter is set.
const DefaultOutputDir = "output"

// Options selects the output of ChunkPDF. At most one of OutputDir and
// Emitter may be set.
type Options struct {
	Config
	OutputDir string
	Emitter   sink.Emitter
}

func (o Options) emitter() (sink.Emitter, error) {
	switch {
	case o.OutputDir != "" && o.Emitter != nil:
		return nil, &ConfigError{Field: "OutputDir", Reason: "cannot be combined with a custom emitter"}
	case o.Emitter != nil:
		return o.Emitter, nil
	case o.OutputDir != "":
		return sink.NewFileSink(o.OutputDir), nil
	}
	return sink.NewFileSink(DefaultOutputDir), nil
}

// ChunkPDF loads the PDF at inputPath, transcodes its images and emits it
// as chunks of at most opts.MaxChunkSize bytes. The document is released
// before ChunkPDF returns, on success and on failure.
func ChunkPDF(ctx context.Context, inputPath string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out, err := opts.emitter()
	if err != nil {
		return nil, err
	}

	ctx = logger.WithRun(ctx, "input", inputPath)
	if _, err := os.Stat(inputPath); err != nil {
		return nil, &InputError{Path: inputPath, Err: err}
	}
	if err := filetype.New().RequirePDF(inputPath); err != nil {
		return nil, &InputError{Path: inputPath, Err: err}
	}
	doc, err := pdfdoc.Open(inputPath)
	if err != nil {
		return nil, &InputError{Path: inputPath, Err: err}
	}
	defer func() {
		if err := doc.Close(); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Msg("close input")
		}
	}()

	cfg := opts.Config
	if cfg.BaseName == "" {
		cfg.BaseName = BaseName(inputPath)
	}
	src := FromDocument(doc)
	p, err := NewPartitioner(src, NewTrialEstimator(src), out, cfg)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// BaseName returns the file name of path without its extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
