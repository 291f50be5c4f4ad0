// Command pdfchunk splits a PDF into chunks that each fit a byte budget.
//
//	pdfchunk [flags] <input_pdf> [output_dir]
//
// Defaults come from the environment (PDFCHUNK_* variables, .env); flags
// override them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfchunk/internal/chunker"
	"github.com/local/pdfchunk/internal/config"
	"github.com/local/pdfchunk/internal/logger"
)

const (
	exitOK    = 0
	exitRun   = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cliOptions struct {
	input   string
	output  string
	cfg     chunker.Config
	json    bool
	verbose bool
}

// parseArgs accepts flags before, between and after the positionals.
func parseArgs(args []string, env config.ChunkingConfig, stderr io.Writer) (cliOptions, error) {
	o := cliOptions{output: env.OutputDir}
	fs := flag.NewFlagSet("pdfchunk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: pdfchunk [flags] <input_pdf> [output_dir]")
		fs.PrintDefaults()
	}

	maxSize := fs.Float64("max-size", env.MaxSizeMB, "maximum chunk size in megabytes")
	fs.IntVar(&o.cfg.ImageMaxDim, "image-max-dim", env.ImageMaxDim, "longest image side in pixels after downscaling")
	fs.IntVar(&o.cfg.JPEGQuality, "jpeg-quality", env.JPEGQuality, "JPEG quality for re-encoded images (1-100)")
	fs.BoolVar(&o.cfg.RecompressJPEG, "recompress-jpeg", env.RecompressJPEG, "re-encode RGB JPEGs that need no conversion or resize")
	fs.IntVar(&o.cfg.Workers, "workers", env.Workers, "image transcode workers")
	fs.IntVar(&o.cfg.Lookahead, "lookahead", env.Lookahead, "pages of image prefetch")
	fs.BoolVar(&o.json, "json", false, "print the result as JSON")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")

	var pos []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return o, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		pos = append(pos, rest[0])
		rest = rest[1:]
	}

	switch len(pos) {
	case 2:
		o.output = pos[1]
		fallthrough
	case 1:
		o.input = pos[0]
	case 0:
		fs.Usage()
		return o, errors.New("missing input_pdf")
	default:
		fs.Usage()
		return o, fmt.Errorf("unexpected arguments %q", pos[2:])
	}

	if *maxSize <= 0 {
		return o, fmt.Errorf("--max-size must be positive, got %v", *maxSize)
	}
	o.cfg.MaxChunkSize = config.MBToBytes(*maxSize)
	if err := o.cfg.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "pdfchunk: load .env: %v\n", err)
		return exitUsage
	}
	o, err := parseArgs(args, cfg.Chunking, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "pdfchunk: %v\n", err)
		return exitUsage
	}

	lopts := logger.FromConfig(cfg.Logging, cfg.Axiom, "pdfchunk")
	lopts.Out = stderr
	if o.verbose {
		lopts.Level = "debug"
	}
	if err := logger.Init(lopts); err != nil {
		fmt.Fprintf(stderr, "pdfchunk: init logging: %v\n", err)
		return exitUsage
	}
	defer logger.Close()

	res, err := chunker.ChunkPDF(ctx, o.input, chunker.Options{Config: o.cfg, OutputDir: o.output})
	if err != nil {
		log.Error().Err(err).Str("input", o.input).Msg("chunking failed")
		return exitRun
	}

	if o.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Error().Err(err).Msg("write result")
			return exitRun
		}
		return exitOK
	}
	printSummary(stdout, o.output, res)
	return exitOK
}

func printSummary(w io.Writer, dir string, res *chunker.Result) {
	fmt.Fprintf(w, "%d pages, %d chunks in %s\n", res.Pages, len(res.Chunks), dir)
	if len(res.Chunks) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CHUNK\tPAGES\tSIZE\tFILE\t")
		for _, c := range res.Chunks {
			size := fmt.Sprintf("%.2f MB", float64(c.Size)/(1024*1024))
			if c.Oversize {
				size += " (oversize)"
			}
			fmt.Fprintf(tw, "%d\t%d-%d\t%s\t%s\t\n", c.Index, c.FirstPage, c.LastPage, size, c.Name)
		}
		tw.Flush()
	}
	fmt.Fprintf(w, "images: %d transcoded, %d unchanged, %d failed, %.2f MB saved\n",
		res.ImagesTranscoded, res.ImagesSkipped, res.ImagesFailed, float64(res.ImageBytesSaved)/(1024*1024))
	if n := len(res.Warnings); n > 0 {
		fmt.Fprintf(w, "%d warnings (see log)\n", n)
	}
}
