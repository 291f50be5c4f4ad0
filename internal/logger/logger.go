// Package logger configures the process-wide zerolog logger and carries
// per-run loggers through a context.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/local/pdfchunk/internal/config"
)

// FileOptions enables a rotating log file when Path is set.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomOptions enables forwarding of info and above to Axiom when Token
// is set.
type AxiomOptions struct {
	Token   string
	OrgID   string
	Dataset string
	Flush   time.Duration
}

type Options struct {
	Level  string
	Pretty bool
	// Out receives console output; stdout when nil. The CLIs pass stderr
	// so their report on stdout stays parseable.
	Out     io.Writer
	Service string
	File    FileOptions
	Axiom   AxiomOptions
}

// FromConfig maps the env configuration onto Options for service.
func FromConfig(lc config.LoggingConfig, ac config.AxiomConfig, service string) Options {
	o := Options{
		Level:   lc.Level,
		Pretty:  lc.Pretty,
		Service: service,
		File: FileOptions{
			Path:       lc.File,
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAgeDays,
			Compress:   lc.Compress,
		},
	}
	if ac.Send {
		o.Axiom = AxiomOptions{Token: ac.APIKey, OrgID: ac.OrgID, Dataset: ac.Dataset, Flush: ac.FlushInterval}
	}
	return o
}

var (
	mu     sync.Mutex
	remote *axiomSink
)

// Init replaces the global logger. On error the previous logger stays in
// place.
func Init(opts Options) error {
	var sinks []io.Writer

	if opts.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File.Path), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   opts.File.Path,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
		})
	}

	console := opts.Out
	if console == nil {
		console = os.Stdout
	}
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}
	sinks = append(sinks, console)

	var ax *axiomSink
	if opts.Axiom.Token != "" {
		s, err := dialAxiom(opts.Axiom, opts.Service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "axiom disabled: %v\n", err)
		} else {
			ax = s
			sinks = append(sinks, s)
		}
	}

	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	l := zerolog.New(io.MultiWriter(sinks...)).Level(lvl).With().Timestamp()
	if opts.Service != "" {
		l = l.Str("service", opts.Service)
	}

	mu.Lock()
	prev := remote
	remote = ax
	log.Logger = l.Logger()
	mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

// Close flushes and detaches the Axiom forwarder, if any.
func Close() {
	mu.Lock()
	s := remote
	remote = nil
	mu.Unlock()
	if s != nil {
		s.Close()
	}
}
