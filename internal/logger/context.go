package logger

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type runKey struct{}

// WithRun returns ctx carrying a logger that adds the given key/value
// pairs to every event. Fields accumulate across nested calls, so a job
// id set by the server is kept when the chunker adds the input path.
func WithRun(ctx context.Context, kv ...string) context.Context {
	c := FromContext(ctx).With()
	for i := 0; i+1 < len(kv); i += 2 {
		c = c.Str(kv[i], kv[i+1])
	}
	l := c.Logger()
	return context.WithValue(ctx, runKey{}, &l)
}

// FromContext returns the run logger of ctx, or the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(runKey{}).(*zerolog.Logger); ok {
		return l
	}
	return &log.Logger
}
