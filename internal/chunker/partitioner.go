package chunker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/pdfchunk/internal/imaging"
	"github.com/local/pdfchunk/internal/logger"
	"github.com/local/pdfchunk/internal/metrics"
	"github.com/local/pdfchunk/internal/pdfdoc"
	"github.com/local/pdfchunk/internal/sink"
)

// Descriptor describes one emitted chunk.
type Descriptor struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	FirstPage int    `json:"first_page"`
	LastPage  int    `json:"last_page"`
	Size      int64  `json:"size"`
	Oversize  bool   `json:"oversize"`
}

// Result summarizes a run. On a fatal error it holds what was done up to
// that point.
type Result struct {
	Pages    int          `json:"pages"`
	Chunks   []Descriptor `json:"chunks"`
	Warnings []error      `json:"-"`

	ImagesTranscoded int   `json:"images_transcoded"`
	ImagesSkipped    int   `json:"images_skipped"`
	ImagesFailed     int   `json:"images_failed"`
	ImageBytesSaved  int64 `json:"image_bytes_saved"`
}

// WarningMessages returns the text of every warning, in order.
func (r *Result) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// MarshalJSON encodes warnings as their messages.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		Warnings []string `json:"warnings"`
	}{plain(r), r.WarningMessages()})
}

type state int

const (
	stateCollecting state = iota
	stateFlush
	stateDone
)

type pageImages struct {
	refs []pdfdoc.ImageRef
	err  error
}

// Partitioner splits a document into contiguous page ranges whose
// serialized size stays within Config.MaxChunkSize. Boundaries are decided
// on one goroutine in page order; only image transcodes run concurrently.
type Partitioner struct {
	src  Source
	est  Estimator
	out  sink.Emitter
	cfg  Config
	base string
	log  *zerolog.Logger

	pages map[int]pageImages
}

// NewPartitioner validates cfg and returns a partitioner that emits into out.
func NewPartitioner(src Source, est Estimator, out sink.Emitter, cfg Config) (*Partitioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := cfg.BaseName
	if base == "" {
		base = "document"
	}
	return &Partitioner{src: src, est: est, out: out, cfg: cfg, base: base, pages: map[int]pageImages{}}, nil
}

// Run partitions the whole document. It may be stopped between pages by
// cancelling ctx; chunks already emitted stay valid and the pending one is
// discarded.
func (p *Partitioner) Run(ctx context.Context) (*Result, error) {
	n := p.src.PageCount()
	res := &Result{Pages: n, Chunks: []Descriptor{}}
	pool := newTranscodePool(p.src, p.cfg.imageOptions(), p.cfg.Workers)
	defer pool.wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.log = logger.FromContext(ctx)

	start := time.Now()
	p.log.Info().Int("pages", n).Int64("max_chunk_size", p.cfg.MaxChunkSize).Int("image_max_dim", p.cfg.ImageMaxDim).Msg("partitioning started")

	var (
		st        = stateCollecting
		page      int
		first     int
		committed *Measurement
		oversize  bool
	)
	for st != stateDone {
		switch st {
		case stateCollecting:
			if page >= n {
				if committed != nil {
					st = stateFlush
				} else {
					st = stateDone
				}
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("stopped before page %d: %w", page+1, err)
			}
			if err := p.prepare(ctx, pool, page, n, res); err != nil {
				return res, err
			}

			r := pdfdoc.PageRange{First: first, Last: page}
			m, err := p.est.Measure(ctx, r)
			if err != nil {
				return res, &MeasureError{Pages: r.String(), Err: err}
			}
			p.log.Debug().Str("pages", r.String()).Int64("size", m.Size).Msg("measured")

			switch {
			case m.Size <= p.cfg.MaxChunkSize:
				committed = m
				page++
			case committed != nil:
				// The page that did not fit opens the next chunk.
				st = stateFlush
			default:
				committed = m
				oversize = true
				page++
				st = stateFlush
			}

		case stateFlush:
			if err := p.flush(ctx, committed, oversize, res); err != nil {
				return res, err
			}
			first = page
			committed = nil
			oversize = false
			st = stateCollecting
		}
	}

	p.log.Info().
		Int("pages", n).
		Int("chunks", len(res.Chunks)).
		Int("warnings", len(res.Warnings)).
		Int("images_transcoded", res.ImagesTranscoded).
		Int64("image_bytes_saved", res.ImageBytesSaved).
		Dur("took", time.Since(start)).
		Msg("partitioning finished")
	return res, nil
}

// prepare transcodes every image of page and waits for them. Images of the
// following Lookahead pages are queued behind them.
func (p *Partitioner) prepare(ctx context.Context, pool *transcodePool, page, n int, res *Result) error {
	cur := p.images(page)
	if cur.err != nil {
		w := &ImageTranscodeError{Page: page + 1, Err: cur.err}
		res.Warnings = append(res.Warnings, w)
		p.log.Warn().Err(cur.err).Int("page", page+1).Msg("page images unreadable; page kept as is")
	}

	jobs := make([]*transcodeJob, len(cur.refs))
	for i, ref := range cur.refs {
		jobs[i] = pool.submit(ctx, ref.ID)
	}
	for ahead := page + 1; ahead <= page+p.cfg.Lookahead && ahead < n; ahead++ {
		for _, ref := range p.images(ahead).refs {
			pool.submit(ctx, ref.ID)
		}
	}

	for i, j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return fmt.Errorf("stopped on page %d: %w", page+1, ctx.Err())
		}
		if errors.Is(j.err, context.Canceled) || errors.Is(j.err, context.DeadlineExceeded) {
			return fmt.Errorf("stopped on page %d: %w", page+1, j.err)
		}
		p.record(j, page, cur.refs[i], res)
	}
	return nil
}

func (p *Partitioner) images(page int) pageImages {
	if pi, ok := p.pages[page]; ok {
		return pi
	}
	refs, err := p.src.PageImages(page)
	pi := pageImages{refs: refs, err: err}
	p.pages[page] = pi
	return pi
}

// record accounts a finished job once, on the first page that uses it.
func (p *Partitioner) record(j *transcodeJob, page int, ref pdfdoc.ImageRef, res *Result) {
	if j.reported {
		return
	}
	j.reported = true

	switch {
	case errors.Is(j.err, imaging.ErrUnsupported):
		res.ImagesSkipped++
		metrics.ObserveImage("skipped", 0)
		p.log.Debug().Err(j.err).Int("page", page+1).Str("image", ref.Name).Msg("image passed through")
	case j.err != nil:
		res.ImagesFailed++
		res.Warnings = append(res.Warnings, &ImageTranscodeError{Page: page + 1, Image: ref.Name, Object: int(ref.ID), Err: j.err})
		metrics.ObserveImage("failed", 0)
		p.log.Warn().Err(j.err).Int("page", page+1).Str("image", ref.Name).Int("obj", int(ref.ID)).Msg("image transcode failed; original kept")
	case j.res.Changed:
		saved := j.res.BytesBefore - j.res.BytesAfter
		res.ImagesTranscoded++
		res.ImageBytesSaved += int64(saved)
		metrics.ObserveImage("changed", saved)
		p.log.Debug().
			Int("page", page+1).
			Str("image", ref.Name).
			Bool("converted", j.res.Converted).
			Bool("resized", j.res.Resized).
			Int("before", j.res.BytesBefore).
			Int("after", j.res.BytesAfter).
			Msg("image transcoded")
	default:
		res.ImagesSkipped++
		metrics.ObserveImage("skipped", 0)
		p.log.Debug().Int("page", page+1).Str("image", ref.Name).Str("reason", j.res.Skipped).Msg("image passed through")
	}
}

func (p *Partitioner) flush(ctx context.Context, m *Measurement, oversize bool, res *Result) error {
	idx := len(res.Chunks) + 1
	c := &sink.Chunk{
		Index:     idx,
		Name:      sink.PartName(p.base, idx),
		FirstPage: m.Range.First + 1,
		LastPage:  m.Range.Last + 1,
		Size:      m.Size,
		Oversize:  oversize,
		Doc:       m.Doc,
	}
	if oversize {
		w := &OversizeChunkWarning{Chunk: idx, Page: c.FirstPage, Size: m.Size, Limit: p.cfg.MaxChunkSize}
		res.Warnings = append(res.Warnings, w)
		p.log.Warn().Int("chunk", idx).Int("page", c.FirstPage).Int64("size", m.Size).Int64("limit", p.cfg.MaxChunkSize).Msg("single page exceeds chunk budget; emitting anyway")
	}

	if err := p.out.Emit(ctx, c); err != nil {
		metrics.IncChunkFailed()
		return &OutputWriteError{Chunk: idx, Name: c.Name, Pages: m.Range.String(), Err: err}
	}
	metrics.ObserveChunk(m.Size, oversize)
	metrics.AddPages(m.Range.Len())
	res.Chunks = append(res.Chunks, Descriptor{
		Index:     idx,
		Name:      c.Name,
		FirstPage: c.FirstPage,
		LastPage:  c.LastPage,
		Size:      m.Size,
		Oversize:  oversize,
	})
	p.log.Info().Int("chunk", idx).Str("name", c.Name).Str("pages", m.Range.String()).Int64("size", m.Size).Msg("chunk emitted")
	return nil
}
