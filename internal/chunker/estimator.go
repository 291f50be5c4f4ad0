package chunker

import (
	"context"
	"time"

	"github.com/local/pdfchunk/internal/metrics"
	"github.com/local/pdfchunk/internal/pdfdoc"
	"github.com/local/pdfchunk/internal/sink"
)

// Measurement is the outcome of a trial build. Doc is the built range and
// is what gets emitted if the range is committed.
type Measurement struct {
	Range pdfdoc.PageRange
	Size  int64
	Doc   sink.Document
}

// Estimator measures the exact serialized size of a page range.
type Estimator interface {
	Measure(ctx context.Context, r pdfdoc.PageRange) (*Measurement, error)
}

// TrialEstimator builds and serializes the range. Summing per-page sizes
// would count shared fonts and images once per page.
type TrialEstimator struct {
	src Source
}

func NewTrialEstimator(src Source) *TrialEstimator {
	return &TrialEstimator{src: src}
}

func (e *TrialEstimator) Measure(ctx context.Context, r pdfdoc.PageRange) (*Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	doc, err := e.src.Build(r)
	if err != nil {
		return nil, err
	}
	data, err := doc.Bytes()
	if err != nil {
		return nil, err
	}
	metrics.ObserveMeasure(time.Since(start))
	return &Measurement{Range: r, Size: int64(len(data)), Doc: doc}, nil
}
