package chunker

import (
	"context"
	"sync"

	"github.com/local/pdfchunk/internal/imaging"
	"github.com/local/pdfchunk/internal/pdfdoc"
)

type transcodeJob struct {
	done chan struct{}
	res  imaging.Result
	err  error

	// reported is only touched by the partitioner goroutine.
	reported bool
}

// transcodePool runs image transcodes on a bounded number of goroutines.
// Each image is submitted at most once per run; later submits return the
// job already in flight or finished.
type transcodePool struct {
	src  Source
	opts imaging.Options
	sem  chan struct{}

	mu   sync.Mutex
	jobs map[pdfdoc.ObjectID]*transcodeJob
	wg   sync.WaitGroup
}

func newTranscodePool(src Source, opts imaging.Options, workers int) *transcodePool {
	if workers < 1 {
		workers = 1
	}
	return &transcodePool{
		src:  src,
		opts: opts,
		sem:  make(chan struct{}, workers),
		jobs: map[pdfdoc.ObjectID]*transcodeJob{},
	}
}

func (p *transcodePool) submit(ctx context.Context, id pdfdoc.ObjectID) *transcodeJob {
	p.mu.Lock()
	if j, ok := p.jobs[id]; ok {
		p.mu.Unlock()
		return j
	}
	j := &transcodeJob{done: make(chan struct{})}
	p.jobs[id] = j
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(j.done)
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			j.err = ctx.Err()
			return
		}
		defer func() { <-p.sem }()
		j.res, j.err = p.transcode(id)
	}()
	return j
}

func (p *transcodePool) transcode(id pdfdoc.ObjectID) (imaging.Result, error) {
	x, err := p.src.Image(id)
	if err != nil {
		return imaging.Result{}, err
	}
	res, err := imaging.Transcode(x, p.opts)
	if err != nil || !res.Changed {
		return res, err
	}
	return res, p.src.ReplaceImage(id, x)
}

// wait blocks until every submitted job has finished.
func (p *transcodePool) wait() { p.wg.Wait() }
