// Package server exposes chunking as an HTTP webhook: a job downloads its
// input from S3, chunks it and uploads every chunk back.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfchunk/internal/chunker"
	"github.com/local/pdfchunk/internal/config"
	"github.com/local/pdfchunk/internal/logger"
	"github.com/local/pdfchunk/internal/metrics"
	"github.com/local/pdfchunk/internal/sink"
	"github.com/local/pdfchunk/internal/storage"
	"github.com/local/pdfchunk/internal/store"
)

// Storage moves job inputs and outputs. *storage.Client implements it.
type Storage interface {
	sink.Uploader
	DownloadToFile(ctx context.Context, key, dir string) (string, error)
}

// ChunkFunc runs one chunking job; chunker.ChunkPDF by default.
type ChunkFunc func(ctx context.Context, inputPath string, opts chunker.Options) (*chunker.Result, error)

type Dependencies struct {
	Storage Storage
	Status  store.StatusStore
	Bucket  string
	// Chunking is the per-job default; requests may override the budget,
	// the image bound and the quality.
	Chunking          chunker.Config
	TempDir           string
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	Chunk             ChunkFunc
}

type Server struct {
	deps  Dependencies
	slots chan struct{}

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(deps Dependencies) *Server {
	if deps.MaxConcurrentJobs <= 0 {
		deps.MaxConcurrentJobs = 1
	}
	if deps.Chunk == nil {
		deps.Chunk = chunker.ChunkPDF
	}
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		deps:    deps,
		slots:   make(chan struct{}, deps.MaxConcurrentJobs),
		ctx:     ctx,
		stop:    stop,
		cancels: map[string]context.CancelFunc{},
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/chunk", s.handleChunk)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/cancel", s.handleCancel)
	mux.Handle("/metrics", metrics.Handler())
}

type chunkReq struct {
	FilePath     string  `json:"file_path"`
	OutputPrefix string  `json:"output_prefix"`
	MaxSizeMB    float64 `json:"max_size_mb"`
	ImageMaxDim  int     `json:"image_max_dim"`
	JPEGQuality  int     `json:"jpeg_quality"`
}

type chunkResp struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req chunkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	bucket, key, err := storage.ParseS3URL(req.FilePath)
	if err != nil {
		http.Error(w, "missing or malformed file_path", http.StatusBadRequest)
		return
	}
	if bucket != "" && bucket != s.deps.Bucket {
		http.Error(w, fmt.Sprintf("bucket %q is not served here", bucket), http.StatusBadRequest)
		return
	}

	cfg := s.deps.Chunking
	if req.MaxSizeMB > 0 {
		cfg.MaxChunkSize = config.MBToBytes(req.MaxSizeMB)
	}
	if req.ImageMaxDim > 0 {
		cfg.ImageMaxDim = req.ImageMaxDim
	}
	if req.JPEGQuality != 0 {
		cfg.JPEGQuality = req.JPEGQuality
	}
	cfg.BaseName = chunker.BaseName(key)
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobID := uuid.NewString()
	prefix := req.OutputPrefix
	if prefix == "" {
		prefix = path.Join("chunks", jobID)
	}
	j := job{id: jobID, key: key, prefix: prefix, cfg: cfg, start: time.Now(), file: req.FilePath}
	if err := s.deps.Status.Save(r.Context(), jobID, j.state(store.StateQueued, 0, "queued")); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("status store unavailable")
		http.Error(w, "status store unavailable", http.StatusServiceUnavailable)
		return
	}
	log.Info().Str("job_id", jobID).Str("key", key).Str("prefix", prefix).Msg("job created")

	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.cancels[jobID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, j)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(chunkResp{Status: "ok", JobID: jobID, Message: "chunking job created"})
}

type statusResp struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	store.Job
	URLs []string `json:"urls"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/status/")
	j, ok, err := s.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResp{Success: j.State == store.StateCompleted, JobID: id, Job: j, URLs: j.URLs()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not running", http.StatusNotFound)
		return
	}
	cancel()
	log.Info().Str("job_id", jobID).Msg("job cancel requested")
	w.WriteHeader(http.StatusNoContent)
}

// Shutdown cancels running jobs and waits for them until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type job struct {
	id     string
	key    string
	file   string
	prefix string
	cfg    chunker.Config
	start  time.Time
}

// state is the stored view of j at a given stage.
func (j job) state(st store.State, progress int, msg string) store.Job {
	start := j.start
	return store.Job{State: st, Progress: progress, Message: msg, Input: j.file, OutputPrefix: j.prefix, Start: &start}
}

func (s *Server) run(ctx context.Context, j job) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.cancels[j.id]; ok {
			cancel()
			delete(s.cancels, j.id)
		}
		s.mu.Unlock()
	}()
	ctx = logger.WithRun(ctx, "job_id", j.id)

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		s.finish(ctx, j, nil, ctx.Err())
		return
	}
	defer func() { <-s.slots }()

	metrics.JobStarted()
	defer metrics.JobFinished()

	if s.deps.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.JobTimeout)
		defer cancel()
	}

	s.save(ctx, j, j.state(store.StateProcessing, 5, "downloading input"))
	input, err := s.deps.Storage.DownloadToFile(ctx, j.key, s.deps.TempDir)
	if err != nil {
		s.finish(ctx, j, nil, err)
		return
	}
	defer os.Remove(input)

	s.save(ctx, j, j.state(store.StateProcessing, 10, "chunking"))
	up := sink.NewS3Sink(s.deps.Storage, s.deps.Bucket, j.prefix)
	emit := sink.Func(func(ctx context.Context, c *sink.Chunk) error {
		if err := up.Emit(ctx, c); err != nil {
			return err
		}
		rec := store.ChunkRecord{
			Index:     c.Index,
			Name:      c.Name,
			FirstPage: c.FirstPage,
			LastPage:  c.LastPage,
			Size:      c.Size,
			Oversize:  c.Oversize,
			URL:       up.URL(c.Name),
		}
		if err := s.deps.Status.AddChunk(context.WithoutCancel(ctx), j.id, rec); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Int("chunk", c.Index).Msg("chunk record not stored")
		}
		s.save(ctx, j, j.state(store.StateProcessing, 10, fmt.Sprintf("uploaded chunk %d (pages %d-%d)", c.Index, c.FirstPage, c.LastPage)))
		return nil
	})

	res, err := s.deps.Chunk(ctx, input, chunker.Options{Config: j.cfg, Emitter: emit})
	if err == nil {
		s.finishOK(ctx, j, res)
		return
	}
	s.finish(ctx, j, res, err)
}

func (s *Server) save(ctx context.Context, j job, st store.Job) {
	if err := s.deps.Status.Save(context.WithoutCancel(ctx), j.id, st); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("status update failed")
	}
}

func (s *Server) finishOK(ctx context.Context, j job, res *chunker.Result) {
	end := time.Now()
	st := j.state(store.StateCompleted, 100, fmt.Sprintf("%d chunks", len(res.Chunks)))
	st.Pages = res.Pages
	st.Warnings = res.WarningMessages()
	st.End = &end
	s.save(ctx, j, st)
	metrics.IncJob(string(store.StateCompleted))
	logger.FromContext(ctx).Info().Int("chunks", len(res.Chunks)).Int("warnings", len(st.Warnings)).Dur("took", end.Sub(j.start)).Msg("job completed")
}

// finish records a failed or cancelled job. res may be nil or partial.
func (s *Server) finish(ctx context.Context, j job, res *chunker.Result, err error) {
	state := store.StateFailed
	if errors.Is(err, context.Canceled) {
		state = store.StateCancelled
	}
	end := time.Now()
	st := j.state(state, 100, err.Error())
	st.End = &end
	if res != nil {
		st.Pages = res.Pages
		st.Warnings = res.WarningMessages()
	}
	s.save(ctx, j, st)
	metrics.IncJob(string(state))
	logger.FromContext(ctx).Error().Err(err).Str("status", string(state)).Msg("job ended")
}
