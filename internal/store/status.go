// Package store keeps the state of chunking jobs run by the webhook
// server.
package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// State is the lifecycle stage of a job.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// ChunkRecord is one uploaded chunk of a job.
type ChunkRecord struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	FirstPage int    `json:"first_page"`
	LastPage  int    `json:"last_page"`
	Size      int64  `json:"size"`
	Oversize  bool   `json:"oversize"`
	URL       string `json:"url"`
}

// Job is the stored view of a chunking job. Chunks are only added through
// AddChunk; Save leaves them alone.
type Job struct {
	State        State         `json:"status"`
	Message      string        `json:"message"`
	Input        string        `json:"file_path"`
	OutputPrefix string        `json:"output_prefix"`
	Pages        int           `json:"pages"`
	Progress     int           `json:"progress"`
	Warnings     []string      `json:"warnings,omitempty"`
	Chunks       []ChunkRecord `json:"chunks"`
	Start        *time.Time    `json:"start_time,omitempty"`
	End          *time.Time    `json:"end_time,omitempty"`
}

// Terminal reports whether the job can no longer change state.
func (j Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed || j.State == StateCancelled
}

// URLs returns the object URLs of the uploaded chunks, in order.
func (j Job) URLs() []string {
	out := make([]string, len(j.Chunks))
	for i, c := range j.Chunks {
		out[i] = c.URL
	}
	return out
}

// StatusStore persists jobs by id.
type StatusStore interface {
	Save(ctx context.Context, jobID string, j Job) error
	AddChunk(ctx context.Context, jobID string, c ChunkRecord) error
	Get(ctx context.Context, jobID string) (Job, bool, error)
}

// MemoryStatus keeps jobs in process memory. Used when no Redis URL is
// configured.
type MemoryStatus struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryStatus() *MemoryStatus { return &MemoryStatus{jobs: map[string]Job{}} }

func (s *MemoryStatus) Save(_ context.Context, jobID string, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.Chunks = s.jobs[jobID].Chunks
	j.Warnings = slices.Clone(j.Warnings)
	s.jobs[jobID] = j
	return nil
}

func (s *MemoryStatus) AddChunk(_ context.Context, jobID string, c ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	j.Chunks = append(slices.Clip(j.Chunks), c)
	s.jobs[jobID] = j
	return nil
}

func (s *MemoryStatus) Get(_ context.Context, jobID string) (Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	return j, ok, nil
}

func (s *MemoryStatus) Close() error { return nil }
