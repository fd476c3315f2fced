// Package task tracks background agent jobs: fire-and-forget runs whose
// progress and outcome are polled over HTTP rather than streamed.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Job is a snapshot of a background run. Log accumulates progress lines
// emitted by the run while it is in flight.
type Job struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id,omitempty"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	Message    string     `json:"message"`
	Log        []string   `json:"log,omitempty"`
}

// Runner executes one job. The progress sink is bound to the job for the
// lifetime of the run; lines it receives land in the job's log.
type Runner func(ctx context.Context, progress func(line string)) (string, error)

// Store keeps jobs in memory. Finished jobs stay until the process exits;
// the service restarts rarely and job payloads are small.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	logger *slog.Logger
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs:   make(map[string]*Job),
		logger: slog.Default(),
	}
}

// Start registers a new job and executes run in a goroutine. It returns
// the job id immediately. The run inherits ctx; cancelling it aborts the
// run and records the cancellation as a job error.
func (s *Store) Start(ctx context.Context, userID string, run Runner) string {
	id := uuid.NewString()

	job := &Job{
		ID:        id,
		UserID:    userID,
		Status:    StatusQueued,
		StartedAt: time.Now().UTC(),
		Message:   "job queued",
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	go s.execute(ctx, id, run)

	return id
}

// Get returns a copy of the job, or false when the id is unknown.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}

	snapshot := *job
	snapshot.Log = append([]string(nil), job.Log...)
	return snapshot, true
}

func (s *Store) execute(ctx context.Context, id string, run Runner) {
	s.update(id, func(j *Job) {
		j.Status = StatusRunning
		j.Message = "job running"
	})

	progress := func(line string) {
		s.update(id, func(j *Job) {
			j.Log = append(j.Log, line)
		})
	}

	result, err := s.runSafely(ctx, id, run, progress)

	now := time.Now().UTC()
	s.update(id, func(j *Job) {
		j.FinishedAt = &now
		if err != nil {
			j.Status = StatusError
			j.Error = err.Error()
			j.Message = "job failed"
			return
		}
		j.Status = StatusDone
		j.Result = result
		j.Message = "job finished"
	})
}

// runSafely contains panics so a misbehaving runner cannot take down the
// process; the panic becomes the job's error.
func (s *Store) runSafely(ctx context.Context, id string, run Runner, progress func(string)) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background job panicked", "job_id", id, "panic", r)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return run(ctx, progress)
}

func (s *Store) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
}
