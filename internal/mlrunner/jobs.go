package mlrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of one script run.
type JobState string

const (
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobCancelled JobState = "CANCELLED"
)

// Terminal reports whether the job has finished.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// Job is one tracked script run.
type Job struct {
	ID          string          `json:"job_id"`
	Script      string          `json:"script"`
	State       JobState        `json:"state"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// jobStore tracks jobs and the cancel funcs of the running ones.
type jobStore struct {
	mu      sync.RWMutex
	jobs    map[string]Job
	cancels map[string]context.CancelFunc
}

func newJobStore() *jobStore {
	return &jobStore{
		jobs:    make(map[string]Job),
		cancels: make(map[string]context.CancelFunc),
	}
}

func (s *jobStore) put(job Job, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.cancels[job.ID] = cancel
}

func (s *jobStore) get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

func (s *jobStore) cancelFunc(id string) (context.CancelFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cancel, ok := s.cancels[id]
	return cancel, ok
}

// finish applies mutate to the stored job and drops its cancel func.
func (s *jobStore) finish(id string, mutate func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	mutate(&job)
	s.jobs[id] = job
	delete(s.cancels, id)
}

func (s *jobStore) list() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out
}

// Jobs runs scripts asynchronously and tracks their lifecycle. It
// mirrors the submit, poll, fetch, cancel shape of the query manager:
// Submit returns immediately and callers poll Get until terminal.
type Jobs struct {
	runner Runner
	store  *jobStore
}

// NewJobs creates a job manager over the given runner.
func NewJobs(runner Runner) *Jobs {
	return &Jobs{runner: runner, store: newJobStore()}
}

// Submit starts the script in the background and returns the new job.
func (j *Jobs) Submit(ctx context.Context, script string, data any, flags map[string]string) Job {
	// Detach from the caller's context so the job outlives the tool
	// call that started it; cancellation goes through Cancel.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	job := Job{
		ID:          uuid.NewString(),
		Script:      script,
		State:       JobRunning,
		SubmittedAt: time.Now().UTC(),
	}
	j.store.put(job, cancel)

	go j.run(runCtx, job.ID, script, data, flags)
	return job
}

func (j *Jobs) run(ctx context.Context, id, script string, data any, flags map[string]string) {
	result, err := j.runner.RunScript(ctx, script, data, flags)

	now := time.Now().UTC()
	j.store.finish(id, func(job *Job) {
		job.CompletedAt = &now
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			job.State = JobCancelled
		case err != nil:
			job.State = JobFailed
			job.Error = err.Error()
		default:
			job.State = JobSucceeded
			job.Result = result
		}
	})
}

// Get returns the current snapshot of a job.
func (j *Jobs) Get(id string) (Job, error) {
	job, ok := j.store.get(id)
	if !ok {
		return Job{}, fmt.Errorf("mlrunner: job %s not found", id)
	}
	return job, nil
}

// Result returns the result JSON of a succeeded job. Asking before the
// job finishes, or after it failed, is an error.
func (j *Jobs) Result(id string) (json.RawMessage, error) {
	job, err := j.Get(id)
	if err != nil {
		return nil, err
	}
	switch job.State {
	case JobSucceeded:
		return job.Result, nil
	case JobFailed, JobCancelled:
		return nil, fmt.Errorf("mlrunner: job %s did not finish successfully (state %s)", id, job.State)
	default:
		return nil, fmt.Errorf("mlrunner: job %s has not yet finished (state %s)", id, job.State)
	}
}

// Cancel stops a running job. Cancelling a job that already reached a
// terminal state is a no-op.
func (j *Jobs) Cancel(id string) error {
	job, ok := j.store.get(id)
	if !ok {
		return fmt.Errorf("mlrunner: job %s not found", id)
	}
	if job.State.Terminal() {
		return nil
	}
	if cancel, ok := j.store.cancelFunc(id); ok {
		cancel()
	}
	return nil
}

// List returns a snapshot of all tracked jobs.
func (j *Jobs) List() []Job {
	return j.store.list()
}
