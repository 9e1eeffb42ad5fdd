package queue

import (
	"context"
	"sync"
)

// MemoryQueue keeps published jobs in memory. It is used by tests and by
// single-process development setups.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// FailWith makes subsequent publishes fail with err. Nil restores success.
func (q *MemoryQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

// Publish appends the job.
func (q *MemoryQueue) Publish(_ context.Context, job Job) error {
	if _, err := job.Encode(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// Jobs returns a copy of the queued jobs.
func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Drain removes and returns every queued job.
func (q *MemoryQueue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.jobs
	q.jobs = nil
	return out
}

var _ Publisher = (*MemoryQueue)(nil)
