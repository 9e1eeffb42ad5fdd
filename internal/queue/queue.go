// Package queue publishes deferred data request work to the message broker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Job kinds.
const (
	KindInitiate = "initiate"
	KindProcess  = "process"
)

// ErrInvalidJob is returned when a job cannot be encoded or decoded.
var ErrInvalidJob = errors.New("invalid job")

// Job is a unit of deferred work for one data request.
type Job struct {
	Type      string `json:"job_type"`
	RequestID string `json:"request_id"`
}

// Encode returns the wire form of the job.
func (j Job) Encode() ([]byte, error) {
	if j.Type == "" || j.RequestID == "" {
		return nil, fmt.Errorf("%w: job type and request id are required", ErrInvalidJob)
	}
	return json.Marshal(j)
}

// Decode parses the wire form of a job.
func Decode(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if j.Type == "" || j.RequestID == "" {
		return Job{}, fmt.Errorf("%w: job type and request id are required", ErrInvalidJob)
	}
	return j, nil
}

// Publisher enqueues jobs. Delivery is at least once.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}
