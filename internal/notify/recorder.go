package notify

import (
	"context"
	"sync"
)

// Delivery is a message captured by a Recorder.
type Delivery struct {
	Message   Message
	EmailOnly bool
}

// Recorder is an in-memory Gateway for tests and local development.
// Deliveries to a recipient registered with FailFor return that error.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	failures   map[string]error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{failures: make(map[string]error)}
}

// FailFor makes every delivery to userID fail with err.
func (r *Recorder) FailFor(userID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[userID] = err
}

// Send records msg.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	return r.record(msg, false)
}

// SendEmailOnly records msg as an email-only delivery.
func (r *Recorder) SendEmailOnly(_ context.Context, msg Message) error {
	return r.record(msg, true)
}

func (r *Recorder) record(msg Message, emailOnly bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failures[msg.To]; ok {
		return err
	}
	r.deliveries = append(r.deliveries, Delivery{Message: msg, EmailOnly: emailOnly})
	return nil
}

// Deliveries returns a copy of the successful deliveries in order.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// To returns the deliveries addressed to userID.
func (r *Recorder) To(userID string) []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries() {
		if d.Message.To == userID {
			out = append(out, d)
		}
	}
	return out
}

// Reset forgets all deliveries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}

var _ Gateway = (*Recorder)(nil)
