package datarequest

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	requests map[string]*DataRequest
}

// NewInMemoryRepository creates a new in-memory data request repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{requests: make(map[string]*DataRequest)}
}

// Create stores a new request.
func (r *InMemoryRepository) Create(_ context.Context, req *DataRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = copyRequest(req)
	return nil
}

// Get retrieves a request by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*DataRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return copyRequest(req), nil
}

// ListForUser returns the requests where userID is the subject or the requester.
func (r *InMemoryRepository) ListForUser(_ context.Context, userID string) ([]*DataRequest, error) {
	return r.list(func(req *DataRequest) bool {
		return req.SubjectID == userID || req.RequestedBy == userID
	}), nil
}

// ListAll returns every request.
func (r *InMemoryRepository) ListAll(_ context.Context) ([]*DataRequest, error) {
	return r.list(func(*DataRequest) bool { return true }), nil
}

func (r *InMemoryRepository) list(keep func(*DataRequest) bool) []*DataRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*DataRequest
	for _, req := range r.requests {
		if keep(req) {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasOngoing reports whether the subject has an active request of type t.
func (r *InMemoryRepository) HasOngoing(_ context.Context, subjectID string, t Type) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.requests {
		if req.SubjectID == subjectID && req.Type == t && req.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

// CompareAndSwapStatus moves the request from one status to another.
func (r *InMemoryRepository) CompareAndSwapStatus(_ context.Context, id string, from, to Status, dpoID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != from {
		return ErrStatusConflict
	}
	req.Status = to
	if dpoID != nil {
		dpo := *dpoID
		req.DPOID = &dpo
	}
	req.UpdatedAt = time.Now()
	return nil
}

// ForceStatus moves an active request to status to.
func (r *InMemoryRepository) ForceStatus(_ context.Context, id string, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if !req.Status.IsActive() {
		return ErrInvalidState
	}
	req.Status = to
	req.UpdatedAt = time.Now()
	return nil
}

func copyRequest(req *DataRequest) *DataRequest {
	cpy := *req
	if req.DPOID != nil {
		dpo := *req.DPOID
		cpy.DPOID = &dpo
	}
	return &cpy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
