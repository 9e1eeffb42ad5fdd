package datarequest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/privacyops/dsar/internal/api/models"
	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/metrics"
	"github.com/privacyops/dsar/internal/notify"
	"github.com/privacyops/dsar/internal/queue"
	"github.com/privacyops/dsar/internal/settings"
)

// SearchLimit caps the results of SearchUsers.
const SearchLimit = 30

// ServiceConfig holds the dependencies of the request service.
type ServiceConfig struct {
	Repository Repository
	Directory  directory.Directory
	Settings   *settings.Service
	Officers   *Officers
	Publisher  queue.Publisher
	Gateway    notify.Gateway
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	SiteName   string
	// DataRequestsURL is linked from officer notifications.
	DataRequestsURL string
}

// Service handles the user and officer facing request operations.
type Service struct {
	repo      Repository
	dir       directory.Directory
	settings  *settings.Service
	officers  *Officers
	publisher queue.Publisher
	notifier  *notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new request service.
func NewService(cfg ServiceConfig) *Service {
	officers := cfg.Officers
	if officers == nil {
		officers = NewOfficers(cfg.Directory, cfg.Settings)
	}
	logger := cfg.Logger.With().Str("component", "datarequest").Logger()
	return &Service{
		repo:      cfg.Repository,
		dir:       cfg.Directory,
		settings:  cfg.Settings,
		officers:  officers,
		publisher: cfg.Publisher,
		notifier: &notifier{
			dir:         cfg.Directory,
			officers:    officers,
			gateway:     cfg.Gateway,
			metrics:     cfg.Metrics,
			logger:      logger,
			siteName:    cfg.SiteName,
			requestsURL: cfg.DataRequestsURL,
		},
		metrics: cfg.Metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateInput is the input of Create.
type CreateInput struct {
	// SubjectID defaults to the actor.
	SubjectID string
	Type      Type
	Comments  string
}

// Create files a new request at Pending and queues its preprocessing.
// Filing for someone else requires the request-for-others capability.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (*DataRequest, error) {
	if actorID == "" {
		return nil, directory.ErrPermissionDenied
	}
	subjectID := strings.TrimSpace(in.SubjectID)
	if subjectID == "" {
		subjectID = actorID
	}

	var fieldErrors []models.FieldError
	if !in.Type.Valid() {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "type", Message: "must be one of export, delete, others"})
	}
	if subjectID != actorID {
		if err := directory.RequireCapability(ctx, s.dir, actorID, directory.CapabilityRequestForOthers); err != nil {
			return nil, err
		}
	}
	if _, err := s.dir.GetUser(ctx, subjectID); err != nil {
		if !errors.Is(err, directory.ErrUserNotFound) {
			return nil, err
		}
		fieldErrors = append(fieldErrors, models.FieldError{Field: "subjectId", Message: "user not found"})
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	r, err := s.insert(ctx, subjectID, actorID, in.Type, in.Comments)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, queue.Job{Type: queue.KindInitiate, RequestID: r.ID}); err != nil {
		return r, fmt.Errorf("%w: preprocessing of %s: %w", ErrNotQueued, r.ID, err)
	}
	return r, nil
}

func (s *Service) insert(ctx context.Context, subjectID, actorID string, t Type, comments string) (*DataRequest, error) {
	now := s.now()
	r := &DataRequest{
		ID:          "dr_" + uuid.New().String()[:22],
		SubjectID:   subjectID,
		RequestedBy: actorID,
		Type:        t,
		Status:      StatusPending,
		Comments:    comments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.metrics.IncrementTransition(StatusPending.String(), "create")
	s.logger.Info().
		Str("request_id", r.ID).
		Str("type", t.String()).
		Str("actor", actorID).
		Msg("data request created")
	return r, nil
}

// ContactDPO records message as a general inquiry from the actor and sends
// it straight to every officer. Failed sends are reported as warnings.
func (s *Service) ContactDPO(ctx context.Context, actorID, message string) (*Outcome, error) {
	if actorID == "" {
		return nil, directory.ErrPermissionDenied
	}
	if !s.settings.ContactDPOEnabled(ctx) {
		return nil, ErrContactDisabled
	}
	if strings.TrimSpace(message) == "" {
		return nil, &ValidationError{Errors: []models.FieldError{{Field: "message", Message: "is required"}}}
	}

	r, err := s.insert(ctx, actorID, actorID, TypeOthers, message)
	if err != nil {
		return nil, err
	}
	return s.notifier.notifyOfficers(ctx, r)
}

// Cancel cancels the request if the actor filed it. It reports false when
// someone else filed it. Any active status can be cancelled.
func (s *Service) Cancel(ctx context.Context, actorID, id string) (bool, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if actorID == "" || r.RequestedBy != actorID {
		return false, nil
	}
	if err := s.repo.ForceStatus(ctx, id, StatusCancelled); err != nil {
		return false, err
	}
	s.metrics.IncrementTransition(StatusCancelled.String(), "cancel")
	s.logger.Info().Str("request_id", id).Str("actor", actorID).Msg("data request cancelled")
	return true, nil
}

// Approve approves a request awaiting approval and queues its processing.
func (s *Service) Approve(ctx context.Context, actorID, id string) error {
	if err := s.decide(ctx, actorID, id, StatusApproved); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, queue.Job{Type: queue.KindProcess, RequestID: id}); err != nil {
		return fmt.Errorf("%w: processing of %s: %w", ErrNotQueued, id, err)
	}
	return nil
}

// Deny rejects a request awaiting approval.
func (s *Service) Deny(ctx context.Context, actorID, id string) error {
	return s.decide(ctx, actorID, id, StatusRejected)
}

func (s *Service) decide(ctx context.Context, actorID, id string, to Status) error {
	if err := s.officers.RequireManage(ctx, actorID); err != nil {
		return err
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusAwaitingApproval {
		return fmt.Errorf("%w: request is %s", ErrInvalidState, r.Status)
	}

	dpoID := actorID
	if err := s.repo.CompareAndSwapStatus(ctx, id, StatusAwaitingApproval, to, &dpoID); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return err
	}

	s.metrics.IncrementTransition(to.String(), "decide")
	s.logger.Info().
		Str("request_id", id).
		Str("status", to.String()).
		Str("dpo_id", actorID).
		Msg("data request decided")
	return nil
}

// Requeue publishes again the job a stalled request is waiting for. Requests
// awaiting a decision or already finished have no job.
func (s *Service) Requeue(ctx context.Context, id string) (queue.Job, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return queue.Job{}, err
	}
	job := queue.Job{RequestID: id}
	switch r.Status {
	case StatusPending, StatusPreprocessing:
		job.Type = queue.KindInitiate
	case StatusApproved, StatusProcessing:
		job.Type = queue.KindProcess
	default:
		return queue.Job{}, fmt.Errorf("%w: request is %s", ErrInvalidState, r.Status)
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		return queue.Job{}, fmt.Errorf("%w: %s of %s: %w", ErrNotQueued, job.Type, id, err)
	}
	s.logger.Info().Str("request_id", id).Str("job_type", job.Type).Msg("data request requeued")
	return job, nil
}

// Get returns a request to its subject, its requester or an officer.
func (s *Service) Get(ctx context.Context, actorID, id string) (*DataRequest, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != "" && (r.SubjectID == actorID || r.RequestedBy == actorID) {
		return r, nil
	}
	ok, err := s.officers.CanManage(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, directory.ErrPermissionDenied
	}
	return r, nil
}

// ListForUser returns the requests about or filed by userID.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*DataRequest, error) {
	return s.repo.ListForUser(ctx, userID)
}

// ListAll returns every request to an officer and nothing to anyone else.
func (s *Service) ListAll(ctx context.Context, actorID string) ([]*DataRequest, error) {
	ok, err := s.officers.CanManage(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*DataRequest{}, nil
	}
	return s.repo.ListAll(ctx)
}

// HasOngoingRequest reports whether userID has an active request of type t.
func (s *Service) HasOngoingRequest(ctx context.Context, userID string, t Type) (bool, error) {
	return s.repo.HasOngoing(ctx, userID, t)
}

// SearchUsers finds users an officer can file requests for. Site
// administrators are never returned.
func (s *Service) SearchUsers(ctx context.Context, actorID, query string) ([]directory.User, error) {
	if err := s.officers.RequireManage(ctx, actorID); err != nil {
		return nil, err
	}
	admins, err := s.dir.ListSiteAdmins(ctx)
	if err != nil {
		return nil, err
	}
	return s.dir.SearchUsers(ctx, strings.TrimSpace(query), admins, SearchLimit)
}
