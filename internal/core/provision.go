package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vista/provisioner/internal/api/request"
	"github.com/vista/provisioner/internal/model"
	"github.com/vista/provisioner/internal/platform"
	"github.com/vista/provisioner/internal/store"
)

// Outcome labels what intake did with a submission.
type Outcome string

const (
	OutcomeCreated           Outcome = "created"
	OutcomeAlreadyCompleted  Outcome = "already_completed"
	OutcomeAlreadyInProgress Outcome = "already_in_progress"
	OutcomeSubdomainTaken    Outcome = "subdomain_taken"
)

// ErrSubdomainTaken is returned when the requested subdomain already belongs
// to another tenant.
var ErrSubdomainTaken = errors.New("subdomain already taken")

// ProvisionStore is the persistence surface the service needs.
type ProvisionStore interface {
	Create(ctx context.Context, p *model.ProvisionRequest) error
	GetByID(ctx context.Context, id string) (*model.ProvisionRequest, error)
	GetByClientRef(ctx context.Context, clientRef string) (*model.ProvisionRequest, error)
	SubdomainExists(ctx context.Context, subdomain string) (bool, error)
	Update(ctx context.Context, p *model.ProvisionRequest) error
	List(ctx context.Context, params request.ListParams) ([]model.ProvisionRequest, bool, error)
}

// ProvisionService owns intake, dedup and retry for provisioning requests.
// Actual provisioning work happens asynchronously via the enqueue function,
// which schedules an orchestrator run.
type ProvisionService struct {
	store   ProvisionStore
	enqueue func(requestID string, runAt time.Time) bool
	logger  zerolog.Logger
}

func NewProvisionService(st ProvisionStore, enqueue func(requestID string, runAt time.Time) bool, logger zerolog.Logger) *ProvisionService {
	return &ProvisionService{
		store:   st,
		enqueue: enqueue,
		logger:  logger.With().Str("component", "provision_service").Logger(),
	}
}

// Create accepts a submission and schedules a provisioning run. Submissions
// carrying a client_ref already on file are deduplicated: the existing row is
// returned instead of starting a second tenant. An in-flight failed row with
// a matching client_ref is re-enqueued rather than duplicated.
func (s *ProvisionService) Create(ctx context.Context, req request.CreateProvision) (*model.ProvisionRequest, Outcome, error) {
	if req.ClientRef != "" {
		existing, err := s.store.GetByClientRef(ctx, req.ClientRef)
		switch {
		case err == nil:
			if existing.Progress.AtLeast(model.ProgressCompleted) {
				return existing, OutcomeAlreadyCompleted, nil
			}
			return existing, OutcomeAlreadyInProgress, nil
		case errors.Is(err, store.ErrNotFound):
			// fresh submission
		default:
			return nil, "", err
		}
	}

	taken, err := s.store.SubdomainExists(ctx, req.Subdomain)
	if err != nil {
		return nil, "", err
	}
	if taken {
		return nil, OutcomeSubdomainTaken, ErrSubdomainTaken
	}

	now := time.Now().UTC()
	pr := &model.ProvisionRequest{
		ID:            platform.NewID(),
		Email:         req.Email,
		Company:       req.Company,
		ClientName:    req.ClientName,
		Subdomain:     req.Subdomain,
		TenantSuffix:  platform.NewSuffix(),
		AdminPassword: req.AdminPassword,
		BackendRepo:   req.BackendRepo,
		FrontendRepo:  req.FrontendRepo,
		Status:        model.StatusPending,
		Progress:      model.ProgressPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.ClientRef != "" {
		pr.ClientRef = &req.ClientRef
	}
	pr.AppendDetail(fmt.Sprintf("Provision request accepted for %s", pr.Subdomain))

	if err := s.store.Create(ctx, pr); err != nil {
		return nil, "", err
	}

	s.enqueue(pr.ID, time.Now().Add(time.Second))
	s.logger.Info().Str("request_id", pr.ID).Str("subdomain", pr.Subdomain).Msg("provision request accepted")
	return pr, OutcomeCreated, nil
}

func (s *ProvisionService) Get(ctx context.Context, id string) (*model.ProvisionRequest, error) {
	return s.store.GetByID(ctx, id)
}

func (s *ProvisionService) List(ctx context.Context, params request.ListParams) ([]model.ProvisionRequest, bool, error) {
	return s.store.List(ctx, params)
}

// ErrNotRetryable is returned by Retry for rows that are not in a failed
// state.
var ErrNotRetryable = errors.New("request is not in a failed state")

// Retry clears the failure markers on a failed row and re-enqueues it. The
// orchestrator resumes from the last confirmed step, so completed work is not
// repeated.
func (s *ProvisionService) Retry(ctx context.Context, id string) (*model.ProvisionRequest, error) {
	pr, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pr.Failed {
		return nil, ErrNotRetryable
	}

	pr.Failed = false
	pr.FailedAt = nil
	pr.LastError = nil
	pr.HealthTries = 0
	pr.Status = model.StatusPending
	pr.AppendDetail("Operator retry requested")
	if err := s.store.Update(ctx, pr); err != nil {
		return nil, err
	}

	s.enqueue(pr.ID, time.Now().Add(time.Second))
	s.logger.Info().Str("request_id", pr.ID).Str("progress", string(pr.Progress)).Msg("retry enqueued")
	return pr, nil
}

// Enqueue schedules a run for an existing row; the sweeper uses this for
// crash recovery.
func (s *ProvisionService) Enqueue(requestID string) {
	s.enqueue(requestID, time.Now())
}
