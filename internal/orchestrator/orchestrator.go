package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vista/provisioner/internal/dokploy"
	"github.com/vista/provisioner/internal/model"
	"github.com/vista/provisioner/internal/scheduler"
)

// Platform is the deployment platform surface the step functions drive.
// *dokploy.Client satisfies it; tests substitute a fake.
type Platform interface {
	CreateProject(ctx context.Context, name, description string) (dokploy.Response, error)
	CreateApplication(ctx context.Context, projectID, name, description string) (dokploy.Response, error)
	SaveGitProvider(ctx context.Context, applicationID, repoURL, branch, buildPath string) (dokploy.Response, error)
	SaveBuildType(ctx context.Context, p dokploy.SaveBuildTypeParams) (dokploy.Response, error)
	SaveEnvironment(ctx context.Context, applicationID, env string) (dokploy.Response, error)
	CreatePostgres(ctx context.Context, p dokploy.CreatePostgresParams) (dokploy.Response, error)
	DeployPostgres(ctx context.Context, postgresID string) (dokploy.Response, error)
	DeployApplication(ctx context.Context, applicationID string) (dokploy.Response, error)
	CreateDomain(ctx context.Context, p dokploy.CreateDomainParams) (dokploy.Response, error)
	DeleteDomain(ctx context.Context, domainID string) (dokploy.Response, error)
	ListProjects(ctx context.Context) (dokploy.Response, error)
}

// Ledger is the persistence surface of the progress ledger.
type Ledger interface {
	GetByID(ctx context.Context, id string) (*model.ProvisionRequest, error)
	Update(ctx context.Context, p *model.ProvisionRequest) error
	NextProjectSuffix(ctx context.Context, base string) (int, error)
}

// Step names recorded in failed_at and the audit detail.
const (
	stepCreateProject     = "create_project"
	stepCreateBackend     = "create_backend_app"
	stepAttachBackendGit  = "attach_backend_git"
	stepBackendBuild      = "configure_backend_build"
	stepCreateDatabase    = "create_database"
	stepBackendEnv        = "configure_backend_env"
	stepDeployPostgres    = "deploy_postgres"
	stepDeployBackend     = "deploy_backend"
	stepCreateFrontend    = "create_frontend_app"
	stepAttachFrontendGit = "attach_frontend_git"
	stepFrontendBuild     = "configure_frontend_build"
	stepDeployFrontend    = "deploy_frontend"
	stepCreateDomains     = "create_domains"
	stepHealthCheck       = "health_check"
	stepFinalize          = "finalize"
)

// Job identifiers are deterministic functions of the request id so the
// scheduler's per-id uniqueness caps each tenant at one orchestrator run and
// one health check in flight.
func ProvisionJobID(requestID string) string { return "provision-" + requestID }
func HealthJobID(requestID string) string    { return "backend-health-" + requestID }

type Options struct {
	RootDomain          string
	DefaultBackendRepo  string
	DefaultFrontendRepo string
	GitBranch           string
	PostgresImage       string
	CallbackToken       string
	DeploySettle        time.Duration
	HealthInitialDelay  time.Duration
	HealthMaxTries      int
	DiscoveryAttempts   int
	DiscoveryDelay      time.Duration
	HealthChecker       HealthChecker // nil: HTTPS GET checker
	Finalizer           Finalizer     // nil: internal provision callback
}

func (o Options) withDefaults() Options {
	if o.GitBranch == "" {
		o.GitBranch = "main"
	}
	if o.PostgresImage == "" {
		o.PostgresImage = "postgres:15"
	}
	if o.DeploySettle <= 0 {
		o.DeploySettle = 90 * time.Second
	}
	if o.HealthInitialDelay <= 0 {
		o.HealthInitialDelay = time.Minute
	}
	if o.HealthMaxTries <= 0 {
		o.HealthMaxTries = 10
	}
	if o.DiscoveryAttempts <= 0 {
		o.DiscoveryAttempts = 5
	}
	if o.DiscoveryDelay <= 0 {
		o.DiscoveryDelay = 5 * time.Second
	}
	return o
}

// Orchestrator drives the fixed step sequence for one provisioning request.
// All state lives in the ledger row; re-invoking Run on a partially complete
// row resumes at the first unfinished step.
type Orchestrator struct {
	ledger   Ledger
	platform Platform
	sched    scheduler.Scheduler
	logger   zerolog.Logger
	opts     Options
	health   HealthChecker
	finalize Finalizer
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

func New(ledger Ledger, platform Platform, sched scheduler.Scheduler, logger zerolog.Logger, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		ledger:   ledger,
		platform: platform,
		sched:    sched,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		opts:     opts,
		health:   opts.HealthChecker,
		finalize: opts.Finalizer,
		sleep:    ctxSleep,
		now:      time.Now,
	}
	if o.health == nil {
		o.health = &httpHealthChecker{client: &http.Client{Timeout: 15 * time.Second}}
	}
	if o.finalize == nil {
		o.finalize = &callbackFinalizer{
			client: &http.Client{Timeout: 30 * time.Second},
			token:  opts.CallbackToken,
		}
	}
	return o
}

type step struct {
	name   string
	target model.Progress
	run    func(ctx context.Context, st *runState) error
}

// runState carries within-run facts that must not be derived from the
// ledger: whether a deploy was just triggered (drives the settle wait) and
// whether the frontend domain was created by this run (drives rollback).
type runState struct {
	pr              *model.ProvisionRequest
	deployTriggered bool
}

func (o *Orchestrator) steps() []step {
	return []step{
		{stepCreateProject, model.ProgressProjectCreated, o.stepCreateProject},
		{stepCreateBackend, model.ProgressBackendCreated, o.stepCreateBackendApp},
		{stepAttachBackendGit, model.ProgressBackendGitAttached, o.stepAttachBackendGit},
		{stepBackendBuild, model.ProgressBackendBuildConfigured, o.stepConfigureBackendBuild},
		{stepCreateDatabase, model.ProgressDBCreated, o.stepCreateDatabase},
		{stepBackendEnv, model.ProgressBackendEnvConfigured, o.stepConfigureBackendEnv},
		{stepDeployPostgres, model.ProgressPostgresDeployed, o.stepDeployPostgres},
		{stepDeployBackend, model.ProgressBackendDeployed, o.stepDeployBackend},
		{stepCreateFrontend, model.ProgressFrontendCreated, o.stepCreateFrontendApp},
		{stepAttachFrontendGit, model.ProgressFrontendGitAttached, o.stepAttachFrontendGit},
		{stepFrontendBuild, model.ProgressFrontendBuildConfigured, o.stepConfigureFrontendBuild},
		{stepDeployFrontend, model.ProgressFrontendDeployed, o.stepDeployFrontend},
		{stepCreateDomains, model.ProgressDomainsConfigured, o.stepCreateDomains},
	}
}

// Run executes the provisioning sequence for the given request, skipping
// steps the ledger already records as done, and stops at the first failure.
// On reaching domains_configured it hands off to the health-check loop.
func (o *Orchestrator) Run(ctx context.Context, requestID string) error {
	pr, err := o.ledger.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load provision request %s: %w", requestID, err)
	}

	logger := o.logger.With().Str("request_id", pr.ID).Str("subdomain", pr.Subdomain).Logger()

	if pr.Failed {
		logger.Warn().Str("failed_at", deref(pr.FailedAt)).Msg("run skipped: request is failed, operator retry required")
		return fmt.Errorf("provision request %s failed at %s: retry required", pr.ID, deref(pr.FailedAt))
	}
	if pr.Progress.AtLeast(model.ProgressCompleted) {
		logger.Info().Msg("run skipped: already completed")
		return nil
	}

	if pr.Status != model.StatusProvisioning {
		pr.Status = model.StatusProvisioning
		pr.AppendDetail(fmt.Sprintf("Provisioning run started at step after %q", string(pr.Progress)))
		if err := o.ledger.Update(ctx, pr); err != nil {
			return fmt.Errorf("mark provisioning: %w", err)
		}
	}

	st := &runState{pr: pr}
	for _, s := range o.steps() {
		if pr.Progress.AtLeast(s.target) {
			continue
		}
		logger.Info().Str("step", s.name).Msg("running step")
		if err := s.run(ctx, st); err != nil {
			logger.Error().Str("step", s.name).Err(err).Msg("step failed")
			return err
		}
	}

	o.scheduleHealthCheck(pr.ID, o.opts.HealthInitialDelay)
	logger.Info().Msg("structural provisioning complete, health check scheduled")
	return nil
}

// EnqueueRun schedules an orchestrator run for the request, keeping any
// already pending run ("do not replace" semantics).
func (o *Orchestrator) EnqueueRun(requestID string, runAt time.Time) bool {
	return o.sched.Schedule(ProvisionJobID(requestID), runAt, false, func(ctx context.Context) {
		if err := o.Run(ctx, requestID); err != nil {
			o.logger.Error().Str("request_id", requestID).Err(err).Msg("provisioning run stopped")
		}
	})
}

// fail records a step failure on the ledger before surfacing it. Every
// failure path ends here, so no error ever reaches the scheduler unrecorded.
// Context cancellation is not a failure: the row stays resumable and the
// sweeper re-enqueues it after a restart.
func (o *Orchestrator) fail(ctx context.Context, pr *model.ProvisionRequest, stepName string, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return fmt.Errorf("%s: %w", stepName, cause)
	}

	name := stepName
	msg := truncateErr(cause.Error())

	pr.Failed = true
	pr.FailedAt = &name
	pr.LastError = &msg
	pr.Status = model.StatusFailed
	pr.AppendDetail(fmt.Sprintf("Step %s failed: %s", stepName, msg))

	if err := o.ledger.Update(ctx, pr); err != nil {
		o.logger.Error().Str("request_id", pr.ID).Err(err).Msg("failed to persist failure")
	}
	return fmt.Errorf("%s: %w", stepName, cause)
}

// failStructural marks a non-retryable defect: a precondition that should
// have been satisfied by an earlier step, or a response with no usable id.
func (o *Orchestrator) failStructural(ctx context.Context, pr *model.ProvisionRequest, stepName, msg string) error {
	return o.fail(ctx, pr, stepName, errors.New(msg))
}

// advance confirms a completed step: result fields already set on pr, the
// progress marker, status label and audit line are persisted in one write.
func (o *Orchestrator) advance(ctx context.Context, pr *model.ProvisionRequest, progress model.Progress, detail string) error {
	pr.Progress = progress
	pr.Status = model.StatusProvisioning
	pr.AppendDetail(detail)
	if err := o.ledger.Update(ctx, pr); err != nil {
		return fmt.Errorf("persist %s: %w", string(progress), err)
	}
	return nil
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const maxErrorLen = 4000

func truncateErr(s string) string {
	if len(s) <= maxErrorLen {
		return s
	}
	return s[:maxErrorLen]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
