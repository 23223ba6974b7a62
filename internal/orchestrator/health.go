package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/vista/provisioner/internal/model"
	"github.com/vista/provisioner/internal/platform"
)

// scheduleHealthCheck arms the health probe for the request. Replace
// semantics: a fresh schedule supersedes any pending probe for the same id.
func (o *Orchestrator) scheduleHealthCheck(requestID string, delay time.Duration) {
	runAt := o.now().Add(delay)
	o.sched.Schedule(HealthJobID(requestID), runAt, true, func(ctx context.Context) {
		o.runHealthCheck(ctx, requestID)
	})
}

// runHealthCheck probes the backend's health endpoint. On success it runs the
// finalize callback and marks the request completed; on failure it backs off
// and reschedules itself, giving up after HealthMaxTries probes.
func (o *Orchestrator) runHealthCheck(ctx context.Context, requestID string) {
	logger := o.logger.With().Str("request_id", requestID).Logger()

	pr, err := o.ledger.GetByID(ctx, requestID)
	if err != nil {
		logger.Error().Err(err).Msg("health check: load failed")
		return
	}
	if pr.Terminal() {
		logger.Info().Msg("health check skipped: request is terminal")
		return
	}
	if pr.BackendDomain == nil {
		if err := o.failStructural(ctx, pr, stepHealthCheck, "no backend domain on ledger row"); err != nil {
			logger.Error().Err(err).Msg("health check aborted")
		}
		return
	}

	url := fmt.Sprintf("https://%s/api/health/", *pr.BackendDomain)
	pr.HealthTries++

	if err := o.health.Check(ctx, url); err != nil {
		logger.Info().Int("tries", pr.HealthTries).Err(err).Msg("backend not healthy yet")
		pr.AppendDetail(fmt.Sprintf("Health check %d failed: %s", pr.HealthTries, truncateErr(err.Error())))

		if pr.HealthTries >= o.opts.HealthMaxTries {
			o.fail(ctx, pr, stepHealthCheck,
				fmt.Errorf("backend never became healthy after %d checks: %w", pr.HealthTries, err))
			return
		}
		if uerr := o.ledger.Update(ctx, pr); uerr != nil {
			logger.Error().Err(uerr).Msg("health check: persist tries failed")
			return
		}
		o.scheduleHealthCheck(pr.ID, healthBackoff(pr.HealthTries))
		return
	}

	pr.AppendDetail(fmt.Sprintf("Backend healthy after %d checks", pr.HealthTries))
	if err := o.finalize.ProvisionAdmin(ctx, pr); err != nil {
		o.fail(ctx, pr, stepFinalize, err)
		return
	}

	pr.Progress = model.ProgressCompleted
	pr.Status = model.StatusCompleted
	pr.AppendDetail("Tenant provisioned and finalized")
	if err := o.ledger.Update(ctx, pr); err != nil {
		logger.Error().Err(err).Msg("health check: persist completion failed")
		return
	}
	logger.Info().
		Str("frontend", platform.FrontendHostname(pr.Subdomain, o.opts.RootDomain)).
		Msg("provisioning completed")
}

// healthBackoff returns the wait before probe number tries+1: doubling from
// one minute, capped at an hour.
func healthBackoff(tries int) time.Duration {
	if tries < 1 {
		tries = 1
	}
	if tries > 6 {
		return time.Hour
	}
	return time.Duration(1<<(tries-1)) * time.Minute
}
