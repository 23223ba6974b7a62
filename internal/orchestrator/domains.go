package orchestrator

import (
	"context"
	"fmt"

	"github.com/vista/provisioner/internal/dokploy"
	"github.com/vista/provisioner/internal/model"
	"github.com/vista/provisioner/internal/platform"
)

// stepCreateDomains attaches the public hostnames, frontend first. The two
// creations commit together: if the backend domain cannot be attached, a
// frontend domain created by this same run is deleted again so the tenant is
// never left half-addressable. A frontend domain that survived an earlier
// run is kept as-is.
func (o *Orchestrator) stepCreateDomains(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.FrontendAppID == nil || pr.BackendAppID == nil {
		return o.failStructural(ctx, pr, stepCreateDomains, "application ids missing from ledger row")
	}

	frontendHost := platform.FrontendHostname(pr.Subdomain, o.opts.RootDomain)
	backendHost := platform.BackendHostname(pr.Subdomain, o.opts.RootDomain)

	frontendCreatedNow := false
	if pr.FrontendDomainID == nil {
		resp, err := o.platform.CreateDomain(ctx, dokploy.CreateDomainParams{
			ApplicationID:   *pr.FrontendAppID,
			Host:            frontendHost,
			Port:            80,
			HTTPS:           true,
			CertificateType: "letsencrypt",
		})
		if err != nil {
			return o.fail(ctx, pr, stepCreateDomains, err)
		}
		id, ok := dokploy.ExtractID(resp)
		if !ok {
			return o.failStructural(ctx, pr, stepCreateDomains, "domain.create returned no domain id for frontend")
		}

		// Persist the frontend domain before touching the backend one, so a
		// crash between the two calls leaves the rollback marker behind.
		pr.FrontendDomain = &frontendHost
		pr.FrontendDomainID = &id
		pr.AppendDetail(fmt.Sprintf("Frontend domain attached: %s (id=%s)", frontendHost, id))
		if err := o.ledger.Update(ctx, pr); err != nil {
			return fmt.Errorf("persist frontend domain: %w", err)
		}
		frontendCreatedNow = true
	}

	resp, err := o.platform.CreateDomain(ctx, dokploy.CreateDomainParams{
		ApplicationID:   *pr.BackendAppID,
		Host:            backendHost,
		Port:            8000,
		HTTPS:           true,
		CertificateType: "letsencrypt",
	})
	if err != nil {
		return o.rollbackFrontendDomain(ctx, pr, frontendCreatedNow, err)
	}
	backendID, ok := dokploy.ExtractID(resp)
	if !ok {
		return o.rollbackFrontendDomain(ctx, pr, frontendCreatedNow,
			fmt.Errorf("domain.create returned no domain id for backend"))
	}

	pr.BackendDomain = &backendHost
	pr.BackendDomainID = &backendID
	return o.advance(ctx, pr, model.ProgressDomainsConfigured,
		fmt.Sprintf("Backend domain attached: %s (id=%s)", backendHost, backendID))
}

// rollbackFrontendDomain undoes a frontend domain created by this run after
// the backend domain failed to attach, then records the failure. The delete
// is best effort: a leaked domain is logged, not fatal.
func (o *Orchestrator) rollbackFrontendDomain(ctx context.Context, pr *model.ProvisionRequest, createdNow bool, cause error) error {
	if createdNow && pr.FrontendDomainID != nil {
		if _, err := o.platform.DeleteDomain(ctx, *pr.FrontendDomainID); err != nil {
			o.logger.Error().
				Str("request_id", pr.ID).
				Str("domain_id", *pr.FrontendDomainID).
				Err(err).
				Msg("frontend domain rollback failed, domain leaked")
			pr.AppendDetail(fmt.Sprintf("Frontend domain rollback failed, leaked id=%s", *pr.FrontendDomainID))
		} else {
			pr.AppendDetail("Frontend domain rolled back after backend domain failure")
		}
		pr.FrontendDomain = nil
		pr.FrontendDomainID = nil
	}
	return o.fail(ctx, pr, stepCreateDomains, cause)
}
