package orchestrator

import (
	"context"
	"fmt"

	"github.com/vista/provisioner/internal/dokploy"
	"github.com/vista/provisioner/internal/model"
)

func (o *Orchestrator) frontendRepo(pr *model.ProvisionRequest) string {
	if pr.FrontendRepo != "" {
		return pr.FrontendRepo
	}
	return o.opts.DefaultFrontendRepo
}

func (o *Orchestrator) stepCreateFrontendApp(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.ProjectID == nil {
		return o.failStructural(ctx, pr, stepCreateFrontend, "no project id on ledger row")
	}

	// Give just-triggered deploys time to settle before piling on more work.
	// Resumed runs that never deployed anything skip the wait.
	if st.deployTriggered {
		if err := o.sleep(ctx, o.opts.DeploySettle); err != nil {
			return o.fail(ctx, pr, stepCreateFrontend, err)
		}
		st.deployTriggered = false
	}

	name := "frontend-" + pr.TenantSuffix
	resp, err := o.platform.CreateApplication(ctx, *pr.ProjectID, name,
		fmt.Sprintf("Frontend for %s", pr.Subdomain))
	if err != nil {
		return o.fail(ctx, pr, stepCreateFrontend, err)
	}

	id, ok := dokploy.ExtractID(resp)
	if !ok {
		return o.failStructural(ctx, pr, stepCreateFrontend, "application.create returned no application id")
	}

	pr.FrontendAppID = &id
	return o.advance(ctx, pr, model.ProgressFrontendCreated,
		fmt.Sprintf("Frontend application created: %s (id=%s)", name, id))
}

func (o *Orchestrator) stepAttachFrontendGit(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.FrontendAppID == nil {
		return o.failStructural(ctx, pr, stepAttachFrontendGit, "no frontend application id on ledger row")
	}

	repo := o.frontendRepo(pr)
	if _, err := o.platform.SaveGitProvider(ctx, *pr.FrontendAppID, repo, o.opts.GitBranch, "/"); err != nil {
		return o.fail(ctx, pr, stepAttachFrontendGit, err)
	}

	return o.advance(ctx, pr, model.ProgressFrontendGitAttached,
		fmt.Sprintf("Frontend source attached: %s@%s", repo, o.opts.GitBranch))
}

func (o *Orchestrator) stepConfigureFrontendBuild(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.FrontendAppID == nil {
		return o.failStructural(ctx, pr, stepFrontendBuild, "no frontend application id on ledger row")
	}

	_, err := o.platform.SaveBuildType(ctx, dokploy.SaveBuildTypeParams{
		ApplicationID:    *pr.FrontendAppID,
		BuildType:        "static",
		IsStaticSPA:      true,
		PublishDirectory: "dist",
	})
	if err != nil {
		return o.fail(ctx, pr, stepFrontendBuild, err)
	}

	return o.advance(ctx, pr, model.ProgressFrontendBuildConfigured, "Frontend build configured (static SPA)")
}

func (o *Orchestrator) stepDeployFrontend(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.FrontendAppID == nil {
		return o.failStructural(ctx, pr, stepDeployFrontend, "no frontend application id on ledger row")
	}

	if _, err := o.platform.DeployApplication(ctx, *pr.FrontendAppID); err != nil {
		return o.fail(ctx, pr, stepDeployFrontend, err)
	}

	return o.advance(ctx, pr, model.ProgressFrontendDeployed, "Frontend deploy triggered")
}
