package orchestrator

import (
	"context"
	"fmt"

	"github.com/vista/provisioner/internal/dokploy"
	"github.com/vista/provisioner/internal/model"
)

func (o *Orchestrator) backendRepo(pr *model.ProvisionRequest) string {
	if pr.BackendRepo != "" {
		return pr.BackendRepo
	}
	return o.opts.DefaultBackendRepo
}

func (o *Orchestrator) stepCreateBackendApp(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.ProjectID == nil {
		return o.failStructural(ctx, pr, stepCreateBackend, "no project id on ledger row")
	}

	name := "backend-" + pr.TenantSuffix
	resp, err := o.platform.CreateApplication(ctx, *pr.ProjectID, name,
		fmt.Sprintf("Backend for %s", pr.Subdomain))
	if err != nil {
		return o.fail(ctx, pr, stepCreateBackend, err)
	}

	id, ok := dokploy.ExtractID(resp)
	if !ok {
		return o.failStructural(ctx, pr, stepCreateBackend, "application.create returned no application id")
	}

	pr.BackendAppID = &id
	return o.advance(ctx, pr, model.ProgressBackendCreated,
		fmt.Sprintf("Backend application created: %s (id=%s)", name, id))
}

func (o *Orchestrator) stepAttachBackendGit(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.BackendAppID == nil {
		return o.failStructural(ctx, pr, stepAttachBackendGit, "no backend application id on ledger row")
	}

	repo := o.backendRepo(pr)
	if _, err := o.platform.SaveGitProvider(ctx, *pr.BackendAppID, repo, o.opts.GitBranch, "/"); err != nil {
		return o.fail(ctx, pr, stepAttachBackendGit, err)
	}

	return o.advance(ctx, pr, model.ProgressBackendGitAttached,
		fmt.Sprintf("Backend source attached: %s@%s", repo, o.opts.GitBranch))
}

func (o *Orchestrator) stepConfigureBackendBuild(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.BackendAppID == nil {
		return o.failStructural(ctx, pr, stepBackendBuild, "no backend application id on ledger row")
	}

	_, err := o.platform.SaveBuildType(ctx, dokploy.SaveBuildTypeParams{
		ApplicationID: *pr.BackendAppID,
		BuildType:     "dockerfile",
		Dockerfile:    "./Dockerfile",
	})
	if err != nil {
		return o.fail(ctx, pr, stepBackendBuild, err)
	}

	return o.advance(ctx, pr, model.ProgressBackendBuildConfigured, "Backend build configured (dockerfile)")
}

func (o *Orchestrator) stepDeployPostgres(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.DatabaseID == nil {
		return o.failStructural(ctx, pr, stepDeployPostgres, "no database id on ledger row")
	}

	if _, err := o.platform.DeployPostgres(ctx, *pr.DatabaseID); err != nil {
		return o.fail(ctx, pr, stepDeployPostgres, err)
	}

	st.deployTriggered = true
	return o.advance(ctx, pr, model.ProgressPostgresDeployed, "Postgres deploy triggered")
}

func (o *Orchestrator) stepDeployBackend(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.BackendAppID == nil {
		return o.failStructural(ctx, pr, stepDeployBackend, "no backend application id on ledger row")
	}

	if _, err := o.platform.DeployApplication(ctx, *pr.BackendAppID); err != nil {
		return o.fail(ctx, pr, stepDeployBackend, err)
	}

	st.deployTriggered = true
	return o.advance(ctx, pr, model.ProgressBackendDeployed, "Backend deploy triggered")
}
