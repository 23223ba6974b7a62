package orchestrator

import (
	"context"
	"fmt"

	"github.com/vista/provisioner/internal/dokploy"
	"github.com/vista/provisioner/internal/model"
	"github.com/vista/provisioner/internal/platform"
)

func (o *Orchestrator) stepCreateProject(ctx context.Context, st *runState) error {
	pr := st.pr

	if pr.ProjectName == nil {
		base := platform.NormalizeProjectName(pr.ClientName)
		if base == "" {
			return o.failStructural(ctx, pr, stepCreateProject, "client name normalizes to an empty project name")
		}
		seq, err := o.ledger.NextProjectSuffix(ctx, base)
		if err != nil {
			return o.fail(ctx, pr, stepCreateProject, err)
		}
		name := platform.ProjectName(base, seq)
		pr.ProjectName = &name
	}

	resp, err := o.platform.CreateProject(ctx, *pr.ProjectName,
		fmt.Sprintf("Tenant %s (%s)", pr.Subdomain, pr.Email))
	if err != nil {
		return o.fail(ctx, pr, stepCreateProject, err)
	}

	id, ok := dokploy.ExtractID(resp)
	if !ok {
		return o.failStructural(ctx, pr, stepCreateProject, "project.create returned no project id")
	}

	pr.ProjectID = &id
	return o.advance(ctx, pr, model.ProgressProjectCreated,
		fmt.Sprintf("Project created: %s (id=%s)", *pr.ProjectName, id))
}
