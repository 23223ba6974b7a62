package model

// Progress identifies the last confirmed step of a provisioning run. Steps
// advance strictly in this order; a step is complete when the row's progress
// has reached or passed it, which is what makes a crashed run resumable from
// the ledger alone.
type Progress string

const (
	ProgressPending                 Progress = "pending"
	ProgressProjectCreated          Progress = "project_created"
	ProgressBackendCreated          Progress = "backend_created"
	ProgressBackendGitAttached      Progress = "backend_git_attached"
	ProgressBackendBuildConfigured  Progress = "backend_build_configured"
	ProgressDBCreated               Progress = "db_created"
	ProgressBackendEnvConfigured    Progress = "backend_env_configured"
	ProgressPostgresDeployed        Progress = "postgres_deploy_triggered"
	ProgressBackendDeployed         Progress = "backend_deploy_triggered"
	ProgressFrontendCreated         Progress = "frontend_created"
	ProgressFrontendGitAttached     Progress = "frontend_git_attached"
	ProgressFrontendBuildConfigured Progress = "frontend_build_configured"
	ProgressFrontendDeployed        Progress = "frontend_deploy_triggered"
	ProgressDomainsConfigured       Progress = "domains_configured"
	ProgressCompleted               Progress = "completed"
)

var progressOrder = map[Progress]int{
	ProgressPending:                 0,
	ProgressProjectCreated:          1,
	ProgressBackendCreated:          2,
	ProgressBackendGitAttached:      3,
	ProgressBackendBuildConfigured:  4,
	ProgressDBCreated:               5,
	ProgressBackendEnvConfigured:    6,
	ProgressPostgresDeployed:        7,
	ProgressBackendDeployed:         8,
	ProgressFrontendCreated:         9,
	ProgressFrontendGitAttached:     10,
	ProgressFrontendBuildConfigured: 11,
	ProgressFrontendDeployed:        12,
	ProgressDomainsConfigured:       13,
	ProgressCompleted:               14,
}

// AtLeast reports whether p has reached or passed other in the step order.
// Unknown values compare as pending.
func (p Progress) AtLeast(other Progress) bool {
	return progressOrder[p] >= progressOrder[other]
}

func (p Progress) Valid() bool {
	_, ok := progressOrder[p]
	return ok
}
