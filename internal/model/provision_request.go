package model

import "time"

// ProvisionRequest is the ledger row for one tenant provisioning attempt.
// It is created at intake, mutated exclusively by the orchestrator's step
// functions, and never deleted; the row doubles as the audit trail.
type ProvisionRequest struct {
	ID           string  `json:"id" db:"id"`
	ClientRef    *string `json:"client_ref,omitempty" db:"client_ref"`
	Email        string  `json:"email" db:"email"`
	Company      string  `json:"company,omitempty" db:"company"`
	ClientName   string  `json:"client_name" db:"client_name"`
	Subdomain    string  `json:"subdomain" db:"subdomain"`
	TenantSuffix string  `json:"tenant_suffix" db:"tenant_suffix"`

	AdminPassword string `json:"-" db:"admin_password"`
	BackendRepo   string `json:"backend_repo,omitempty" db:"backend_repo"`
	FrontendRepo  string `json:"frontend_repo,omitempty" db:"frontend_repo"`

	Status string `json:"status" db:"status"`
	Detail string `json:"detail" db:"detail"`

	Progress  Progress `json:"progress" db:"progress"`
	Failed    bool     `json:"failed" db:"failed"`
	FailedAt  *string  `json:"failed_at,omitempty" db:"failed_at"`
	LastError *string  `json:"last_error,omitempty" db:"last_error"`

	HealthTries int `json:"health_tries" db:"health_tries"`

	ProjectName   *string `json:"project_name,omitempty" db:"project_name"`
	ProjectID     *string `json:"project_id,omitempty" db:"project_id"`
	BackendAppID  *string `json:"backend_app_id,omitempty" db:"backend_app_id"`
	FrontendAppID *string `json:"frontend_app_id,omitempty" db:"frontend_app_id"`
	DatabaseID    *string `json:"database_id,omitempty" db:"database_id"`

	DBHost     *string `json:"db_host,omitempty" db:"db_host"`
	DBName     *string `json:"db_name,omitempty" db:"db_name"`
	DBUser     *string `json:"db_user,omitempty" db:"db_user"`
	DBPassword *string `json:"-" db:"db_password"`
	DBPort     *int    `json:"db_port,omitempty" db:"db_port"`

	BackendDomain    *string `json:"backend_domain,omitempty" db:"backend_domain"`
	BackendDomainID  *string `json:"backend_domain_id,omitempty" db:"backend_domain_id"`
	FrontendDomain   *string `json:"frontend_domain,omitempty" db:"frontend_domain"`
	FrontendDomainID *string `json:"frontend_domain_id,omitempty" db:"frontend_domain_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AppendDetail adds a line to the cumulative audit text.
func (p *ProvisionRequest) AppendDetail(line string) {
	if p.Detail == "" {
		p.Detail = line
		return
	}
	p.Detail += "\n" + line
}

// Terminal reports whether the run can make no further automatic progress.
func (p *ProvisionRequest) Terminal() bool {
	return p.Failed || p.Progress.AtLeast(ProgressCompleted)
}
