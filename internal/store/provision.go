package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vista/provisioner/internal/api/request"
	"github.com/vista/provisioner/internal/model"
)

// DB is the narrow pgx surface the store needs; *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// ErrNotFound is returned when no ledger row matches the lookup.
var ErrNotFound = errors.New("provision request not found")

type ProvisionStore struct {
	db DB
}

func NewProvisionStore(db DB) *ProvisionStore {
	return &ProvisionStore{db: db}
}

const provisionColumns = `id, client_ref, email, company, client_name, subdomain, tenant_suffix,
	admin_password, backend_repo, frontend_repo, status, detail,
	progress, failed, failed_at, last_error, health_tries,
	project_name, project_id, backend_app_id, frontend_app_id, database_id,
	db_host, db_name, db_user, db_password, db_port,
	backend_domain, backend_domain_id, frontend_domain, frontend_domain_id,
	created_at, updated_at`

func scanProvision(row pgx.Row) (*model.ProvisionRequest, error) {
	var p model.ProvisionRequest
	var progress string
	err := row.Scan(
		&p.ID, &p.ClientRef, &p.Email, &p.Company, &p.ClientName, &p.Subdomain, &p.TenantSuffix,
		&p.AdminPassword, &p.BackendRepo, &p.FrontendRepo, &p.Status, &p.Detail,
		&progress, &p.Failed, &p.FailedAt, &p.LastError, &p.HealthTries,
		&p.ProjectName, &p.ProjectID, &p.BackendAppID, &p.FrontendAppID, &p.DatabaseID,
		&p.DBHost, &p.DBName, &p.DBUser, &p.DBPassword, &p.DBPort,
		&p.BackendDomain, &p.BackendDomainID, &p.FrontendDomain, &p.FrontendDomainID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Progress = model.Progress(progress)
	return &p, nil
}

func (s *ProvisionStore) Create(ctx context.Context, p *model.ProvisionRequest) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO provision_requests (`+provisionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		         $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)`,
		p.ID, p.ClientRef, p.Email, p.Company, p.ClientName, p.Subdomain, p.TenantSuffix,
		p.AdminPassword, p.BackendRepo, p.FrontendRepo, p.Status, p.Detail,
		string(p.Progress), p.Failed, p.FailedAt, p.LastError, p.HealthTries,
		p.ProjectName, p.ProjectID, p.BackendAppID, p.FrontendAppID, p.DatabaseID,
		p.DBHost, p.DBName, p.DBUser, p.DBPassword, p.DBPort,
		p.BackendDomain, p.BackendDomainID, p.FrontendDomain, p.FrontendDomainID,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert provision request: %w", err)
	}
	return nil
}

func (s *ProvisionStore) GetByID(ctx context.Context, id string) (*model.ProvisionRequest, error) {
	p, err := scanProvision(s.db.QueryRow(ctx,
		`SELECT `+provisionColumns+` FROM provision_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provision request %s: %w", id, err)
	}
	return p, nil
}

func (s *ProvisionStore) GetByClientRef(ctx context.Context, clientRef string) (*model.ProvisionRequest, error) {
	p, err := scanProvision(s.db.QueryRow(ctx,
		`SELECT `+provisionColumns+` FROM provision_requests WHERE client_ref = $1`, clientRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provision request by client_ref %s: %w", clientRef, err)
	}
	return p, nil
}

func (s *ProvisionStore) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM provision_requests WHERE subdomain = $1)`, subdomain,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subdomain %s: %w", subdomain, err)
	}
	return exists, nil
}

// Update persists every mutable field of the row in a single statement. Step
// functions rely on this to make "result fields + progress + detail" one
// atomic write.
func (s *ProvisionStore) Update(ctx context.Context, p *model.ProvisionRequest) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE provision_requests SET
			status = $1, detail = $2, progress = $3, failed = $4, failed_at = $5,
			last_error = $6, health_tries = $7, project_name = $8, project_id = $9,
			backend_app_id = $10, frontend_app_id = $11, database_id = $12,
			db_host = $13, db_name = $14, db_user = $15, db_password = $16, db_port = $17,
			backend_domain = $18, backend_domain_id = $19,
			frontend_domain = $20, frontend_domain_id = $21,
			updated_at = now()
		 WHERE id = $22`,
		p.Status, p.Detail, string(p.Progress), p.Failed, p.FailedAt,
		p.LastError, p.HealthTries, p.ProjectName, p.ProjectID,
		p.BackendAppID, p.FrontendAppID, p.DatabaseID,
		p.DBHost, p.DBName, p.DBUser, p.DBPassword, p.DBPort,
		p.BackendDomain, p.BackendDomainID,
		p.FrontendDomain, p.FrontendDomainID,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update provision request %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ProvisionStore) List(ctx context.Context, params request.ListParams) ([]model.ProvisionRequest, bool, error) {
	query := `SELECT ` + provisionColumns + ` FROM provision_requests WHERE 1=1`
	args := []any{}
	argIdx := 1

	if params.Search != "" {
		query += fmt.Sprintf(` AND (subdomain ILIKE $%d OR client_name ILIKE $%d OR email ILIKE $%d)`, argIdx, argIdx, argIdx)
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}
	if params.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, params.Status)
		argIdx++
	}
	if params.Cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, params.Cursor)
		argIdx++
	}

	sortCol := "created_at"
	switch params.Sort {
	case "status":
		sortCol = "status"
	case "subdomain":
		sortCol = "subdomain"
	case "created_at":
		sortCol = "created_at"
	}
	order := "DESC"
	if params.Order == "asc" {
		order = "ASC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s`, sortCol, order)
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, params.Limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list provision requests: %w", err)
	}
	defer rows.Close()

	var requests []model.ProvisionRequest
	for rows.Next() {
		p, err := scanProvision(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan provision request: %w", err)
		}
		requests = append(requests, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate provision requests: %w", err)
	}

	hasMore := len(requests) > params.Limit
	if hasMore {
		requests = requests[:params.Limit]
	}
	return requests, hasMore, nil
}

// ListStalled returns ids of runs that are neither completed nor failed and
// have not been touched within the given window. The sweeper uses this to
// re-enqueue work lost to a process crash. Rows that reached
// domains_configured are excluded: they sit in the health-poll phase, where
// the wait between probes legitimately exceeds any stall window and a
// re-enqueued run would reset the probe backoff.
func (s *ProvisionStore) ListStalled(ctx context.Context, olderThan time.Duration) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM provision_requests
		 WHERE failed = false AND progress NOT IN ($1, $2) AND updated_at < $3
		 ORDER BY updated_at`,
		string(model.ProgressCompleted), string(model.ProgressDomainsConfigured), time.Now().Add(-olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("list stalled provision requests: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stalled id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stalled ids: %w", err)
	}
	return ids, nil
}

var projectSuffixRegex = regexp.MustCompile(`(\d+)$`)

// NextProjectSuffix returns the next free numeric suffix for project names
// sharing the given normalized base, starting at 1.
func (s *ProvisionStore) NextProjectSuffix(ctx context.Context, base string) (int, error) {
	var last *string
	err := s.db.QueryRow(ctx,
		`SELECT max(project_name) FROM provision_requests WHERE project_name LIKE $1`,
		base+"-%",
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("next project suffix for %s: %w", base, err)
	}
	if last == nil {
		return 1, nil
	}
	m := projectSuffixRegex.FindStringSubmatch(*last)
	if m == nil {
		return 1, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1, nil
	}
	return n + 1, nil
}
