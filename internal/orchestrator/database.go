package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vista/provisioner/internal/dokploy"
	"github.com/vista/provisioner/internal/model"
	"github.com/vista/provisioner/internal/platform"
)

const defaultDBPort = 5432

// stepCreateDatabase issues the create call and then discovers the database
// through the project listing. The creation endpoint often answers with a
// bare acknowledgement, so connection details have to come from a follow-up
// project.all query.
func (o *Orchestrator) stepCreateDatabase(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.ProjectID == nil {
		return o.failStructural(ctx, pr, stepCreateDatabase, "no project id on ledger row")
	}

	dbName := "db_" + pr.TenantSuffix
	dbUser := "user_" + pr.TenantSuffix
	dbPassword := pr.AdminPassword
	if dbPassword == "" {
		dbPassword = platform.NewSecret(12)
	}

	_, err := o.platform.CreatePostgres(ctx, dokploy.CreatePostgresParams{
		ProjectID:        *pr.ProjectID,
		Name:             "db-" + pr.TenantSuffix,
		AppName:          "db-" + pr.TenantSuffix,
		DatabaseName:     dbName,
		DatabaseUser:     dbUser,
		DatabasePassword: dbPassword,
		DockerImage:      o.opts.PostgresImage,
	})
	if err != nil {
		return o.fail(ctx, pr, stepCreateDatabase, err)
	}

	entry, err := o.discoverDatabase(ctx, *pr.ProjectID)
	if err != nil {
		return o.fail(ctx, pr, stepCreateDatabase, err)
	}

	id, ok := dokploy.ExtractID(dokploy.ObjectResponse(entry))
	if !ok {
		return o.failStructural(ctx, pr, stepCreateDatabase, "discovered database entry has no id")
	}

	host := stringField(entry, "appName")
	if host == "" {
		host = "db-" + pr.TenantSuffix
	}
	if s := stringField(entry, "databaseName"); s != "" {
		dbName = s
	}
	if s := stringField(entry, "databaseUser"); s != "" {
		dbUser = s
	}
	if s := stringField(entry, "databasePassword"); s != "" {
		dbPassword = s
	}

	port := defaultDBPort
	pr.DatabaseID = &id
	pr.DBHost = &host
	pr.DBName = &dbName
	pr.DBUser = &dbUser
	pr.DBPassword = &dbPassword
	pr.DBPort = &port

	return o.advance(ctx, pr, model.ProgressDBCreated,
		fmt.Sprintf("Database created: %s (id=%s, host=%s)", dbName, id, host))
}

// discoverDatabase polls the project listing until the project's database
// list is non-empty, then returns the most recently created entry.
func (o *Orchestrator) discoverDatabase(ctx context.Context, projectID string) (map[string]any, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.DiscoveryAttempts; attempt++ {
		if attempt > 1 {
			if err := o.sleep(ctx, o.opts.DiscoveryDelay); err != nil {
				return nil, err
			}
		}

		resp, err := o.platform.ListProjects(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		project, ok := findProject(resp, projectID)
		if !ok {
			lastErr = fmt.Errorf("project %s not present in project listing", projectID)
			continue
		}

		if entry, ok := newestDatabase(project); ok {
			return entry, nil
		}
		lastErr = fmt.Errorf("project %s has no databases yet", projectID)
	}
	return nil, fmt.Errorf("database discovery exhausted after %d attempts: %w", o.opts.DiscoveryAttempts, lastErr)
}

// findProject locates the project object by id in a project.all response,
// which may be a bare array or an object with a "data" array.
func findProject(resp dokploy.Response, projectID string) (map[string]any, bool) {
	var items []any
	switch resp.Kind() {
	case dokploy.List:
		items = resp.List()
	case dokploy.Object:
		if data, ok := resp.Obj()["data"].([]any); ok {
			items = data
		}
	}

	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := dokploy.ExtractID(dokploy.ObjectResponse(obj)); ok && id == projectID {
			return obj, true
		}
	}
	return nil, false
}

// newestDatabase picks the most recently created postgres entry attached to
// the project: createdAt descending, falling back to the first entry when
// timestamps are absent or unparsable.
func newestDatabase(project map[string]any) (map[string]any, bool) {
	var raw []any
	for _, key := range []string{"postgres", "databases"} {
		if list, ok := project[key].([]any); ok && len(list) > 0 {
			raw = list
			break
		}
	}
	if len(raw) == 0 {
		return nil, false
	}

	var newest map[string]any
	var newestAt time.Time
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if newest == nil {
			newest = entry
		}
		at, err := parseCreatedAt(entry)
		if err != nil {
			continue
		}
		if at.After(newestAt) {
			newestAt = at
			newest = entry
		}
	}
	return newest, newest != nil
}

func parseCreatedAt(entry map[string]any) (time.Time, error) {
	s := stringField(entry, "createdAt")
	if s == "" {
		s = stringField(entry, "created_at")
	}
	if s == "" {
		return time.Time{}, fmt.Errorf("no creation timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable creation timestamp %q", s)
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func (o *Orchestrator) stepConfigureBackendEnv(ctx context.Context, st *runState) error {
	pr := st.pr
	if pr.BackendAppID == nil {
		return o.failStructural(ctx, pr, stepBackendEnv, "no backend application id on ledger row")
	}
	if pr.DBHost == nil || pr.DBName == nil || pr.DBUser == nil || pr.DBPassword == nil || pr.DBPort == nil {
		return o.failStructural(ctx, pr, stepBackendEnv, "database connection fields missing from ledger row")
	}

	backendHost := platform.BackendHostname(pr.Subdomain, o.opts.RootDomain)
	frontendHost := platform.FrontendHostname(pr.Subdomain, o.opts.RootDomain)

	env := strings.Join([]string{
		"DB_NAME=" + *pr.DBName,
		"DB_USER=" + *pr.DBUser,
		"DB_PASSWORD=" + *pr.DBPassword,
		"DB_HOST=" + *pr.DBHost,
		fmt.Sprintf("DB_PORT=%d", *pr.DBPort),
		"SECRET_KEY=" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		"ALLOWED_HOSTS=" + backendHost,
		"FRONTEND_URL=https://" + frontendHost,
		"TENANT_ID=" + pr.TenantSuffix,
	}, "\n")

	if _, err := o.platform.SaveEnvironment(ctx, *pr.BackendAppID, env); err != nil {
		return o.fail(ctx, pr, stepBackendEnv, err)
	}

	return o.advance(ctx, pr, model.ProgressBackendEnvConfigured, "Backend environment configured")
}
