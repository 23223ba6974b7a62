package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vista/provisioner/internal/dokploy"
	"github.com/vista/provisioner/internal/model"
	"github.com/vista/provisioner/internal/scheduler"
)

// ---------- fakes ----------

type fakeLedger struct {
	mu   sync.Mutex
	rows map[string]*model.ProvisionRequest
}

func newFakeLedger(rows ...*model.ProvisionRequest) *fakeLedger {
	l := &fakeLedger{rows: map[string]*model.ProvisionRequest{}}
	for _, r := range rows {
		cp := *r
		l.rows[r.ID] = &cp
	}
	return l
}

func (l *fakeLedger) GetByID(ctx context.Context, id string) (*model.ProvisionRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[id]
	if !ok {
		return nil, errors.New("provision request not found")
	}
	cp := *r
	return &cp, nil
}

func (l *fakeLedger) Update(ctx context.Context, p *model.ProvisionRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *p
	l.rows[p.ID] = &cp
	return nil
}

func (l *fakeLedger) NextProjectSuffix(ctx context.Context, base string) (int, error) {
	return 1, nil
}

func (l *fakeLedger) row(id string) *model.ProvisionRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *l.rows[id]
	return &cp
}

// fakePlatform answers every operation successfully unless an error is
// injected for its name. Call counts are recorded per operation.
type fakePlatform struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
	// failDomainCall fails the nth CreateDomain call (1-based), 0 disables.
	failDomainCall int
	domainCalls    int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{calls: map[string]int{}, errs: map[string]error{}}
}

func (f *fakePlatform) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.errs[op]
}

func (f *fakePlatform) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakePlatform) CreateProject(ctx context.Context, name, description string) (dokploy.Response, error) {
	if err := f.record("CreateProject"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.ObjectResponse(map[string]any{"projectId": "proj-1"}), nil
}

func (f *fakePlatform) CreateApplication(ctx context.Context, projectID, name, description string) (dokploy.Response, error) {
	if err := f.record("CreateApplication"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.ObjectResponse(map[string]any{"applicationId": fmt.Sprintf("app-%d", f.count("CreateApplication"))}), nil
}

func (f *fakePlatform) SaveGitProvider(ctx context.Context, applicationID, repoURL, branch, buildPath string) (dokploy.Response, error) {
	if err := f.record("SaveGitProvider"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.StringResponse("ok"), nil
}

func (f *fakePlatform) SaveBuildType(ctx context.Context, p dokploy.SaveBuildTypeParams) (dokploy.Response, error) {
	if err := f.record("SaveBuildType"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.StringResponse("ok"), nil
}

func (f *fakePlatform) SaveEnvironment(ctx context.Context, applicationID, env string) (dokploy.Response, error) {
	if err := f.record("SaveEnvironment"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.StringResponse("ok"), nil
}

func (f *fakePlatform) CreatePostgres(ctx context.Context, p dokploy.CreatePostgresParams) (dokploy.Response, error) {
	if err := f.record("CreatePostgres"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	// Bare acknowledgement; connection details come from discovery.
	return dokploy.StringResponse("ok"), nil
}

func (f *fakePlatform) DeployPostgres(ctx context.Context, postgresID string) (dokploy.Response, error) {
	if err := f.record("DeployPostgres"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.StringResponse("ok"), nil
}

func (f *fakePlatform) DeployApplication(ctx context.Context, applicationID string) (dokploy.Response, error) {
	if err := f.record("DeployApplication"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.StringResponse("ok"), nil
}

func (f *fakePlatform) CreateDomain(ctx context.Context, p dokploy.CreateDomainParams) (dokploy.Response, error) {
	if err := f.record("CreateDomain"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	f.mu.Lock()
	f.domainCalls++
	n := f.domainCalls
	fail := f.failDomainCall
	f.mu.Unlock()
	if fail != 0 && n == fail {
		return dokploy.AbsentResponse(), errors.New("domain.create: status 500")
	}
	return dokploy.ObjectResponse(map[string]any{"id": fmt.Sprintf("dom-%d", n)}), nil
}

func (f *fakePlatform) DeleteDomain(ctx context.Context, domainID string) (dokploy.Response, error) {
	if err := f.record("DeleteDomain"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.StringResponse("ok"), nil
}

func (f *fakePlatform) ListProjects(ctx context.Context) (dokploy.Response, error) {
	if err := f.record("ListProjects"); err != nil {
		return dokploy.AbsentResponse(), err
	}
	return dokploy.ListResponse([]any{
		map[string]any{
			"projectId": "proj-1",
			"postgres": []any{
				map[string]any{
					"id":               "db-old",
					"appName":          "db-old",
					"databaseName":     "db_old",
					"databaseUser":     "user_old",
					"databasePassword": "pw-old",
					"createdAt":        "2026-01-01T00:00:00Z",
				},
				map[string]any{
					"id":               "db-1",
					"appName":          "db-a1b2c3d4",
					"databaseName":     "db_a1b2c3d4",
					"databaseUser":     "user_a1b2c3d4",
					"databasePassword": "pw-1",
					"createdAt":        "2026-02-01T00:00:00Z",
				},
			},
		},
	}), nil
}

// fakeSched records schedule calls and honours per-id dedup.
type fakeSched struct {
	mu       sync.Mutex
	jobs     map[string]scheduler.Job
	schedule []string
}

func newFakeSched() *fakeSched {
	return &fakeSched{jobs: map[string]scheduler.Job{}}
}

func (s *fakeSched) Schedule(jobID string, runAt time.Time, replace bool, job scheduler.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; ok && !replace {
		return false
	}
	s.jobs[jobID] = job
	s.schedule = append(s.schedule, jobID)
	return true
}

func (s *fakeSched) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return false
	}
	delete(s.jobs, jobID)
	return true
}

func (s *fakeSched) scheduled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}

func (s *fakeSched) scheduleCount(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.schedule {
		if id == jobID {
			n++
		}
	}
	return n
}

type fakeHealth struct {
	mu   sync.Mutex
	errs []error // popped per check; empty means healthy
}

func (h *fakeHealth) Check(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

type fakeFinalizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFinalizer) ProvisionAdmin(ctx context.Context, pr *model.ProvisionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ---------- harness ----------

func newRow() *model.ProvisionRequest {
	now := time.Now()
	return &model.ProvisionRequest{
		ID:           "req-1",
		Email:        "admin@acme.test",
		Company:      "Acme Corp",
		ClientName:   "acme corp",
		Subdomain:    "acme",
		TenantSuffix: "a1b2c3d4",
		Status:       model.StatusPending,
		Progress:     model.ProgressPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newTestOrchestrator(ledger Ledger, pf Platform, sched scheduler.Scheduler, opts Options) *Orchestrator {
	if opts.RootDomain == "" {
		opts.RootDomain = "hosting.test"
	}
	if opts.HealthChecker == nil {
		opts.HealthChecker = &fakeHealth{}
	}
	if opts.Finalizer == nil {
		opts.Finalizer = &fakeFinalizer{}
	}
	o := New(ledger, pf, sched, zerolog.Nop(), opts)
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return o
}

// ---------- tests ----------

func TestRun_HappyPath(t *testing.T) {
	ledger := newFakeLedger(newRow())
	pf := newFakePlatform()
	sched := newFakeSched()
	o := newTestOrchestrator(ledger, pf, sched, Options{})

	require.NoError(t, o.Run(context.Background(), "req-1"))

	row := ledger.row("req-1")
	assert.Equal(t, model.ProgressDomainsConfigured, row.Progress)
	assert.False(t, row.Failed)
	assert.Equal(t, model.StatusProvisioning, row.Status)

	require.NotNil(t, row.ProjectID)
	assert.Equal(t, "proj-1", *row.ProjectID)
	require.NotNil(t, row.ProjectName)
	assert.Equal(t, "Acme-Corp-001", *row.ProjectName)
	require.NotNil(t, row.BackendAppID)
	require.NotNil(t, row.FrontendAppID)

	// Discovery selected the newest database entry.
	require.NotNil(t, row.DatabaseID)
	assert.Equal(t, "db-1", *row.DatabaseID)
	require.NotNil(t, row.DBHost)
	assert.Equal(t, "db-a1b2c3d4", *row.DBHost)
	require.NotNil(t, row.DBPort)
	assert.Equal(t, 5432, *row.DBPort)

	require.NotNil(t, row.BackendDomain)
	assert.Equal(t, "acme-api.hosting.test", *row.BackendDomain)
	require.NotNil(t, row.FrontendDomain)
	assert.Equal(t, "acme.hosting.test", *row.FrontendDomain)

	assert.Equal(t, 1, pf.count("CreateProject"))
	assert.Equal(t, 2, pf.count("CreateApplication"))
	assert.Equal(t, 2, pf.count("SaveGitProvider"))
	assert.Equal(t, 2, pf.count("SaveBuildType"))
	assert.Equal(t, 1, pf.count("CreatePostgres"))
	assert.Equal(t, 1, pf.count("DeployPostgres"))
	assert.Equal(t, 2, pf.count("DeployApplication"))
	assert.Equal(t, 2, pf.count("CreateDomain"))
	assert.Equal(t, 0, pf.count("DeleteDomain"))

	assert.True(t, sched.scheduled(HealthJobID("req-1")))
}

func TestRun_SettleWaitOnlyBeforeFrontendCreate(t *testing.T) {
	ledger := newFakeLedger(newRow())
	o := newTestOrchestrator(ledger, newFakePlatform(), newFakeSched(), Options{})

	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	require.NoError(t, o.Run(context.Background(), "req-1"))

	// One settle wait, between the backend deploy and the frontend app
	// creation. Nothing follows the frontend deploy, so it queues no wait.
	assert.Equal(t, []time.Duration{o.opts.DeploySettle}, sleeps)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	ledger := newFakeLedger(newRow())
	pf := newFakePlatform()
	pf.errs["CreatePostgres"] = errors.New("postgres.create: status 502")
	sched := newFakeSched()
	o := newTestOrchestrator(ledger, pf, sched, Options{})

	err := o.Run(context.Background(), "req-1")
	require.Error(t, err)

	row := ledger.row("req-1")
	assert.True(t, row.Failed)
	assert.Equal(t, model.StatusFailed, row.Status)
	require.NotNil(t, row.FailedAt)
	assert.Equal(t, "create_database", *row.FailedAt)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "status 502")
	assert.Equal(t, model.ProgressBackendBuildConfigured, row.Progress)

	// Nothing past the failed step ran.
	assert.Equal(t, 0, pf.count("DeployPostgres"))
	assert.Equal(t, 0, pf.count("CreateDomain"))
	assert.False(t, sched.scheduled(HealthJobID("req-1")))
}

func TestRun_RefusesFailedRow(t *testing.T) {
	row := newRow()
	row.Failed = true
	failedAt := "create_database"
	row.FailedAt = &failedAt
	ledger := newFakeLedger(row)
	pf := newFakePlatform()
	o := newTestOrchestrator(ledger, pf, newFakeSched(), Options{})

	err := o.Run(context.Background(), "req-1")
	require.Error(t, err)
	assert.Equal(t, 0, pf.count("CreateProject"))
}

func TestRun_ResumeSkipsCompletedSteps(t *testing.T) {
	ledger := newFakeLedger(newRow())
	pf := newFakePlatform()
	pf.errs["CreatePostgres"] = errors.New("postgres.create: status 502")
	sched := newFakeSched()
	o := newTestOrchestrator(ledger, pf, sched, Options{})

	require.Error(t, o.Run(context.Background(), "req-1"))

	// Operator retry: clear the failure markers and run again with the
	// platform recovered.
	row := ledger.row("req-1")
	row.Failed = false
	row.FailedAt = nil
	row.LastError = nil
	row.Status = model.StatusPending
	require.NoError(t, ledger.Update(context.Background(), row))
	delete(pf.errs, "CreatePostgres")

	require.NoError(t, o.Run(context.Background(), "req-1"))

	row = ledger.row("req-1")
	assert.Equal(t, model.ProgressDomainsConfigured, row.Progress)
	assert.False(t, row.Failed)

	// Steps confirmed before the failure did not execute a second time.
	assert.Equal(t, 1, pf.count("CreateProject"))
	assert.Equal(t, 1, pf.count("SaveEnvironment"))
	assert.Equal(t, 2, pf.count("CreateApplication"))
	assert.Equal(t, 2, pf.count("CreatePostgres"))
}

func TestRun_CompletedRowIsNoOp(t *testing.T) {
	row := newRow()
	row.Progress = model.ProgressCompleted
	row.Status = model.StatusCompleted
	ledger := newFakeLedger(row)
	pf := newFakePlatform()
	sched := newFakeSched()
	o := newTestOrchestrator(ledger, pf, sched, Options{})

	require.NoError(t, o.Run(context.Background(), "req-1"))
	assert.Equal(t, 0, pf.count("CreateProject"))
	assert.False(t, sched.scheduled(HealthJobID("req-1")))
}

func TestRun_StructuralDefectFailsWithoutRetry(t *testing.T) {
	row := newRow()
	row.Progress = model.ProgressProjectCreated // but no project id recorded
	ledger := newFakeLedger(row)
	pf := newFakePlatform()
	o := newTestOrchestrator(ledger, pf, newFakeSched(), Options{})

	require.Error(t, o.Run(context.Background(), "req-1"))

	got := ledger.row("req-1")
	assert.True(t, got.Failed)
	require.NotNil(t, got.FailedAt)
	assert.Equal(t, "create_backend_app", *got.FailedAt)
	assert.Equal(t, 0, pf.count("CreateApplication"))
}

func TestRun_DomainRollback(t *testing.T) {
	ledger := newFakeLedger(newRow())
	pf := newFakePlatform()
	pf.failDomainCall = 2 // frontend succeeds, backend fails
	o := newTestOrchestrator(ledger, pf, newFakeSched(), Options{})

	require.Error(t, o.Run(context.Background(), "req-1"))

	row := ledger.row("req-1")
	assert.True(t, row.Failed)
	require.NotNil(t, row.FailedAt)
	assert.Equal(t, "create_domains", *row.FailedAt)
	assert.Nil(t, row.FrontendDomain)
	assert.Nil(t, row.FrontendDomainID)
	assert.Nil(t, row.BackendDomain)
	assert.Equal(t, 1, pf.count("DeleteDomain"))
}

func TestRun_DomainRollbackKeepsPreexistingFrontendDomain(t *testing.T) {
	row := newRow()
	row.Progress = model.ProgressFrontendDeployed
	projectID, backendApp, frontendApp := "proj-1", "app-1", "app-2"
	row.ProjectID = &projectID
	row.BackendAppID = &backendApp
	row.FrontendAppID = &frontendApp
	domain, domainID := "acme.hosting.test", "dom-prev"
	row.FrontendDomain = &domain
	row.FrontendDomainID = &domainID
	ledger := newFakeLedger(row)

	pf := newFakePlatform()
	pf.failDomainCall = 1 // the only create this run is the backend one
	o := newTestOrchestrator(ledger, pf, newFakeSched(), Options{})

	require.Error(t, o.Run(context.Background(), "req-1"))

	got := ledger.row("req-1")
	assert.True(t, got.Failed)
	// A frontend domain that survived an earlier run is not rolled back.
	require.NotNil(t, got.FrontendDomain)
	assert.Equal(t, "acme.hosting.test", *got.FrontendDomain)
	assert.Equal(t, 0, pf.count("DeleteDomain"))
}

func TestEnqueueRun_Dedup(t *testing.T) {
	ledger := newFakeLedger(newRow())
	sched := newFakeSched()
	o := newTestOrchestrator(ledger, newFakePlatform(), sched, Options{})

	assert.True(t, o.EnqueueRun("req-1", time.Now()))
	assert.False(t, o.EnqueueRun("req-1", time.Now()))
	assert.Equal(t, 1, sched.scheduleCount(ProvisionJobID("req-1")))
}

func domainsConfiguredRow() *model.ProvisionRequest {
	row := newRow()
	row.Progress = model.ProgressDomainsConfigured
	row.Status = model.StatusProvisioning
	backendDomain := "acme-api.hosting.test"
	row.BackendDomain = &backendDomain
	return row
}

func TestHealthCheck_SuccessFinalizesAndCompletes(t *testing.T) {
	ledger := newFakeLedger(domainsConfiguredRow())
	sched := newFakeSched()
	fin := &fakeFinalizer{}
	o := newTestOrchestrator(ledger, newFakePlatform(), sched, Options{
		HealthChecker: &fakeHealth{},
		Finalizer:     fin,
	})

	o.runHealthCheck(context.Background(), "req-1")

	row := ledger.row("req-1")
	assert.Equal(t, model.ProgressCompleted, row.Progress)
	assert.Equal(t, model.StatusCompleted, row.Status)
	assert.False(t, row.Failed)
	assert.Equal(t, 1, fin.count())
	assert.False(t, sched.scheduled(HealthJobID("req-1")))
}

func TestHealthCheck_UnhealthyReschedules(t *testing.T) {
	ledger := newFakeLedger(domainsConfiguredRow())
	sched := newFakeSched()
	o := newTestOrchestrator(ledger, newFakePlatform(), sched, Options{
		HealthChecker: &fakeHealth{errs: []error{errors.New("status 503")}},
	})

	o.runHealthCheck(context.Background(), "req-1")

	row := ledger.row("req-1")
	assert.False(t, row.Failed)
	assert.Equal(t, 1, row.HealthTries)
	assert.True(t, sched.scheduled(HealthJobID("req-1")))
}

func TestHealthCheck_ExhaustionFails(t *testing.T) {
	ledger := newFakeLedger(domainsConfiguredRow())
	sched := newFakeSched()
	checker := &fakeHealth{}
	for i := 0; i < 10; i++ {
		checker.errs = append(checker.errs, errors.New("status 503"))
	}
	fin := &fakeFinalizer{}
	o := newTestOrchestrator(ledger, newFakePlatform(), sched, Options{
		HealthChecker:  checker,
		Finalizer:      fin,
		HealthMaxTries: 10,
	})

	for i := 0; i < 10; i++ {
		sched.Cancel(HealthJobID("req-1"))
		o.runHealthCheck(context.Background(), "req-1")
	}

	row := ledger.row("req-1")
	assert.True(t, row.Failed)
	require.NotNil(t, row.FailedAt)
	assert.Equal(t, "health_check", *row.FailedAt)
	assert.Equal(t, 10, row.HealthTries)
	assert.Equal(t, 0, fin.count())
	assert.False(t, sched.scheduled(HealthJobID("req-1")))

	// A late probe against the now-failed row is a no-op.
	o.runHealthCheck(context.Background(), "req-1")
	assert.Equal(t, 10, ledger.row("req-1").HealthTries)
}

func TestHealthCheck_FinalizerFailureMarksFailed(t *testing.T) {
	ledger := newFakeLedger(domainsConfiguredRow())
	fin := &fakeFinalizer{err: errors.New("status 401")}
	o := newTestOrchestrator(ledger, newFakePlatform(), newFakeSched(), Options{
		HealthChecker: &fakeHealth{},
		Finalizer:     fin,
	})

	o.runHealthCheck(context.Background(), "req-1")

	row := ledger.row("req-1")
	assert.True(t, row.Failed)
	require.NotNil(t, row.FailedAt)
	assert.Equal(t, "finalize", *row.FailedAt)
}

func TestHealthBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, healthBackoff(1))
	assert.Equal(t, 2*time.Minute, healthBackoff(2))
	assert.Equal(t, 4*time.Minute, healthBackoff(3))
	assert.Equal(t, 8*time.Minute, healthBackoff(4))
	assert.Equal(t, 16*time.Minute, healthBackoff(5))
	assert.Equal(t, 32*time.Minute, healthBackoff(6))
	assert.Equal(t, time.Hour, healthBackoff(7))
	assert.Equal(t, time.Hour, healthBackoff(12))
}

func TestTruncateErr(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncateErr(string(long)), 4000)
	assert.Equal(t, "short", truncateErr("short"))
}
