package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/vista/provisioner/internal/model"
)

// ---------- Mock DB ----------

// mockDB implements the DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// ---------- Mock Row ----------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

// ---------- Mock Rows ----------

// mockRows implements pgx.Rows for testing.
// It iterates through a list of scan functions, one per row.
type mockRows struct {
	callIndex int
	scanFuncs []func(dest ...any) error
	err       error
}

func newMockRows(scanFuncs ...func(dest ...any) error) *mockRows {
	return &mockRows{scanFuncs: scanFuncs}
}

func (m *mockRows) Next() bool {
	return m.callIndex < len(m.scanFuncs)
}

func (m *mockRows) Scan(dest ...any) error {
	if m.callIndex < len(m.scanFuncs) {
		fn := m.scanFuncs[m.callIndex]
		m.callIndex++
		return fn(dest...)
	}
	return nil
}

func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) Close()                                       {}
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

// provisionScanFunc populates scan destinations in provisionColumns order.
func provisionScanFunc(p model.ProvisionRequest) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = p.ID
		*(dest[1].(**string)) = p.ClientRef
		*(dest[2].(*string)) = p.Email
		*(dest[3].(*string)) = p.Company
		*(dest[4].(*string)) = p.ClientName
		*(dest[5].(*string)) = p.Subdomain
		*(dest[6].(*string)) = p.TenantSuffix
		*(dest[7].(*string)) = p.AdminPassword
		*(dest[8].(*string)) = p.BackendRepo
		*(dest[9].(*string)) = p.FrontendRepo
		*(dest[10].(*string)) = p.Status
		*(dest[11].(*string)) = p.Detail
		*(dest[12].(*string)) = string(p.Progress)
		*(dest[13].(*bool)) = p.Failed
		*(dest[14].(**string)) = p.FailedAt
		*(dest[15].(**string)) = p.LastError
		*(dest[16].(*int)) = p.HealthTries
		*(dest[17].(**string)) = p.ProjectName
		*(dest[18].(**string)) = p.ProjectID
		*(dest[19].(**string)) = p.BackendAppID
		*(dest[20].(**string)) = p.FrontendAppID
		*(dest[21].(**string)) = p.DatabaseID
		*(dest[22].(**string)) = p.DBHost
		*(dest[23].(**string)) = p.DBName
		*(dest[24].(**string)) = p.DBUser
		*(dest[25].(**string)) = p.DBPassword
		*(dest[26].(**int)) = p.DBPort
		*(dest[27].(**string)) = p.BackendDomain
		*(dest[28].(**string)) = p.BackendDomainID
		*(dest[29].(**string)) = p.FrontendDomain
		*(dest[30].(**string)) = p.FrontendDomainID
		*(dest[31].(*time.Time)) = p.CreatedAt
		*(dest[32].(*time.Time)) = p.UpdatedAt
		return nil
	}
}
