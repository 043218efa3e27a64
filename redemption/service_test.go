package redemption_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/benefits-access-api/databases/memdb"
	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/redemption"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memdb.Store
	service *redemption.Service
}

func newFixture(t *testing.T, allocated int) *fixture {
	t.Helper()
	store := memdb.New()
	require.NoError(t, store.Companies().InsertOne(context.Background(), models.Company{
		ID: "acme", Name: "Acme", IsActive: true, SessionsAllocated: allocated,
	}))
	service := redemption.NewService(store, store.AccessCodes(), store.Companies(), store.Employees())
	service.Now = func() time.Time { return now }
	return &fixture{store: store, service: service}
}

func (f *fixture) code(t *testing.T, code models.AccessCode) {
	t.Helper()
	if code.Status == "" {
		code.Status = models.CodeStatusPending
	}
	if code.Status == models.CodeStatusPending || code.Status == models.CodeStatusUsed {
		code.ActiveCode = code.Code
	}
	if code.CompanyID == "" && code.Role != models.RolePersonal {
		code.CompanyID = "acme"
	}
	if code.Role == "" {
		code.Role = models.RoleEmployee
	}
	if code.ExpiresAt.IsZero() {
		code.ExpiresAt = now.Add(time.Hour)
	}
	require.NoError(t, f.store.AccessCodes().InsertOne(context.Background(), code))
}

func (f *fixture) status(t *testing.T, id string) models.CodeStatus {
	t.Helper()
	code, err := f.store.AccessCodes().FindByID(context.Background(), id)
	require.NoError(t, err)
	return code.Status
}

func TestRedeem(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "WXYZ-5678", SessionsGranted: 4})

	result, err := f.service.Redeem(context.Background(), redemption.Request{Code: " wxyz-5678 ", PersonID: "person-a"})
	require.NoError(t, err)
	assert.Equal(t, "acme", result.CompanyID)
	assert.Equal(t, models.RoleEmployee, result.Role)
	assert.Equal(t, 4, result.SessionsGranted)

	code, err := f.store.AccessCodes().FindByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusUsed, code.Status)
	assert.Equal(t, "person-a", code.AcceptedBy)
	require.NotNil(t, code.AcceptedAt)
	assert.Equal(t, now, *code.AcceptedAt)

	employee, err := f.store.Employees().FindByID(context.Background(), result.EmployeeID)
	require.NoError(t, err)
	assert.True(t, employee.IsActive)
	assert.Equal(t, 4, employee.SessionsAllocated)
	assert.Equal(t, "c1", employee.AccessCodeID)

	company, err := f.store.Companies().FindByID(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 4, company.SessionsAssigned)
}

func TestRedeem_LapsedCodeExpires(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "ABCD-1234", ExpiresAt: now.Add(-time.Second)})

	_, err := f.service.Redeem(context.Background(), redemption.Request{Code: "ABCD-1234", PersonID: "person-a"})
	assert.True(t, models.IsKind(err, models.KindExpired), "got %v", err)
	assert.Equal(t, models.CodeStatusExpired, f.status(t, "c1"))

	// expiry is monotonic
	_, err = f.service.Redeem(context.Background(), redemption.Request{Code: "ABCD-1234", PersonID: "person-a"})
	assert.True(t, models.IsKind(err, models.KindExpired))
}

func TestRedeem_ExpiryInstantIsExclusive(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "ABCD-2345", ExpiresAt: now})

	_, err := f.service.Redeem(context.Background(), redemption.Request{Code: "ABCD-2345", PersonID: "person-a"})
	assert.True(t, models.IsKind(err, models.KindExpired))
}

func TestRedeem_ConcurrentRedeemersGetOneSuccess(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "WXYZ-5678", SessionsGranted: 2})

	const redeemers = 20
	var wg sync.WaitGroup
	results := make([]error, redeemers)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.service.Redeem(context.Background(), redemption.Request{
				Code:     "WXYZ-5678",
				PersonID: "person-" + string(rune('a'+i)),
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, models.IsKind(err, models.KindAlreadyConsumed), "got %v", err)
	}
	assert.Equal(t, 1, successes)

	employees, err := f.store.Employees().ListByCompany(context.Background(), "acme", 100, 1)
	require.NoError(t, err)
	assert.Len(t, employees, 1)

	company, err := f.store.Companies().FindByID(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, company.SessionsAssigned)
}

func TestRedeem_QuotaExceededLeavesCodePending(t *testing.T) {
	f := newFixture(t, 3)
	f.code(t, models.AccessCode{ID: "c1", Code: "WXYZ-5678", SessionsGranted: 5})

	_, err := f.service.Redeem(context.Background(), redemption.Request{Code: "WXYZ-5678", PersonID: "person-a"})
	assert.True(t, models.IsKind(err, models.KindQuotaExceeded))
	assert.Equal(t, models.CodeStatusPending, f.status(t, "c1"))

	employees, err := f.store.Employees().ListByCompany(context.Background(), "acme", 100, 1)
	require.NoError(t, err)
	assert.Empty(t, employees)

	company, err := f.store.Companies().FindByID(context.Background(), "acme")
	require.NoError(t, err)
	assert.Zero(t, company.SessionsAssigned)
}

func TestRedeem_Refusals(t *testing.T) {
	tests := []struct {
		name string
		code models.AccessCode
		req  redemption.Request
		kind models.ErrorKind
	}{
		{
			name: "unknown code",
			req:  redemption.Request{Code: "QQQQ-QQQQ", PersonID: "p"},
			kind: models.KindNotFound,
		},
		{
			name: "too short to be a code",
			req:  redemption.Request{Code: "QQ", PersonID: "p"},
			kind: models.KindNotFound,
		},
		{
			name: "no person",
			req:  redemption.Request{Code: "WXYZ-5678"},
			kind: models.KindInvalid,
		},
		{
			name: "revoked",
			code: models.AccessCode{ID: "c1", Code: "WXYZ-5678", Status: models.CodeStatusRevoked},
			req:  redemption.Request{Code: "WXYZ-5678", PersonID: "p"},
			kind: models.KindAlreadyConsumed,
		},
		{
			name: "used code redeemed with another email",
			code: models.AccessCode{ID: "c1", Code: "WXYZ-5678", Email: "jane@example.com", Status: models.CodeStatusUsed},
			req:  redemption.Request{Code: "WXYZ-5678", PersonID: "p", Email: "john@example.com"},
			kind: models.KindAlreadyConsumed,
		},
		{
			name: "already expired",
			code: models.AccessCode{ID: "c1", Code: "WXYZ-5678", Status: models.CodeStatusExpired},
			req:  redemption.Request{Code: "WXYZ-5678", PersonID: "p"},
			kind: models.KindExpired,
		},
		{
			name: "email differs",
			code: models.AccessCode{ID: "c1", Code: "WXYZ-5678", Email: "jane@example.com"},
			req:  redemption.Request{Code: "WXYZ-5678", PersonID: "p", Email: "john@example.com"},
			kind: models.KindEmailMismatch,
		},
		{
			name: "email missing",
			code: models.AccessCode{ID: "c1", Code: "WXYZ-5678", Email: "jane@example.com"},
			req:  redemption.Request{Code: "WXYZ-5678", PersonID: "p"},
			kind: models.KindEmailMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			if tt.code.ID != "" {
				f.code(t, tt.code)
			}
			_, err := f.service.Redeem(context.Background(), tt.req)
			assert.True(t, models.IsKind(err, tt.kind), "got %v", err)
			if tt.code.ID != "" {
				want := tt.code.Status
				if want == "" {
					want = models.CodeStatusPending
				}
				assert.Equal(t, want, f.status(t, tt.code.ID))
			}
		})
	}
}

func TestRedeem_AcceptsCodeTypedWithoutHyphen(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "WXYZ-5678"})

	_, err := f.service.Redeem(context.Background(), redemption.Request{Code: "wxyz5678", PersonID: "p"})
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusUsed, f.status(t, "c1"))
}

func TestRedeem_InactiveCompanyReadsAsNotFound(t *testing.T) {
	f := newFixture(t, 10)
	require.NoError(t, f.store.Companies().InsertOne(context.Background(), models.Company{ID: "gone", Name: "Gone"}))
	f.code(t, models.AccessCode{ID: "c1", Code: "WXYZ-5678", CompanyID: "gone"})
	f.code(t, models.AccessCode{ID: "c2", Code: "WXYZ-9999", CompanyID: "missing"})

	for _, id := range []string{"c1", "c2"} {
		code, err := f.store.AccessCodes().FindByID(context.Background(), id)
		require.NoError(t, err)

		_, err = f.service.Redeem(context.Background(), redemption.Request{Code: code.Code, PersonID: "p"})
		assert.True(t, models.IsKind(err, models.KindNotFound), "%s: got %v", id, err)
		assert.Equal(t, models.CodeStatusPending, f.status(t, id))
	}

	employees, err := f.store.Employees().ListByCompany(context.Background(), "gone", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, employees)
}

func TestRedeem_EmailMatchIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "WXYZ-5678", Email: "jane@example.com"})

	_, err := f.service.Redeem(context.Background(), redemption.Request{Code: "WXYZ-5678", PersonID: "p", Email: "Jane@Example.COM"})
	assert.NoError(t, err)
}

func TestRedeem_ReactivatesExistingMembership(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "WXYZ-5678", SessionsGranted: 1})
	f.code(t, models.AccessCode{ID: "c2", Code: "WXYZ-9999", SessionsGranted: 2})

	first, err := f.service.Redeem(context.Background(), redemption.Request{Code: "WXYZ-5678", PersonID: "p"})
	require.NoError(t, err)
	_, err = f.store.Employees().Deactivate(context.Background(), "acme", first.EmployeeID, now)
	require.NoError(t, err)

	second, err := f.service.Redeem(context.Background(), redemption.Request{Code: "WXYZ-9999", PersonID: "p"})
	require.NoError(t, err)
	assert.Equal(t, first.EmployeeID, second.EmployeeID)

	employee, err := f.store.Employees().FindByID(context.Background(), first.EmployeeID)
	require.NoError(t, err)
	assert.True(t, employee.IsActive)
	assert.Equal(t, 3, employee.SessionsAllocated)
}

func TestRedeem_PersonalCode(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "PERS-ONAL", Role: models.RolePersonal})

	result, err := f.service.Redeem(context.Background(), redemption.Request{Code: "pers-onal", PersonID: "p"})
	require.NoError(t, err)
	assert.Empty(t, result.CompanyID)
	assert.Equal(t, models.RolePersonal, result.Role)
}

func TestRedeem_StoreUnavailable(t *testing.T) {
	f := newFixture(t, 10)
	f.code(t, models.AccessCode{ID: "c1", Code: "WXYZ-5678"})
	f.store.FailNext(10)

	_, err := f.service.Redeem(context.Background(), redemption.Request{Code: "WXYZ-5678", PersonID: "p"})
	assert.True(t, models.IsKind(err, models.KindStoreUnavailable))

	f.store.FailNext(0)
	assert.Equal(t, models.CodeStatusPending, f.status(t, "c1"))
}
