package validation_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/databases/memdb"
	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/redemption"
	"github.com/linesmerrill/benefits-access-api/validation"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// countingCodes counts lookups and can slow them down
type countingCodes struct {
	databases.AccessCodeDatabase
	lookups atomic.Int32
	delay   time.Duration
}

func (c *countingCodes) FindByCode(ctx context.Context, text string) (*models.AccessCode, error) {
	c.lookups.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.AccessCodeDatabase.FindByCode(ctx, text)
}

func newStore(t *testing.T) *memdb.Store {
	t.Helper()
	store := memdb.New()
	ctx := context.Background()
	require.NoError(t, store.Companies().InsertOne(ctx, models.Company{ID: "acme", Name: "Acme", IsActive: true, SessionsAllocated: 10}))
	require.NoError(t, store.Companies().InsertOne(ctx, models.Company{ID: "gone", Name: "Gone", IsActive: false}))
	for _, code := range []models.AccessCode{
		{ID: "live", Code: "WXYZ-5678", ActiveCode: "WXYZ-5678", CompanyID: "acme", Role: models.RoleHR, Status: models.CodeStatusPending, ExpiresAt: now.Add(time.Hour)},
		{ID: "lapsed", Code: "LAPS-EDXX", ActiveCode: "LAPS-EDXX", CompanyID: "acme", Role: models.RoleEmployee, Status: models.CodeStatusPending, ExpiresAt: now.Add(-time.Second)},
		{ID: "expired", Code: "EXPI-REDX", CompanyID: "acme", Role: models.RoleEmployee, Status: models.CodeStatusExpired, ExpiresAt: now.Add(-time.Hour)},
		{ID: "revoked", Code: "REVO-KEDX", CompanyID: "acme", Role: models.RoleEmployee, Status: models.CodeStatusRevoked, ExpiresAt: now.Add(time.Hour)},
		{ID: "orphan", Code: "ORPH-ANXX", ActiveCode: "ORPH-ANXX", CompanyID: "gone", Role: models.RoleEmployee, Status: models.CodeStatusPending, ExpiresAt: now.Add(time.Hour)},
		{ID: "personal", Code: "PERS-ONAL", ActiveCode: "PERS-ONAL", Role: models.RolePersonal, Status: models.CodeStatusPending, ExpiresAt: now.Add(time.Hour)},
	} {
		require.NoError(t, store.AccessCodes().InsertOne(ctx, code))
	}
	return store
}

func newValidator(store *memdb.Store, codes databases.AccessCodeDatabase) *validation.Validator {
	v := validation.NewValidator(codes, store.Companies())
	v.Now = func() time.Time { return now }
	return v
}

func TestValidate(t *testing.T) {
	store := newStore(t)
	v := newValidator(store, store.AccessCodes())

	tests := []struct {
		raw    string
		valid  bool
		reason string
	}{
		{" wxyz-5678 ", true, ""},
		{"wxyz5678", true, ""},
		{"WXYZ 5678", true, ""},
		{"PERS-ONAL", true, ""},
		{"WXYZ-567", false, validation.ReasonTooShort},
		{"", false, validation.ReasonTooShort},
		{"NOPE-NOPE", false, validation.ReasonNotFound},
		{"LAPS-EDXX", false, validation.ReasonExpired},
		{"EXPI-REDX", false, validation.ReasonExpired},
		{"REVO-KEDX", false, validation.ReasonNotFound},
		{"ORPH-ANXX", false, validation.ReasonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			result, err := v.Validate(context.Background(), tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}

	result, err := v.Validate(context.Background(), "wxyz-5678")
	require.NoError(t, err)
	assert.Equal(t, "WXYZ-5678", result.Input)
	assert.Equal(t, models.RoleHR, result.Role)
	assert.Equal(t, "acme", result.CompanyID)
	assert.Equal(t, "Acme", result.CompanyName)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), *result.ExpiresAt)
}

func TestValidate_TooShortNeverTouchesTheStore(t *testing.T) {
	store := newStore(t)
	codes := &countingCodes{AccessCodeDatabase: store.AccessCodes()}
	v := newValidator(store, codes)

	_, err := v.Validate(context.Background(), "wx")
	require.NoError(t, err)
	assert.Zero(t, codes.lookups.Load())
}

func TestValidate_IsIdempotentAndReadOnly(t *testing.T) {
	store := newStore(t)
	v := newValidator(store, store.AccessCodes())

	first, err := v.Validate(context.Background(), "LAPS-EDXX")
	require.NoError(t, err)
	second, err := v.Validate(context.Background(), "LAPS-EDXX")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// reporting a lapsed code does not expire it
	code, err := store.AccessCodes().FindByID(context.Background(), "lapsed")
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusPending, code.Status)
}

func TestValidate_UsedCodeLooksAbsent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	service := redemption.NewService(store, store.AccessCodes(), store.Companies(), store.Employees())
	service.Now = func() time.Time { return now }

	_, err := service.Redeem(ctx, redemption.Request{Code: "WXYZ-5678", PersonID: "person-a"})
	require.NoError(t, err)

	result, err := newValidator(store, store.AccessCodes()).Validate(ctx, "wxyz-5678")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, validation.ReasonNotFound, result.Reason)
}

func TestValidate_ExpiryIsMonotonic(t *testing.T) {
	store := newStore(t)
	v := newValidator(store, store.AccessCodes())

	result, err := v.Validate(context.Background(), "WXYZ-5678")
	require.NoError(t, err)
	require.True(t, result.Valid)

	for _, at := range []time.Time{now.Add(time.Hour), now.Add(2 * time.Hour), now.Add(48 * time.Hour)} {
		at := at
		v.Now = func() time.Time { return at }
		result, err := v.Validate(context.Background(), "WXYZ-5678")
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, validation.ReasonExpired, result.Reason)
	}
}

func TestValidate_StoreUnavailable(t *testing.T) {
	store := newStore(t)
	v := newValidator(store, store.AccessCodes())
	store.FailNext(10)

	_, err := v.Validate(context.Background(), "WXYZ-5678")
	assert.True(t, models.IsKind(err, models.KindStoreUnavailable))
}
