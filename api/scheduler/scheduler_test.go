package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/benefits-access-api/accesscodes"
	"github.com/linesmerrill/benefits-access-api/databases/memdb"
	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/seats"
)

func newTestScheduler(store *memdb.Store) *Scheduler {
	ledger := seats.NewLedger(store, store.Companies(), store.Employees(), store.SessionConsumptions(), store.TopUps())
	return NewScheduler(accesscodes.NewLifecycle(store.AccessCodes()), ledger, store.SchedulerLocks(), "@every 1m", "0 4 * * *")
}

func TestSweepExpiredCodes(t *testing.T) {
	store := memdb.New()
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.AccessCodes().InsertOne(ctx, models.AccessCode{
		ID: "lapsed", Code: "AAAA-BBBB", ActiveCode: "AAAA-BBBB", Role: models.RoleEmployee,
		CompanyID: "acme", Status: models.CodeStatusPending, ExpiresAt: past, CreatedAt: past.Add(-time.Hour),
	}))
	require.NoError(t, store.AccessCodes().InsertOne(ctx, models.AccessCode{
		ID: "live", Code: "CCCC-DDDD", ActiveCode: "CCCC-DDDD", Role: models.RoleEmployee,
		CompanyID: "acme", Status: models.CodeStatusPending, ExpiresAt: time.Now().Add(time.Hour), CreatedAt: past,
	}))

	newTestScheduler(store).sweepExpiredCodes()

	lapsed, err := store.AccessCodes().FindByID(ctx, "lapsed")
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusExpired, lapsed.Status)

	live, err := store.AccessCodes().FindByID(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, models.CodeStatusPending, live.Status)
}

func TestRunLocked_SkipsWhenAnotherInstanceHoldsTheLock(t *testing.T) {
	store := memdb.New()
	ctx := context.Background()
	s := newTestScheduler(store)

	held, err := store.SchedulerLocks().TryAcquireLock(ctx, SweepJob, "web.2", time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	called := false
	ran := s.runLocked(SweepJob, time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, ran)
	assert.False(t, called)
}

func TestRunLocked_ReleasesLockAfterFailure(t *testing.T) {
	store := memdb.New()
	ctx := context.Background()
	s := newTestScheduler(store)

	ran := s.runLocked(ReconcileJob, time.Minute, func(context.Context) error {
		return errors.New("boom")
	})
	require.True(t, ran)

	acquired, err := store.SchedulerLocks().TryAcquireLock(ctx, ReconcileJob, "web.2", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "lock must be free once the job returned")
}

func TestReconcileSeats(t *testing.T) {
	store := memdb.New()
	ctx := context.Background()
	require.NoError(t, store.Companies().InsertOne(ctx, models.Company{
		ID: "acme", Name: "Acme", IsActive: true, SessionsAllocated: 10, SessionsUsed: 2,
	}))

	s := newTestScheduler(store)
	called := false
	s.runLocked(ReconcileJob, time.Minute, func(ctx context.Context) error {
		called = true
		reports, err := s.Ledger.ReconcileAll(ctx)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.False(t, reports[0].Consistent)
		return nil
	})
	assert.True(t, called)

	// the job itself only reports and never mutates
	s.reconcileSeats()
	company, err := store.Companies().FindByID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, company.SessionsUsed)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := newTestScheduler(memdb.New())
	s.SweepSchedule = "every now and then"
	assert.Error(t, s.Start())
}
