package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/linesmerrill/benefits-access-api/accesscodes"
	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/logging"
	"github.com/linesmerrill/benefits-access-api/seats"
)

// Job lock names in the schedulerLocks collection
const (
	SweepJob     = "access_code_sweep"
	ReconcileJob = "seat_reconciliation"
)

// Scheduler runs the periodic access code and seat jobs. Every job takes a distributed lock
// first so only one API instance runs it at a time.
type Scheduler struct {
	cron      *cron.Cron
	Lifecycle *accesscodes.Lifecycle
	Ledger    *seats.Ledger
	LockDB    databases.SchedulerLockDatabase

	SweepSchedule     string
	ReconcileSchedule string

	instanceID string
	log        *zap.SugaredLogger
}

// NewScheduler creates a new scheduler instance
func NewScheduler(lifecycle *accesscodes.Lifecycle, ledger *seats.Ledger, lockDB databases.SchedulerLockDatabase,
	sweepSchedule, reconcileSchedule string) *Scheduler {
	// Heroku sets DYNO to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:              cron.New(cron.WithLocation(time.UTC)),
		Lifecycle:         lifecycle,
		Ledger:            ledger,
		LockDB:            lockDB,
		SweepSchedule:     sweepSchedule,
		ReconcileSchedule: reconcileSchedule,
		instanceID:        instanceID,
		log:               logging.Named("scheduler"),
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.SweepSchedule, s.sweepExpiredCodes); err != nil {
		return fmt.Errorf("register sweep job %q: %w", s.SweepSchedule, err)
	}
	if _, err := s.cron.AddFunc(s.ReconcileSchedule, s.reconcileSeats); err != nil {
		return fmt.Errorf("register reconciliation job %q: %w", s.ReconcileSchedule, err)
	}

	s.cron.Start()
	s.log.Infow("scheduler started",
		"instance", s.instanceID,
		"sweep", s.SweepSchedule,
		"reconcile", s.ReconcileSchedule)
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) sweepExpiredCodes() {
	s.runLocked(SweepJob, time.Minute, func(ctx context.Context) error {
		n, err := s.Lifecycle.Sweep(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log.Infow("expired lapsed access codes", "count", n)
		}
		return nil
	})
}

func (s *Scheduler) reconcileSeats() {
	s.runLocked(ReconcileJob, 10*time.Minute, func(ctx context.Context) error {
		reports, err := s.Ledger.ReconcileAll(ctx)
		if err != nil {
			return err
		}
		drifted := 0
		for _, r := range reports {
			if !r.Consistent {
				drifted++
			}
		}
		s.log.Infow("seat reconciliation complete", "companies", len(reports), "drifted", drifted)
		return nil
	})
}

// runLocked runs fn under the named lock for at most ttl. It reports whether fn ran.
func (s *Scheduler) runLocked(name string, ttl time.Duration, fn func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	defer cancel()

	acquired, err := s.LockDB.TryAcquireLock(ctx, name, s.instanceID, ttl)
	if err != nil {
		s.log.Errorw("failed to acquire job lock", "job", name, "error", err)
		return false
	}
	if !acquired {
		s.log.Debugw("job already running on another instance, skipping", "job", name)
		return false
	}
	defer func() {
		// released on a fresh context so a timed out job still frees its lock
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := s.LockDB.ReleaseLock(releaseCtx, name, s.instanceID); err != nil {
			s.log.Warnw("failed to release job lock", "job", name, "error", err)
		}
	}()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.log.Errorw("job failed", "job", name, "instance", s.instanceID, "error", err)
		return true
	}
	s.log.Debugw("job finished", "job", name, "duration", time.Since(start))
	return true
}
