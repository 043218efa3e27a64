// Package seats keeps the per-company session quota and the per-employee counters consistent.
package seats

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/logging"
	"github.com/linesmerrill/benefits-access-api/models"
)

var tracer = otel.Tracer("github.com/linesmerrill/benefits-access-api/seats")

// errAlreadyApplied aborts the top-up transaction when the payment event was seen before
var errAlreadyApplied = errors.New("top-up already applied")

// Ledger mutates seat counters. Each operation is either one conditional single-document update or
// one transaction of them, so a failed check never leaves a partial write behind.
type Ledger struct {
	Tx           databases.Transactor
	Companies    databases.CompanyDatabase
	Employees    databases.EmployeeDatabase
	Consumptions databases.SessionConsumptionDatabase
	TopUps       databases.TopUpDatabase
	Now          func() time.Time
}

// NewLedger returns a Ledger using the wall clock
func NewLedger(tx databases.Transactor, companies databases.CompanyDatabase, employees databases.EmployeeDatabase,
	consumptions databases.SessionConsumptionDatabase, topUps databases.TopUpDatabase) *Ledger {
	return &Ledger{
		Tx:           tx,
		Companies:    companies,
		Employees:    employees,
		Consumptions: consumptions,
		TopUps:       topUps,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// ConsumeSession counts one booked session against the company and the employee. Consuming the
// same session twice is a no-op.
func (l *Ledger) ConsumeSession(ctx context.Context, companyID, employeeID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "seats.ConsumeSession", trace.WithAttributes(
		attribute.String("company.id", companyID),
		attribute.String("employee.id", employeeID),
	))
	defer span.End()

	_, err := databases.WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, l.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			employee, err := l.Employees.FindByID(ctx, employeeID)
			if errors.Is(err, databases.ErrNotFound) || (err == nil && (employee.CompanyID != companyID || !employee.IsActive)) {
				return models.NewKindError(models.KindNotFound, "employee not found")
			}
			if err != nil {
				return err
			}

			counted, err := l.Consumptions.Consume(ctx, models.SessionConsumption{
				ID:         sessionID,
				CompanyID:  companyID,
				EmployeeID: employeeID,
				ConsumedAt: l.Now(),
			})
			if err != nil {
				return err
			}
			if !counted {
				return nil
			}

			err = l.Companies.IncrementUsed(ctx, companyID)
			if errors.Is(err, databases.ErrConditionFailed) {
				return l.companyMiss(ctx, companyID, "the company has used all of its sessions")
			}
			if err != nil {
				return err
			}

			err = l.Employees.IncrementUsed(ctx, companyID, employeeID)
			if errors.Is(err, databases.ErrConditionFailed) {
				return models.NewKindError(models.KindQuotaExceeded, "the employee has used all of their sessions")
			}
			return err
		})
	})
	if errors.Is(err, databases.ErrDuplicate) {
		err = l.duplicateConsumption(ctx, companyID, employeeID, sessionID)
	}
	return finish(span, err)
}

// duplicateConsumption resolves an insert race on the consumption record. Losing to a booking of
// the same session by the same employee is success; a session id owned by someone else is not.
func (l *Ledger) duplicateConsumption(ctx context.Context, companyID, employeeID, sessionID string) error {
	existing, err := databases.WithRetry(ctx, func() (*models.SessionConsumption, error) {
		return l.Consumptions.FindByID(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	if existing.CompanyID == companyID && existing.EmployeeID == employeeID &&
		existing.State == models.ConsumptionConsumed {
		return nil
	}
	return models.NewKindError(models.KindInvalid, "session is recorded for another employee")
}

// ReleaseSession returns a cancelled session to the quota. Releasing a session that was never
// consumed, or was already released, changes nothing.
func (l *Ledger) ReleaseSession(ctx context.Context, companyID, employeeID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "seats.ReleaseSession", trace.WithAttributes(
		attribute.String("company.id", companyID),
		attribute.String("employee.id", employeeID),
	))
	defer span.End()

	_, err := databases.WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, l.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			released, err := l.Consumptions.Release(ctx, sessionID, companyID, employeeID, l.Now())
			if err != nil || !released {
				return err
			}
			if err := l.Companies.DecrementUsed(ctx, companyID); err != nil && !errors.Is(err, databases.ErrConditionFailed) {
				return err
			}
			if err := l.Employees.DecrementUsed(ctx, companyID, employeeID); err != nil && !errors.Is(err, databases.ErrConditionFailed) {
				return err
			}
			return nil
		})
	})
	return finish(span, err)
}

// SetAllocation resizes the company's allocation. Shrinking below what is already used or assigned
// fails with KindBelowUsage unless override is set, in which case those counters are clamped.
func (l *Ledger) SetAllocation(ctx context.Context, companyID string, allocated int, override bool) (*models.Company, error) {
	if allocated < 0 {
		return nil, models.NewKindError(models.KindInvalid, "allocation cannot be negative")
	}
	company, err := databases.WithRetry(ctx, func() (*models.Company, error) {
		return l.Companies.SetAllocation(ctx, companyID, allocated, override)
	})
	if errors.Is(err, databases.ErrConditionFailed) {
		return nil, l.companyMissing(ctx, companyID,
			models.NewKindError(models.KindBelowUsage, "allocation is below the sessions already used or assigned"))
	}
	if err != nil {
		return nil, err
	}
	logging.Named("seats").Infow("allocation changed",
		"companyId", companyID,
		"sessionsAllocated", company.SessionsAllocated,
		"override", override)
	return company, nil
}

// SetEmployeeAllocation resizes an employee's sub-allocation. Growing it reserves seats from the
// company allocation; shrinking it hands them back.
func (l *Ledger) SetEmployeeAllocation(ctx context.Context, companyID, employeeID string, allocated int, override bool) (*models.Employee, error) {
	if allocated < 0 {
		return nil, models.NewKindError(models.KindInvalid, "allocation cannot be negative")
	}

	var updated *models.Employee
	_, err := databases.WithRetry(ctx, func() (struct{}, error) {
		updated = nil
		return struct{}{}, l.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			employee, err := l.Employees.FindByID(ctx, employeeID)
			if errors.Is(err, databases.ErrNotFound) || (err == nil && employee.CompanyID != companyID) {
				return models.NewKindError(models.KindNotFound, "employee not found")
			}
			if err != nil {
				return err
			}

			delta := allocated - employee.SessionsAllocated
			switch {
			case delta > 0:
				err = l.Companies.AssignSeats(ctx, companyID, delta)
				if errors.Is(err, databases.ErrConditionFailed) {
					return l.companyMiss(ctx, companyID, "not enough unassigned sessions left")
				}
			case delta < 0:
				err = l.Companies.UnassignSeats(ctx, companyID, -delta)
				if errors.Is(err, databases.ErrConditionFailed) {
					err = nil
				}
			}
			if err != nil {
				return err
			}

			updated, err = l.Employees.SetAllocation(ctx, companyID, employeeID, allocated, override)
			if errors.Is(err, databases.ErrConditionFailed) {
				return models.NewKindError(models.KindBelowUsage, "allocation is below the sessions the employee already used")
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddAllocation grows the company's allocation by sessions
func (l *Ledger) AddAllocation(ctx context.Context, companyID string, sessions int) (*models.Company, error) {
	if sessions <= 0 {
		return nil, models.NewKindError(models.KindInvalid, "sessions must be positive")
	}
	company, err := databases.WithRetry(ctx, func() (*models.Company, error) {
		return l.Companies.AddAllocation(ctx, companyID, sessions)
	})
	if errors.Is(err, databases.ErrConditionFailed) {
		return nil, models.NewKindError(models.KindNotFound, "company not found")
	}
	return company, err
}

// ApplyTopUp adds a paid top-up to the company exactly once per payment event. It reports false
// when the event had already been applied.
func (l *Ledger) ApplyTopUp(ctx context.Context, topUp models.AllocationTopUp) (bool, error) {
	if topUp.Sessions <= 0 {
		return false, models.NewKindError(models.KindInvalid, "sessions must be positive")
	}
	if topUp.CreatedAt.IsZero() {
		topUp.CreatedAt = l.Now()
	}

	_, err := databases.WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, l.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			err := l.TopUps.InsertOne(ctx, topUp)
			if errors.Is(err, databases.ErrDuplicate) {
				return errAlreadyApplied
			}
			if err != nil {
				return err
			}
			_, err = l.Companies.AddAllocation(ctx, topUp.CompanyID, topUp.Sessions)
			if errors.Is(err, databases.ErrConditionFailed) {
				return models.NewKindError(models.KindNotFound, "company not found")
			}
			return err
		})
	})
	if errors.Is(err, errAlreadyApplied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logging.Named("seats").Infow("allocation topped up",
		"companyId", topUp.CompanyID,
		"sessions", topUp.Sessions,
		"source", topUp.Source,
		"eventId", topUp.ID)
	return true, nil
}

// DeactivateEmployee offboards an employee. Their counters are kept so a later redemption
// reactivates the same membership.
func (l *Ledger) DeactivateEmployee(ctx context.Context, companyID, employeeID string) (*models.Employee, error) {
	employee, err := databases.WithRetry(ctx, func() (*models.Employee, error) {
		return l.Employees.Deactivate(ctx, companyID, employeeID, l.Now())
	})
	if errors.Is(err, databases.ErrConditionFailed) {
		return nil, models.NewKindError(models.KindNotFound, "active employee not found")
	}
	return employee, err
}

// companyMiss explains a failed conditional company update made inside a transaction
func (l *Ledger) companyMiss(ctx context.Context, companyID, quotaMessage string) error {
	company, err := l.Companies.FindByID(ctx, companyID)
	if errors.Is(err, databases.ErrNotFound) || (err == nil && !company.IsActive) {
		return models.NewKindError(models.KindNotFound, "company not found")
	}
	if err != nil {
		return err
	}
	return models.NewKindError(models.KindQuotaExceeded, quotaMessage)
}

// companyMissing returns KindNotFound for a missing company and otherwise for an existing one
func (l *Ledger) companyMissing(ctx context.Context, companyID string, otherwise error) error {
	_, err := databases.WithRetry(ctx, func() (*models.Company, error) {
		return l.Companies.FindByID(ctx, companyID)
	})
	if errors.Is(err, databases.ErrNotFound) {
		return models.NewKindError(models.KindNotFound, "company not found")
	}
	if err != nil {
		return err
	}
	return otherwise
}

func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(models.KindOf(err)))
	}
	return err
}
