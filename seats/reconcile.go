package seats

import (
	"context"
	"errors"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/logging"
	"github.com/linesmerrill/benefits-access-api/models"
)

// Report compares a company's counters with the sum of its employees' counters
type Report struct {
	CompanyID            string `json:"companyId"`
	SessionsAllocated    int    `json:"sessionsAllocated"`
	SessionsUsed         int    `json:"sessionsUsed"`
	SessionsAssigned     int    `json:"sessionsAssigned"`
	EmployeeSessionsUsed int    `json:"employeeSessionsUsed"`
	Drift                int    `json:"drift"`
	Consistent           bool   `json:"consistent"`
}

// Reconcile reports drift between the company's used counter and its employees'. The company
// counter is authoritative; nothing is modified.
func (l *Ledger) Reconcile(ctx context.Context, companyID string) (*Report, error) {
	company, err := databases.WithRetry(ctx, func() (*models.Company, error) {
		return l.Companies.FindByID(ctx, companyID)
	})
	if errors.Is(err, databases.ErrNotFound) {
		return nil, models.NewKindError(models.KindNotFound, "company not found")
	}
	if err != nil {
		return nil, err
	}

	used, err := databases.WithRetry(ctx, func() (int, error) {
		return l.Employees.SumUsed(ctx, companyID)
	})
	if err != nil {
		return nil, err
	}

	drift := company.SessionsUsed - used
	return &Report{
		CompanyID:            company.ID,
		SessionsAllocated:    company.SessionsAllocated,
		SessionsUsed:         company.SessionsUsed,
		SessionsAssigned:     company.SessionsAssigned,
		EmployeeSessionsUsed: used,
		Drift:                drift,
		Consistent:           drift == 0 && company.SessionsUsed <= company.SessionsAllocated,
	}, nil
}

// ReconcileAll reconciles every active company and logs the ones that drifted
func (l *Ledger) ReconcileAll(ctx context.Context) ([]Report, error) {
	companies, err := databases.WithRetry(ctx, func() ([]models.Company, error) {
		return l.Companies.ListActive(ctx)
	})
	if err != nil {
		return nil, err
	}

	log := logging.Named("seats")
	reports := make([]Report, 0, len(companies))
	for _, company := range companies {
		report, err := l.Reconcile(ctx, company.ID)
		if err != nil {
			log.Errorw("failed to reconcile company", "companyId", company.ID, "error", err)
			continue
		}
		if !report.Consistent {
			log.Warnw("seat counters drifted",
				"companyId", report.CompanyID,
				"sessionsUsed", report.SessionsUsed,
				"employeeSessionsUsed", report.EmployeeSessionsUsed,
				"drift", report.Drift)
		}
		reports = append(reports, *report)
	}
	return reports, nil
}
