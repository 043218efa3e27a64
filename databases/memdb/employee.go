package memdb

import (
	"context"
	"time"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
)

type employees struct {
	s *Store
}

func (e *employees) FindByID(ctx context.Context, id string) (*models.Employee, error) {
	unlock, err := e.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	employee, ok := e.s.employees[id]
	if !ok {
		return nil, databases.ErrNotFound
	}
	return &employee, nil
}

func (e *employees) ListByCompany(ctx context.Context, companyID string, limit, page int) ([]models.Employee, error) {
	unlock, err := e.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	all := sortedValues(e.s.employees,
		func(em models.Employee) bool { return em.CompanyID == companyID },
		func(x, y models.Employee) bool { return x.JoinedAt.After(y.JoinedAt) })
	return paginate(all, limit, page), nil
}

func (e *employees) Activate(ctx context.Context, employee models.Employee) (*models.Employee, error) {
	unlock, err := e.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current := employee
	current.SessionsUsed = 0
	current.SessionsAllocated = 0
	for _, existing := range e.s.employees {
		if existing.CompanyID == employee.CompanyID && existing.PersonID == employee.PersonID {
			current = existing
			break
		}
	}
	if _, ok := e.s.employees[current.ID]; !ok {
		if _, taken := e.s.employees[employee.ID]; taken {
			return nil, databases.ErrDuplicate
		}
	}

	record(ctx, e.s.employees, current.ID)
	current.IsActive = true
	current.Role = employee.Role
	current.AccessCodeID = employee.AccessCodeID
	if employee.Email != "" {
		current.Email = employee.Email
	}
	current.DeactivatedAt = nil
	current.SessionsAllocated += employee.SessionsAllocated
	e.s.employees[current.ID] = current
	return &current, nil
}

func (e *employees) update(ctx context.Context, companyID, id string, cond func(models.Employee) bool, fn func(*models.Employee)) (*models.Employee, error) {
	unlock, err := e.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	employee, ok := e.s.employees[id]
	if !ok || employee.CompanyID != companyID || !cond(employee) {
		return nil, databases.ErrConditionFailed
	}
	record(ctx, e.s.employees, id)
	fn(&employee)
	e.s.employees[id] = employee
	return &employee, nil
}

func (e *employees) Deactivate(ctx context.Context, companyID, employeeID string, at time.Time) (*models.Employee, error) {
	return e.update(ctx, companyID, employeeID,
		func(em models.Employee) bool { return em.IsActive },
		func(em *models.Employee) {
			em.IsActive = false
			em.DeactivatedAt = &at
		})
}

func (e *employees) IncrementUsed(ctx context.Context, companyID, employeeID string) error {
	_, err := e.update(ctx, companyID, employeeID,
		func(em models.Employee) bool {
			return em.IsActive && (!em.HasSubAllocation() || em.SessionsUsed < em.SessionsAllocated)
		},
		func(em *models.Employee) { em.SessionsUsed++ })
	return err
}

func (e *employees) DecrementUsed(ctx context.Context, companyID, employeeID string) error {
	_, err := e.update(ctx, companyID, employeeID,
		func(em models.Employee) bool { return em.SessionsUsed > 0 },
		func(em *models.Employee) { em.SessionsUsed-- })
	return err
}

func (e *employees) SetAllocation(ctx context.Context, companyID, employeeID string, allocated int, override bool) (*models.Employee, error) {
	return e.update(ctx, companyID, employeeID,
		func(em models.Employee) bool { return override || em.SessionsUsed <= allocated },
		func(em *models.Employee) {
			em.SessionsAllocated = allocated
			em.SessionsUsed = min(em.SessionsUsed, allocated)
		})
}

func (e *employees) SumUsed(ctx context.Context, companyID string) (int, error) {
	unlock, err := e.s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	total := 0
	for _, em := range e.s.employees {
		if em.CompanyID == companyID {
			total += em.SessionsUsed
		}
	}
	return total, nil
}
