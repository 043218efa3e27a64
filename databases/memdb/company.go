package memdb

import (
	"context"
	"time"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
)

type companies struct {
	s *Store
}

func (c *companies) InsertOne(ctx context.Context, company models.Company) error {
	unlock, err := c.s.begin(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := c.s.companies[company.ID]; ok {
		return databases.ErrDuplicate
	}
	record(ctx, c.s.companies, company.ID)
	c.s.companies[company.ID] = company
	return nil
}

func (c *companies) FindByID(ctx context.Context, id string) (*models.Company, error) {
	unlock, err := c.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	company, ok := c.s.companies[id]
	if !ok {
		return nil, databases.ErrNotFound
	}
	return &company, nil
}

func (c *companies) ListActive(ctx context.Context) ([]models.Company, error) {
	unlock, err := c.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return sortedValues(c.s.companies,
		func(co models.Company) bool { return co.IsActive },
		func(x, y models.Company) bool { return x.ID < y.ID }), nil
}

// update applies fn to the company when cond holds, mirroring a filtered single-document update
func (c *companies) update(ctx context.Context, id string, cond func(models.Company) bool, fn func(*models.Company)) (*models.Company, error) {
	unlock, err := c.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	company, ok := c.s.companies[id]
	if !ok || !cond(company) {
		return nil, databases.ErrConditionFailed
	}
	record(ctx, c.s.companies, id)
	fn(&company)
	company.UpdatedAt = time.Now().UTC()
	c.s.companies[id] = company
	return &company, nil
}

func (c *companies) IncrementUsed(ctx context.Context, id string) error {
	_, err := c.update(ctx, id,
		func(co models.Company) bool { return co.IsActive && co.SessionsUsed < co.SessionsAllocated },
		func(co *models.Company) { co.SessionsUsed++ })
	return err
}

func (c *companies) DecrementUsed(ctx context.Context, id string) error {
	_, err := c.update(ctx, id,
		func(co models.Company) bool { return co.SessionsUsed > 0 },
		func(co *models.Company) { co.SessionsUsed-- })
	return err
}

func (c *companies) AssignSeats(ctx context.Context, id string, seats int) error {
	_, err := c.update(ctx, id,
		func(co models.Company) bool { return co.IsActive && co.SessionsAssigned+seats <= co.SessionsAllocated },
		func(co *models.Company) { co.SessionsAssigned += seats })
	return err
}

func (c *companies) UnassignSeats(ctx context.Context, id string, seats int) error {
	_, err := c.update(ctx, id,
		func(co models.Company) bool { return co.SessionsAssigned >= seats },
		func(co *models.Company) { co.SessionsAssigned -= seats })
	return err
}

func (c *companies) SetAllocation(ctx context.Context, id string, allocated int, override bool) (*models.Company, error) {
	return c.update(ctx, id,
		func(co models.Company) bool {
			return override || (co.SessionsUsed <= allocated && co.SessionsAssigned <= allocated)
		},
		func(co *models.Company) {
			co.SessionsAllocated = allocated
			co.SessionsUsed = min(co.SessionsUsed, allocated)
			co.SessionsAssigned = min(co.SessionsAssigned, allocated)
		})
}

func (c *companies) AddAllocation(ctx context.Context, id string, sessions int) (*models.Company, error) {
	return c.update(ctx, id,
		func(models.Company) bool { return true },
		func(co *models.Company) { co.SessionsAllocated += sessions })
}
