package memdb

import (
	"context"
	"strings"
	"time"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
)

type consumptions struct {
	s *Store
}

func (c *consumptions) FindByID(ctx context.Context, id string) (*models.SessionConsumption, error) {
	unlock, err := c.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	consumption, ok := c.s.consumptions[id]
	if !ok {
		return nil, databases.ErrNotFound
	}
	return &consumption, nil
}

func (c *consumptions) Consume(ctx context.Context, consumption models.SessionConsumption) (bool, error) {
	unlock, err := c.s.begin(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	existing, ok := c.s.consumptions[consumption.ID]
	if ok {
		if existing.CompanyID != consumption.CompanyID || existing.EmployeeID != consumption.EmployeeID {
			return false, databases.ErrDuplicate
		}
		if existing.State == models.ConsumptionConsumed {
			return false, nil
		}
	}
	record(ctx, c.s.consumptions, consumption.ID)
	consumption.State = models.ConsumptionConsumed
	consumption.ReleasedAt = nil
	c.s.consumptions[consumption.ID] = consumption
	return true, nil
}

func (c *consumptions) Release(ctx context.Context, id, companyID, employeeID string, at time.Time) (bool, error) {
	unlock, err := c.s.begin(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	consumption, ok := c.s.consumptions[id]
	if !ok || consumption.CompanyID != companyID || consumption.EmployeeID != employeeID ||
		consumption.State != models.ConsumptionConsumed {
		return false, nil
	}
	record(ctx, c.s.consumptions, id)
	consumption.State = models.ConsumptionReleased
	consumption.ReleasedAt = &at
	c.s.consumptions[id] = consumption
	return true, nil
}

type topUps struct {
	s *Store
}

func (t *topUps) InsertOne(ctx context.Context, topUp models.AllocationTopUp) error {
	unlock, err := t.s.begin(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := t.s.topUps[topUp.ID]; ok {
		return databases.ErrDuplicate
	}
	record(ctx, t.s.topUps, topUp.ID)
	t.s.topUps[topUp.ID] = topUp
	return nil
}

func (t *topUps) FindByID(ctx context.Context, id string) (*models.AllocationTopUp, error) {
	unlock, err := t.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	topUp, ok := t.s.topUps[id]
	if !ok {
		return nil, databases.ErrNotFound
	}
	return &topUp, nil
}

type issuers struct {
	s *Store
}

func (i *issuers) InsertOne(ctx context.Context, issuer models.Issuer) error {
	unlock, err := i.s.begin(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	issuer.Email = strings.ToLower(strings.TrimSpace(issuer.Email))
	for _, existing := range i.s.issuers {
		if existing.ID == issuer.ID || existing.Email == issuer.Email {
			return databases.ErrDuplicate
		}
	}
	record(ctx, i.s.issuers, issuer.ID)
	i.s.issuers[issuer.ID] = issuer
	return nil
}

func (i *issuers) FindByEmail(ctx context.Context, email string) (*models.Issuer, error) {
	unlock, err := i.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, issuer := range i.s.issuers {
		if issuer.Email == email && issuer.Active {
			found := issuer
			return &found, nil
		}
	}
	return nil, databases.ErrNotFound
}

type locks struct {
	s *Store
}

func (l *locks) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	unlock, err := l.s.begin(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	now := time.Now().UTC()
	if lock, ok := l.s.locks[name]; ok && lock.Owner != owner && lock.ExpiresAt.After(now) {
		return false, nil
	}
	record(ctx, l.s.locks, name)
	l.s.locks[name] = models.SchedulerLock{ID: name, Owner: owner, ExpiresAt: now.Add(ttl), UpdatedAt: now}
	return true, nil
}

func (l *locks) ReleaseLock(ctx context.Context, name, owner string) error {
	unlock, err := l.s.begin(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if lock, ok := l.s.locks[name]; ok && lock.Owner == owner {
		record(ctx, l.s.locks, name)
		lock.ExpiresAt = time.Now().UTC()
		l.s.locks[name] = lock
	}
	return nil
}
