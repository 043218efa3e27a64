package memdb

import (
	"context"
	"time"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
)

type accessCodes struct {
	s *Store
}

func (a *accessCodes) InsertOne(ctx context.Context, code models.AccessCode) error {
	unlock, err := a.s.begin(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := a.s.codes[code.ID]; ok {
		return databases.ErrDuplicate
	}
	if code.ActiveCode != "" {
		for _, existing := range a.s.codes {
			if existing.ActiveCode == code.ActiveCode {
				return databases.ErrDuplicate
			}
		}
	}
	record(ctx, a.s.codes, code.ID)
	a.s.codes[code.ID] = code
	return nil
}

func (a *accessCodes) FindByID(ctx context.Context, id string) (*models.AccessCode, error) {
	unlock, err := a.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	code, ok := a.s.codes[id]
	if !ok {
		return nil, databases.ErrNotFound
	}
	return &code, nil
}

func (a *accessCodes) FindByCode(ctx context.Context, text string) (*models.AccessCode, error) {
	unlock, err := a.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var newest *models.AccessCode
	for _, code := range a.s.codes {
		if code.ActiveCode == text {
			c := code
			return &c, nil
		}
		if code.Code == text && (newest == nil || code.CreatedAt.After(newest.CreatedAt)) {
			c := code
			newest = &c
		}
	}
	if newest == nil {
		return nil, databases.ErrNotFound
	}
	return newest, nil
}

func (a *accessCodes) ListByCompany(ctx context.Context, companyID string, status models.CodeStatus, limit, page int) ([]models.AccessCode, error) {
	unlock, err := a.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	all := sortedValues(a.s.codes,
		func(c models.AccessCode) bool {
			return c.CompanyID == companyID && (status == "" || c.Status == status)
		},
		func(x, y models.AccessCode) bool { return x.CreatedAt.After(y.CreatedAt) })
	return paginate(all, limit, page), nil
}

func (a *accessCodes) Transition(ctx context.Context, id string, from, to models.CodeStatus, t models.CodeTransition) (*models.AccessCode, error) {
	unlock, err := a.s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	code, ok := a.s.codes[id]
	if !ok || code.Status != from {
		return nil, databases.ErrConditionFailed
	}
	record(ctx, a.s.codes, id)

	at := t.At
	code.Status = to
	switch to {
	case models.CodeStatusUsed:
		code.AcceptedAt = &at
		code.AcceptedBy = t.Actor
	case models.CodeStatusExpired:
		code.ExpiredAt = &at
		code.ActiveCode = ""
	case models.CodeStatusRevoked:
		code.RevokedAt = &at
		code.RevokedBy = t.Actor
		code.ActiveCode = ""
	}
	a.s.codes[id] = code
	return &code, nil
}

func (a *accessCodes) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	unlock, err := a.s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, code := range a.s.codes {
		if code.Status != models.CodeStatusPending || code.ExpiresAt.After(now) {
			continue
		}
		record(ctx, a.s.codes, id)
		at := now
		code.Status = models.CodeStatusExpired
		code.ExpiredAt = &at
		code.ActiveCode = ""
		a.s.codes[id] = code
		n++
	}
	return n, nil
}
