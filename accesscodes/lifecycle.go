package accesscodes

import (
	"context"
	"errors"
	"time"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/logging"
	"github.com/linesmerrill/benefits-access-api/models"
)

var transitionMap = map[models.CodeStatus][]models.CodeStatus{
	models.CodeStatusUsed:    {models.CodeStatusPending},
	models.CodeStatusExpired: {models.CodeStatusPending},
	models.CodeStatusRevoked: {models.CodeStatusPending},
}

// ValidTransition reports whether a code may move from one status to another
func ValidTransition(from, to models.CodeStatus) bool {
	allowed, ok := transitionMap[to]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

// Lifecycle applies the transitions that happen outside of redemption
type Lifecycle struct {
	Codes databases.AccessCodeDatabase
	Now   func() time.Time
}

// NewLifecycle returns a Lifecycle using the wall clock
func NewLifecycle(codes databases.AccessCodeDatabase) *Lifecycle {
	return &Lifecycle{
		Codes: codes,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Revoke withdraws a pending code so it can no longer be redeemed
func (l *Lifecycle) Revoke(ctx context.Context, codeID, actor string) (*models.AccessCode, error) {
	code, err := databases.WithRetry(ctx, func() (*models.AccessCode, error) {
		return l.Codes.FindByID(ctx, codeID)
	})
	if errors.Is(err, databases.ErrNotFound) {
		return nil, models.NewKindError(models.KindNotFound, "access code not found")
	}
	if err != nil {
		return nil, err
	}
	if !ValidTransition(code.Status, models.CodeStatusRevoked) {
		return nil, models.NewKindError(models.KindAlreadyConsumed, "access code is no longer pending")
	}

	revoked, err := databases.WithRetry(ctx, func() (*models.AccessCode, error) {
		return l.Codes.Transition(ctx, codeID, models.CodeStatusPending, models.CodeStatusRevoked,
			models.CodeTransition{At: l.Now(), Actor: actor})
	})
	if errors.Is(err, databases.ErrConditionFailed) {
		// redeemed or swept between the read and the swap
		return nil, models.NewKindError(models.KindAlreadyConsumed, "access code is no longer pending")
	}
	if err != nil {
		return nil, err
	}

	logging.Named("accesscodes").Infow("access code revoked", "codeId", codeID, "revokedBy", actor)
	return revoked, nil
}

// Sweep expires every pending code whose expiry has passed and returns how many it moved
func (l *Lifecycle) Sweep(ctx context.Context) (int64, error) {
	return databases.WithRetry(ctx, func() (int64, error) {
		return l.Codes.ExpirePending(ctx, l.Now())
	})
}
