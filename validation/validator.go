// Package validation answers "is this code redeemable right now" without consuming anything.
package validation

import (
	"context"
	"errors"
	"time"

	"github.com/linesmerrill/benefits-access-api/accesscodes"
	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
)

// Reasons a code is reported as not valid
const (
	ReasonTooShort = "too_short"
	ReasonNotFound = "not_found"
	ReasonExpired  = "expired"
)

// Result is what the client renders while the person is typing a code
type Result struct {
	Input       string      `json:"input"`
	Valid       bool        `json:"valid"`
	Role        models.Role `json:"role,omitempty"`
	CompanyID   string      `json:"companyId,omitempty"`
	CompanyName string      `json:"companyName,omitempty"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}

// Validator looks codes up read-only
type Validator struct {
	Codes     databases.AccessCodeDatabase
	Companies databases.CompanyDatabase
	Now       func() time.Time
}

// NewValidator returns a Validator using the wall clock
func NewValidator(codes databases.AccessCodeDatabase, companies databases.CompanyDatabase) *Validator {
	return &Validator{
		Codes:     codes,
		Companies: companies,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Validate reports whether raw names a pending, unexpired code. Used and revoked codes are
// reported exactly like unknown ones. The only error is KindStoreUnavailable.
func (v *Validator) Validate(ctx context.Context, raw string) (Result, error) {
	text := accesscodes.Normalize(raw)
	if accesscodes.TooShort(text) {
		return Result{Input: text, Reason: ReasonTooShort}, nil
	}
	notFound := Result{Input: text, Reason: ReasonNotFound}

	code, err := databases.WithRetry(ctx, func() (*models.AccessCode, error) {
		return v.Codes.FindByCode(ctx, text)
	})
	if errors.Is(err, databases.ErrNotFound) {
		return notFound, nil
	}
	if err != nil {
		return Result{}, storeError(err)
	}

	switch {
	case code.Status == models.CodeStatusExpired:
		return Result{Input: text, Reason: ReasonExpired}, nil
	case code.Status != models.CodeStatusPending:
		return notFound, nil
	case code.Lapsed(v.Now()):
		return Result{Input: text, Reason: ReasonExpired}, nil
	}

	expiresAt := code.ExpiresAt
	result := Result{
		Input:     text,
		Valid:     true,
		Role:      code.Role,
		CompanyID: code.CompanyID,
		ExpiresAt: &expiresAt,
	}
	if code.CompanyID == "" {
		return result, nil
	}

	company, err := databases.WithRetry(ctx, func() (*models.Company, error) {
		return v.Companies.FindByID(ctx, code.CompanyID)
	})
	if errors.Is(err, databases.ErrNotFound) {
		return notFound, nil
	}
	if err != nil {
		return Result{}, storeError(err)
	}
	if !company.IsActive {
		return notFound, nil
	}
	result.CompanyName = company.Name
	return result, nil
}

// storeError keeps cancellation visible to the caller and files everything else as unavailability
func storeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || models.IsKind(err, models.KindStoreUnavailable) {
		return err
	}
	return models.WrapKindError(models.KindStoreUnavailable, "could not check the code, try again", err)
}
