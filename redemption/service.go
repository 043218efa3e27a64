// Package redemption turns a pending access code into an active employee membership.
package redemption

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linesmerrill/benefits-access-api/accesscodes"
	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/logging"
	"github.com/linesmerrill/benefits-access-api/models"
)

var tracer = otel.Tracer("github.com/linesmerrill/benefits-access-api/redemption")

// Request identifies the code being redeemed and the person redeeming it
type Request struct {
	Code     string
	PersonID string
	Email    string
}

// Result describes the membership a successful redemption produced
type Result struct {
	EmployeeID      string      `json:"employeeId"`
	CompanyID       string      `json:"companyId,omitempty"`
	Role            models.Role `json:"role"`
	SessionsGranted int         `json:"sessionsGranted"`
}

// Service redeems access codes. It keeps no state between calls; every check and write happens in
// one store transaction.
type Service struct {
	Tx        databases.Transactor
	Codes     databases.AccessCodeDatabase
	Companies databases.CompanyDatabase
	Employees databases.EmployeeDatabase
	Now       func() time.Time
}

// NewService returns a Service using the wall clock
func NewService(tx databases.Transactor, codes databases.AccessCodeDatabase, companies databases.CompanyDatabase,
	employees databases.EmployeeDatabase) *Service {
	return &Service{
		Tx:        tx,
		Codes:     codes,
		Companies: companies,
		Employees: employees,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Redeem consumes the code for req.PersonID. Concurrent redeemers of the same code see exactly one
// success; the rest get KindAlreadyConsumed. A lapsed code is moved to expired even though the
// call fails with KindExpired.
func (s *Service) Redeem(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.PersonID) == "" {
		return nil, models.NewKindError(models.KindInvalid, "a signed-in person is required")
	}
	text := accesscodes.Normalize(req.Code)
	if accesscodes.TooShort(text) {
		return nil, models.NewKindError(models.KindNotFound, "access code not found")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx, span := tracer.Start(ctx, "redemption.Redeem", trace.WithAttributes(
		attribute.String("person.id", req.PersonID),
	))
	defer span.End()

	var result *Result
	var outcome error
	_, err := databases.WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			result, outcome = nil, nil
			now := s.Now()

			code, err := s.Codes.FindByCode(ctx, text)
			if errors.Is(err, databases.ErrNotFound) {
				return models.NewKindError(models.KindNotFound, "access code not found")
			}
			if err != nil {
				return err
			}

			switch code.Status {
			case models.CodeStatusExpired:
				return models.NewKindError(models.KindExpired, "access code has expired")
			case models.CodeStatusUsed, models.CodeStatusRevoked:
				return models.NewKindError(models.KindAlreadyConsumed, "access code has already been used")
			}

			if code.Lapsed(now) {
				_, err := s.Codes.Transition(ctx, code.ID, models.CodeStatusPending, models.CodeStatusExpired,
					models.CodeTransition{At: now})
				if err != nil && !errors.Is(err, databases.ErrConditionFailed) {
					return err
				}
				// commit the expiry, then report it
				outcome = models.NewKindError(models.KindExpired, "access code has expired")
				return nil
			}

			// a code whose company is gone or inactive reads as absent, as it does when validated
			if code.CompanyID != "" {
				company, err := s.Companies.FindByID(ctx, code.CompanyID)
				if errors.Is(err, databases.ErrNotFound) || (err == nil && !company.IsActive) {
					return models.NewKindError(models.KindNotFound, "access code not found")
				}
				if err != nil {
					return err
				}
			}

			if !code.EmailMatches(email) {
				return models.NewKindError(models.KindEmailMismatch, "access code was issued to a different email")
			}

			_, err = s.Codes.Transition(ctx, code.ID, models.CodeStatusPending, models.CodeStatusUsed,
				models.CodeTransition{At: now, Actor: req.PersonID})
			if errors.Is(err, databases.ErrConditionFailed) {
				return models.NewKindError(models.KindAlreadyConsumed, "access code has already been used")
			}
			if err != nil {
				return err
			}

			if code.SessionsGranted > 0 {
				err = s.Companies.AssignSeats(ctx, code.CompanyID, code.SessionsGranted)
				if errors.Is(err, databases.ErrConditionFailed) {
					return models.NewKindError(models.KindQuotaExceeded, "the company has no sessions left to grant")
				}
				if err != nil {
					return err
				}
			}

			employee, err := s.Employees.Activate(ctx, models.Employee{
				ID:                uuid.NewString(),
				CompanyID:         code.CompanyID,
				PersonID:          req.PersonID,
				Email:             email,
				Role:              code.Role,
				SessionsAllocated: code.SessionsGranted,
				JoinedAt:          now,
				AccessCodeID:      code.ID,
			})
			if err != nil {
				return err
			}

			result = &Result{
				EmployeeID:      employee.ID,
				CompanyID:       employee.CompanyID,
				Role:            employee.Role,
				SessionsGranted: code.SessionsGranted,
			}
			return nil
		})
	})
	if err == nil {
		err = outcome
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(models.KindOf(err)))
		logging.Named("redemption").Infow("redemption refused",
			"personId", req.PersonID,
			"kind", models.KindOf(err),
			"error", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("employee.id", result.EmployeeID))
	logging.Named("redemption").Infow("access code redeemed",
		"personId", req.PersonID,
		"employeeId", result.EmployeeID,
		"companyId", result.CompanyID,
		"role", result.Role)
	return result, nil
}
