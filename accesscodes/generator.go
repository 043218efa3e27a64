// Package accesscodes issues access codes and moves them through their lifecycle.
package accesscodes

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/logging"
	"github.com/linesmerrill/benefits-access-api/models"
)

// Alphabet holds the symbols a code is drawn from. 0/O and 1/I/L are left out so codes survive
// being read aloud or copied by hand.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	// CodeSymbols is the number of random symbols in a generated code
	CodeSymbols = 8
	// MaxAttempts bounds how many collisions Generate tolerates before giving up
	MaxAttempts = 5
	// MaxExpiry is the longest a code may stay redeemable
	MaxExpiry = 365 * 24 * time.Hour
)

// Inviter delivers a freshly generated code to the email it is bound to
type Inviter interface {
	SendInvitation(ctx context.Context, code models.AccessCode, companyName string) error
}

// GenerateRequest describes the code an issuer wants to create
type GenerateRequest struct {
	CompanyID       string
	Role            models.Role
	ExpiresIn       time.Duration
	Email           string
	SessionsGranted int
	Metadata        map[string]interface{}
	CreatedBy       string
}

// Generator creates pending access codes
type Generator struct {
	Codes     databases.AccessCodeDatabase
	Companies databases.CompanyDatabase
	// Inviter is optional; without it email-bound codes are only returned to the issuer.
	Inviter Inviter
	Now     func() time.Time
	Random  io.Reader
}

// NewGenerator returns a Generator using the wall clock and crypto/rand
func NewGenerator(codes databases.AccessCodeDatabase, companies databases.CompanyDatabase, inviter Inviter) *Generator {
	return &Generator{
		Codes:     codes,
		Companies: companies,
		Inviter:   inviter,
		Now:       func() time.Time { return time.Now().UTC() },
		Random:    rand.Reader,
	}
}

// Generate stores exactly one new pending code for req. A collision with a live code is retried
// with fresh randomness up to MaxAttempts times before KindGenerationExhausted is returned.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*models.AccessCode, error) {
	company, err := g.check(ctx, req)
	if err != nil {
		return nil, err
	}

	log := logging.Named("accesscodes")
	now := g.Now()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		text, err := g.newCode()
		if err != nil {
			return nil, err
		}
		code := models.AccessCode{
			ID:              uuid.NewString(),
			Code:            text,
			ActiveCode:      text,
			Role:            req.Role,
			CompanyID:       req.CompanyID,
			Status:          models.CodeStatusPending,
			ExpiresAt:       now.Add(req.ExpiresIn),
			CreatedBy:       req.CreatedBy,
			CreatedAt:       now,
			Email:           email,
			SessionsGranted: req.SessionsGranted,
			Metadata:        req.Metadata,
		}

		_, err = databases.WithRetry(ctx, func() (struct{}, error) {
			return struct{}{}, g.Codes.InsertOne(ctx, code)
		})
		if errors.Is(err, databases.ErrDuplicate) {
			log.Debugw("generated code collided with a live code", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		log.Infow("access code generated",
			"codeId", code.ID,
			"companyId", code.CompanyID,
			"role", code.Role,
			"createdBy", code.CreatedBy)
		g.invite(ctx, code, company)
		return &code, nil
	}

	return nil, models.NewKindError(models.KindGenerationExhausted, "could not generate a unique code, try again")
}

func (g *Generator) check(ctx context.Context, req GenerateRequest) (*models.Company, error) {
	switch {
	case !req.Role.Valid():
		return nil, models.NewKindError(models.KindInvalid, "unknown role")
	case req.ExpiresIn <= 0:
		return nil, models.NewKindError(models.KindInvalid, "expiry must be in the future")
	case req.ExpiresIn > MaxExpiry:
		return nil, models.NewKindError(models.KindInvalid, "expiry cannot be more than a year away")
	case req.SessionsGranted < 0:
		return nil, models.NewKindError(models.KindInvalid, "sessions granted cannot be negative")
	case req.Role.RequiresCompany() && req.CompanyID == "":
		return nil, models.NewKindError(models.KindInvalid, "a company is required for this role")
	case req.CompanyID == "" && req.SessionsGranted > 0:
		return nil, models.NewKindError(models.KindInvalid, "sessions can only be granted from a company allocation")
	}
	if req.CompanyID == "" {
		return nil, nil
	}

	company, err := databases.WithRetry(ctx, func() (*models.Company, error) {
		return g.Companies.FindByID(ctx, req.CompanyID)
	})
	if errors.Is(err, databases.ErrNotFound) {
		return nil, models.NewKindError(models.KindInvalid, "company does not exist")
	}
	if err != nil {
		return nil, err
	}
	if !company.IsActive {
		return nil, models.NewKindError(models.KindInvalid, "company is not active")
	}
	return company, nil
}

// newCode draws CodeSymbols symbols from Alphabet and renders them as XXXX-XXXX
func (g *Generator) newCode() (string, error) {
	// bytes at or above this bound would skew the modulo towards the start of the alphabet
	const bound = 256 - 256%len(Alphabet)

	symbols := make([]byte, 0, CodeSymbols)
	buf := make([]byte, CodeSymbols)
	for len(symbols) < CodeSymbols {
		if _, err := io.ReadFull(g.Random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= bound || len(symbols) == CodeSymbols {
				continue
			}
			symbols = append(symbols, Alphabet[int(b)%len(Alphabet)])
		}
	}
	return string(symbols[:CodeSymbols/2]) + "-" + string(symbols[CodeSymbols/2:]), nil
}

func (g *Generator) invite(ctx context.Context, code models.AccessCode, company *models.Company) {
	if g.Inviter == nil || code.Email == "" {
		return
	}
	companyName := ""
	if company != nil {
		companyName = company.Name
	}
	if err := g.Inviter.SendInvitation(ctx, code, companyName); err != nil {
		logging.Named("accesscodes").Warnw("failed to send invitation email",
			"codeId", code.ID,
			"error", err)
	}
}
