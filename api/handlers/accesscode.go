package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/benefits-access-api/accesscodes"
	"github.com/linesmerrill/benefits-access-api/api"
	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/redemption"
	"github.com/linesmerrill/benefits-access-api/validation"
)

// AccessCode exported for testing purposes
type AccessCode struct {
	DB        databases.AccessCodeDatabase
	Generator *accesscodes.Generator
	Lifecycle *accesscodes.Lifecycle
	Redeemer  *redemption.Service
	Coalescer *validation.Coalescer
}

type generateRequest struct {
	CompanyID        string                 `json:"companyId"`
	Role             models.Role            `json:"role"`
	ExpiresInSeconds int64                  `json:"expiresInSeconds"`
	Email            string                 `json:"email"`
	SessionsGranted  int                    `json:"sessionsGranted"`
	Metadata         map[string]interface{} `json:"metadata"`
}

type redeemRequest struct {
	Code string `json:"code"`
}

// GenerateAccessCodeHandler issues a new pending code
func (a AccessCode) GenerateAccessCodeHandler(w http.ResponseWriter, r *http.Request) {
	const op = "generate_code"
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		invalid(w, r, op, "invalid request body")
		return
	}

	// bounded before the conversion to a Duration can overflow
	if req.ExpiresInSeconds > int64(accesscodes.MaxExpiry/time.Second) {
		invalid(w, r, op, "expiry cannot be more than a year away")
		return
	}

	issuer, _ := api.IssuerFromContext(r.Context())
	// company-less codes are only handed out by admins
	if (req.CompanyID == "" && !issuer.IsAdmin()) || (req.CompanyID != "" && !issuer.CanManage(req.CompanyID)) {
		forbidden(w, r, op)
		return
	}

	code, err := a.Generator.Generate(r.Context(), accesscodes.GenerateRequest{
		CompanyID:       req.CompanyID,
		Role:            req.Role,
		ExpiresIn:       time.Duration(req.ExpiresInSeconds) * time.Second,
		Email:           req.Email,
		SessionsGranted: req.SessionsGranted,
		Metadata:        req.Metadata,
		CreatedBy:       issuer.ID,
	})
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusCreated, "accessCode", code)
}

// ListAccessCodesHandler pages through a company's codes, newest first
func (a AccessCode) ListAccessCodesHandler(w http.ResponseWriter, r *http.Request) {
	const op = "list_codes"
	companyID := mux.Vars(r)["companyId"]
	issuer, _ := api.IssuerFromContext(r.Context())
	if !issuer.CanManage(companyID) {
		forbidden(w, r, op)
		return
	}

	q := r.URL.Query()
	status := models.CodeStatus(q.Get("status"))
	switch status {
	case "", models.CodeStatusPending, models.CodeStatusUsed, models.CodeStatusExpired, models.CodeStatusRevoked:
	default:
		invalid(w, r, op, "unknown status")
		return
	}
	limit, page := pagination(r)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	codes, err := databases.WithRetry(ctx, func() ([]models.AccessCode, error) {
		return a.DB.ListByCompany(ctx, companyID, status, limit, page)
	})
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	if codes == nil {
		codes = []models.AccessCode{}
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "accessCodes", codes)
}

// RevokeAccessCodeHandler withdraws a pending code
func (a AccessCode) RevokeAccessCodeHandler(w http.ResponseWriter, r *http.Request) {
	const op = "revoke_code"
	codeID := mux.Vars(r)["codeId"]

	ctx, cancel := api.Detached(r.Context())
	defer cancel()
	code, err := databases.WithRetry(ctx, func() (*models.AccessCode, error) {
		return a.DB.FindByID(ctx, codeID)
	})
	if errors.Is(err, databases.ErrNotFound) {
		err = models.NewKindError(models.KindNotFound, "access code not found")
	}
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}

	issuer, _ := api.IssuerFromContext(r.Context())
	if (code.CompanyID == "" && !issuer.IsAdmin()) || (code.CompanyID != "" && !issuer.CanManage(code.CompanyID)) {
		forbidden(w, r, op)
		return
	}

	revoked, err := a.Lifecycle.Revoke(ctx, codeID, issuer.ID)
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "accessCode", revoked)
}

// ValidateAccessCodeHandler answers whether ?code= is currently redeemable. Unknown and
// expired codes are a normal 200 answer with a reason.
func (a AccessCode) ValidateAccessCodeHandler(w http.ResponseWriter, r *http.Request) {
	const op = "validate_code"
	result, err := a.Coalescer.Validate(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		if r.Context().Err() != nil {
			// client went away
			return
		}
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "validation", result)
}

// RedeemAccessCodeHandler turns a code into membership for the signed-in person
func (a AccessCode) RedeemAccessCodeHandler(w http.ResponseWriter, r *http.Request) {
	const op = "redeem_code"
	person, ok := api.PersonFromContext(r.Context())
	if !ok {
		invalid(w, r, op, "a signed-in person is required")
		return
	}
	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		invalid(w, r, op, "invalid request body")
		return
	}

	// once started the redemption runs to completion even if the client disconnects
	ctx, cancel := api.Detached(r.Context())
	defer cancel()
	result, err := a.Redeemer.Redeem(ctx, redemption.Request{
		Code:     req.Code,
		PersonID: person.ID,
		Email:    person.Email,
	})
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "membership", result)
}

func pagination(r *http.Request) (limit, page int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	page, _ = strconv.Atoi(q.Get("page"))
	return limit, page
}
