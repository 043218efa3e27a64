package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/linesmerrill/benefits-access-api/api"
	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/seats"
)

// Company exported for testing purposes
type Company struct {
	DB     databases.CompanyDatabase
	Ledger *seats.Ledger
}

type createCompanyRequest struct {
	Name              string `json:"name"`
	PlanType          string `json:"planType"`
	SessionsAllocated int    `json:"sessionsAllocated"`
}

type allocationRequest struct {
	SessionsAllocated *int `json:"sessionsAllocated"`
	Override          bool `json:"override"`
}

// CreateCompanyHandler creates a company with its initial seat allocation. Admins only.
func (c Company) CreateCompanyHandler(w http.ResponseWriter, r *http.Request) {
	const op = "create_company"
	issuer, _ := api.IssuerFromContext(r.Context())
	if !issuer.IsAdmin() {
		forbidden(w, r, op)
		return
	}

	var req createCompanyRequest
	if err := decodeBody(r, &req); err != nil {
		invalid(w, r, op, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		invalid(w, r, op, "name is required")
		return
	}
	if req.SessionsAllocated < 0 {
		invalid(w, r, op, "sessionsAllocated cannot be negative")
		return
	}

	now := time.Now().UTC()
	company := models.Company{
		ID:                uuid.NewString(),
		Name:              req.Name,
		PlanType:          req.PlanType,
		IsActive:          true,
		SessionsAllocated: req.SessionsAllocated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err := databases.WithRetry(r.Context(), func() (struct{}, error) {
		return struct{}{}, c.DB.InsertOne(r.Context(), company)
	})
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusCreated, "company", company)
}

// CompanyHandler returns a company and its seat counters
func (c Company) CompanyHandler(w http.ResponseWriter, r *http.Request) {
	const op = "get_company"
	companyID := mux.Vars(r)["companyId"]
	issuer, _ := api.IssuerFromContext(r.Context())
	if !issuer.CanManage(companyID) {
		forbidden(w, r, op)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	company, err := databases.WithRetry(ctx, func() (*models.Company, error) {
		return c.DB.FindByID(ctx, companyID)
	})
	if errors.Is(err, databases.ErrNotFound) {
		err = models.NewKindError(models.KindNotFound, "company not found")
	}
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "company", struct {
		*models.Company
		SessionsRemaining int `json:"sessionsRemaining"`
	}{company, company.SessionsRemaining()})
}

// SetAllocationHandler replaces the company's seat allocation
func (c Company) SetAllocationHandler(w http.ResponseWriter, r *http.Request) {
	const op = "set_allocation"
	companyID := mux.Vars(r)["companyId"]
	issuer, _ := api.IssuerFromContext(r.Context())
	if !issuer.CanManage(companyID) {
		forbidden(w, r, op)
		return
	}

	var req allocationRequest
	if err := decodeBody(r, &req); err != nil || req.SessionsAllocated == nil {
		invalid(w, r, op, "sessionsAllocated is required")
		return
	}
	// overriding usage is an admin decision
	if req.Override && !issuer.IsAdmin() {
		forbidden(w, r, op)
		return
	}

	ctx, cancel := api.Detached(r.Context())
	defer cancel()
	company, err := c.Ledger.SetAllocation(ctx, companyID, *req.SessionsAllocated, req.Override)
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "company", company)
}

// ReconciliationHandler reports drift between company and employee seat counters
func (c Company) ReconciliationHandler(w http.ResponseWriter, r *http.Request) {
	const op = "reconcile"
	companyID := mux.Vars(r)["companyId"]
	issuer, _ := api.IssuerFromContext(r.Context())
	if !issuer.CanManage(companyID) {
		forbidden(w, r, op)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	report, err := c.Ledger.Reconcile(ctx, companyID)
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "report", report)
}
