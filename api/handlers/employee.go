package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/benefits-access-api/api"
	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/seats"
)

// Employee exported for testing purposes
type Employee struct {
	DB     databases.EmployeeDatabase
	Ledger *seats.Ledger
}

type employeeAllocationRequest struct {
	SessionsAllocated *int `json:"sessionsAllocated"`
	Override          bool `json:"override"`
}

type consumeSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// ListEmployeesHandler pages through a company's employees, most recently joined first
func (e Employee) ListEmployeesHandler(w http.ResponseWriter, r *http.Request) {
	const op = "list_employees"
	companyID := mux.Vars(r)["companyId"]
	issuer, _ := api.IssuerFromContext(r.Context())
	if !issuer.CanManage(companyID) {
		forbidden(w, r, op)
		return
	}
	limit, page := pagination(r)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	employees, err := databases.WithRetry(ctx, func() ([]models.Employee, error) {
		return e.DB.ListByCompany(ctx, companyID, limit, page)
	})
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	if employees == nil {
		employees = []models.Employee{}
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "employees", employees)
}

// SetEmployeeAllocationHandler resizes an employee's own seat allocation
func (e Employee) SetEmployeeAllocationHandler(w http.ResponseWriter, r *http.Request) {
	const op = "set_employee_allocation"
	vars := mux.Vars(r)
	issuer, _ := api.IssuerFromContext(r.Context())
	if !issuer.CanManage(vars["companyId"]) {
		forbidden(w, r, op)
		return
	}

	var req employeeAllocationRequest
	if err := decodeBody(r, &req); err != nil || req.SessionsAllocated == nil {
		invalid(w, r, op, "sessionsAllocated is required")
		return
	}

	ctx, cancel := api.Detached(r.Context())
	defer cancel()
	employee, err := e.Ledger.SetEmployeeAllocation(ctx, vars["companyId"], vars["employeeId"], *req.SessionsAllocated, req.Override)
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "employee", employee)
}

// DeactivateEmployeeHandler offboards an employee. Their counters are kept.
func (e Employee) DeactivateEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	const op = "deactivate_employee"
	vars := mux.Vars(r)
	issuer, _ := api.IssuerFromContext(r.Context())
	if !issuer.CanManage(vars["companyId"]) {
		forbidden(w, r, op)
		return
	}

	ctx, cancel := api.Detached(r.Context())
	defer cancel()
	employee, err := e.Ledger.DeactivateEmployee(ctx, vars["companyId"], vars["employeeId"])
	if err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "employee", employee)
}

// ConsumeSessionHandler books one session seat for the signed-in employee
func (e Employee) ConsumeSessionHandler(w http.ResponseWriter, r *http.Request) {
	const op = "consume_session"
	vars := mux.Vars(r)
	var req consumeSessionRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		invalid(w, r, op, "sessionId is required")
		return
	}

	ctx, cancel := api.Detached(r.Context())
	defer cancel()
	if err := e.ownEmployee(ctx, r, vars["companyId"], vars["employeeId"]); err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	if err := e.Ledger.ConsumeSession(ctx, vars["companyId"], vars["employeeId"], req.SessionID); err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "sessionId", req.SessionID)
}

// ReleaseSessionHandler gives back the seat of a cancelled session. Releasing twice is a no-op.
func (e Employee) ReleaseSessionHandler(w http.ResponseWriter, r *http.Request) {
	const op = "release_session"
	vars := mux.Vars(r)

	ctx, cancel := api.Detached(r.Context())
	defer cancel()
	if err := e.ownEmployee(ctx, r, vars["companyId"], vars["employeeId"]); err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	if err := e.Ledger.ReleaseSession(ctx, vars["companyId"], vars["employeeId"], vars["sessionId"]); err != nil {
		writeOutcome(w, r, op, err)
		return
	}
	api.RecordOutcome(r.Context(), op, nil)
	writeOK(w, http.StatusOK, "sessionId", vars["sessionId"])
}

// ownEmployee checks that the employee exists in the company and belongs to the signed-in
// person. Someone else's membership is reported as missing.
func (e Employee) ownEmployee(ctx context.Context, r *http.Request, companyID, employeeID string) error {
	notFound := models.NewKindError(models.KindNotFound, "employee not found")
	person, ok := api.PersonFromContext(r.Context())
	if !ok {
		return notFound
	}
	employee, err := databases.WithRetry(ctx, func() (*models.Employee, error) {
		return e.DB.FindByID(ctx, employeeID)
	})
	if errors.Is(err, databases.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	if employee.CompanyID != companyID || employee.PersonID != person.ID {
		return notFound
	}
	return nil
}
