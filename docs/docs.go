// Package docs Benefits Access API.
//
// Documentation of the Benefits Access API: access code issuing and redemption, and the seat
// ledger behind company session allocations.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//     Host: benefits-access-api.herokuapp.com
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
//     Security:
//     - basic
//     - bearer
//
//    SecurityDefinitions:
//    basic:
//      type: basic
//    bearer:
//      type: apiKey
//      name: Authorization
//      in: header
//
// swagger:meta
package docs

import (
	"github.com/linesmerrill/benefits-access-api/models"
	"github.com/linesmerrill/benefits-access-api/seats"
	"github.com/linesmerrill/benefits-access-api/validation"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse
//   503: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route GET /api/v1/access-codes/validate accessCodes validateAccessCode
// Checks whether a code can currently be redeemed. Unknown and expired codes are a 200 with a reason.
// responses:
//   200: validationResponse
//   429: outcomeErrorResponse

// swagger:parameters validateAccessCode
type validateParams struct {
	// in:query
	// required: true
	Code string `json:"code"`
}

// The validation result for the submitted code
// swagger:response validationResponse
type validationResponseWrapper struct {
	// in:body
	Body struct {
		OK         bool              `json:"ok"`
		Validation validation.Result `json:"validation"`
	}
}

// swagger:route POST /api/v1/access-codes accessCodes generateAccessCode
// Issues a new pending access code. Requires an issuer.
// responses:
//   201: accessCodeResponse
//   400: outcomeErrorResponse
//   403: errorResponse
//   503: outcomeErrorResponse

// swagger:route POST /api/v1/access-codes/{codeId}/revoke accessCodes revokeAccessCode
// Withdraws a pending access code. Requires an issuer.
// responses:
//   200: accessCodeResponse
//   404: outcomeErrorResponse
//   409: outcomeErrorResponse

// A single access code
// swagger:response accessCodeResponse
type accessCodeResponseWrapper struct {
	// in:body
	Body struct {
		OK         bool              `json:"ok"`
		AccessCode models.AccessCode `json:"accessCode"`
	}
}

// swagger:route POST /api/v1/access-codes/redeem accessCodes redeemAccessCode
// Redeems a code for the signed-in person. Requires a person bearer token.
// responses:
//   200: membershipResponse
//   403: outcomeErrorResponse
//   404: outcomeErrorResponse
//   409: outcomeErrorResponse
//   410: outcomeErrorResponse

// The membership created or reactivated by a redemption
// swagger:response membershipResponse
type membershipResponseWrapper struct {
	// in:body
	Body struct {
		OK         bool   `json:"ok"`
		EmployeeID string `json:"employeeId"`
		CompanyID  string `json:"companyId"`
	}
}

// swagger:route GET /api/v1/companies/{companyId}/reconciliation companies reconcileCompany
// Compares the company's used counter with the sum of its employees'. Requires an issuer.
// responses:
//   200: reconciliationResponse
//   404: outcomeErrorResponse

// Drift between company and employee counters
// swagger:response reconciliationResponse
type reconciliationResponseWrapper struct {
	// in:body
	Body struct {
		OK     bool         `json:"ok"`
		Report seats.Report `json:"report"`
	}
}

// An expected failure, identified by its kind
// swagger:response outcomeErrorResponse
type outcomeErrorResponseWrapper struct {
	// in:body
	Body models.OutcomeErrorResponse
}

// An unexpected failure
// swagger:response errorResponse
type errorResponseWrapper struct {
	// in:body
	Body models.ErrorMessageResponse
}
