package models

import "time"

// ConsumptionState tells whether a booked session is currently counted against the seat ledger
type ConsumptionState string

// Consumption states
const (
	ConsumptionConsumed ConsumptionState = "consumed"
	ConsumptionReleased ConsumptionState = "released"
)

// SessionConsumption records that a booked session was counted against a company and employee.
// ID is the booking's session id so that a cancellation can only ever release what was consumed.
type SessionConsumption struct {
	ID         string           `json:"id" bson:"_id"`
	CompanyID  string           `json:"companyId" bson:"companyId"`
	EmployeeID string           `json:"employeeId" bson:"employeeId"`
	State      ConsumptionState `json:"state" bson:"state"`
	ConsumedAt time.Time        `json:"consumedAt" bson:"consumedAt"`
	ReleasedAt *time.Time       `json:"releasedAt,omitempty" bson:"releasedAt,omitempty"`
}
