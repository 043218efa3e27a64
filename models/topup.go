package models

import "time"

// AllocationTopUp records a processed payment event that added sessions to a company.
// ID is the payment provider's event id, which makes replayed webhooks a no-op.
type AllocationTopUp struct {
	ID        string    `json:"id" bson:"_id"`
	CompanyID string    `json:"companyId" bson:"companyId"`
	Sessions  int       `json:"sessions" bson:"sessions"`
	Source    string    `json:"source" bson:"source"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
