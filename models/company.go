package models

import "time"

// Company holds the structure for the companies collection in mongo
type Company struct {
	ID                string    `json:"id" bson:"_id"`
	Name              string    `json:"name" bson:"name"`
	PlanType          string    `json:"planType" bson:"planType"`
	IsActive          bool      `json:"isActive" bson:"isActive"`
	SessionsAllocated int       `json:"sessionsAllocated" bson:"sessionsAllocated"`
	SessionsUsed      int       `json:"sessionsUsed" bson:"sessionsUsed"`
	SessionsAssigned  int       `json:"sessionsAssigned" bson:"sessionsAssigned"`
	CreatedAt         time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt" bson:"updatedAt"`
}

// SessionsRemaining is the number of sessions that can still be consumed
func (c Company) SessionsRemaining() int {
	if c.SessionsUsed >= c.SessionsAllocated {
		return 0
	}
	return c.SessionsAllocated - c.SessionsUsed
}
