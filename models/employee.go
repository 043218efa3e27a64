package models

import "time"

// Employee binds a person to a company. There is at most one per (companyId, personId).
type Employee struct {
	ID                string     `json:"id" bson:"_id"`
	CompanyID         string     `json:"companyId" bson:"companyId"`
	PersonID          string     `json:"personId" bson:"personId"`
	Email             string     `json:"email,omitempty" bson:"email,omitempty"`
	Role              Role       `json:"role" bson:"role"`
	SessionsAllocated int        `json:"sessionsAllocated" bson:"sessionsAllocated"`
	SessionsUsed      int        `json:"sessionsUsed" bson:"sessionsUsed"`
	IsActive          bool       `json:"isActive" bson:"isActive"`
	JoinedAt          time.Time  `json:"joinedAt" bson:"joinedAt"`
	AccessCodeID      string     `json:"accessCodeId,omitempty" bson:"accessCodeId,omitempty"`
	DeactivatedAt     *time.Time `json:"deactivatedAt,omitempty" bson:"deactivatedAt,omitempty"`
}

// HasSubAllocation reports whether the employee's own seat counter is enforced
func (e Employee) HasSubAllocation() bool {
	return e.SessionsAllocated > 0
}
