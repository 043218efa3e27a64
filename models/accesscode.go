package models

import (
	"strings"
	"time"
)

// Role is the role an access code grants to whoever redeems it
type Role string

// Roles an access code can be bound to
const (
	RolePersonal   Role = "personal"
	RoleHR         Role = "hr"
	RoleEmployee   Role = "employee"
	RoleProvider   Role = "provider"
	RoleSpecialist Role = "specialist"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePersonal, RoleHR, RoleEmployee, RoleProvider, RoleSpecialist:
		return true
	}
	return false
}

// RequiresCompany reports whether codes for this role must be bound to a company
func (r Role) RequiresCompany() bool {
	return r != RolePersonal
}

// CodeStatus is the redemption state of an access code
type CodeStatus string

// Access code statuses. Everything but pending is terminal.
const (
	CodeStatusPending CodeStatus = "pending"
	CodeStatusUsed    CodeStatus = "used"
	CodeStatusExpired CodeStatus = "expired"
	CodeStatusRevoked CodeStatus = "revoked"
)

// Terminal reports whether no transition may leave s
func (s CodeStatus) Terminal() bool {
	return s != CodeStatusPending
}

// AccessCode represents the structure of an access code document in MongoDB
type AccessCode struct {
	ID   string `json:"id" bson:"_id"`
	Code string `json:"code" bson:"code"`
	// ActiveCode mirrors Code while the code is pending or used and is unset once it expires or is
	// revoked. A unique sparse index on it keeps live codes unique while letting lapsed text be reused.
	ActiveCode      string                 `json:"-" bson:"activeCode,omitempty"`
	Role            Role                   `json:"role" bson:"role"`
	CompanyID       string                 `json:"companyId,omitempty" bson:"companyId,omitempty"`
	Status          CodeStatus             `json:"status" bson:"status"`
	ExpiresAt       time.Time              `json:"expiresAt" bson:"expiresAt"`
	CreatedBy       string                 `json:"createdBy" bson:"createdBy"`
	CreatedAt       time.Time              `json:"createdAt" bson:"createdAt"`
	AcceptedAt      *time.Time             `json:"acceptedAt,omitempty" bson:"acceptedAt,omitempty"`
	AcceptedBy      string                 `json:"acceptedBy,omitempty" bson:"acceptedBy,omitempty"`
	ExpiredAt       *time.Time             `json:"expiredAt,omitempty" bson:"expiredAt,omitempty"`
	RevokedAt       *time.Time             `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
	RevokedBy       string                 `json:"revokedBy,omitempty" bson:"revokedBy,omitempty"`
	Email           string                 `json:"email,omitempty" bson:"email,omitempty"`
	SessionsGranted int                    `json:"sessionsGranted" bson:"sessionsGranted"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Lapsed reports whether the code's expiry instant is at or before now
func (c AccessCode) Lapsed(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// EmailMatches reports whether email may redeem the code. Codes without a bound email accept anyone.
func (c AccessCode) EmailMatches(email string) bool {
	if c.Email == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(c.Email), strings.TrimSpace(email))
}

// CodeTransition carries the audit fields written alongside a status change
type CodeTransition struct {
	At    time.Time
	Actor string
}
