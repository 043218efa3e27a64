package models

import "time"

// Issuer is an HR or admin account allowed to create and revoke access codes
type Issuer struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	Password  string    `json:"-" bson:"password"`
	Roles     []string  `json:"roles" bson:"roles"`
	CompanyID string    `json:"companyId,omitempty" bson:"companyId,omitempty"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// IsAdmin reports whether the issuer may act on any company
func (i Issuer) IsAdmin() bool {
	for _, r := range i.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

// CanManage reports whether the issuer may act on the given company
func (i Issuer) CanManage(companyID string) bool {
	return i.IsAdmin() || (companyID != "" && i.CompanyID == companyID)
}
