package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessCode_Lapsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := AccessCode{ExpiresAt: now}

	assert.True(t, c.Lapsed(now))
	assert.True(t, c.Lapsed(now.Add(time.Second)))
	assert.False(t, c.Lapsed(now.Add(-time.Second)))
}

func TestAccessCode_EmailMatches(t *testing.T) {
	assert.True(t, AccessCode{}.EmailMatches(""))
	assert.True(t, AccessCode{}.EmailMatches("anyone@example.com"))

	bound := AccessCode{Email: "Jane.Doe@Example.com"}
	assert.True(t, bound.EmailMatches("jane.doe@example.com"))
	assert.True(t, bound.EmailMatches("  JANE.DOE@EXAMPLE.COM "))
	assert.False(t, bound.EmailMatches("john@example.com"))
	assert.False(t, bound.EmailMatches(""))
}

func TestRole(t *testing.T) {
	for _, r := range []Role{RolePersonal, RoleHR, RoleEmployee, RoleProvider, RoleSpecialist} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Role("owner").Valid())
	assert.False(t, RolePersonal.RequiresCompany())
	assert.True(t, RoleEmployee.RequiresCompany())
}

func TestCodeStatus_Terminal(t *testing.T) {
	assert.False(t, CodeStatusPending.Terminal())
	assert.True(t, CodeStatusUsed.Terminal())
	assert.True(t, CodeStatusExpired.Terminal())
	assert.True(t, CodeStatusRevoked.Terminal())
}

func TestIssuer_CanManage(t *testing.T) {
	admin := Issuer{Roles: []string{"admin"}}
	hr := Issuer{Roles: []string{"hr"}, CompanyID: "c1"}

	assert.True(t, admin.CanManage("c2"))
	assert.True(t, hr.CanManage("c1"))
	assert.False(t, hr.CanManage("c2"))
	assert.False(t, hr.CanManage(""))
}
