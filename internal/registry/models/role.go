package models

import (
	"strings"
	"time"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Role names a capability in the access control table.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleRegistrar Role = "REGISTRAR"

	tenantRolePrefix = "TENANT:"
)

// TenantRole is the role scoped to a single property's tenancy.
func TenantRole(tokenID id.TokenID) Role {
	return Role(tenantRolePrefix + tokenID.String())
}

// ParseRole accepts ADMIN, REGISTRAR or TENANT:<tokenId>.
func ParseRole(s string) (Role, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch Role(s) {
	case RoleAdmin, RoleRegistrar:
		return Role(s), nil
	}
	if rest, ok := strings.CutPrefix(s, tenantRolePrefix); ok {
		tokenID, err := id.ParseTokenID(rest)
		if err != nil {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid tenant role")
		}
		return TenantRole(tokenID), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
}

// TokenID returns the property a scoped role applies to.
func (r Role) TokenID() (id.TokenID, bool) {
	rest, ok := strings.CutPrefix(string(r), tenantRolePrefix)
	if !ok {
		return 0, false
	}
	tokenID, err := id.ParseTokenID(rest)
	if err != nil {
		return 0, false
	}
	return tokenID, true
}

// RoleGrant is one membership row. Grants with ExpiresAt lapse lazily:
// nothing sweeps them, membership checks compare against the clock.
type RoleGrant struct {
	Role      Role       `json:"role"`
	Identity  id.Address `json:"identity"`
	GrantedBy id.Address `json:"granted_by"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the grant confers its role at now.
func (g *RoleGrant) ActiveAt(now time.Time) bool {
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}
