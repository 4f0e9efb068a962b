package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"ADMIN":      RoleAdmin,
		"registrar":  RoleRegistrar,
		" tenant:7 ": TenantRole(7),
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "OWNER", "TENANT:", "TENANT:x"} {
		_, err := ParseRole(in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), in)
	}
}

func TestRoleTokenID(t *testing.T) {
	tokenID, ok := TenantRole(42).TokenID()
	assert.True(t, ok)
	assert.Equal(t, id.TokenID(42), tokenID)

	_, ok = RoleRegistrar.TokenID()
	assert.False(t, ok)
}

func TestRoleGrantExpiry(t *testing.T) {
	permanent := RoleGrant{Role: RoleRegistrar, Identity: "0xr"}
	assert.True(t, permanent.ActiveAt(now.Add(100*365*24*time.Hour)))

	expires := now.Add(time.Hour)
	scoped := RoleGrant{Role: TenantRole(1), Identity: "0xt", ExpiresAt: &expires}
	assert.True(t, scoped.ActiveAt(now))
	assert.False(t, scoped.ActiveAt(expires))
}

func TestStatusJSON(t *testing.T) {
	b, err := StatusEscrowed.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"escrowed"`, string(b))

	var s Status
	require.NoError(t, s.UnmarshalJSON([]byte(`"Sold"`)))
	assert.Equal(t, StatusSold, s)
	assert.Error(t, s.UnmarshalJSON([]byte(`"burned"`)))
}
