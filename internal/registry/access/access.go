// Package access implements the role table checks. Membership is evaluated
// against the clock on every call, so time-bound grants lapse without a sweep.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
)

// Roles is the slice of the ledger store the role table needs.
type Roles interface {
	SaveRoleGrant(ctx context.Context, g *models.RoleGrant) error
	DeleteRoleGrant(ctx context.Context, role models.Role, identity id.Address) error
	FindRoleGrant(ctx context.Context, role models.Role, identity id.Address) (*models.RoleGrant, error)
}

// HasRole reports whether identity holds an unexpired grant of role.
func HasRole(ctx context.Context, roles Roles, role models.Role, identity id.Address, now time.Time) (bool, error) {
	if identity.IsZero() {
		return false, nil
	}
	grant, err := roles.FindRoleGrant(ctx, role, identity)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find role grant: %w", err)
	}
	return grant.ActiveAt(now), nil
}

// Require fails with CodeUnauthorized unless identity holds role.
func Require(ctx context.Context, roles Roles, role models.Role, identity id.Address, now time.Time) error {
	ok, err := HasRole(ctx, roles, role, identity, now)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("caller lacks the %s role", role))
	}
	return nil
}

// Grant gives identity role on behalf of an ADMIN. Re-granting replaces the
// previous grant, which is how an expired grant is renewed.
func Grant(ctx context.Context, roles Roles, granter id.Address, role models.Role, identity id.Address, expiresAt *time.Time, now time.Time) (*models.RoleGrant, error) {
	if err := Require(ctx, roles, models.RoleAdmin, granter, now); err != nil {
		return nil, err
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "grant expiry must be in the future")
	}
	return grant(ctx, roles, granter, role, identity, expiresAt, now)
}

// GrantScoped records a grant made by the state machine itself, such as the
// tenant role issued when a lease is approved.
func GrantScoped(ctx context.Context, roles Roles, role models.Role, identity id.Address, expiresAt time.Time, now time.Time) (*models.RoleGrant, error) {
	if _, ok := role.TokenID(); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "only property scoped roles are granted by the registry")
	}
	return grant(ctx, roles, "", role, identity, &expiresAt, now)
}

func grant(ctx context.Context, roles Roles, granter id.Address, role models.Role, identity id.Address, expiresAt *time.Time, now time.Time) (*models.RoleGrant, error) {
	if identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "identity is required")
	}
	g := &models.RoleGrant{
		Role:      role,
		Identity:  identity,
		GrantedBy: granter,
		GrantedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := roles.SaveRoleGrant(ctx, g); err != nil {
		return nil, fmt.Errorf("save role grant: %w", err)
	}
	return g, nil
}

// Revoke removes identity's grant of role on behalf of an ADMIN.
func Revoke(ctx context.Context, roles Roles, revoker id.Address, role models.Role, identity id.Address, now time.Time) error {
	if err := Require(ctx, roles, models.RoleAdmin, revoker, now); err != nil {
		return err
	}
	err := roles.DeleteRoleGrant(ctx, role, identity)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "role grant not found")
	}
	if err != nil {
		return fmt.Errorf("delete role grant: %w", err)
	}
	return nil
}

// Bootstrap makes sure admin holds a permanent ADMIN grant. It reports
// whether a grant had to be written.
func Bootstrap(ctx context.Context, roles Roles, admin id.Address, now time.Time) (bool, error) {
	existing, err := roles.FindRoleGrant(ctx, models.RoleAdmin, admin)
	if err == nil && existing.ExpiresAt == nil {
		return false, nil
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return false, fmt.Errorf("find admin grant: %w", err)
	}
	if _, err := grant(ctx, roles, admin, models.RoleAdmin, admin, nil, now); err != nil {
		return false, err
	}
	return true, nil
}
