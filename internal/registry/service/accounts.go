package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"landregistry/internal/registry/access"
	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

// GrantRole gives identity role. Only an ADMIN may grant.
func (s *Service) GrantRole(ctx context.Context, role models.Role, identity id.Address, expiresAt *time.Time) (*models.RoleGrant, error) {
	attrs := []attribute.KeyValue{attribute.String("role", string(role))}
	c, err := s.execute(ctx, "GrantRole", "role:"+identity.String(), attrs,
		func(ctx context.Context, tx store.Store, caller id.Address, now time.Time) (*change, error) {
			grant, err := access.Grant(ctx, tx, caller, role, identity, expiresAt, now)
			if err != nil {
				return nil, err
			}
			args := map[string]string{"role": string(role), "identity": identity.String()}
			if expiresAt != nil {
				args["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
			}
			c := &change{grant: grant}
			c.emit(models.EventRoleGranted, roleToken(role), caller, now, args)
			return c, nil
		})
	if err != nil {
		return nil, err
	}
	return c.grant, nil
}

// RevokeRole removes identity's grant of role. Only an ADMIN may revoke.
func (s *Service) RevokeRole(ctx context.Context, role models.Role, identity id.Address) error {
	attrs := []attribute.KeyValue{attribute.String("role", string(role))}
	_, err := s.execute(ctx, "RevokeRole", "role:"+identity.String(), attrs,
		func(ctx context.Context, tx store.Store, caller id.Address, now time.Time) (*change, error) {
			if err := access.Revoke(ctx, tx, caller, role, identity, now); err != nil {
				return nil, err
			}
			c := &change{}
			c.emit(models.EventRoleRevoked, roleToken(role), caller, now, map[string]string{
				"role":     string(role),
				"identity": identity.String(),
			})
			return c, nil
		})
	return err
}

// Withdraw pays out the caller's whole balance.
func (s *Service) Withdraw(ctx context.Context) (id.Amount, error) {
	key := "account:" + requestcontext.Caller(ctx).String()
	c, err := s.execute(ctx, "Withdraw", key, nil,
		func(ctx context.Context, tx store.Store, caller id.Address, now time.Time) (*change, error) {
			balance, err := tx.Balance(ctx, caller)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
			}
			if balance == 0 {
				return nil, dErrors.New(dErrors.CodeInvalidState, "nothing to withdraw")
			}
			if err := tx.Debit(ctx, caller, balance); err != nil {
				if errors.Is(err, sentinel.ErrInsufficientFunds) {
					return nil, dErrors.Wrap(err, dErrors.CodeConflict, "balance changed during withdrawal")
				}
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to debit balance")
			}
			c := &change{amount: balance}
			c.emit(models.EventFundsWithdrawn, nil, caller, now, map[string]string{
				"amount": balance.String(),
			})
			return c, nil
		})
	if err != nil {
		return 0, err
	}
	return c.amount, nil
}

// Bootstrap makes sure the configured identity holds ADMIN. It runs at
// startup, before any caller exists, so it bypasses the caller check.
func (s *Service) Bootstrap(ctx context.Context, admin id.Address) error {
	if admin.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "bootstrap admin is required")
	}
	now := time.Now().UTC()
	var created bool
	err := s.ledger.RunInTx(ctx, func(tx store.Store) error {
		var err error
		created, err = access.Bootstrap(ctx, tx, admin, now)
		if err != nil || !created {
			return err
		}
		e := models.NewEvent(models.EventRoleGranted, nil, admin, now, map[string]string{
			"role":     string(models.RoleAdmin),
			"identity": admin.String(),
		})
		return tx.AppendEvent(ctx, &e)
	})
	if err != nil {
		return err
	}
	if created {
		s.logger.InfoContext(ctx, "bootstrap admin granted", "identity", admin.String())
		if s.notifier != nil {
			s.notifier.Notify()
		}
	}
	return nil
}

func roleToken(role models.Role) *id.TokenID {
	if tokenID, ok := role.TokenID(); ok {
		return &tokenID
	}
	return nil
}

func formatShare(pct uint8) string { return strconv.Itoa(int(pct)) }
