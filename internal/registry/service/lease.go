package service

import (
	"context"
	"time"

	"landregistry/internal/registry/access"
	"landregistry/internal/registry/escrow"
	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// InitiateLease opens a tenancy request with the rent deposited up front.
func (s *Service) InitiateLease(ctx context.Context, tokenID id.TokenID, duration time.Duration, rent id.Amount) (*models.Property, error) {
	return s.onProperty(ctx, "InitiateLease", tokenID, false,
		func(_ context.Context, _ store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanInitiateLease(caller, now); err != nil {
				return nil, err
			}
			lease, err := models.NewLease(caller, duration, rent, now)
			if err != nil {
				return nil, err
			}
			if err := escrow.DepositRent(lease, rent); err != nil {
				return nil, err
			}
			p.Lease = lease
			p.UpdatedAt = now
			c := &change{}
			c.emit(models.EventLeaseInitiated, &p.TokenID, caller, now, map[string]string{
				"tenant":   caller.String(),
				"amount":   rent.String(),
				"duration": duration.String(),
				"kind":     "rent",
			})
			return c, nil
		})
}

// ApproveLease releases the rent to the owner and grants the tenant role
// until the lease expires.
func (s *Service) ApproveLease(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	return s.onProperty(ctx, "ApproveLease", tokenID, true,
		func(ctx context.Context, tx store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanDecideLease(); err != nil {
				return nil, err
			}
			payouts, err := escrow.ReleaseRent(ctx, tx, p, now)
			if err != nil {
				return nil, err
			}
			role := models.TenantRole(p.TokenID)
			grant, err := access.GrantScoped(ctx, tx, role, p.Lease.Tenant, *p.Lease.Expiry, now)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant tenant role")
			}
			p.UpdatedAt = now

			c := &change{grant: grant}
			c.emit(models.EventLeaseApproved, &p.TokenID, caller, now, map[string]string{
				"tenant": p.Lease.Tenant.String(),
				"expiry": p.Lease.Expiry.Format(time.RFC3339),
			})
			for _, payout := range payouts {
				c.emit(models.EventEscrowReleased, &p.TokenID, caller, now, map[string]string{
					"to":     payout.To.String(),
					"amount": payout.Amount.String(),
					"kind":   "rent",
				})
			}
			c.emit(models.EventRoleGranted, &p.TokenID, caller, now, map[string]string{
				"role":       string(role),
				"identity":   p.Lease.Tenant.String(),
				"expires_at": p.Lease.Expiry.Format(time.RFC3339),
			})
			return c, nil
		})
}

// RejectLease closes a pending lease and refunds the tenant.
func (s *Service) RejectLease(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	return s.onProperty(ctx, "RejectLease", tokenID, true,
		func(ctx context.Context, tx store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanDecideLease(); err != nil {
				return nil, err
			}
			refund, err := escrow.RefundRent(ctx, tx, p.Lease, models.LeaseStatusRejected)
			if err != nil {
				return nil, err
			}
			p.UpdatedAt = now
			c := &change{}
			c.emit(models.EventLeaseRejected, &p.TokenID, caller, now, map[string]string{
				"tenant": p.Lease.Tenant.String(),
			})
			c.emit(models.EventEscrowRefunded, &p.TokenID, caller, now, map[string]string{
				"to":     refund.To.String(),
				"amount": refund.Amount.String(),
				"kind":   "rent",
			})
			return c, nil
		})
}

// CreatePartnership attaches a two-party proceeds split to the property.
func (s *Service) CreatePartnership(ctx context.Context, tokenID id.TokenID, partner id.Address, ownerShare uint8) (*models.Property, error) {
	return s.onProperty(ctx, "CreatePartnership", tokenID, false,
		func(_ context.Context, _ store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanCreatePartnership(caller); err != nil {
				return nil, err
			}
			partnership, err := models.NewPartnership(p.Owner, partner, ownerShare, now)
			if err != nil {
				return nil, err
			}
			p.Partnership = partnership
			p.UpdatedAt = now
			c := &change{}
			c.emit(models.EventPartnershipCreated, &p.TokenID, caller, now, map[string]string{
				"partner":       partner.String(),
				"owner_share":   formatShare(partnership.Shares[0]),
				"partner_share": formatShare(partnership.Shares[1]),
			})
			return c, nil
		})
}
