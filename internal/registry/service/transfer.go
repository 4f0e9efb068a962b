package service

import (
	"context"
	"strings"
	"time"

	"landregistry/internal/registry/access"
	"landregistry/internal/registry/escrow"
	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

const maxDisputeFieldLen = 2048

// propertyTx is a transition on a single loaded property.
type propertyTx func(ctx context.Context, tx store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error)

// onProperty runs fn for tokenID under its lock. When registrarOnly is set the
// caller's REGISTRAR role is checked before the property is even loaded.
func (s *Service) onProperty(ctx context.Context, op string, tokenID id.TokenID, registrarOnly bool, fn propertyTx) (*models.Property, error) {
	c, err := s.execute(ctx, op, tokenKey(tokenID), tokenAttr(tokenID),
		func(ctx context.Context, tx store.Store, caller id.Address, now time.Time) (*change, error) {
			if registrarOnly {
				if err := access.Require(ctx, tx, models.RoleRegistrar, caller, now); err != nil {
					return nil, err
				}
			}
			p, err := loadProperty(ctx, tx, tokenID)
			if err != nil {
				return nil, err
			}
			c, err := fn(ctx, tx, p, caller, now)
			if err != nil {
				return nil, err
			}
			c.property = p
			return c, nil
		})
	if err != nil {
		return nil, err
	}
	return c.property, nil
}

// RecordTrust lets the seller nominate the only identity allowed to deposit.
func (s *Service) RecordTrust(ctx context.Context, tokenID id.TokenID, buyer id.Address) (*models.Property, error) {
	return s.onProperty(ctx, "RecordTrust", tokenID, false,
		func(_ context.Context, _ store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanRecordTrust(caller, buyer); err != nil {
				return nil, err
			}
			p.ApplyTrust(buyer, now)
			c := &change{}
			c.emit(models.EventTrustRecorded, &p.TokenID, caller, now, map[string]string{
				"buyer": buyer.String(),
			})
			return c, nil
		})
}

// DepositFunds escrows exactly the price from the trusted buyer.
func (s *Service) DepositFunds(ctx context.Context, tokenID id.TokenID, amount id.Amount) (*models.Property, error) {
	return s.onProperty(ctx, "DepositFunds", tokenID, false,
		func(_ context.Context, _ store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanDeposit(caller, amount); err != nil {
				return nil, err
			}
			if err := escrow.Deposit(p, caller, amount); err != nil {
				return nil, err
			}
			p.Status = models.StatusEscrowed
			p.UpdatedAt = now
			c := &change{}
			c.emit(models.EventFundsDeposited, &p.TokenID, caller, now, map[string]string{
				"depositor": caller.String(),
				"amount":    amount.String(),
				"kind":      "sale",
			})
			return c, nil
		})
}

// ConfirmFunds records the seller's acknowledgement of the escrowed funds.
func (s *Service) ConfirmFunds(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	return s.onProperty(ctx, "ConfirmFunds", tokenID, false,
		func(_ context.Context, _ store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanConfirm(caller); err != nil {
				return nil, err
			}
			p.ApplyConfirm(now)
			c := &change{}
			c.emit(models.EventFundsConfirmed, &p.TokenID, caller, now, map[string]string{
				"amount": p.EscrowBalance.String(),
			})
			return c, nil
		})
}

// FinalizeTransfer releases escrow to the seller (or the partnership) and
// records the buyer as owner.
func (s *Service) FinalizeTransfer(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	return s.onProperty(ctx, "FinalizeTransfer", tokenID, true,
		func(ctx context.Context, tx store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanFinalize(); err != nil {
				return nil, err
			}
			from := p.Owner
			payouts, err := escrow.Release(ctx, tx, p)
			if err != nil {
				return nil, err
			}
			p.ApplyTransfer(now)

			c := &change{}
			c.emit(models.EventTransferFinalized, &p.TokenID, caller, now, map[string]string{
				"from":  from.String(),
				"to":    p.Owner.String(),
				"price": p.Price.String(),
			})
			for _, payout := range payouts {
				c.emit(models.EventEscrowReleased, &p.TokenID, caller, now, map[string]string{
					"to":     payout.To.String(),
					"amount": payout.Amount.String(),
					"kind":   "sale",
				})
			}
			return c, nil
		})
}

// FreezeProperty suspends a property for a dispute. Sale escrow goes back to
// its depositor and a pending lease's rent back to the tenant; the status is
// left as it was.
func (s *Service) FreezeProperty(ctx context.Context, tokenID id.TokenID, reason, evidenceRef string) (*models.Property, error) {
	return s.onProperty(ctx, "FreezeProperty", tokenID, true,
		func(ctx context.Context, tx store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanFreeze(); err != nil {
				return nil, err
			}
			dispute, err := newDispute(reason, evidenceRef, caller, now)
			if err != nil {
				return nil, err
			}

			c := &change{}
			c.emit(models.EventPropertyFrozen, &p.TokenID, caller, now, map[string]string{
				"reason":       dispute.Reason,
				"evidence_ref": dispute.EvidenceRef,
				"status":       p.Status.String(),
			})
			refund, err := escrow.Refund(ctx, tx, p)
			if err != nil {
				return nil, err
			}
			if refund != nil {
				c.emit(models.EventEscrowRefunded, &p.TokenID, caller, now, map[string]string{
					"to":     refund.To.String(),
					"amount": refund.Amount.String(),
					"kind":   "sale",
				})
			}
			if p.Lease.IsPending() {
				rent, err := escrow.RefundRent(ctx, tx, p.Lease, models.LeaseStatusRefunded)
				if err != nil {
					return nil, err
				}
				c.emit(models.EventEscrowRefunded, &p.TokenID, caller, now, map[string]string{
					"to":     rent.To.String(),
					"amount": rent.Amount.String(),
					"kind":   "rent",
				})
			}
			p.ApplyFreeze(dispute, now)
			return c, nil
		})
}

// UnfreezeProperty lifts the freeze and returns the property to Active.
func (s *Service) UnfreezeProperty(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	return s.onProperty(ctx, "UnfreezeProperty", tokenID, true,
		func(_ context.Context, _ store.Store, p *models.Property, caller id.Address, now time.Time) (*change, error) {
			if err := p.CanUnfreeze(); err != nil {
				return nil, err
			}
			previous := p.Status
			p.ApplyUnfreeze(now)
			c := &change{}
			c.emit(models.EventPropertyUnfrozen, &p.TokenID, caller, now, map[string]string{
				"previous_status": previous.String(),
			})
			return c, nil
		})
}

func newDispute(reason, evidenceRef string, raisedBy id.Address, now time.Time) (models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	evidenceRef = strings.TrimSpace(evidenceRef)
	if reason == "" {
		return models.Dispute{}, dErrors.New(dErrors.CodeValidation, "dispute reason is required")
	}
	if len(reason) > maxDisputeFieldLen || len(evidenceRef) > maxDisputeFieldLen {
		return models.Dispute{}, dErrors.New(dErrors.CodeValidation, "dispute details are too long")
	}
	return models.Dispute{
		Reason:      reason,
		EvidenceRef: evidenceRef,
		RaisedBy:    raisedBy,
		RaisedAt:    now,
	}, nil
}
