// Package escrow moves funds in and out of the per-property escrow and the
// lease rent escrow. Every function mutates the property in memory and credits
// accounts through the transaction's store, so the caller persists both in
// the same transaction.
package escrow

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
)

// Accounts receives payouts.
type Accounts interface {
	Credit(ctx context.Context, identity id.Address, amount id.Amount) error
}

// Deposit funds the sale escrow with exactly the property's price.
func Deposit(p *models.Property, from id.Address, amount id.Amount) error {
	if p.EscrowBalance != 0 {
		return dErrors.New(dErrors.CodeInvalidState, "escrow is already funded")
	}
	if amount != p.Price {
		return dErrors.New(dErrors.CodeWrongAmount, fmt.Sprintf("deposit must equal the price %s", p.Price))
	}
	p.EscrowBalance = amount
	p.Depositor = from
	return nil
}

// Release empties the sale escrow to the current owner, split by an active
// partnership. It must run before ownership moves to the buyer.
func Release(ctx context.Context, accounts Accounts, p *models.Property) ([]models.Payout, error) {
	if p.EscrowBalance == 0 {
		return nil, dErrors.New(dErrors.CodeInsufficientEscrow, "no escrow to release")
	}
	payouts := models.PayoutsFor(p.Owner, p.Partnership, p.EscrowBalance)
	if err := pay(ctx, accounts, payouts); err != nil {
		return nil, err
	}
	p.EscrowBalance = 0
	return payouts, nil
}

// Refund returns the sale escrow to whoever deposited it. A property with no
// escrow yields no payout.
func Refund(ctx context.Context, accounts Accounts, p *models.Property) (*models.Payout, error) {
	if p.EscrowBalance == 0 {
		return nil, nil
	}
	to := p.Depositor
	if to.IsZero() {
		to = p.PotentialBuyer
	}
	if to.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "escrow has no depositor to refund")
	}
	payout := models.Payout{To: to, Amount: p.EscrowBalance}
	if err := pay(ctx, accounts, []models.Payout{payout}); err != nil {
		return nil, err
	}
	p.EscrowBalance = 0
	return &payout, nil
}

// DepositRent funds a new lease's escrow with exactly its rent.
func DepositRent(lease *models.Lease, amount id.Amount) error {
	if lease.EscrowBalance != 0 {
		return dErrors.New(dErrors.CodeInvalidState, "rent is already deposited")
	}
	if amount != lease.RentAmount {
		return dErrors.New(dErrors.CodeWrongAmount, fmt.Sprintf("rent deposit must equal %s", lease.RentAmount))
	}
	lease.EscrowBalance = amount
	return nil
}

// ReleaseRent approves the pending lease and pays the rent to the owner,
// split by an active partnership.
func ReleaseRent(ctx context.Context, accounts Accounts, p *models.Property, now time.Time) ([]models.Payout, error) {
	if !p.Lease.IsPending() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "no lease is awaiting approval")
	}
	if p.Lease.EscrowBalance == 0 {
		return nil, dErrors.New(dErrors.CodeInsufficientEscrow, "lease has no rent in escrow")
	}
	payouts := models.PayoutsFor(p.Owner, p.Partnership, p.Lease.EscrowBalance)
	if err := pay(ctx, accounts, payouts); err != nil {
		return nil, err
	}
	p.Lease.Approve(now)
	return payouts, nil
}

// RefundRent closes a pending lease with status and returns the rent to the
// tenant.
func RefundRent(ctx context.Context, accounts Accounts, lease *models.Lease, status models.LeaseStatus) (*models.Payout, error) {
	if !lease.IsPending() {
		return nil, nil
	}
	payout := models.Payout{To: lease.Tenant, Amount: lease.EscrowBalance}
	if payout.Amount > 0 {
		if err := pay(ctx, accounts, []models.Payout{payout}); err != nil {
			return nil, err
		}
	}
	lease.Close(status)
	return &payout, nil
}

// pay credits in address order so concurrent settlements lock balance rows
// in the same order.
func pay(ctx context.Context, accounts Accounts, payouts []models.Payout) error {
	ordered := slices.Clone(payouts)
	slices.SortFunc(ordered, func(a, b models.Payout) int { return cmp.Compare(a.To, b.To) })
	for _, p := range ordered {
		if p.Amount == 0 {
			continue
		}
		if err := accounts.Credit(ctx, p.To, p.Amount); err != nil {
			if errors.Is(err, sentinel.ErrOverflow) {
				return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "balance overflow")
			}
			return fmt.Errorf("credit %s: %w", p.To, err)
		}
	}
	return nil
}
