package models

import (
	"time"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// LeaseStatus tracks the lease sub-workflow.
type LeaseStatus string

const (
	LeaseStatusPending  LeaseStatus = "pending"
	LeaseStatusApproved LeaseStatus = "approved"
	LeaseStatusRejected LeaseStatus = "rejected"
	LeaseStatusRefunded LeaseStatus = "refunded"
)

// Lease is a tenancy attached to a property. Rent is held in EscrowBalance
// while pending and released to the owner on approval.
type Lease struct {
	Tenant        id.Address    `json:"tenant"`
	Duration      time.Duration `json:"duration"`
	RentAmount    id.Amount     `json:"rent_amount,string"`
	EscrowBalance id.Amount     `json:"escrow_balance,string"`
	Status        LeaseStatus   `json:"status"`
	InitiatedAt   time.Time     `json:"initiated_at"`
	ApprovedAt    *time.Time    `json:"approved_at,omitempty"`
	Expiry        *time.Time    `json:"expiry,omitempty"`
}

// NewLease validates a tenancy request.
func NewLease(tenant id.Address, duration time.Duration, rent id.Amount, now time.Time) (*Lease, error) {
	if duration <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "lease duration must be positive")
	}
	if rent == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "rent must be positive")
	}
	return &Lease{
		Tenant:      tenant,
		Duration:    duration,
		RentAmount:  rent,
		Status:      LeaseStatusPending,
		InitiatedAt: now,
	}, nil
}

func (l *Lease) IsPending() bool { return l != nil && l.Status == LeaseStatusPending }

func (l *Lease) IsApproved() bool { return l != nil && l.Status == LeaseStatusApproved }

// IsActiveAt reports whether an approved lease has not yet expired.
func (l *Lease) IsActiveAt(now time.Time) bool {
	return l.IsApproved() && l.Expiry != nil && now.Before(*l.Expiry)
}

// Approve releases the escrowed rent and starts the tenancy clock.
// It returns the amount that left escrow.
func (l *Lease) Approve(now time.Time) id.Amount {
	released := l.EscrowBalance
	expiry := now.Add(l.Duration)
	l.EscrowBalance = 0
	l.Status = LeaseStatusApproved
	l.ApprovedAt = &now
	l.Expiry = &expiry
	return released
}

// Close ends a pending lease without approval and returns the refundable amount.
func (l *Lease) Close(status LeaseStatus) id.Amount {
	refund := l.EscrowBalance
	l.EscrowBalance = 0
	l.Status = status
	return refund
}
