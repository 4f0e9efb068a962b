package models

import (
	"time"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Property is the aggregate root for a registered land title.
//
// Invariants:
//   - EscrowBalance > 0 exactly when Status is Escrowed or Confirmed and the
//     property is not frozen, and then it equals Price
//   - Frozen is true exactly when Dispute is set
//   - TrustRecorded is true exactly when PotentialBuyer is set
//   - Seller never changes; Owner equals Seller until Sold, then the buyer
//   - Sold is terminal
//
// The frozen flag is a gate orthogonal to Status: while it is set every
// transition except unfreeze is rejected, and the Status is left as it was.
type Property struct {
	TokenID         id.TokenID        `json:"token_id"`
	Price           id.Amount         `json:"price,string"`
	Status          Status            `json:"status"`
	Seller          id.Address        `json:"seller"`
	Owner           id.Address        `json:"owner"`
	PotentialBuyer  id.Address        `json:"potential_buyer,omitempty"`
	TrustRecorded   bool              `json:"trust_recorded"`
	SellerConfirmed bool              `json:"seller_confirmed"`
	EscrowBalance   id.Amount         `json:"escrow_balance,string"`
	Depositor       id.Address        `json:"depositor,omitempty"`
	Frozen          bool              `json:"frozen"`
	Dispute         *Dispute          `json:"dispute,omitempty"`
	MetadataRef     string            `json:"metadata_ref"`
	Lease           *Lease            `json:"lease,omitempty"`
	Partnership     *Partnership      `json:"partnership,omitempty"`
	MintRequestID   *id.MintRequestID `json:"mint_request_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewProperty builds a freshly minted, Active property.
func NewProperty(tokenID id.TokenID, seller id.Address, metadataRef string, price id.Amount, now time.Time) (*Property, error) {
	if seller.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "seller is required")
	}
	ref, err := ValidateListing(metadataRef, price)
	if err != nil {
		return nil, err
	}
	return &Property{
		TokenID:     tokenID,
		Price:       price,
		Status:      StatusActive,
		Seller:      seller,
		Owner:       seller,
		MetadataRef: ref,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Clone returns a deep copy so callers never share a stored record.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	c := *p
	if p.Dispute != nil {
		d := *p.Dispute
		c.Dispute = &d
	}
	if p.Lease != nil {
		l := *p.Lease
		if p.Lease.ApprovedAt != nil {
			t := *p.Lease.ApprovedAt
			l.ApprovedAt = &t
		}
		if p.Lease.Expiry != nil {
			t := *p.Lease.Expiry
			l.Expiry = &t
		}
		c.Lease = &l
	}
	if p.Partnership != nil {
		pp := *p.Partnership
		c.Partnership = &pp
	}
	if p.MintRequestID != nil {
		r := *p.MintRequestID
		c.MintRequestID = &r
	}
	return &c
}

func (p *Property) checkNotFrozen() error {
	if p.Frozen {
		return dErrors.New(dErrors.CodeInvalidState, "property is frozen")
	}
	return nil
}

// CanRecordTrust checks that seller may nominate buyer.
func (p *Property) CanRecordTrust(caller, buyer id.Address) error {
	if err := p.checkNotFrozen(); err != nil {
		return err
	}
	if caller != p.Seller {
		return dErrors.New(dErrors.CodeUnauthorized, "only the seller can record trust")
	}
	if p.Status != StatusActive {
		return dErrors.New(dErrors.CodeInvalidState, "trust can only be recorded while active")
	}
	if p.Lease.IsPending() {
		return dErrors.New(dErrors.CodeInvalidState, "a lease is awaiting approval")
	}
	if buyer.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "buyer is required")
	}
	if buyer == p.Seller {
		return dErrors.New(dErrors.CodeValidation, "buyer must differ from seller")
	}
	return nil
}

func (p *Property) ApplyTrust(buyer id.Address, now time.Time) {
	p.PotentialBuyer = buyer
	p.TrustRecorded = true
	p.Status = StatusTrusted
	p.UpdatedAt = now
}

// CanDeposit checks that caller may fund escrow with amount.
func (p *Property) CanDeposit(caller id.Address, amount id.Amount) error {
	if err := p.checkNotFrozen(); err != nil {
		return err
	}
	if p.PotentialBuyer.IsZero() || caller != p.PotentialBuyer {
		return dErrors.New(dErrors.CodeUnauthorized, "only the trusted buyer can deposit funds")
	}
	if p.Status != StatusTrusted {
		return dErrors.New(dErrors.CodeInvalidState, "funds can only be deposited once trust is recorded")
	}
	if amount != p.Price {
		return dErrors.New(dErrors.CodeWrongAmount, "deposit must equal the price exactly")
	}
	return nil
}

// CanConfirm checks that caller may confirm the escrowed funds.
func (p *Property) CanConfirm(caller id.Address) error {
	if err := p.checkNotFrozen(); err != nil {
		return err
	}
	if caller != p.Seller {
		return dErrors.New(dErrors.CodeUnauthorized, "only the seller can confirm funds")
	}
	if p.Status != StatusEscrowed {
		return dErrors.New(dErrors.CodeInvalidState, "funds can only be confirmed while escrowed")
	}
	return nil
}

func (p *Property) ApplyConfirm(now time.Time) {
	p.SellerConfirmed = true
	p.Status = StatusConfirmed
	p.UpdatedAt = now
}

// CanFinalize checks the property is ready for registrar settlement.
func (p *Property) CanFinalize() error {
	if err := p.checkNotFrozen(); err != nil {
		return err
	}
	if p.Status != StatusConfirmed {
		return dErrors.New(dErrors.CodeInvalidState, "only confirmed sales can be finalized")
	}
	return nil
}

// ApplyTransfer records the buyer as owner and closes the sale. A partnership
// only ever splits the seller's proceeds, so it ends with the sale.
func (p *Property) ApplyTransfer(now time.Time) {
	p.Owner = p.PotentialBuyer
	p.Status = StatusSold
	if p.Partnership != nil {
		p.Partnership.Active = false
	}
	p.UpdatedAt = now
}

// CanFreeze checks the property can be suspended.
func (p *Property) CanFreeze() error {
	if p.Frozen {
		return dErrors.New(dErrors.CodeAlreadyFrozen, "property is already frozen")
	}
	if p.Status == StatusSold {
		return dErrors.New(dErrors.CodeInvalidState, "sold properties cannot be frozen")
	}
	return nil
}

func (p *Property) ApplyFreeze(dispute Dispute, now time.Time) {
	p.Frozen = true
	p.Dispute = &dispute
	p.UpdatedAt = now
}

// CanUnfreeze checks the property is frozen.
func (p *Property) CanUnfreeze() error {
	if !p.Frozen {
		return dErrors.New(dErrors.CodeNotFrozen, "property is not frozen")
	}
	return nil
}

// ApplyUnfreeze lifts the gate and rolls the sale back to Active. Escrow was
// already refunded when the property was frozen.
func (p *Property) ApplyUnfreeze(now time.Time) {
	p.Frozen = false
	p.Dispute = nil
	p.Status = StatusActive
	p.PotentialBuyer = ""
	p.TrustRecorded = false
	p.SellerConfirmed = false
	p.Depositor = ""
	p.UpdatedAt = now
}

// CanInitiateLease checks that caller may request a tenancy.
func (p *Property) CanInitiateLease(caller id.Address, now time.Time) error {
	if err := p.checkNotFrozen(); err != nil {
		return err
	}
	if caller == p.Owner {
		return dErrors.New(dErrors.CodeValidation, "owner cannot lease their own property")
	}
	if p.Status != StatusActive || p.TrustRecorded {
		return dErrors.New(dErrors.CodeInvalidState, "leases can only start while active with no sale in progress")
	}
	if p.Lease.IsPending() {
		return dErrors.New(dErrors.CodeInvalidState, "a lease is already awaiting approval")
	}
	if p.Lease.IsActiveAt(now) {
		return dErrors.New(dErrors.CodeInvalidState, "property is currently leased")
	}
	return nil
}

// CanDecideLease checks there is a pending lease to approve or reject.
func (p *Property) CanDecideLease() error {
	if err := p.checkNotFrozen(); err != nil {
		return err
	}
	if !p.Lease.IsPending() {
		return dErrors.New(dErrors.CodeInvalidState, "no lease is awaiting approval")
	}
	return nil
}

// CanCreatePartnership checks that caller may attach a partnership.
func (p *Property) CanCreatePartnership(caller id.Address) error {
	if err := p.checkNotFrozen(); err != nil {
		return err
	}
	if caller != p.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "only the owner can create a partnership")
	}
	if p.Status != StatusActive || p.TrustRecorded {
		return dErrors.New(dErrors.CodeInvalidState, "partnerships can only be created before trust is recorded")
	}
	if p.Partnership != nil && p.Partnership.Active {
		return dErrors.New(dErrors.CodeInvalidState, "property already has an active partnership")
	}
	return nil
}

// CheckInvariants validates the aggregate before it is persisted.
func (p *Property) CheckInvariants() error {
	if !p.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown status")
	}
	if p.Frozen {
		if p.EscrowBalance != 0 || (p.Lease != nil && p.Lease.EscrowBalance != 0) {
			return dErrors.New(dErrors.CodeInvariantViolation, "frozen property still holds escrow")
		}
	} else if p.Status.HoldsEscrow() {
		if p.EscrowBalance != p.Price {
			return dErrors.New(dErrors.CodeInvariantViolation, "escrow must equal price while escrowed")
		}
	} else if p.EscrowBalance != 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "escrow held outside escrowed states")
	}
	if p.Frozen != (p.Dispute != nil) {
		return dErrors.New(dErrors.CodeInvariantViolation, "dispute must exist exactly while frozen")
	}
	if p.TrustRecorded != !p.PotentialBuyer.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "trust flag and buyer disagree")
	}
	if p.Status == StatusSold && p.Owner != p.PotentialBuyer {
		return dErrors.New(dErrors.CodeInvariantViolation, "sold property must be owned by the buyer")
	}
	if p.Lease != nil && p.Lease.Status != LeaseStatusPending && p.Lease.EscrowBalance != 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "lease escrow held outside a pending lease")
	}
	return nil
}
