package models

import (
	"math/bits"
	"time"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Partnership splits settlement proceeds between the owner and one partner.
// Partners[0] is always the owner who created it; Shares sum to 100.
type Partnership struct {
	Partners  [2]id.Address `json:"partners"`
	Shares    [2]uint8      `json:"share_percentages"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
}

// Payout is one credit produced by releasing escrow.
type Payout struct {
	To     id.Address `json:"to"`
	Amount id.Amount  `json:"amount,string"`
}

// NewPartnership validates a split between owner and partner.
func NewPartnership(owner, partner id.Address, ownerShare uint8, now time.Time) (*Partnership, error) {
	if partner.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "partner is required")
	}
	if partner == owner {
		return nil, dErrors.New(dErrors.CodeValidation, "partner must differ from owner")
	}
	if ownerShare == 0 || ownerShare >= 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "owner share must be between 1 and 99")
	}
	return &Partnership{
		Partners:  [2]id.Address{owner, partner},
		Shares:    [2]uint8{ownerShare, 100 - ownerShare},
		Active:    true,
		CreatedAt: now,
	}, nil
}

// Split divides amount by share. The first partner receives the floor of its
// share and the second receives the remainder, so the payouts always sum to
// amount exactly.
func (p *Partnership) Split(amount id.Amount) []Payout {
	first := shareOf(amount, p.Shares[0])
	return []Payout{
		{To: p.Partners[0], Amount: first},
		{To: p.Partners[1], Amount: amount - first},
	}
}

// shareOf computes floor(amount*pct/100) without overflowing uint64.
func shareOf(amount id.Amount, pct uint8) id.Amount {
	hi, lo := bits.Mul64(uint64(amount), uint64(pct))
	q, _ := bits.Div64(hi, lo, 100)
	return id.Amount(q)
}

// PayoutsFor returns how a release of amount to owner is distributed, taking
// an active partnership into account.
func PayoutsFor(owner id.Address, partnership *Partnership, amount id.Amount) []Payout {
	if partnership != nil && partnership.Active && partnership.Partners[0] == owner {
		return partnership.Split(amount)
	}
	return []Payout{{To: owner, Amount: amount}}
}
