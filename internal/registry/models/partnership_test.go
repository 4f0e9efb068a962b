package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

func TestNewPartnership(t *testing.T) {
	t.Run("rejects self partnership", func(t *testing.T) {
		_, err := NewPartnership(seller, seller, 50, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects degenerate shares", func(t *testing.T) {
		for _, share := range []uint8{0, 100, 200} {
			_, err := NewPartnership(seller, buyer, share, now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "share %d", share)
		}
	})

	t.Run("shares sum to 100", func(t *testing.T) {
		p, err := NewPartnership(seller, buyer, 30, now)
		require.NoError(t, err)
		assert.Equal(t, [2]uint8{30, 70}, p.Shares)
		assert.True(t, p.Active)
	})
}

func TestSplit(t *testing.T) {
	sum := func(payouts []Payout) id.Amount {
		var total id.Amount
		for _, p := range payouts {
			total += p.Amount
		}
		return total
	}

	t.Run("even split", func(t *testing.T) {
		p, err := NewPartnership(seller, buyer, 50, now)
		require.NoError(t, err)
		payouts := p.Split(100)
		assert.Equal(t, []Payout{{To: seller, Amount: 50}, {To: buyer, Amount: 50}}, payouts)
	})

	t.Run("remainder goes to the second partner", func(t *testing.T) {
		p, err := NewPartnership(seller, buyer, 33, now)
		require.NoError(t, err)
		payouts := p.Split(10)
		assert.Equal(t, id.Amount(3), payouts[0].Amount)
		assert.Equal(t, id.Amount(7), payouts[1].Amount)
		assert.Equal(t, id.Amount(10), sum(payouts))
	})

	t.Run("no overflow near the top of the range", func(t *testing.T) {
		p, err := NewPartnership(seller, buyer, 99, now)
		require.NoError(t, err)
		payouts := p.Split(math.MaxUint64)
		assert.Equal(t, id.Amount(math.MaxUint64), sum(payouts))
		assert.Equal(t, id.Amount(18262276632972456098), payouts[0].Amount)
	})
}

func TestPayoutsFor(t *testing.T) {
	t.Run("single recipient without partnership", func(t *testing.T) {
		assert.Equal(t, []Payout{{To: seller, Amount: 10}}, PayoutsFor(seller, nil, 10))
	})

	t.Run("inactive partnership is ignored", func(t *testing.T) {
		p, err := NewPartnership(seller, buyer, 50, now)
		require.NoError(t, err)
		p.Active = false
		assert.Len(t, PayoutsFor(seller, p, 10), 1)
	})

	t.Run("partnership of another owner is ignored", func(t *testing.T) {
		p, err := NewPartnership(stranger, buyer, 50, now)
		require.NoError(t, err)
		assert.Equal(t, []Payout{{To: seller, Amount: 10}}, PayoutsFor(seller, p, 10))
	})
}
