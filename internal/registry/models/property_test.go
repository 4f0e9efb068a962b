package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

const (
	seller   id.Address = "0xseller"
	buyer    id.Address = "0xbuyer"
	stranger id.Address = "0xstranger"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newActive(t *testing.T) *Property {
	t.Helper()
	p, err := NewProperty(7, seller, "ipfs://deed", 100, now)
	require.NoError(t, err)
	return p
}

func TestNewProperty(t *testing.T) {
	t.Run("starts active and owned by the seller", func(t *testing.T) {
		p := newActive(t)
		assert.Equal(t, StatusActive, p.Status)
		assert.Equal(t, seller, p.Owner)
		assert.NoError(t, p.CheckInvariants())
	})

	t.Run("rejects zero price", func(t *testing.T) {
		_, err := NewProperty(1, seller, "ipfs://deed", 0, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects missing metadata", func(t *testing.T) {
		_, err := NewProperty(1, seller, "  ", 10, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestRecordTrustGuards(t *testing.T) {
	t.Run("only the seller", func(t *testing.T) {
		p := newActive(t)
		err := p.CanRecordTrust(stranger, buyer)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("buyer must differ from seller", func(t *testing.T) {
		p := newActive(t)
		err := p.CanRecordTrust(seller, seller)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("cannot reassign once trusted", func(t *testing.T) {
		p := newActive(t)
		require.NoError(t, p.CanRecordTrust(seller, buyer))
		p.ApplyTrust(buyer, now)
		err := p.CanRecordTrust(seller, stranger)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("blocked by pending lease", func(t *testing.T) {
		p := newActive(t)
		lease, err := NewLease(stranger, time.Hour, 5, now)
		require.NoError(t, err)
		p.Lease = lease
		err = p.CanRecordTrust(seller, buyer)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestDepositGuards(t *testing.T) {
	trusted := func() *Property {
		p := newActive(t)
		p.ApplyTrust(buyer, now)
		return p
	}

	t.Run("exact amount only", func(t *testing.T) {
		p := trusted()
		assert.True(t, dErrors.HasCode(p.CanDeposit(buyer, 99), dErrors.CodeWrongAmount))
		assert.True(t, dErrors.HasCode(p.CanDeposit(buyer, 101), dErrors.CodeWrongAmount))
		assert.NoError(t, p.CanDeposit(buyer, 100))
	})

	t.Run("only the trusted buyer", func(t *testing.T) {
		p := trusted()
		assert.True(t, dErrors.HasCode(p.CanDeposit(stranger, 100), dErrors.CodeUnauthorized))
	})

	t.Run("nobody before trust", func(t *testing.T) {
		p := newActive(t)
		assert.True(t, dErrors.HasCode(p.CanDeposit(buyer, 100), dErrors.CodeUnauthorized))
	})

	t.Run("frozen gate wins", func(t *testing.T) {
		p := trusted()
		p.ApplyFreeze(Dispute{Reason: "fraud"}, now)
		assert.True(t, dErrors.HasCode(p.CanDeposit(buyer, 100), dErrors.CodeInvalidState))
	})
}

func TestFreezeToggle(t *testing.T) {
	p := newActive(t)
	assert.True(t, dErrors.HasCode(p.CanUnfreeze(), dErrors.CodeNotFrozen))

	require.NoError(t, p.CanFreeze())
	p.ApplyFreeze(Dispute{Reason: "boundary dispute", EvidenceRef: "ipfs://evidence"}, now)
	assert.True(t, dErrors.HasCode(p.CanFreeze(), dErrors.CodeAlreadyFrozen))
	assert.NoError(t, p.CheckInvariants())

	require.NoError(t, p.CanUnfreeze())
	p.ApplyUnfreeze(now)
	assert.False(t, p.Frozen)
	assert.Nil(t, p.Dispute)
	assert.Equal(t, StatusActive, p.Status)
	assert.NoError(t, p.CheckInvariants())
}

func TestUnfreezeResetsSale(t *testing.T) {
	p := newActive(t)
	p.ApplyTrust(buyer, now)
	p.ApplyFreeze(Dispute{Reason: "x"}, now)
	p.ApplyUnfreeze(now)

	assert.Equal(t, StatusActive, p.Status)
	assert.True(t, p.PotentialBuyer.IsZero())
	assert.False(t, p.TrustRecorded)
	assert.NoError(t, p.CanRecordTrust(seller, stranger))
}

func TestSoldIsTerminal(t *testing.T) {
	p := newActive(t)
	p.ApplyTrust(buyer, now)
	p.EscrowBalance = p.Price
	p.Status = StatusEscrowed
	p.ApplyConfirm(now)
	require.NoError(t, p.CanFinalize())
	p.EscrowBalance = 0
	p.ApplyTransfer(now)

	assert.Equal(t, buyer, p.Owner)
	assert.Equal(t, seller, p.Seller)
	assert.NoError(t, p.CheckInvariants())
	assert.True(t, dErrors.HasCode(p.CanFreeze(), dErrors.CodeInvalidState))
	assert.True(t, dErrors.HasCode(p.CanFinalize(), dErrors.CodeInvalidState))
}

func TestCheckInvariants(t *testing.T) {
	t.Run("escrow outside escrowed states", func(t *testing.T) {
		p := newActive(t)
		p.EscrowBalance = 1
		assert.True(t, dErrors.HasCode(p.CheckInvariants(), dErrors.CodeInvariantViolation))
	})

	t.Run("escrowed without funds", func(t *testing.T) {
		p := newActive(t)
		p.ApplyTrust(buyer, now)
		p.Status = StatusEscrowed
		assert.True(t, dErrors.HasCode(p.CheckInvariants(), dErrors.CodeInvariantViolation))
	})

	t.Run("frozen escrowed property holds nothing", func(t *testing.T) {
		p := newActive(t)
		p.ApplyTrust(buyer, now)
		p.Status = StatusEscrowed
		p.ApplyFreeze(Dispute{Reason: "x"}, now)
		assert.NoError(t, p.CheckInvariants())
	})
}

func TestLeaseGuards(t *testing.T) {
	t.Run("owner cannot lease", func(t *testing.T) {
		p := newActive(t)
		assert.True(t, dErrors.HasCode(p.CanInitiateLease(seller, now), dErrors.CodeValidation))
	})

	t.Run("not during a sale", func(t *testing.T) {
		p := newActive(t)
		p.ApplyTrust(buyer, now)
		assert.True(t, dErrors.HasCode(p.CanInitiateLease(stranger, now), dErrors.CodeInvalidState))
	})

	t.Run("approved lease blocks until expiry", func(t *testing.T) {
		p := newActive(t)
		lease, err := NewLease(stranger, time.Hour, 5, now)
		require.NoError(t, err)
		lease.EscrowBalance = 5
		p.Lease = lease
		released := p.Lease.Approve(now)
		assert.Equal(t, id.Amount(5), released)

		assert.True(t, dErrors.HasCode(p.CanInitiateLease(buyer, now.Add(30*time.Minute)), dErrors.CodeInvalidState))
		assert.NoError(t, p.CanInitiateLease(buyer, now.Add(2*time.Hour)))
	})

	t.Run("decide requires a pending lease", func(t *testing.T) {
		p := newActive(t)
		assert.True(t, dErrors.HasCode(p.CanDecideLease(), dErrors.CodeInvalidState))
	})
}

func TestPartnershipGuards(t *testing.T) {
	p := newActive(t)
	assert.True(t, dErrors.HasCode(p.CanCreatePartnership(stranger), dErrors.CodeUnauthorized))
	require.NoError(t, p.CanCreatePartnership(seller))

	ps, err := NewPartnership(seller, stranger, 50, now)
	require.NoError(t, err)
	p.Partnership = ps
	assert.True(t, dErrors.HasCode(p.CanCreatePartnership(seller), dErrors.CodeInvalidState))
}

func TestCloneIsDeep(t *testing.T) {
	p := newActive(t)
	p.ApplyFreeze(Dispute{Reason: "original"}, now)
	lease, err := NewLease(stranger, time.Hour, 5, now)
	require.NoError(t, err)
	p.Lease = lease

	c := p.Clone()
	c.Dispute.Reason = "changed"
	c.Lease.Status = LeaseStatusRejected

	assert.Equal(t, "original", p.Dispute.Reason)
	assert.Equal(t, LeaseStatusPending, p.Lease.Status)
}
