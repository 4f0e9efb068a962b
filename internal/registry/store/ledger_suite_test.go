package store_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

// LedgerSuite exercises the Ledger contract; each backend embeds it and
// provides a fresh ledger per test.
type LedgerSuite struct {
	suite.Suite
	newLedger func() store.Ledger
	ledger    store.Ledger
	ctx       context.Context
	now       time.Time
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ledger = s.newLedger()
}

func (s *LedgerSuite) mintProperty(seller id.Address, price id.Amount) *models.Property {
	var p *models.Property
	err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
		tokenID, err := tx.NextTokenID(s.ctx)
		if err != nil {
			return err
		}
		p, err = models.NewProperty(tokenID, seller, "ipfs://parcel", price, s.now)
		if err != nil {
			return err
		}
		return tx.SaveProperty(s.ctx, p)
	})
	s.Require().NoError(err)
	return p
}

func (s *LedgerSuite) TestTokenIDsAreDenseFromZero() {
	for want := range 3 {
		p := s.mintProperty("0xseller", 100)
		s.Equal(id.TokenID(want), p.TokenID)
	}
	n, err := s.ledger.CountProperties(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *LedgerSuite) TestPropertyRoundTrip() {
	p := s.mintProperty("0xseller", 100)
	p.ApplyTrust("0xbuyer", s.now)
	p.Partnership = &models.Partnership{
		Partners: [2]id.Address{"0xseller", "0xpartner"},
		Shares:   [2]uint8{60, 40},
		Active:   true,
	}
	s.Require().NoError(s.ledger.SaveProperty(s.ctx, p))

	got, err := s.ledger.FindProperty(s.ctx, p.TokenID)
	s.Require().NoError(err)
	s.Equal(models.StatusTrusted, got.Status)
	s.Equal(id.Address("0xbuyer"), got.PotentialBuyer)
	s.Require().NotNil(got.Partnership)
	s.Equal([2]uint8{60, 40}, got.Partnership.Shares)
	s.True(got.CreatedAt.Equal(s.now))

	got.Status = models.StatusSold
	again, err := s.ledger.FindProperty(s.ctx, p.TokenID)
	s.Require().NoError(err)
	s.Equal(models.StatusTrusted, again.Status, "returned records must not alias stored ones")
}

func (s *LedgerSuite) TestFindPropertyNotFound() {
	_, err := s.ledger.FindProperty(s.ctx, 42)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestListPropertiesFilters() {
	a := s.mintProperty("0xalice", 100)
	s.mintProperty("0xbob", 200)
	c := s.mintProperty("0xalice", 300)
	c.ApplyTrust("0xbuyer", s.now)
	c.ApplyFreeze(models.Dispute{Reason: "boundary"}, s.now)
	s.Require().NoError(s.ledger.SaveProperty(s.ctx, c))

	byOwner, err := s.ledger.ListProperties(s.ctx, store.PropertyFilter{Owner: "0xalice"})
	s.Require().NoError(err)
	s.Require().Len(byOwner, 2)
	s.Equal(a.TokenID, byOwner[0].TokenID)
	s.Equal(c.TokenID, byOwner[1].TokenID)

	active, err := s.ledger.ListProperties(s.ctx, store.PropertyFilter{Statuses: []models.Status{models.StatusActive}})
	s.Require().NoError(err)
	s.Len(active, 2)

	frozen := true
	onlyFrozen, err := s.ledger.ListProperties(s.ctx, store.PropertyFilter{Frozen: &frozen})
	s.Require().NoError(err)
	s.Require().Len(onlyFrozen, 1)
	s.Equal(c.TokenID, onlyFrozen[0].TokenID)

	all, err := s.ledger.ListProperties(s.ctx, store.PropertyFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *LedgerSuite) TestCountPropertiesByStatus() {
	empty, err := s.ledger.CountPropertiesByStatus(s.ctx)
	s.Require().NoError(err)
	s.Empty(empty)

	s.mintProperty("0xalice", 100)
	s.mintProperty("0xbob", 200)
	trusted := s.mintProperty("0xalice", 300)
	trusted.ApplyTrust("0xbuyer", s.now)
	s.Require().NoError(s.ledger.SaveProperty(s.ctx, trusted))
	frozen := s.mintProperty("0xcarol", 400)
	frozen.ApplyTrust("0xbuyer", s.now)
	frozen.ApplyFreeze(models.Dispute{Reason: "boundary"}, s.now)
	s.Require().NoError(s.ledger.SaveProperty(s.ctx, frozen))

	counts, err := s.ledger.CountPropertiesByStatus(s.ctx)
	s.Require().NoError(err)
	s.Len(counts, 3)

	stats := models.NewStats(counts, 0)
	s.Equal(4, stats.Total)
	s.Equal(2, stats.ByStatus["active"])
	s.Equal(2, stats.ByStatus["trusted"])
	s.Equal(0, stats.ByStatus["sold"])
	s.Equal(1, stats.Frozen)
}

func (s *LedgerSuite) TestMintRequests() {
	var first, second *models.MintRequest
	err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
		for _, r := range []**models.MintRequest{&first, &second} {
			requestID, err := tx.NextMintRequestID(s.ctx)
			if err != nil {
				return err
			}
			*r = &models.MintRequest{ID: requestID, Seller: "0xseller", MetadataRef: "ipfs://x", Price: 5, Pending: true, CreatedAt: s.now}
			if err := tx.SaveMintRequest(s.ctx, *r); err != nil {
				return err
			}
		}
		return nil
	})
	s.Require().NoError(err)
	s.Equal(id.MintRequestID(0), first.ID)
	s.Equal(id.MintRequestID(1), second.ID)

	first.ApplyApproval(7, "0xregistrar", s.now)
	s.Require().NoError(s.ledger.SaveMintRequest(s.ctx, first))

	pending, err := s.ledger.ListMintRequests(s.ctx, true)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(second.ID, pending[0].ID)

	all, err := s.ledger.ListMintRequests(s.ctx, false)
	s.Require().NoError(err)
	s.Len(all, 2)

	n, err := s.ledger.CountPendingMintRequests(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	err = s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
		approved := *second
		approved.ApplyApproval(8, "0xregistrar", s.now)
		if err := tx.SaveMintRequest(s.ctx, &approved); err != nil {
			return err
		}
		n, err := tx.CountPendingMintRequests(s.ctx)
		s.Require().NoError(err)
		s.Zero(n)
		return errors.New("roll back")
	})
	s.Require().Error(err)
	n, err = s.ledger.CountPendingMintRequests(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.ledger.FindMintRequest(s.ctx, first.ID)
	s.Require().NoError(err)
	s.False(got.Pending)
	s.Require().NotNil(got.TokenID)
	s.Equal(id.TokenID(7), *got.TokenID)

	_, err = s.ledger.FindMintRequest(s.ctx, 99)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestRoleGrants() {
	grant := &models.RoleGrant{Role: models.RoleRegistrar, Identity: "0xreg", GrantedBy: "0xadmin", GrantedAt: s.now}
	s.Require().NoError(s.ledger.SaveRoleGrant(s.ctx, grant))
	s.Require().NoError(s.ledger.SaveRoleGrant(s.ctx, &models.RoleGrant{Role: models.RoleAdmin, Identity: "0xreg", GrantedAt: s.now}))

	got, err := s.ledger.FindRoleGrant(s.ctx, models.RoleRegistrar, "0xreg")
	s.Require().NoError(err)
	s.Equal(id.Address("0xadmin"), got.GrantedBy)

	grants, err := s.ledger.ListRoleGrants(s.ctx, "0xreg")
	s.Require().NoError(err)
	s.Require().Len(grants, 2)
	s.Equal(models.RoleAdmin, grants[0].Role)

	s.Require().NoError(s.ledger.DeleteRoleGrant(s.ctx, models.RoleRegistrar, "0xreg"))
	_, err = s.ledger.FindRoleGrant(s.ctx, models.RoleRegistrar, "0xreg")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.ledger.DeleteRoleGrant(s.ctx, models.RoleRegistrar, "0xreg"), sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestBalances() {
	s.Require().NoError(s.ledger.Credit(s.ctx, "0xseller", 70))
	s.Require().NoError(s.ledger.Credit(s.ctx, "0xseller", 30))

	bal, err := s.ledger.Balance(s.ctx, "0xseller")
	s.Require().NoError(err)
	s.Equal(id.Amount(100), bal)

	s.ErrorIs(s.ledger.Debit(s.ctx, "0xseller", 101), sentinel.ErrInsufficientFunds)
	s.Require().NoError(s.ledger.Debit(s.ctx, "0xseller", 100))

	bal, err = s.ledger.Balance(s.ctx, "0xseller")
	s.Require().NoError(err)
	s.Zero(bal)

	bal, err = s.ledger.Balance(s.ctx, "0xnobody")
	s.Require().NoError(err)
	s.Zero(bal)
}

func (s *LedgerSuite) TestCreditOverflow() {
	s.Require().NoError(s.ledger.Credit(s.ctx, "0xwhale", id.Amount(^uint64(0))))
	s.ErrorIs(s.ledger.Credit(s.ctx, "0xwhale", 1), sentinel.ErrOverflow)
}

func (s *LedgerSuite) TestRunInTxRollsBackEverything() {
	p := s.mintProperty("0xseller", 100)
	boom := errors.New("boom")

	err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
		p.ApplyTrust("0xbuyer", s.now)
		if err := tx.SaveProperty(s.ctx, p); err != nil {
			return err
		}
		if err := tx.Credit(s.ctx, "0xseller", 100); err != nil {
			return err
		}
		e := models.NewEvent(models.EventTrustRecorded, &p.TokenID, "0xseller", s.now, nil)
		if err := tx.AppendEvent(s.ctx, &e); err != nil {
			return err
		}
		if _, err := tx.NextTokenID(s.ctx); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.ledger.FindProperty(s.ctx, p.TokenID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, got.Status)

	bal, err := s.ledger.Balance(s.ctx, "0xseller")
	s.Require().NoError(err)
	s.Zero(bal)

	events, err := s.ledger.ListEvents(s.ctx, p.TokenID)
	s.Require().NoError(err)
	s.Empty(events)

	next := s.mintProperty("0xseller", 100)
	s.Equal(p.TokenID+1, next.TokenID, "rolled back counters must not leave gaps")
}

func (s *LedgerSuite) TestTransactionReadsItsOwnWrites() {
	p := s.mintProperty("0xseller", 100)
	err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
		p.ApplyTrust("0xbuyer", s.now)
		if err := tx.SaveProperty(s.ctx, p); err != nil {
			return err
		}
		got, err := tx.FindProperty(s.ctx, p.TokenID)
		if err != nil {
			return err
		}
		s.Equal(models.StatusTrusted, got.Status)
		if err := tx.Credit(s.ctx, "0xbuyer", 5); err != nil {
			return err
		}
		bal, err := tx.Balance(s.ctx, "0xbuyer")
		if err != nil {
			return err
		}
		s.Equal(id.Amount(5), bal)
		return nil
	})
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestEventsAndOutbox() {
	p := s.mintProperty("0xseller", 100)
	other := s.mintProperty("0xseller", 100)

	var appended []models.Event
	for _, tokenID := range []id.TokenID{p.TokenID, other.TokenID, p.TokenID} {
		e := models.NewEvent(models.EventPropertyMinted, &tokenID, "0xreg", s.now, map[string]string{"price": "100"})
		s.Require().NoError(s.ledger.AppendEvent(s.ctx, &e))
		appended = append(appended, e)
	}
	ledgerWide := models.NewEvent(models.EventRoleGranted, nil, "0xadmin", s.now, nil)
	s.Require().NoError(s.ledger.AppendEvent(s.ctx, &ledgerWide))

	s.Equal(uint64(1), appended[0].Sequence)
	s.Equal(uint64(2), appended[1].Sequence)
	s.Equal(uint64(3), appended[2].Sequence)
	s.Equal(uint64(4), ledgerWide.Sequence)

	history, err := s.ledger.ListEvents(s.ctx, p.TokenID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(uint64(1), history[0].Sequence)
	s.Equal(uint64(3), history[1].Sequence)
	s.Equal("100", history[0].Args["price"])
	s.Equal(appended[0].ID, history[0].ID)

	batch, err := s.ledger.ListUnpublishedEvents(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(batch, 2)
	s.Require().NoError(s.ledger.MarkEventsPublished(s.ctx, []uint64{batch[0].Sequence, batch[1].Sequence}))

	rest, err := s.ledger.ListUnpublishedEvents(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rest, 2)
	s.Equal(uint64(3), rest[0].Sequence)
	s.Nil(rest[1].TokenID)
}

func (s *LedgerSuite) TestConcurrentCreditsSerialize() {
	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
				return tx.Credit(s.ctx, "0xshared", 1)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}
	bal, err := s.ledger.Balance(s.ctx, "0xshared")
	s.Require().NoError(err)
	s.Equal(id.Amount(workers), bal)
}
