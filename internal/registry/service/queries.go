package service

import (
	"context"
	"errors"
	"fmt"

	"landregistry/internal/registry/access"
	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

// GetProperty returns a property, preferring the cached snapshot.
func (s *Service) GetProperty(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	ctx, span := s.tracer.Start(ctx, "registry.GetProperty")
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, tokenID)
		switch {
		case err != nil:
			s.cacheLookup("error")
			s.logger.WarnContext(ctx, "property cache read failed", "token_id", tokenID.String(), "error", err)
		case cached != nil:
			s.cacheLookup("hit")
			return cached, nil
		default:
			s.cacheLookup("miss")
		}
	}

	p, err := s.ledger.FindProperty(ctx, tokenID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("property %s not found", tokenID))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	if s.cache != nil {
		if err := s.cache.Fill(ctx, p); err != nil {
			s.logger.WarnContext(ctx, "property cache fill failed", "token_id", tokenID.String(), "error", err)
		}
	}
	return p, nil
}

func (s *Service) cacheLookup(result string) {
	if s.metrics != nil {
		s.metrics.IncrementCacheLookup(result)
	}
}

// ListProperties returns properties matching filter in token order.
func (s *Service) ListProperties(ctx context.Context, filter store.PropertyFilter) ([]*models.Property, error) {
	properties, err := s.ledger.ListProperties(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list properties")
	}
	return properties, nil
}

// ListPendingSettlements returns confirmed, unfrozen sales awaiting a
// registrar's finalization.
func (s *Service) ListPendingSettlements(ctx context.Context) ([]*models.Property, error) {
	unfrozen := false
	return s.ListProperties(ctx, store.PropertyFilter{
		Statuses: []models.Status{models.StatusConfirmed},
		Frozen:   &unfrozen,
	})
}

// CountProperties is the number of titles ever minted. Token ids are dense,
// so it is also the next token id.
func (s *Service) CountProperties(ctx context.Context) (int, error) {
	n, err := s.ledger.CountProperties(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count properties")
	}
	return n, nil
}

// Stats summarizes the ledger for dashboards.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	counts, err := s.ledger.CountPropertiesByStatus(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count properties")
	}
	pending, err := s.ledger.CountPendingMintRequests(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count mint requests")
	}
	return models.NewStats(counts, pending), nil
}

func (s *Service) GetMintRequest(ctx context.Context, requestID id.MintRequestID) (*models.MintRequest, error) {
	r, err := s.ledger.FindMintRequest(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("mint request %s not found", requestID))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load mint request")
	}
	return r, nil
}

// ListMintRequests returns every mint request, or only the pending ones.
func (s *Service) ListMintRequests(ctx context.Context, pendingOnly bool) ([]*models.MintRequest, error) {
	requests, err := s.ledger.ListMintRequests(ctx, pendingOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list mint requests")
	}
	return requests, nil
}

// ListPendingMints is the registrar's inbox.
func (s *Service) ListPendingMints(ctx context.Context) ([]*models.MintRequest, error) {
	return s.ListMintRequests(ctx, true)
}

// History returns the committed events for a property in commit order.
// Nothing is synthesized: a property with no recorded events has an empty
// history.
func (s *Service) History(ctx context.Context, tokenID id.TokenID) ([]models.Event, error) {
	ctx, span := s.tracer.Start(ctx, "registry.History")
	defer span.End()

	if _, err := s.ledger.FindProperty(ctx, tokenID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("property %s not found", tokenID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	events, err := s.ledger.ListEvents(ctx, tokenID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}
	return events, nil
}

// HasRole reports whether identity currently holds role.
func (s *Service) HasRole(ctx context.Context, role models.Role, identity id.Address) (bool, error) {
	ok, err := access.HasRole(ctx, s.ledger, role, identity, requestcontext.Now(ctx))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check role")
	}
	return ok, nil
}

// RoleGrants lists identity's grants, including lapsed ones.
func (s *Service) RoleGrants(ctx context.Context, identity id.Address) ([]*models.RoleGrant, error) {
	grants, err := s.ledger.ListRoleGrants(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list role grants")
	}
	return grants, nil
}

// Balance is identity's withdrawable balance.
func (s *Service) Balance(ctx context.Context, identity id.Address) (id.Amount, error) {
	bal, err := s.ledger.Balance(ctx, identity)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return bal, nil
}
