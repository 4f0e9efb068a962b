// Package store persists the ledger: properties, mint requests, role grants,
// account balances and the event log. It is the only mutable state in the
// registry. Stores are pure I/O; guards and transitions live in the service.
package store

import (
	"context"

	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
)

// PropertyFilter narrows ListProperties. Zero values mean "any".
type PropertyFilter struct {
	Owner    id.Address
	Statuses []models.Status
	Frozen   *bool
}

// Matches applies the filter to a single record.
func (f PropertyFilter) Matches(p *models.Property) bool {
	if !f.Owner.IsZero() && p.Owner != f.Owner {
		return false
	}
	if f.Frozen != nil && p.Frozen != *f.Frozen {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}

// Store is the view of the ledger available inside a transaction. Records
// passed in and returned are copies; mutating them has no effect until saved.
type Store interface {
	NextTokenID(ctx context.Context) (id.TokenID, error)
	NextMintRequestID(ctx context.Context) (id.MintRequestID, error)

	SaveProperty(ctx context.Context, p *models.Property) error
	FindProperty(ctx context.Context, tokenID id.TokenID) (*models.Property, error)
	ListProperties(ctx context.Context, filter PropertyFilter) ([]*models.Property, error)
	CountProperties(ctx context.Context) (int, error)
	// CountPropertiesByStatus groups properties by status and frozen flag.
	// Empty groups are omitted.
	CountPropertiesByStatus(ctx context.Context) ([]models.StatusCount, error)

	SaveMintRequest(ctx context.Context, r *models.MintRequest) error
	FindMintRequest(ctx context.Context, requestID id.MintRequestID) (*models.MintRequest, error)
	ListMintRequests(ctx context.Context, pendingOnly bool) ([]*models.MintRequest, error)
	CountPendingMintRequests(ctx context.Context) (int, error)

	SaveRoleGrant(ctx context.Context, g *models.RoleGrant) error
	DeleteRoleGrant(ctx context.Context, role models.Role, identity id.Address) error
	FindRoleGrant(ctx context.Context, role models.Role, identity id.Address) (*models.RoleGrant, error)
	ListRoleGrants(ctx context.Context, identity id.Address) ([]*models.RoleGrant, error)

	Credit(ctx context.Context, identity id.Address, amount id.Amount) error
	Debit(ctx context.Context, identity id.Address, amount id.Amount) error
	Balance(ctx context.Context, identity id.Address) (id.Amount, error)

	// AppendEvent assigns the next sequence number to e and records it.
	AppendEvent(ctx context.Context, e *models.Event) error
	ListEvents(ctx context.Context, tokenID id.TokenID) ([]models.Event, error)
}

// Outbox exposes committed events that have not yet reached the sinks.
type Outbox interface {
	ListUnpublishedEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventsPublished(ctx context.Context, sequences []uint64) error
}

// Ledger is a Store with a transactional boundary. Every mutation made
// through the Store handed to fn commits together or not at all, and
// transactions are applied one at a time in a total order.
type Ledger interface {
	Store
	Outbox
	RunInTx(ctx context.Context, fn func(s Store) error) error
	Close() error
}
