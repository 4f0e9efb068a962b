package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"landregistry/internal/registry/access"
	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// RequestMint records a citizen's request for a registrar to mint a title.
func (s *Service) RequestMint(ctx context.Context, metadataRef string, price id.Amount) (*models.MintRequest, error) {
	c, err := s.execute(ctx, "RequestMint", "", nil,
		func(ctx context.Context, tx store.Store, caller id.Address, now time.Time) (*change, error) {
			ref, err := models.ValidateListing(metadataRef, price)
			if err != nil {
				return nil, err
			}
			requestID, err := tx.NextMintRequestID(ctx)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate mint request id")
			}
			r := &models.MintRequest{
				ID:          requestID,
				Seller:      caller,
				MetadataRef: ref,
				Price:       price,
				Pending:     true,
				CreatedAt:   now,
			}
			if err := tx.SaveMintRequest(ctx, r); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save mint request")
			}
			c := &change{mint: r}
			c.emit(models.EventMintRequested, nil, caller, now, map[string]string{
				"request_id":   requestID.String(),
				"seller":       caller.String(),
				"price":        price.String(),
				"metadata_ref": ref,
			})
			return c, nil
		})
	if err != nil {
		return nil, err
	}
	return c.mint, nil
}

// ApproveAndMint consumes a pending mint request and mints its property.
func (s *Service) ApproveAndMint(ctx context.Context, requestID id.MintRequestID) (*models.Property, error) {
	attrs := []attribute.KeyValue{attribute.String("request_id", requestID.String())}
	c, err := s.execute(ctx, "ApproveAndMint", "mint:"+requestID.String(), attrs,
		func(ctx context.Context, tx store.Store, caller id.Address, now time.Time) (*change, error) {
			if err := access.Require(ctx, tx, models.RoleRegistrar, caller, now); err != nil {
				return nil, err
			}
			r, err := loadMintRequest(ctx, tx, requestID)
			if err != nil {
				return nil, err
			}
			if err := r.CanApprove(); err != nil {
				return nil, err
			}
			c, err := mint(ctx, tx, caller, r.Seller, r.MetadataRef, r.Price, now)
			if err != nil {
				return nil, err
			}
			c.property.MintRequestID = &r.ID
			c.events[0].Args["request_id"] = r.ID.String()
			r.ApplyApproval(c.property.TokenID, caller, now)
			if err := tx.SaveMintRequest(ctx, r); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save mint request")
			}
			c.mint = r
			return c, nil
		})
	if err != nil {
		return nil, err
	}
	return c.property, nil
}

// MintProperty lets a registrar mint directly for a preassigned seller.
func (s *Service) MintProperty(ctx context.Context, seller id.Address, metadataRef string, price id.Amount) (*models.Property, error) {
	c, err := s.execute(ctx, "MintProperty", "", nil,
		func(ctx context.Context, tx store.Store, caller id.Address, now time.Time) (*change, error) {
			if err := access.Require(ctx, tx, models.RoleRegistrar, caller, now); err != nil {
				return nil, err
			}
			return mint(ctx, tx, caller, seller, metadataRef, price, now)
		})
	if err != nil {
		return nil, err
	}
	return c.property, nil
}

func mint(ctx context.Context, tx store.Store, registrar, seller id.Address, metadataRef string, price id.Amount, now time.Time) (*change, error) {
	if _, err := models.ValidateListing(metadataRef, price); err != nil {
		return nil, err
	}
	if seller.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "seller is required")
	}
	tokenID, err := tx.NextTokenID(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate token id")
	}
	p, err := models.NewProperty(tokenID, seller, metadataRef, price, now)
	if err != nil {
		return nil, err
	}
	c := &change{property: p}
	c.emit(models.EventPropertyMinted, &p.TokenID, registrar, now, map[string]string{
		"seller":       seller.String(),
		"price":        price.String(),
		"metadata_ref": p.MetadataRef,
	})
	return c, nil
}
