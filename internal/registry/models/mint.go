package models

import (
	"strings"
	"time"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

const maxMetadataRefLen = 2048

// MintRequest is a citizen's request for a registrar to mint a property.
// It stays pending until approved; there is no expiry.
type MintRequest struct {
	ID          id.MintRequestID `json:"request_id"`
	Seller      id.Address       `json:"seller"`
	MetadataRef string           `json:"metadata_ref"`
	Price       id.Amount        `json:"price,string"`
	Pending     bool             `json:"pending"`
	TokenID     *id.TokenID      `json:"token_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ApprovedAt  *time.Time       `json:"approved_at,omitempty"`
	ApprovedBy  id.Address       `json:"approved_by,omitempty"`
}

// ValidateListing checks the fields shared by mint requests and direct mints.
func ValidateListing(metadataRef string, price id.Amount) (string, error) {
	metadataRef = strings.TrimSpace(metadataRef)
	if metadataRef == "" {
		return "", dErrors.New(dErrors.CodeValidation, "metadata reference is required")
	}
	if len(metadataRef) > maxMetadataRefLen {
		return "", dErrors.New(dErrors.CodeValidation, "metadata reference is too long")
	}
	if price == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "price must be positive")
	}
	return metadataRef, nil
}

// CanApprove checks the request has not already been consumed.
func (r *MintRequest) CanApprove() error {
	if !r.Pending {
		return dErrors.New(dErrors.CodeInvalidState, "mint request is not pending")
	}
	return nil
}

// ApplyApproval records that the request produced tokenID.
func (r *MintRequest) ApplyApproval(tokenID id.TokenID, registrar id.Address, now time.Time) {
	r.Pending = false
	r.TokenID = &tokenID
	r.ApprovedAt = &now
	r.ApprovedBy = registrar
}

func (r *MintRequest) Clone() *MintRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.TokenID != nil {
		t := *r.TokenID
		c.TokenID = &t
	}
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}
	return &c
}
