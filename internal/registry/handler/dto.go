package handler

import (
	"time"

	"landregistry/internal/registry/models"
)

type mintRequestBody struct {
	MetadataRef string `json:"metadata_ref"`
	Price       string `json:"price"`
}

type mintPropertyBody struct {
	Seller      string `json:"seller"`
	MetadataRef string `json:"metadata_ref"`
	Price       string `json:"price"`
}

type trustBody struct {
	Buyer string `json:"buyer"`
}

type depositBody struct {
	Amount string `json:"amount"`
}

type freezeBody struct {
	Reason      string `json:"reason"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
}

type leaseBody struct {
	DurationSeconds int64  `json:"duration_seconds"`
	Rent            string `json:"rent"`
}

type partnershipBody struct {
	Partner    string `json:"partner"`
	OwnerShare int    `json:"owner_share"`
}

type grantRoleBody struct {
	Role      string     `json:"role"`
	Identity  string     `json:"identity"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type leaseResponse struct {
	Tenant          string     `json:"tenant"`
	DurationSeconds int64      `json:"duration_seconds"`
	RentAmount      string     `json:"rent_amount"`
	EscrowBalance   string     `json:"escrow_balance"`
	Status          string     `json:"status"`
	InitiatedAt     time.Time  `json:"initiated_at"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	Expiry          *time.Time `json:"expiry,omitempty"`
}

type partnershipResponse struct {
	Partners []string `json:"partners"`
	Shares   []uint8  `json:"share_percentages"`
	Active   bool     `json:"active"`
}

type disputeResponse struct {
	Reason      string    `json:"reason"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`
	RaisedBy    string    `json:"raised_by"`
	RaisedAt    time.Time `json:"raised_at"`
}

type propertyResponse struct {
	TokenID         string               `json:"token_id"`
	Price           string               `json:"price"`
	Status          string               `json:"status"`
	Seller          string               `json:"seller"`
	Owner           string               `json:"owner"`
	PotentialBuyer  string               `json:"potential_buyer,omitempty"`
	TrustRecorded   bool                 `json:"trust_recorded"`
	SellerConfirmed bool                 `json:"seller_confirmed"`
	EscrowBalance   string               `json:"escrow_balance"`
	Frozen          bool                 `json:"frozen"`
	Dispute         *disputeResponse     `json:"dispute,omitempty"`
	MetadataRef     string               `json:"metadata_ref"`
	Lease           *leaseResponse       `json:"lease,omitempty"`
	Partnership     *partnershipResponse `json:"partnership,omitempty"`
	MintRequestID   string               `json:"mint_request_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func toPropertyResponse(p *models.Property) propertyResponse {
	resp := propertyResponse{
		TokenID:         p.TokenID.String(),
		Price:           p.Price.String(),
		Status:          p.Status.String(),
		Seller:          p.Seller.String(),
		Owner:           p.Owner.String(),
		PotentialBuyer:  p.PotentialBuyer.String(),
		TrustRecorded:   p.TrustRecorded,
		SellerConfirmed: p.SellerConfirmed,
		EscrowBalance:   p.EscrowBalance.String(),
		Frozen:          p.Frozen,
		MetadataRef:     p.MetadataRef,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if d := p.Dispute; d != nil {
		resp.Dispute = &disputeResponse{
			Reason:      d.Reason,
			EvidenceRef: d.EvidenceRef,
			RaisedBy:    d.RaisedBy.String(),
			RaisedAt:    d.RaisedAt,
		}
	}
	if l := p.Lease; l != nil {
		resp.Lease = &leaseResponse{
			Tenant:          l.Tenant.String(),
			DurationSeconds: int64(l.Duration / time.Second),
			RentAmount:      l.RentAmount.String(),
			EscrowBalance:   l.EscrowBalance.String(),
			Status:          string(l.Status),
			InitiatedAt:     l.InitiatedAt,
			ApprovedAt:      l.ApprovedAt,
			Expiry:          l.Expiry,
		}
	}
	if pp := p.Partnership; pp != nil {
		resp.Partnership = &partnershipResponse{
			Partners: []string{pp.Partners[0].String(), pp.Partners[1].String()},
			Shares:   []uint8{pp.Shares[0], pp.Shares[1]},
			Active:   pp.Active,
		}
	}
	if p.MintRequestID != nil {
		resp.MintRequestID = p.MintRequestID.String()
	}
	return resp
}

func toPropertyResponses(properties []*models.Property) []propertyResponse {
	out := make([]propertyResponse, 0, len(properties))
	for _, p := range properties {
		out = append(out, toPropertyResponse(p))
	}
	return out
}

type mintRequestResponse struct {
	RequestID   string     `json:"request_id"`
	Seller      string     `json:"seller"`
	MetadataRef string     `json:"metadata_ref"`
	Price       string     `json:"price"`
	Pending     bool       `json:"pending"`
	TokenID     string     `json:"token_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
}

func toMintRequestResponse(r *models.MintRequest) mintRequestResponse {
	resp := mintRequestResponse{
		RequestID:   r.ID.String(),
		Seller:      r.Seller.String(),
		MetadataRef: r.MetadataRef,
		Price:       r.Price.String(),
		Pending:     r.Pending,
		CreatedAt:   r.CreatedAt,
		ApprovedAt:  r.ApprovedAt,
		ApprovedBy:  r.ApprovedBy.String(),
	}
	if r.TokenID != nil {
		resp.TokenID = r.TokenID.String()
	}
	return resp
}

type eventResponse struct {
	ID        string            `json:"id"`
	Sequence  uint64            `json:"sequence"`
	Type      string            `json:"type"`
	TokenID   string            `json:"token_id,omitempty"`
	Actor     string            `json:"actor"`
	Timestamp time.Time         `json:"timestamp"`
	Args      map[string]string `json:"args,omitempty"`
}

func toEventResponses(events []models.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		r := eventResponse{
			ID:        e.ID.String(),
			Sequence:  e.Sequence,
			Type:      string(e.Type),
			Actor:     e.Actor.String(),
			Timestamp: e.Timestamp,
			Args:      e.Args,
		}
		if e.TokenID != nil {
			r.TokenID = e.TokenID.String()
		}
		out = append(out, r)
	}
	return out
}

type roleGrantResponse struct {
	Role      string     `json:"role"`
	Identity  string     `json:"identity"`
	GrantedBy string     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toRoleGrantResponse(g *models.RoleGrant) roleGrantResponse {
	return roleGrantResponse{
		Role:      string(g.Role),
		Identity:  g.Identity.String(),
		GrantedBy: g.GrantedBy.String(),
		GrantedAt: g.GrantedAt,
		ExpiresAt: g.ExpiresAt,
	}
}
