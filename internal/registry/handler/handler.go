// Package handler exposes the land registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/registry/models"
	"landregistry/internal/registry/store"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/httputil"
	platformstrings "landregistry/pkg/platform/strings"
	"landregistry/pkg/requestcontext"
)

// Service is the registry surface the handler drives.
type Service interface {
	RequestMint(ctx context.Context, metadataRef string, price id.Amount) (*models.MintRequest, error)
	ApproveAndMint(ctx context.Context, requestID id.MintRequestID) (*models.Property, error)
	MintProperty(ctx context.Context, seller id.Address, metadataRef string, price id.Amount) (*models.Property, error)
	RecordTrust(ctx context.Context, tokenID id.TokenID, buyer id.Address) (*models.Property, error)
	DepositFunds(ctx context.Context, tokenID id.TokenID, amount id.Amount) (*models.Property, error)
	ConfirmFunds(ctx context.Context, tokenID id.TokenID) (*models.Property, error)
	FinalizeTransfer(ctx context.Context, tokenID id.TokenID) (*models.Property, error)
	FreezeProperty(ctx context.Context, tokenID id.TokenID, reason, evidenceRef string) (*models.Property, error)
	UnfreezeProperty(ctx context.Context, tokenID id.TokenID) (*models.Property, error)
	InitiateLease(ctx context.Context, tokenID id.TokenID, duration time.Duration, rent id.Amount) (*models.Property, error)
	ApproveLease(ctx context.Context, tokenID id.TokenID) (*models.Property, error)
	RejectLease(ctx context.Context, tokenID id.TokenID) (*models.Property, error)
	CreatePartnership(ctx context.Context, tokenID id.TokenID, partner id.Address, ownerShare uint8) (*models.Property, error)
	GrantRole(ctx context.Context, role models.Role, identity id.Address, expiresAt *time.Time) (*models.RoleGrant, error)
	RevokeRole(ctx context.Context, role models.Role, identity id.Address) error
	Withdraw(ctx context.Context) (id.Amount, error)

	GetProperty(ctx context.Context, tokenID id.TokenID) (*models.Property, error)
	ListProperties(ctx context.Context, filter store.PropertyFilter) ([]*models.Property, error)
	ListPendingSettlements(ctx context.Context) ([]*models.Property, error)
	CountProperties(ctx context.Context) (int, error)
	Stats(ctx context.Context) (models.Stats, error)
	GetMintRequest(ctx context.Context, requestID id.MintRequestID) (*models.MintRequest, error)
	ListMintRequests(ctx context.Context, pendingOnly bool) ([]*models.MintRequest, error)
	History(ctx context.Context, tokenID id.TokenID) ([]models.Event, error)
	HasRole(ctx context.Context, role models.Role, identity id.Address) (bool, error)
	RoleGrants(ctx context.Context, identity id.Address) ([]*models.RoleGrant, error)
	Balance(ctx context.Context, identity id.Address) (id.Amount, error)
}

// Handler serves the registry routes. Authentication happens upstream; the
// caller address is read from the request context by the service.
type Handler struct {
	registry Service
	logger   *slog.Logger
}

func New(registry Service, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register mounts the registry routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/mint-requests", func(r chi.Router) {
		r.Post("/", h.handleRequestMint)
		r.Get("/", h.handleListMintRequests)
		r.Get("/{requestID}", h.handleGetMintRequest)
		r.Post("/{requestID}/approve", h.handleApproveMint)
	})
	r.Route("/properties", func(r chi.Router) {
		r.Post("/", h.handleMintProperty)
		r.Get("/", h.handleListProperties)
		r.Get("/count", h.handleCountProperties)
		r.Route("/{tokenID}", func(r chi.Router) {
			r.Get("/", h.handleGetProperty)
			r.Get("/history", h.handleHistory)
			r.Post("/trust", h.handleRecordTrust)
			r.Post("/deposit", h.handleDeposit)
			r.Post("/confirm", h.propertyAction(h.registry.ConfirmFunds))
			r.Post("/finalize", h.propertyAction(h.registry.FinalizeTransfer))
			r.Post("/freeze", h.handleFreeze)
			r.Post("/unfreeze", h.propertyAction(h.registry.UnfreezeProperty))
			r.Post("/lease", h.handleInitiateLease)
			r.Post("/lease/approve", h.propertyAction(h.registry.ApproveLease))
			r.Post("/lease/reject", h.propertyAction(h.registry.RejectLease))
			r.Post("/partnership", h.handleCreatePartnership)
		})
	})
	r.Get("/settlements/pending", h.handlePendingSettlements)
	r.Get("/stats", h.handleStats)
	r.Route("/roles", func(r chi.Router) {
		r.Post("/", h.handleGrantRole)
		r.Get("/{role}/{identity}", h.handleHasRole)
		r.Delete("/{role}/{identity}", h.handleRevokeRole)
	})
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/withdraw", h.handleWithdraw)
		r.Get("/{identity}/balance", h.handleBalance)
		r.Get("/{identity}/roles", h.handleRoleGrants)
	})
}

// fail writes err and logs failures the client cannot fix. Rejected
// transitions are already logged by the service.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	httputil.WriteError(w, err)
}

func tokenIDParam(r *http.Request) (id.TokenID, error) {
	return id.ParseTokenID(chi.URLParam(r, "tokenID"))
}

type propertyFunc func(ctx context.Context, tokenID id.TokenID) (*models.Property, error)

// propertyAction adapts a body-less transition on one property.
func (h *Handler) propertyAction(fn propertyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenID, err := tokenIDParam(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		p, err := fn(r.Context(), tokenID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toPropertyResponse(p))
	}
}

func (h *Handler) handleRequestMint(w http.ResponseWriter, r *http.Request) {
	var body mintRequestBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	price, err := id.ParseAmount(body.Price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.registry.RequestMint(r.Context(), body.MetadataRef, price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toMintRequestResponse(req))
}

func (h *Handler) handleListMintRequests(w http.ResponseWriter, r *http.Request) {
	pendingOnly := false
	if raw := r.URL.Query().Get("pending"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, dErrors.New(dErrors.CodeInvalidInput, "pending must be a boolean"))
			return
		}
		pendingOnly = v
	}
	requests, err := h.registry.ListMintRequests(r.Context(), pendingOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]mintRequestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toMintRequestResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"mint_requests": out})
}

func (h *Handler) handleGetMintRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseMintRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.registry.GetMintRequest(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMintRequestResponse(req))
}

func (h *Handler) handleApproveMint(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseMintRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.registry.ApproveAndMint(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toPropertyResponse(p))
}

func (h *Handler) handleMintProperty(w http.ResponseWriter, r *http.Request) {
	var body mintPropertyBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	seller, err := id.ParseAddress(body.Seller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	price, err := id.ParseAmount(body.Price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.registry.MintProperty(r.Context(), seller, body.MetadataRef, price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toPropertyResponse(p))
}

func (h *Handler) handleListProperties(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePropertyFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	properties, err := h.registry.ListProperties(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"properties": toPropertyResponses(properties)})
}

// parsePropertyFilter reads owner, a repeatable or comma separated status,
// and frozen.
func parsePropertyFilter(r *http.Request) (store.PropertyFilter, error) {
	var filter store.PropertyFilter
	q := r.URL.Query()
	if raw := q.Get("owner"); raw != "" {
		owner, err := id.ParseAddress(raw)
		if err != nil {
			return filter, err
		}
		filter.Owner = owner
	}
	for _, raw := range q["status"] {
		for _, name := range platformstrings.SplitList(raw) {
			status, err := models.ParseStatus(name)
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := q.Get("frozen"); raw != "" {
		frozen, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeInvalidInput, "frozen must be a boolean")
		}
		filter.Frozen = &frozen
	}
	return filter, nil
}

func (h *Handler) handleCountProperties(w http.ResponseWriter, r *http.Request) {
	n, err := h.registry.CountProperties(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"total_properties": n})
}

func (h *Handler) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	h.propertyAction(h.registry.GetProperty)(w, r)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.registry.History(r.Context(), tokenID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": toEventResponses(events)})
}

func (h *Handler) handleRecordTrust(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body trustBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	buyer, err := id.ParseAddress(body.Buyer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.registry.RecordTrust(r.Context(), tokenID, buyer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPropertyResponse(p))
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body depositBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := id.ParseAmount(body.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.registry.DepositFunds(r.Context(), tokenID, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPropertyResponse(p))
}

func (h *Handler) handleFreeze(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body freezeBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.registry.FreezeProperty(r.Context(), tokenID, body.Reason, body.EvidenceRef)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPropertyResponse(p))
}

func (h *Handler) handleInitiateLease(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body leaseBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if body.DurationSeconds > math.MaxInt64/int64(time.Second) {
		h.fail(w, r, dErrors.New(dErrors.CodeValidation, "lease duration is too long"))
		return
	}
	rent, err := id.ParseAmount(body.Rent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	duration := time.Duration(body.DurationSeconds) * time.Second
	p, err := h.registry.InitiateLease(r.Context(), tokenID, duration, rent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPropertyResponse(p))
}

func (h *Handler) handleCreatePartnership(w http.ResponseWriter, r *http.Request) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body partnershipBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	partner, err := id.ParseAddress(body.Partner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if body.OwnerShare < 0 || body.OwnerShare > math.MaxUint8 {
		h.fail(w, r, dErrors.New(dErrors.CodeValidation, "owner share must be between 1 and 99"))
		return
	}
	p, err := h.registry.CreatePartnership(r.Context(), tokenID, partner, uint8(body.OwnerShare))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPropertyResponse(p))
}

func (h *Handler) handlePendingSettlements(w http.ResponseWriter, r *http.Request) {
	properties, err := h.registry.ListPendingSettlements(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"properties": toPropertyResponses(properties)})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.registry.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	var body grantRoleBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := models.ParseRole(body.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	identity, err := id.ParseAddress(body.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grant, err := h.registry.GrantRole(r.Context(), role, identity, body.ExpiresAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRoleGrantResponse(grant))
}

func roleParams(r *http.Request) (models.Role, id.Address, error) {
	role, err := models.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		return "", "", err
	}
	identity, err := id.ParseAddress(chi.URLParam(r, "identity"))
	if err != nil {
		return "", "", err
	}
	return role, identity, nil
}

func (h *Handler) handleHasRole(w http.ResponseWriter, r *http.Request) {
	role, identity, err := roleParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok, err := h.registry.HasRole(r.Context(), role, identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"role":     string(role),
		"identity": identity.String(),
		"has_role": ok,
	})
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	role, identity, err := roleParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.registry.RevokeRole(r.Context(), role, identity); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := h.registry.Withdraw(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	identity, err := id.ParseAddress(chi.URLParam(r, "identity"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.registry.Balance(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"identity": identity.String(),
		"balance":  balance.String(),
	})
}

func (h *Handler) handleRoleGrants(w http.ResponseWriter, r *http.Request) {
	identity, err := id.ParseAddress(chi.URLParam(r, "identity"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grants, err := h.registry.RoleGrants(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]roleGrantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toRoleGrantResponse(g))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"roles": out})
}
