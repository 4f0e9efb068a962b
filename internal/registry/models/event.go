package models

import (
	"maps"
	"time"

	"github.com/google/uuid"

	id "landregistry/pkg/domain"
)

// EventType names a committed ledger transition.
type EventType string

const (
	EventMintRequested      EventType = "MintRequested"
	EventPropertyMinted     EventType = "PropertyMinted"
	EventTrustRecorded      EventType = "TrustRecorded"
	EventFundsDeposited     EventType = "FundsDeposited"
	EventFundsConfirmed     EventType = "FundsConfirmed"
	EventTransferFinalized  EventType = "TransferFinalized"
	EventEscrowReleased     EventType = "EscrowReleased"
	EventEscrowRefunded     EventType = "EscrowRefunded"
	EventPropertyFrozen     EventType = "PropertyFrozen"
	EventPropertyUnfrozen   EventType = "PropertyUnfrozen"
	EventLeaseInitiated     EventType = "LeaseInitiated"
	EventLeaseApproved      EventType = "LeaseApproved"
	EventLeaseRejected      EventType = "LeaseRejected"
	EventPartnershipCreated EventType = "PartnershipCreated"
	EventRoleGranted        EventType = "RoleGranted"
	EventRoleRevoked        EventType = "RoleRevoked"
	EventFundsWithdrawn     EventType = "FundsWithdrawn"
)

// Event is the audit record of one committed transition. Sequence is
// assigned by the store when the event is appended and is strictly
// increasing across the whole ledger.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Sequence  uint64            `json:"sequence"`
	Type      EventType         `json:"type"`
	TokenID   *id.TokenID       `json:"token_id,omitempty"`
	Actor     id.Address        `json:"actor"`
	Timestamp time.Time         `json:"timestamp"`
	Args      map[string]string `json:"args,omitempty"`
}

// NewEvent builds an event for tokenID (nil for ledger-wide events).
func NewEvent(typ EventType, tokenID *id.TokenID, actor id.Address, now time.Time, args map[string]string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      typ,
		TokenID:   tokenID,
		Actor:     actor,
		Timestamp: now.UTC(),
		Args:      args,
	}
}

func (e Event) Clone() Event {
	c := e
	if e.TokenID != nil {
		t := *e.TokenID
		c.TokenID = &t
	}
	c.Args = maps.Clone(e.Args)
	return c
}
