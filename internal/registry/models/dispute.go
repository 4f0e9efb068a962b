package models

import (
	"time"

	id "landregistry/pkg/domain"
)

// Dispute explains why a property is frozen. It exists only while frozen.
type Dispute struct {
	Reason      string     `json:"reason"`
	EvidenceRef string     `json:"evidence_ref,omitempty"`
	RaisedBy    id.Address `json:"raised_by"`
	RaisedAt    time.Time  `json:"raised_at"`
}
