package models

import (
	"encoding/json"
	"strings"

	dErrors "landregistry/pkg/domain-errors"
)

// Status is the position of a property in the sale lifecycle. The frozen
// gate is tracked separately on Property, not as a status.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusTrusted
	StatusEscrowed
	StatusConfirmed
	StatusSold
)

var statusNames = [...]string{"pending", "active", "trusted", "escrowed", "confirmed", "sold"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool { return int(s) < len(statusNames) }

// HoldsEscrow reports whether a property in this status carries sale escrow.
func (s Status) HoldsEscrow() bool {
	return s == StatusEscrowed || s == StatusConfirmed
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(v string) (Status, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+v)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
