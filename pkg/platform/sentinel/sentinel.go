package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about records, not validation failures:
// - ErrNotFound: record does not exist in the ledger
// - ErrConflict: a unique key is already taken
// - ErrOverflow: a balance update would overflow
// - ErrInsufficientFunds: a debit exceeds the balance
// - ErrUnavailable: backend temporarily unavailable
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrOverflow          = errors.New("overflow")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnavailable       = errors.New("unavailable")
)
