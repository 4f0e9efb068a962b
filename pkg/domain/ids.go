// Package domain holds the primitive identifier and amount types shared by
// every layer. Parsers here are the trust boundary for untyped input.
package domain

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "landregistry/pkg/domain-errors"
)

// TokenID identifies a minted property. Ids are dense and start at 0.
type TokenID uint64

func (id TokenID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseTokenID parses a decimal token id.
func ParseTokenID(s string) (TokenID, error) {
	v, err := parseUint(s, "token id")
	return TokenID(v), err
}

// MintRequestID identifies a citizen submitted mint request.
type MintRequestID uint64

func (id MintRequestID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseMintRequestID parses a decimal mint request id.
func ParseMintRequestID(s string) (MintRequestID, error) {
	v, err := parseUint(s, "mint request id")
	return MintRequestID(v), err
}

func parseUint(s, what string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	return v, nil
}

// maxAddressLen bounds identities supplied by the authentication boundary.
const maxAddressLen = 128

// Address is a caller identity, the equivalent of a wallet address.
// Addresses are compared case-insensitively, so they are stored lower-cased.
type Address string

func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// ParseAddress validates and normalizes an identity.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be valid UTF-8")
	}
	s = strings.ToLower(s)
	if len(s) > maxAddressLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is too long")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "address must not contain whitespace")
		}
	}
	return Address(s), nil
}

// Amount is a non-negative quantity in the smallest currency unit.
type Amount uint64

func (a Amount) String() string { return strconv.FormatUint(uint64(a), 10) }

// ParseAmount parses a decimal amount.
func ParseAmount(s string) (Amount, error) {
	v, err := parseUint(s, "amount")
	return Amount(v), err
}

// Add returns a+b and false when the sum overflows.
func (a Amount) Add(b Amount) (Amount, bool) {
	if uint64(b) > math.MaxUint64-uint64(a) {
		return 0, false
	}
	return a + b, true
}
