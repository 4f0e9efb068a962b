// Package identity issues and verifies the bearer tokens that carry a
// caller's address. The registry trusts whatever address a valid token names.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// Claims are the access token claims. The subject is the caller address.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

type Option func(*TokenService)

// WithClock overrides the clock used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

func NewTokenService(signingKey, issuer string, opts ...Option) *TokenService {
	s := &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for address valid for ttl.
func (s *TokenService) Issue(address id.Address, ttl time.Duration) (string, error) {
	if address.IsZero() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}
	return signed, nil
}

// Verify validates tokenString and returns the normalized caller address.
func (s *TokenService) Verify(tokenString string) (id.Address, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthenticated, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthenticated, "invalid token claims")
	}
	address, err := id.ParseAddress(claims.Subject)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthenticated, "token subject is not an address")
	}
	return address, nil
}
