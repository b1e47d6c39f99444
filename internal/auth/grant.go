package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
	"github.com/BradenHooton/passcode/pkg/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const grantIssuer = "passcode"

// ErrInvalidGrant is returned for grants that fail signature, expiry or claim checks
var ErrInvalidGrant = errors.New("invalid verification grant")

// Grant is a signed verification grant
type Grant struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// GrantIssuer signs and validates short-lived verification grants. The
// signup and password reset flows present a grant to prove the caller
// verified a code for that email and purpose.
type GrantIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewGrantIssuer creates a new GrantIssuer
func NewGrantIssuer(secret string, ttl time.Duration, clk clock.Clock) *GrantIssuer {
	return &GrantIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clk,
	}
}

// Issue signs a grant for email and purpose
func (g *GrantIssuer) Issue(email string, purpose models.Purpose) (*Grant, error) {
	now := g.clock.Now()
	jti := uuid.New().String()
	expiresAt := now.Add(g.ttl)

	claims := &models.GrantClaims{
		Type:    models.GrantTokenType,
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    grantIssuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign verification grant: %w", err)
	}

	return &Grant{Token: token, ID: jti, ExpiresAt: expiresAt}, nil
}

// Validate verifies a grant and that it was issued for purpose
func (g *GrantIssuer) Validate(tokenString string, purpose models.Purpose) (*models.GrantClaims, error) {
	claims := &models.GrantClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(grantIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}

	if !token.Valid {
		return nil, ErrInvalidGrant
	}

	if claims.Type != models.GrantTokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidGrant, claims.Type)
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: issued for %q", ErrInvalidGrant, claims.Purpose)
	}

	return claims, nil
}
