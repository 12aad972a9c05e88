package family

import (
	"errors"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "callshield-family"

// Tokens signs and verifies pairing tokens. A token only names the pair;
// expiry and revocation are read from the stored pair.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

func (t *Tokens) Issue(pairID uuid.UUID) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       pairID.String(),
		Issuer:   tokenIssuer,
		IssuedAt: jwt.NewNumericDate(t.now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign pairing token: %w", err)
	}
	return signed, nil
}

// Parse returns the pair id carried by a valid token, or domain.ErrUnauthorized.
func (t *Tokens) Parse(token string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return uuid.Nil, fmt.Errorf("%w: malformed pairing token", domain.ErrUnauthorized)
		}
		return uuid.Nil, fmt.Errorf("%w: invalid pairing token", domain.ErrUnauthorized)
	}
	if !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid pairing token", domain.ErrUnauthorized)
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: pairing token has no pair id", domain.ErrUnauthorized)
	}
	return id, nil
}
