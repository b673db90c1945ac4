package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// SessionTokenTTL is the fixed lifetime of a session token.
const SessionTokenTTL = 8 * time.Hour

// SessionClaims is the claim set carried by a session token. The subject is
// the user id.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies stateless session tokens.
type TokenIssuer struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. An empty secret is a fatal
// misconfiguration and is reported as an error.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, oops.Code("AUTH_SECRET_MISSING").Errorf("session signing secret is not configured")
	}
	if ttl <= 0 {
		ttl = SessionTokenTTL
	}
	return &TokenIssuer{
		secretKey: []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// Issue creates a signed token for userID expiring after the issuer's TTL.
func (ti *TokenIssuer) Issue(userID string) (string, error) {
	now := ti.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secretKey)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").With("user_id", userID).Wrap(err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the subject. It returns
// ErrTokenExpired for an expired token and ErrTokenInvalid for anything else;
// both wrap ErrUnauthenticated.
func (ti *TokenIssuer) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrTokenInvalid
	}

	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return ti.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if !token.Valid || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
