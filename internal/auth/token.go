package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

const issuer = "feeledger"

// Token uses.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims are the JWT claims issued to wallet owners. The subject is the
// principal id used by the deposit callable.
type Claims struct {
	jwt.RegisteredClaims
	Use     string `json:"use"`
	Phone   string `json:"phone,omitempty"`
	Tier    string `json:"tier,omitempty"`
	Version int    `json:"ver"`
}

// Sign creates an HS256 token for the given claims.
func Sign(claims Claims, secret []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses an HS256 token and validates its signature, expiry and use.
func Verify(token string, secret []byte, use string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Use != use {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func newClaims(use, subject string, version int, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Use:     use,
		Version: version,
	}
}
