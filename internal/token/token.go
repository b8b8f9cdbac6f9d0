// ABOUTME: Signed expiring bearer token codec shared by all services
// ABOUTME: HS256 JWTs with an injected clock so expiry is deterministic in tests

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrMalformedToken = errors.New("malformed token")
	ErrExpiredToken   = errors.New("token expired")
	ErrEncoding       = errors.New("token encoding failed")
)

// Claims is the decoded content of a token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Codec issues and decodes HS256 signed tokens. Decoding is a pure
// function of the token and the codec's clock; no state is touched.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// New creates a codec signing with the given secret and the wall clock.
func New(secret []byte) *Codec {
	return NewWithClock(secret, time.Now)
}

// NewWithClock creates a codec with an explicit clock. Tests use this to
// move time across the expiry boundary without sleeping.
func NewWithClock(secret []byte, now func() time.Time) *Codec {
	return &Codec{secret: secret, now: now}
}

// Issue creates a token for subject that expires ttl from now.
func (c *Codec) Issue(subject string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return signed, nil
}

// Decode validates the signature and expiry and extracts the claims.
// Returns ErrExpiredToken once the codec's clock passes the exp claim,
// ErrMalformedToken for anything structurally or cryptographically wrong.
func (c *Codec) Decode(tokenString string) (Claims, error) {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		// Only HS256-family tokens are accepted
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !tok.Valid {
		return Claims{}, ErrMalformedToken
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrMalformedToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Claims{}, fmt.Errorf("%w: missing sub claim", ErrMalformedToken)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}

	return Claims{Subject: sub, ExpiresAt: exp.Time}, nil
}
