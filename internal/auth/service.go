// ABOUTME: AuthService issues tokens after credential checks and verifies presented tokens
// ABOUTME: Verification always renders a Decision so HTTP callers get deterministic 401s

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chestscan/modelhub/internal/credentials"
	"github.com/chestscan/modelhub/internal/token"
)

// Auth errors
var (
	// ErrFailedAuthentication is returned for wrong credentials or unknown users.
	ErrFailedAuthentication = errors.New("wrong credentials or unknown user")

	// ErrServiceUnavailable means the auth dependency could not be reached.
	// "We could not check" is a different failure than "we checked and it's
	// bad": callers map this to 503, never 401.
	ErrServiceUnavailable = errors.New("auth service unavailable")
)

// Reason explains why a token was rejected.
type Reason string

const (
	ReasonMalformed Reason = "malformed token"
	ReasonExpired   Reason = "token expired"
)

// Decision is the outcome of verifying one token.
type Decision struct {
	Valid   bool
	Subject string
	Reason  Reason
}

// Verifier validates a bearer token and renders a decision. The error return
// is reserved for "could not check" conditions (remote auth service down);
// an invalid token is a valid=false decision, not an error.
type Verifier interface {
	Verify(ctx context.Context, tokenString string) (Decision, error)
}

// DefaultTokenTTL is how long issued tokens stay valid.
const DefaultTokenTTL = 10 * time.Minute

// Service issues and verifies tokens against an in-memory credential store.
// It is stateless apart from the read-only store and safe for concurrent use.
type Service struct {
	creds  *credentials.Store
	codec  *token.Codec
	ttl    time.Duration
	logger *slog.Logger
}

// NewService creates an auth service. A ttl of zero selects DefaultTokenTTL.
func NewService(creds *credentials.Store, codec *token.Codec, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		creds:  creds,
		codec:  codec,
		ttl:    ttl,
		logger: slog.Default().With("component", "auth"),
	}
}

// Login validates the credentials and issues a token for the username.
func (s *Service) Login(username, password string) (string, error) {
	if !s.creds.Check(username, password) {
		s.logger.Info("login rejected", "username", username)
		return "", ErrFailedAuthentication
	}

	tok, err := s.codec.Issue(username, s.ttl)
	if err != nil {
		return "", err
	}
	s.logger.Info("issued token", "username", username)
	return tok, nil
}

// Verify decodes the token and maps any decode failure to an invalid
// decision. It never returns an error: a local check cannot be unavailable.
func (s *Service) Verify(_ context.Context, tokenString string) (Decision, error) {
	claims, err := s.codec.Decode(tokenString)
	if err != nil {
		reason := ReasonMalformed
		if errors.Is(err, token.ErrExpiredToken) {
			reason = ReasonExpired
		}
		s.logger.Info("token rejected", "reason", string(reason))
		return Decision{Valid: false, Reason: reason}, nil
	}
	return Decision{Valid: true, Subject: claims.Subject}, nil
}
