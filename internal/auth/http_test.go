// ABOUTME: Unit tests for the bearer-token HTTP middleware
// ABOUTME: Verifies 401/503 mapping and subject propagation into the request context

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubVerifier returns a fixed decision or error.
type stubVerifier struct {
	decision Decision
	err      error
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (Decision, error) {
	return s.decision, s.err
}

func runMiddleware(t *testing.T, verifier Verifier, authHeader string) (*httptest.ResponseRecorder, string) {
	t.Helper()

	var gotSubject string
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/secured", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotSubject
}

func TestMiddleware_ValidToken(t *testing.T) {
	verifier := &stubVerifier{decision: Decision{Valid: true, Subject: "user123"}}

	rec, subject := runMiddleware(t, verifier, "Bearer some-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user123", subject)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	verifier := &stubVerifier{decision: Decision{Valid: true}}

	rec, _ := runMiddleware(t, verifier, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_BadScheme(t *testing.T) {
	verifier := &stubVerifier{decision: Decision{Valid: true}}

	rec, _ := runMiddleware(t, verifier, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_InvalidToken(t *testing.T) {
	verifier := &stubVerifier{decision: Decision{Valid: false, Reason: ReasonExpired}}

	rec, _ := runMiddleware(t, verifier, "Bearer expired-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_VerifierUnavailable(t *testing.T) {
	// When the auth dependency cannot be reached the caller gets 503, not
	// 401: the token was never actually checked.
	verifier := &stubVerifier{err: ErrServiceUnavailable}

	rec, _ := runMiddleware(t, verifier, "Bearer some-token")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
