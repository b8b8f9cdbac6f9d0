// ABOUTME: HTTP middleware enforcing bearer-token authentication on API endpoints
// ABOUTME: Distinguishes invalid tokens (401) from an unreachable auth dependency (503)

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	tok := strings.TrimPrefix(authHeader, "Bearer ")
	if tok == "" {
		return "", "empty token"
	}
	return tok, ""
}

// Middleware creates an HTTP middleware that extracts and verifies bearer
// tokens. Requests with a valid token continue with the subject attached to
// the request context; invalid tokens get 401. If the verifier itself is
// unavailable the request gets 503 so clients know to retry.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"message":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			decision, err := verifier.Verify(r.Context(), tok)
			if err != nil {
				if errors.Is(err, ErrServiceUnavailable) {
					http.Error(w, `{"message":"auth service unavailable"}`, http.StatusServiceUnavailable)
					return
				}
				http.Error(w, `{"message":"verification failed"}`, http.StatusInternalServerError)
				return
			}

			if !decision.Valid {
				http.Error(w, `{"message":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), decision.Subject)))
		})
	}
}
