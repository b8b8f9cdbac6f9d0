// ABOUTME: Request context plumbing for the authenticated subject
// ABOUTME: Provides WithSubject/SubjectFromContext used by handlers after middleware

package auth

import "context"

// subjectKey is the key type for storing the authenticated subject in a context.
type subjectKey struct{}

// WithSubject returns a new context with the authenticated subject attached.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext retrieves the authenticated subject, or "" if the
// request did not pass through the auth middleware.
func SubjectFromContext(ctx context.Context) string {
	val := ctx.Value(subjectKey{})
	if val == nil {
		return ""
	}
	subject, ok := val.(string)
	if !ok {
		return ""
	}
	return subject
}
