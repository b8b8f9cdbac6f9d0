// ABOUTME: Unit tests for token issue/decode round-trips
// ABOUTME: Uses an injected clock to test the expiry boundary deterministically

package token

import (
	"errors"
	"testing"
	"time"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec := New([]byte("test-secret-key-for-token-signing"))

	tok, err := codec.Issue("user123", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := codec.Decode(tok)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if claims.Subject != "user123" {
		t.Errorf("Decode() subject = %q, want %q", claims.Subject, "user123")
	}
}

func TestCodec_ExpiryBoundary(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 10 * time.Minute

	clock := issuedAt
	codec := NewWithClock([]byte("boundary-secret"), func() time.Time { return clock })

	tok, err := codec.Issue("user123", ttl)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// Just before expiry the token is still valid
	clock = issuedAt.Add(ttl - time.Second)
	if _, err := codec.Decode(tok); err != nil {
		t.Errorf("Decode() just before expiry error = %v", err)
	}

	// Just after expiry it is not
	clock = issuedAt.Add(ttl + time.Second)
	_, err = codec.Decode(tok)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Decode() after expiry error = %v, want ErrExpiredToken", err)
	}
}

func TestCodec_DecodeIsIdempotent(t *testing.T) {
	codec := New([]byte("idempotent-secret"))

	tok, err := codec.Issue("user123", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	first, err := codec.Decode(tok)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	second, err := codec.Decode(tok)
	if err != nil {
		t.Fatalf("second Decode() error = %v", err)
	}
	if first != second {
		t.Errorf("Decode() not idempotent: %+v != %+v", first, second)
	}
}

func TestCodec_MalformedToken(t *testing.T) {
	codec := New([]byte("test-secret"))

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-token"},
		{name: "malformed structure", token: "header.payload.signature"},
		{
			name: "wrong secret",
			token: func() string {
				other := New([]byte("different-secret"))
				tok, _ := other.Issue("user123", time.Hour)
				return tok
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			if !errors.Is(err, ErrMalformedToken) {
				t.Errorf("Decode() error = %v, want ErrMalformedToken", err)
			}
		})
	}
}
