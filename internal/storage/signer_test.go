package storage

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestSigner(t *testing.T, at time.Time) *URLSigner {
	t.Helper()
	s, err := NewURLSigner("http://localhost:8080/files", "test-secret")
	if err != nil {
		t.Fatalf("NewURLSigner: %v", err)
	}
	s.now = func() time.Time { return at }
	return s
}

func signedParams(t *testing.T, raw string) (expires, sig string) {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse signed url %q: %v", raw, err)
	}
	return u.Query().Get("expires"), u.Query().Get("sig")
}

func TestSignedURLRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, now)

	raw, err := s.SignedURL("user-1/book.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasPrefix(raw, "http://localhost:8080/files/user-1/book.pdf?") {
		t.Fatalf("unexpected url %q", raw)
	}
	expires, sig := signedParams(t, raw)
	if err := s.Verify("user-1/book.pdf", expires, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedKey(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, now)

	raw, err := s.SignedURL("user-1/book.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	expires, sig := signedParams(t, raw)
	if err := s.Verify("user-2/other.pdf", expires, sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Verify = %v, want ErrBadSignature", err)
	}
}

func TestVerifyRejectsExtendedExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, now)

	raw, err := s.SignedURL("user-1/book.pdf", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	_, sig := signedParams(t, raw)
	forged := now.Add(24 * time.Hour).Unix()
	if err := s.Verify("user-1/book.pdf", "9999999999", sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Verify with forged expiry %d = %v, want ErrBadSignature", forged, err)
	}
}

func TestVerifyRejectsExpiredSignature(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSigner(t, now)

	raw, err := s.SignedURL("user-1/book.pdf", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	expires, sig := signedParams(t, raw)

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	if err := s.Verify("user-1/book.pdf", expires, sig); !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("Verify = %v, want ErrSignatureExpired", err)
	}
}

func TestVerifyRejectsGarbageParams(t *testing.T) {
	s := newTestSigner(t, time.Now())
	if err := s.Verify("user-1/book.pdf", "not-a-number", "aaaa"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Verify = %v, want ErrBadSignature", err)
	}
	if err := s.Verify("../etc/passwd", "123", "aaaa"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Verify on traversal key = %v, want ErrBadSignature", err)
	}
}

func TestNewURLSignerValidation(t *testing.T) {
	if _, err := NewURLSigner("", "secret"); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	if _, err := NewURLSigner("http://localhost", "  "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
