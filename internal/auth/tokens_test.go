package auth

import (
	"errors"
	"testing"
	"time"

	"seolens/internal/models"
)

func testUser() models.User {
	return models.User{ID: "user-1", Username: "creator"}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(""); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
}

func TestIssueAndVerify(t *testing.T) {
	svc, err := NewService("test-secret")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	token, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	identity, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", identity.UserID)
	}
	if identity.Username != "creator" {
		t.Fatalf("expected creator, got %q", identity.Username)
	}
}

func TestVerifyFailureModes(t *testing.T) {
	svc, err := NewService("test-secret")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	other, err := NewService("other-secret")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	token, err := other.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "missing", token: "", want: ErrMissingToken},
		{name: "malformed", token: "not-a-jwt", want: ErrInvalidToken},
		{name: "wrong signature", token: token, want: ErrInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Verify(tc.token); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTokenExpiresAfterTTL(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	svc, err := NewService("test-secret", WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	token, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Just before the one hour boundary the token still verifies.
	current = issuedAt.Add(time.Hour - time.Second)
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("expected token to verify before expiry, got %v", err)
	}

	current = issuedAt.Add(time.Hour + time.Second)
	if _, err := svc.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestWithTTLOverridesLifetime(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	svc, err := NewService("test-secret",
		WithTTL(2*time.Hour),
		WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	token, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	current = issuedAt.Add(90 * time.Minute)
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("expected extended token to verify, got %v", err)
	}
}
