package token

import (
	"errors"
	"testing"
	"time"

	"gatekit.dev/internal/apperr"
)

const testSecret = "test-signing-secret"

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t)
	raw, err := svc.Issue(PurposePasswordReset, "u1", "User@Acme.example", "Acme", PasswordResetTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	subject, err := svc.Verify(raw, PurposePasswordReset, "acme")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject.ID != "u1" {
		t.Fatalf("unexpected subject id %q", subject.ID)
	}
	if subject.Email != "user@acme.example" {
		t.Fatalf("unexpected subject email %q", subject.Email)
	}
}

func TestVerifyRejectsWrongTenant(t *testing.T) {
	svc := newTestService(t)
	raw, err := svc.Issue(PurposePasswordReset, "u1", "user@acme.example", "acme", PasswordResetTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = svc.Verify(raw, PurposePasswordReset, "beta")
	if !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong tenant, got %v", err)
	}
}

func TestVerifyRejectsWrongPurpose(t *testing.T) {
	svc := newTestService(t)
	raw, err := svc.Issue(PurposePasswordReset, "u1", "user@acme.example", "acme", PasswordResetTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = svc.Verify(raw, PurposeEmailConfirm, "acme")
	if !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong purpose, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	now := time.Now().UTC()
	current := now
	svc := newTestService(t, WithClock(func() time.Time { return current }))

	raw, err := svc.Issue(PurposePasswordReset, "u1", "user@acme.example", "acme", PasswordResetTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = now.Add(PasswordResetTTL + time.Minute)
	_, err = svc.Verify(raw, PurposePasswordReset, "acme")
	if !errors.Is(err, apperr.ErrTokenExpired) {
		t.Fatalf("expected token expired, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	svc := newTestService(t)
	other, err := NewService("a-different-secret")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	raw, err := other.Issue(PurposeEmailConfirm, "u1", "user@acme.example", "acme", EmailConfirmTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = svc.Verify(raw, PurposeEmailConfirm, "acme")
	if !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected invalid token for foreign signature, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t)
	for _, raw := range []string{"", "  ", "not-a-token", "a.b.c"} {
		if _, err := svc.Verify(raw, PurposeEmailConfirm, "acme"); !errors.Is(err, apperr.ErrInvalidToken) {
			t.Fatalf("expected invalid token for %q, got %v", raw, err)
		}
	}
}

func TestIssueValidation(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Issue("", "u1", "e@x", "acme", time.Minute); err == nil {
		t.Fatalf("expected error for empty purpose")
	}
	if _, err := svc.Issue(PurposeEmailConfirm, "", "e@x", "acme", time.Minute); err == nil {
		t.Fatalf("expected error for empty subject")
	}
	if _, err := svc.Issue(PurposeEmailConfirm, "u1", "e@x", "", time.Minute); err == nil {
		t.Fatalf("expected error for empty tenant")
	}
	if _, err := svc.Issue(PurposeEmailConfirm, "u1", "e@x", "acme", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
