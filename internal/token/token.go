// Package token issues and verifies short-lived signed tokens bound to a
// single purpose and a single tenant. A token minted for one tenant's
// email-confirmation flow can never be replayed against another tenant or
// another flow.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatekit.dev/internal/apperr"
)

const (
	issuer   = "gatekit"
	audience = "gatekit"
)

// Purposes. Every token carries exactly one.
const (
	PurposeEmailConfirm  = "email-confirm"
	PurposePasswordReset = "password-reset"
)

// Default lifetimes. Password-reset is short since possession of a live
// inbox session is assumed recent.
const (
	EmailConfirmTTL  = 24 * time.Hour
	PasswordResetTTL = 10 * time.Minute
)

// Subject is what a successful verification returns.
type Subject struct {
	ID    string
	Email string
}

// Claims is the signed claim set. Purpose and tenant are first-class
// claims checked independently of the signature.
type Claims struct {
	Purpose  string `json:"purpose"`
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens with a shared secret (HS256).
type Service struct {
	secret []byte
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService builds a token service over the configured signing secret.
func NewService(secret string, opts ...Option) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	s := &Service{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for the subject, bound to purpose and tenant.
func (s *Service) Issue(purpose, subjectID, subjectEmail, tenantID string, ttl time.Duration) (string, error) {
	purpose = strings.TrimSpace(purpose)
	subjectID = strings.TrimSpace(subjectID)
	subjectEmail = strings.TrimSpace(strings.ToLower(subjectEmail))
	tenantID = strings.TrimSpace(strings.ToLower(tenantID))
	if purpose == "" || subjectID == "" || tenantID == "" {
		return "", errors.New("token: purpose, subject and tenant are required")
	}
	if ttl <= 0 {
		return "", errors.New("token: ttl must be greater than zero")
	}

	now := s.now().UTC()
	claims := Claims{
		Purpose:  purpose,
		Email:    subjectEmail,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure, expiry, purpose and tenant binding.
// Wrong purpose and wrong tenant return the same error class as a forged
// signature so callers cannot distinguish "right signature, wrong scope"
// from "wrong signature". Expiry alone gets its own class.
func (s *Service) Verify(raw, purpose, expectedTenantID string) (Subject, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Subject{}, apperr.InvalidToken()
	}
	expectedTenantID = strings.TrimSpace(strings.ToLower(expectedTenantID))

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Subject{}, apperr.TokenExpired()
		}
		return Subject{}, apperr.InvalidToken()
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Subject{}, apperr.InvalidToken()
	}
	if err := s.validateClaims(claims); err != nil {
		return Subject{}, apperr.InvalidToken()
	}
	if claims.Purpose != purpose {
		return Subject{}, apperr.InvalidToken()
	}
	if claims.TenantID != expectedTenantID {
		return Subject{}, apperr.InvalidToken()
	}
	return Subject{ID: claims.Subject, Email: claims.Email}, nil
}

func (s *Service) validateClaims(claims *Claims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	var audOK bool
	for _, aud := range claims.Audience {
		if aud == audience {
			audOK = true
			break
		}
	}
	if !audOK {
		return errors.New("audience missing")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := s.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
