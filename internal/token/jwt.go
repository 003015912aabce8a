// Package token signs and verifies HS256 bearer credentials.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/guardianentry/sessiongate"
)

var (
	// ErrSecretRequired is returned when no signing secret is configured.
	ErrSecretRequired = errors.New("token: secret is required")

	// ErrSubjectRequired is returned when a token has no subject.
	ErrSubjectRequired = errors.New("token: subject is required")
)

// Claims is the JWT payload.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwtlib.RegisteredClaims
}

// Manager signs and verifies credentials with a shared secret.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager returns a Manager. A non-positive ttl defaults to one hour.
func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Sign creates a signed token for subject.
func (m *Manager) Sign(subject, email string) (string, error) {
	if subject == "" {
		return "", ErrSubjectRequired
	}
	now := m.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify validates raw and returns the credential it carries.
func (m *Manager) Verify(_ context.Context, raw string) (sessiongate.Credential, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(m.issuer))
	}

	parsed, err := jwtlib.ParseWithClaims(raw, &Claims{}, func(*jwtlib.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return sessiongate.Credential{}, fmt.Errorf("token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return sessiongate.Credential{}, errors.New("token: invalid token")
	}
	if claims.Subject == "" {
		return sessiongate.Credential{}, ErrSubjectRequired
	}
	return sessiongate.Credential{Subject: claims.Subject, Email: claims.Email}, nil
}
