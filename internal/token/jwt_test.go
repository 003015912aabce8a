package token

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	m, err := NewManager("test-secret", "guardianentry", time.Hour)
	require.NoError(t, err)

	raw, err := m.Sign("uid-1", "ana@school.test")
	require.NoError(t, err)

	cred, err := m.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", cred.Subject)
	assert.Equal(t, "ana@school.test", cred.Email)
}

func TestVerifyRejects(t *testing.T) {
	m, err := NewManager("test-secret", "guardianentry", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("wrong secret", func(t *testing.T) {
		other, _ := NewManager("other-secret", "guardianentry", time.Hour)
		raw, _ := other.Sign("uid-1", "")
		_, err := m.Verify(ctx, raw)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, _ := NewManager("test-secret", "someone-else", time.Hour)
		raw, _ := other.Sign("uid-1", "")
		_, err := m.Verify(ctx, raw)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		past, _ := NewManager("test-secret", "guardianentry", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		raw, _ := past.Sign("uid-1", "")
		_, err := m.Verify(ctx, raw)
		assert.True(t, errors.Is(err, jwtlib.ErrTokenExpired), "got %v", err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify(ctx, "not.a.token")
		assert.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "uid-1",
			Issuer:    "guardianentry",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Verify(ctx, raw)
		assert.Error(t, err)
	})
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager("", "guardianentry", time.Hour)
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestSignRequiresSubject(t *testing.T) {
	m, _ := NewManager("s", "", 0)
	_, err := m.Sign("", "x@y")
	assert.ErrorIs(t, err, ErrSubjectRequired)
	assert.Equal(t, time.Hour, m.ttl)
}
