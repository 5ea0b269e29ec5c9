package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manhwa-recommender/internal/common/errors"
)

const testSecret = "test-secret-that-is-long-enough-123456"

func TestVerifier_RoundTrip(t *testing.T) {
	v, err := NewVerifier(testSecret, "manhwa-platform")
	require.NoError(t, err)

	token, err := v.Sign("user-1", "reader", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "reader", claims.Username)
}

func TestVerifier_Rejects(t *testing.T) {
	v, err := NewVerifier(testSecret, "manhwa-platform")
	require.NoError(t, err)

	expired, err := v.Sign("user-1", "reader", -time.Minute)
	require.NoError(t, err)

	other, _ := NewVerifier("another-secret-entirely-000000000", "manhwa-platform")
	foreign, err := other.Sign("user-1", "reader", time.Hour)
	require.NoError(t, err)

	wrongIssuer, _ := NewVerifier(testSecret, "someone-else")
	wrongIss, err := wrongIssuer.Sign("user-1", "reader", time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ID: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "manhwa-platform"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired},
		{"wrong secret", foreign},
		{"wrong issuer", wrongIss},
		{"alg none", none},
		{"missing user id", noID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
		})
	}
}

func TestClaims_SubjectFallback(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"}}
	assert.Equal(t, "user-9", c.UserID())
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	claims := &Claims{ID: "user-1"}
	ctx := WithClaims(context.Background(), claims)
	assert.Same(t, claims, FromContext(ctx))
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier("", "")
	assert.Error(t, err)
}
