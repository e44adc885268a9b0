package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)

	token, err := j.Issue("64f0c2a1b2c3d4e5f6a7b8c9")
	require.NoError(t, err)

	id, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "64f0c2a1b2c3d4e5f6a7b8c9", id)
}

func TestJWT_Expired(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return issued }

	token, err := j.Issue("user-1")
	require.NoError(t, err)

	j.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = j.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWT_SecretRotation(t *testing.T) {
	old := NewJWT("old-secret", time.Hour)
	token, err := old.Issue("user-1")
	require.NoError(t, err)

	_, err = NewJWT("new-secret", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_Rejects(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-1"}).
		SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":    "not.a.token",
		"empty":      "",
		"alg none":   none,
		"no expiry":  noExpiry,
		"no user id": noUser,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := j.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
