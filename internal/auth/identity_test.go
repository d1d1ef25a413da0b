package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-testing")

func TestStaticSupplier(t *testing.T) {
	s := NewStaticSupplier("")
	_, ok := s.UserID()
	assert.False(t, ok)

	s.SetUserID("user-1")
	id, ok := s.UserID()
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)

	s.SetUserID("")
	_, ok = s.UserID()
	assert.False(t, ok)
}

func TestGenerateAndDecodeSessionToken(t *testing.T) {
	token, exp, err := GenerateSessionToken("user-1", testSecret, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Greater(t, exp, time.Now().Unix())

	sub, err := DecodeSessionToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestGenerateSessionToken_RequiresUser(t *testing.T) {
	_, _, err := GenerateSessionToken("", testSecret, time.Hour)
	assert.Error(t, err)
}

func TestDecodeSessionToken_Rejects(t *testing.T) {
	valid, _, err := GenerateSessionToken("user-1", testSecret, time.Hour)
	require.NoError(t, err)

	expired, _, err := GenerateSessionToken("user-1", testSecret, -time.Minute)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret []byte
	}{
		{"wrong secret", valid, []byte("other-secret")},
		{"expired", expired, testSecret},
		{"garbage", "not.a.token", testSecret},
		{"no subject", noSubject, testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSessionToken(tt.token, tt.secret)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenSupplier(t *testing.T) {
	token, _, err := GenerateSessionToken("user-7", testSecret, time.Hour)
	require.NoError(t, err)

	s := NewTokenSupplier("", testSecret)
	_, ok := s.UserID()
	assert.False(t, ok)

	s.SetToken(token)
	id, ok := s.UserID()
	assert.True(t, ok)
	assert.Equal(t, "user-7", id)

	s.SetToken("tampered" + token)
	_, ok = s.UserID()
	assert.False(t, ok)
}
