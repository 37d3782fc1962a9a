package jwt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpmespeak/helpmespeak-backend/internal/lib/jwt"
)

func TestMaker_GenerateAndParse(t *testing.T) {
	maker := jwt.NewJWTMaker("test-secret")

	token, err := maker.GenerateToken("user@example.com", "user", "uid-1", 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := maker.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "uid-1", claims.UserUID)
}

func TestMaker_ParseWithWrongSecret(t *testing.T) {
	maker := jwt.NewJWTMaker("test-secret")
	other := jwt.NewJWTMaker("other-secret")

	token, err := maker.GenerateToken("user@example.com", "user", "uid-1", 15*time.Minute)
	require.NoError(t, err)

	claims, err := other.ParseToken(token)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestMaker_ParseExpiredToken(t *testing.T) {
	maker := jwt.NewJWTMaker("test-secret")

	token, err := maker.GenerateToken("user@example.com", "user", "uid-1", -time.Minute)
	require.NoError(t, err)

	claims, err := maker.ParseToken(token)
	assert.Error(t, err)
	assert.Nil(t, claims)
}
