package password_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helpmespeak/helpmespeak-backend/internal/lib/password"
)

func TestGetHashAndCompare(t *testing.T) {
	hash, err := password.GetHash("secret123")
	assert.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.NoError(t, password.CompareHash(hash, "secret123"))
	assert.Error(t, password.CompareHash(hash, "wrongpassword"))
}

func TestGetHash_UniqueSalt(t *testing.T) {
	first, err := password.GetHash("secret123")
	assert.NoError(t, err)
	second, err := password.GetHash("secret123")
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
}
