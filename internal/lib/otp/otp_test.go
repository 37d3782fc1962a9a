package otp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helpmespeak/helpmespeak-backend/internal/lib/otp"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		code, err := otp.GenerateCode()
		assert.NoError(t, err)
		assert.Len(t, code, otp.CodeLength)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "code must be numeric: %s", code)
		}
		seen[code] = struct{}{}
	}
	// Сто генераций не должны схлопнуться в пару значений.
	assert.Greater(t, len(seen), 50)
}
