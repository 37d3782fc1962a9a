package response_test

import (
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
)

func TestStatusOKWithData(t *testing.T) {
	resp := response.StatusOKWithData(map[string]any{"key": "value"})
	assert.Equal(t, response.StatusOK, resp.Status)
	assert.Empty(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestError(t *testing.T) {
	resp := response.Error("something broke")
	assert.Equal(t, response.StatusError, resp.Status)
	assert.Equal(t, "something broke", resp.Error)
}

func TestValidationError(t *testing.T) {
	type payload struct {
		Email    string `validate:"required,email"`
		Password string `validate:"required,min=8"`
		Code     string `validate:"omitempty,len=6,numeric"`
	}

	v := validator.New()
	err := v.Struct(payload{Email: "not-an-email", Password: "short", Code: "abc"})
	require.Error(t, err)

	resp := response.ValidationError(err.(validator.ValidationErrors))
	assert.Equal(t, response.StatusError, resp.Status)
	assert.Contains(t, resp.Error, "field Email must be a valid email address")
	assert.Contains(t, resp.Error, "field Password is too short")
	assert.Contains(t, resp.Error, "field Code has invalid length")
}
