package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionRequest struct {
	ChatType string `validate:"required,chat_type"`
	ChatID   uint   `validate:"required,min=1"`
}

func TestChatTypeTag(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateStruct(sessionRequest{ChatType: "single", ChatID: 1}))
	assert.NoError(t, v.ValidateStruct(sessionRequest{ChatType: "group", ChatID: 1}))

	err := v.ValidateStruct(sessionRequest{ChatType: "channel", ChatID: 1})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"chattype": "ChatType must be single or group"}, FormatValidationErrors(err))
}

func TestFormatValidationErrors(t *testing.T) {
	err := NewValidator().ValidateStruct(sessionRequest{})
	require.Error(t, err)

	msgs := FormatValidationErrors(err)
	assert.Equal(t, "ChatType is required", msgs["chattype"])
	assert.Equal(t, "ChatID is required", msgs["chatid"])
}
