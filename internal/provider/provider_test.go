package provider

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaders_Get(t *testing.T) {
	h := Headers{
		{Name: "Subject", Value: "hello"},
		{Name: "message-id", Value: "<first@example.com>"},
		{Name: "Message-ID", Value: "<second@example.com>"},
	}

	v, ok := h.Get("MESSAGE-ID")
	assert.True(t, ok)
	assert.Equal(t, "<first@example.com>", v)

	v, ok = h.MessageID()
	assert.True(t, ok)
	assert.Equal(t, "<first@example.com>", v)

	_, ok = h.Get("In-Reply-To")
	assert.False(t, ok)

	_, ok = Headers(nil).MessageID()
	assert.False(t, ok)
}

func TestIsAuthError(t *testing.T) {
	err := fmt.Errorf("listing messages: %w", &AuthError{Provider: "nylas", Message: "bad key"})

	assert.True(t, IsAuthError(err))
	assert.Equal(t, "listing messages: auth error (nylas): bad key", err.Error())
	assert.False(t, IsAuthError(fmt.Errorf("plain")))
}
