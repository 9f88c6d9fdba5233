package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceUnavailable(t *testing.T) {
	cause := errors.New("429 too many requests")
	err := ServiceUnavailable("OpenAI", "Rate limit exceeded", cause)

	assert.Equal(t, "OpenAI is temporarily unavailable: Rate limit exceeded", err.Message)
	assert.Equal(t, "OpenAI", err.Service)
	assert.Equal(t, http.StatusServiceUnavailable, err.Kind.HTTPStatus())
	assert.Equal(t, "SERVICE_UNAVAILABLE", err.Kind.Code())
	assert.ErrorIs(t, err, cause)
}

func TestKindOf_Wrapped(t *testing.T) {
	base := Validation("Query cannot be empty", nil)
	wrapped := fmt.Errorf("answer: %w", base)

	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindValidation))
	assert.False(t, Is(wrapped, KindNotFound))

	ae, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "Query cannot be empty", ae.Message)
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, KindOf(errors.New("boom")).HTTPStatus())
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
		code   string
	}{
		{Validation("bad", nil), http.StatusBadRequest, "VALIDATION_ERROR"},
		{Authentication("no"), http.StatusUnauthorized, "AUTHENTICATION_ERROR"},
		{&Error{Kind: KindAuthorization, Message: "no"}, http.StatusForbidden, "AUTHORIZATION_ERROR"},
		{NotFound("Chapter", "42"), http.StatusNotFound, "NOT_FOUND"},
		{Conflict("dup"), http.StatusConflict, "CONFLICT"},
		{Internal(errors.New("x")), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.Kind.HTTPStatus())
		assert.Equal(t, tt.code, tt.err.Kind.Code())
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("Chapter", "42")
	assert.Equal(t, "Chapter with id 42 not found", err.Message)
	assert.Equal(t, "42", err.Details["id"])
}
