package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotErrorError(t *testing.T) {
	err := NewError(ProviderError, "upstream failed", http.StatusBadGateway, "req_1", nil, fmt.Errorf("boom"))
	assert.Equal(t, "provider_error: upstream failed: boom", err.Error())

	noWrap := NewValidationError("req_2", "bad input", nil)
	assert.Equal(t, "validation_error: bad input", noWrap.Error())
}

func TestBotErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("inner")
	err := NewInternalError("req_1", inner)
	assert.Equal(t, inner, err.Unwrap())
}

func TestBotErrorIs(t *testing.T) {
	a := NewValidationError("req_1", "first", nil)
	b := NewValidationError("req_2", "second", nil)
	c := NewInternalError("req_3", nil)

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewProviderError("req_42", "model unavailable", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ProviderError, resp.Type)
	assert.Equal(t, "model unavailable", resp.Message)
	assert.Equal(t, "req_42", resp.RequestID)
}

func TestErrorWithTypeUsesHeaderRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req_7")

	ErrorWithType(rec, "rate limited", RateLimitError, http.StatusTooManyRequests)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, RateLimitError, resp.Type)
	assert.Equal(t, "req_7", resp.RequestID)
}
