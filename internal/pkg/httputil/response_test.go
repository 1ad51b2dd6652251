package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type actionRequest struct {
	Action string `json:"action" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=10"`
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestDecodeAndValidate_MissingFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	var body actionRequest
	ok := DecodeAndValidate(rec, req, &body)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields: action, email", decodeBody(t, rec).Error)
}

func TestDecodeAndValidate_InvalidField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"pause","email":"nope"}`))
	rec := httptest.NewRecorder()

	var body actionRequest
	assert.False(t, DecodeAndValidate(rec, req, &body))
	assert.Equal(t, "Invalid value for field: email", decodeBody(t, rec).Error)
}

func TestDecodeAndValidate_OK(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"pause","email":"a@b.co"}`))
	rec := httptest.NewRecorder()

	var body actionRequest
	require.True(t, DecodeAndValidate(rec, req, &body))
	assert.Equal(t, "pause", body.Action)
}

func TestDecode_BadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	rec := httptest.NewRecorder()

	var body actionRequest
	assert.False(t, Decode(rec, req, &body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJSONHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, map[string]string{"id": "1"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	Unauthorized(rec)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody(t, rec).Error)
}
