package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCustom = errors.New("custom kind")

func TestRespondErrorUsesCallerMappingsFirst(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("wrapped: %w", errCustom), ErrorMapping{Target: errCustom, Status: http.StatusConflict, Title: "Custom"})

	require.Equal(t, http.StatusConflict, rr.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Custom", body.Title)
	assert.Equal(t, "wrapped: custom kind", body.Detail)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRespondErrorDefaults(t *testing.T) {
	cases := []struct {
		err    error
		status int
		title  string
	}{
		{fmt.Errorf("%w: no card drawn yet for Ana", ErrNotFound), http.StatusNotFound, "Not Found"},
		{ErrForbidden, http.StatusForbidden, "Forbidden"},
		{fmt.Errorf("%w: wrong password", ErrUnauthorized), http.StatusUnauthorized, "Unauthorized"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, tc.title, body.Title)
		assert.Equal(t, tc.err.Error(), body.Detail)
	}

	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}

func TestRespondErrorLeavesCallerMappingsIntact(t *testing.T) {
	other := errors.New("other kind")
	backing := make([]ErrorMapping, 1, 4)
	backing[0] = ErrorMapping{Target: errCustom, Status: http.StatusConflict, Title: "Custom"}
	spare := backing[:4]
	spare[1] = ErrorMapping{Target: other, Status: http.StatusTeapot, Title: "Teapot"}

	RespondError(httptest.NewRecorder(), ErrNotFound, backing...)

	assert.Equal(t, other, spare[1].Target)
	assert.Equal(t, http.StatusTeapot, spare[1].Status)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Member string `json:"member"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"member":"a","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	require.Error(t, err)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"member":"a"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &target))
	assert.Equal(t, "a", target.Member)
}
