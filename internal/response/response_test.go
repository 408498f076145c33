package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twofold/corner/internal/apperr"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestOK(t *testing.T) {
	rr := httptest.NewRecorder()
	OK(rr, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	env := decode(t, rr)
	assert.True(t, env.Success)
	assert.Equal(t, map[string]interface{}{"hello": "world"}, env.Data)
}

func TestErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"validation", apperr.Validation("Invalid file type."), http.StatusBadRequest, "Invalid file type."},
		{"authentication", apperr.Authentication("unauthorized"), http.StatusUnauthorized, "unauthorized"},
		{"permission", fmt.Errorf("wrap: %w", apperr.Permission("not a member")), http.StatusForbidden, "not a member"},
		{"not found", apperr.NotFound("nothing pinned"), http.StatusNotFound, "nothing pinned"},
		{"conflict", apperr.Conflict("locket is full"), http.StatusConflict, "locket is full"},
		{"configuration", apperr.Configuration("missing bucket"), http.StatusInternalServerError, "internal server error"},
		{"unclassified", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			Err(rr, r, tc.err)

			assert.Equal(t, tc.code, rr.Code)
			env := decode(t, rr)
			assert.False(t, env.Success)
			assert.Equal(t, tc.msg, env.Error)
		})
	}
}

func TestNoContent(t *testing.T) {
	rr := httptest.NewRecorder()
	NoContent(rr)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Zero(t, rr.Body.Len())
}
