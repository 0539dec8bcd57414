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

	"github.com/pocketledger/pocketledger/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := map[shared.Kind]int{
		shared.KindUnauthorized: http.StatusUnauthorized,
		shared.KindForbidden:    http.StatusForbidden,
		shared.KindNotFound:     http.StatusNotFound,
		shared.KindBadRequest:   http.StatusBadRequest,
		shared.KindConflict:     http.StatusConflict,
		shared.KindInvalidState: http.StatusUnprocessableEntity,
	}
	for kind, status := range cases {
		t.Run(string(kind), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", shared.NewError(kind, "boom"))
			rec := httptest.NewRecorder()
			RespondError(rec, err)

			require.Equal(t, status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			var p ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, kind, p.Kind)
			assert.Equal(t, "wrapped: boom", p.Detail)
		})
	}
}

func TestRespondErrorHidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("x")))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	assert.Equal(t, shared.KindBadRequest, shared.KindOf(err))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "a", target.Name)
}
