package ledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketledger/pocketledger/internal/platform/httpx"
	"github.com/pocketledger/pocketledger/internal/shared"
)

func newTestRouter(t *testing.T, owner string) http.Handler {
	t.Helper()
	svc, _, _ := newTestService(t)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if owner != "" {
				req = req.WithContext(shared.ContextWithOwner(req.Context(), owner))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHandlerAccountFlow(t *testing.T) {
	h := newTestRouter(t, testOwner)

	rec := doJSON(t, h, http.MethodPost, "/accounts", `{"name":"Bank","type":"bank","currency":"idr"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var acc Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, "IDR", acc.Currency)

	rec = doJSON(t, h, http.MethodPost, "/accounts", `{"name":"BANK","type":"bank","currency":"IDR"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, shared.KindConflict, decodeProblem(t, rec).Kind)

	rec = doJSON(t, h, http.MethodPut, "/accounts/"+acc.ID.String()+"/opening", `{"amount":150000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/expenses", `{"account_id":"`+acc.ID.String()+`","amount":"20.25"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/accounts/"+acc.ID.String()+"/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		Balance int64  `json:"balance"`
		Display string `json:"display"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, int64(150000-2025), balance.Balance)
	assert.Equal(t, "1479.75", balance.Display)

	rec = doJSON(t, h, http.MethodDelete, "/accounts/"+acc.ID.String(), "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, shared.KindInvalidState, decodeProblem(t, rec).Kind)

	rec = doJSON(t, h, http.MethodGet, "/accounts?with_balance=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []AccountWithBalance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, balance.Balance, rows[0].Balance)
}

func TestHandlerTransferErrors(t *testing.T) {
	h := newTestRouter(t, testOwner)
	rec := doJSON(t, h, http.MethodPost, "/accounts", `{"name":"Bank","type":"bank","currency":"IDR"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var acc Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))

	body := `{"from_account_id":"` + acc.ID.String() + `","to_account_id":"00000000-0000-0000-0000-000000000001","amount":"5"}`
	rec = doJSON(t, h, http.MethodPost, "/transfers", body, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.KindBadRequest, decodeProblem(t, rec).Kind)

	rec = doJSON(t, h, http.MethodGet, "/transfers/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/transfers/00000000-0000-0000-0000-000000000009", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/transfers", `{"unexpected":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerWithoutOwner(t *testing.T) {
	h := newTestRouter(t, "")
	rec := doJSON(t, h, http.MethodGet, "/accounts", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, shared.KindUnauthorized, decodeProblem(t, rec).Kind)
}
