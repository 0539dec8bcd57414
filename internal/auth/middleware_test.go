package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketledger/pocketledger/internal/auth"
	"github.com/pocketledger/pocketledger/internal/shared"
	_ "github.com/pocketledger/pocketledger/testing"
)

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, _ := shared.OwnerFromContext(r.Context())
		_, _ = w.Write([]byte(owner))
	})
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	a := auth.NewAuthenticator("secret", "pocketledger", nil)
	token, err := a.Issue("user-42", time.Hour)
	require.NoError(t, err)

	rec := serve(a.Middleware(ownerEcho()), "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", rec.Body.String())
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	a := auth.NewAuthenticator("secret", "pocketledger", nil)
	expired, err := auth.NewAuthenticator("secret", "pocketledger", nil).Issue("user-42", -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.NewAuthenticator("other-secret", "pocketledger", nil).Issue("user-42", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := auth.NewAuthenticator("secret", "someone-else", nil).Issue("user-42", time.Hour)
	require.NoError(t, err)
	noSubject, err := a.Issue("", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-42"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic dXNlcjpwYXNz",
		"garbage":      "Bearer not-a-token",
		"expired":      "Bearer " + expired,
		"bad secret":   "Bearer " + foreign,
		"wrong issuer": "Bearer " + wrongIssuer,
		"no subject":   "Bearer " + noSubject,
		"alg none":     "Bearer " + none,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(a.Middleware(ownerEcho()), header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"kind":"unauthorized"`)
		})
	}
}
