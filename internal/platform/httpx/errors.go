// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/pocketledger/pocketledger/internal/shared"
)

var kindStatus = map[shared.Kind]int{
	shared.KindUnauthorized: http.StatusUnauthorized,
	shared.KindForbidden:    http.StatusForbidden,
	shared.KindNotFound:     http.StatusNotFound,
	shared.KindBadRequest:   http.StatusBadRequest,
	shared.KindConflict:     http.StatusConflict,
	shared.KindInvalidState: http.StatusUnprocessableEntity,
}

var kindTitle = map[shared.Kind]string{
	shared.KindUnauthorized: "Unauthorized",
	shared.KindForbidden:    "Forbidden",
	shared.KindNotFound:     "Not Found",
	shared.KindBadRequest:   "Bad Request",
	shared.KindConflict:     "Conflict",
	shared.KindInvalidState: "Invalid State",
}

// StatusOf returns the HTTP status for err's kind, 500 when it has none.
func StatusOf(err error) int {
	if status, ok := kindStatus[shared.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain error kinds to RFC7807 responses. Errors without a
// kind are reported as internal without leaking their message.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "", shared.KindUnknown)
		return
	}
	Problem(w, status, kindTitle[kind], err.Error(), kind)
}
