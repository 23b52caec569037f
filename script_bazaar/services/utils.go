package services

import (
	"errors"
	"log/slog"
	"net/http"

	"script_ink/script_bazaar/core"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

// GetResponseCode maps core error kinds to status codes. Transport errors
// carry their own code through CodedError.
func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		switch coreErr.Kind {
		case core.Unauthenticated:
			return http.StatusUnauthorized
		case core.Forbidden:
			return http.StatusForbidden
		case core.NotFound:
			return http.StatusNotFound
		case core.InvalidArgument:
			return http.StatusBadRequest
		case core.Conflict:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}

	if core.KindOf(err) == core.NotFound {
		return http.StatusNotFound
	}

	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), GetResponseCode(err))
}
