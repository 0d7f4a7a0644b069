package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tensord/internal/bridge"
	"tensord/internal/catalog"
	"tensord/internal/manager"
	"tensord/pkg/tensorvec"
	"tensord/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSONErrorHint(w, status, msg, "")
}

func writeJSONErrorHint(w http.ResponseWriter, status int, msg, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status, Hint: hint})
}

// statusFor maps well-known errors to HTTP status codes. Syntax errors also
// yield their positional hint.
func statusFor(err error) (int, string) {
	var se tensorvec.SyntaxError
	if errors.As(err, &se) {
		return http.StatusBadRequest, se.Hint()
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), ""
	}
	var ut tensorvec.UnsupportedTypeError
	var ud bridge.UnsupportedDTypeError
	switch {
	case tensorvec.IsShapeMismatch(err), tensorvec.IsLimitExceeded(err), tensorvec.IsOverflow(err),
		errors.Is(err, tensorvec.ErrRowReference), errors.Is(err, tensorvec.ErrEmptyVector),
		errors.As(err, &ut), errors.As(err, &ud):
		return http.StatusBadRequest, ""
	case manager.IsModelNotFound(err), catalog.IsNotFound(err):
		return http.StatusNotFound, ""
	case manager.IsIntegrity(err):
		return http.StatusConflict, ""
	// dependency before runtime: load failures wrap the missing-runtime cause
	case manager.IsDeviceUnavailable(err), manager.IsDependencyUnavailable(err), errors.Is(err, manager.ErrClosed):
		return http.StatusServiceUnavailable, ""
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ""
	}
	return http.StatusInternalServerError, ""
}

func writeServiceError(w http.ResponseWriter, err error) int {
	status, hint := statusFor(err)
	writeJSONErrorHint(w, status, err.Error(), hint)
	return status
}
