package errutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// WriteJSON renders err as the JSON error envelope with the matching HTTP
// status. Errors that are not a BaseError are reported as internal.
func WriteJSON(w http.ResponseWriter, err error) {
	var base BaseError
	if !errors.As(err, &base) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			base = BaseError{Code: StatusTimeout, Message: "request timed out"}
		case errors.Is(err, context.Canceled):
			base = BaseError{Code: StatusClientClosedRequest, Message: "request canceled"}
		default:
			base = BaseError{Code: StatusInternal, Message: "internal error", Err: err}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(base.Code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(base.JSON())
}

// WriteData renders v as a JSON document with the given status.
func WriteData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
