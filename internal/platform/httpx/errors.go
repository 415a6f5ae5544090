// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bosunhq/stockroom/internal/shared"
)

// ErrBadRequest marks malformed input caught at the transport layer.
var ErrBadRequest = errors.New("bad request")

// ErrUnauthenticated is returned when a request carries no actor.
var ErrUnauthenticated = errors.New("unauthenticated")

// StatusFor maps a domain error to its HTTP status and problem title.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "Insufficient Stock"
	case errors.Is(err, shared.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, "Invalid Quantity"
	case errors.Is(err, shared.ErrDuplicateCode), errors.Is(err, shared.ErrDuplicateProduct):
		return http.StatusConflict, "Duplicate"
	case errors.Is(err, shared.ErrIllegalTransition):
		return http.StatusConflict, "Illegal Transition"
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, shared.ErrSequenceExhausted):
		return http.StatusServiceUnavailable, "Sequence Exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal errors never leak their message.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	var insufficient *shared.InsufficientStockError
	if errors.As(err, &insufficient) {
		detail = fmt.Sprintf("Insufficient stock. Available: %d", insufficient.Available)
	}
	Problem(w, status, title, detail)
}
