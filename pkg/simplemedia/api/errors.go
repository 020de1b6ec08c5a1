package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Kinds that only exist at the HTTP boundary
const (
	kindTooLarge    = "too_large"
	kindRateLimited = "rate_limited"
)

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody as {"error": {...}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind simplemedia.Kind) int {
	switch kind {
	case simplemedia.KindInvalidInput:
		return http.StatusBadRequest
	case simplemedia.KindUnauthorized:
		return http.StatusUnauthorized
	case simplemedia.KindForbidden:
		return http.StatusForbidden
	case simplemedia.KindNotFound:
		return http.StatusNotFound
	case simplemedia.KindConflict:
		return http.StatusConflict
	case simplemedia.KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status of its kind. Server-side failures
// are logged with the full error; the client only sees the public message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeErrorKind(w, r, http.StatusRequestEntityTooLarge, kindTooLarge, "request body too large")
		return
	}

	kind := simplemedia.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"kind", kind,
			"error", err,
		)
	}
	if kind == simplemedia.KindUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="simple-media"`)
	}
	writeErrorKind(w, r, status, string(kind), simplemedia.PublicMessage(err))
}

func writeErrorKind(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Kind: kind, Message: message}})
}

func badRequest(field, reason string) error {
	return &simplemedia.ValidationError{Field: field, Reason: reason}
}
