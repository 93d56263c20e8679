package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

var (
	ErrMissingTarget = errors.New("missing url query parameter")
	ErrInvalidTarget = errors.New("url query parameter is not an absolute http(s) URL")
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	ErrBodyDrain     = errors.New("reading upstream body failed")
)

const requestIDHeader = "X-Request-Id"

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps a handler error to the status returned to the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingTarget):
		return http.StatusBadRequest, "missing_url"
	case errors.Is(err, ErrInvalidTarget):
		return http.StatusBadRequest, "invalid_url"
	case errors.Is(err, ErrBodyDrain):
		return http.StatusBadGateway, "upstream_body"
	case errors.Is(err, ErrUpstreamFetch):
		return http.StatusBadGateway, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, category := statusFor(err)
	requestID := chimw.GetReqID(r.Context())

	if requestID != "" {
		w.Header().Set(requestIDHeader, requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:     category,
		Message:   err.Error(),
		RequestID: requestID,
	})
}
