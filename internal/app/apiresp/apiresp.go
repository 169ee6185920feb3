package apiresp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable,omitempty"`
	Errors    []Detail `json:"errors,omitempty"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

type Envelope struct {
	OK    bool          `json:"ok"`
	Data  interface{}   `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
	Meta  Meta          `json:"meta"`
}

func WriteOK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, status, Envelope{OK: true, Data: data})
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	write(w, r, status, Envelope{Error: errorPayload(status, msg)})
}

// WriteValidation reports field-level problems; every problem is listed.
func WriteValidation(w http.ResponseWriter, r *http.Request, status int, msg string, details []Detail) {
	p := errorPayload(status, msg)
	p.Errors = details
	write(w, r, status, Envelope{Error: p})
}

// WriteRetryable marks a server fault the client may safely resend.
func WriteRetryable(w http.ResponseWriter, r *http.Request, status int, msg string) {
	p := errorPayload(status, msg)
	p.Retryable = true
	write(w, r, status, Envelope{Error: p})
}

func errorPayload(status int, msg string) *ErrorPayload {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ErrorPayload{Code: codeFromStatus(status), Message: msg}
}

func write(w http.ResponseWriter, r *http.Request, status int, res Envelope) {
	res.Meta = Meta{RequestID: middleware.GetReqID(r.Context())}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		if status >= 200 && status < 300 {
			return ""
		}
		return "error"
	}
}
