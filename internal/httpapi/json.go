package httpapi

import (
	"net/http"

	"github.com/segmentio/encoding/json"

	"github.com/codemode/toolgateway/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// writeError maps a GatewayError's Kind to the §7 status code and emits
// `{error, kind}`. Anything not already a GatewayError is classified
// internal.
func writeError(w http.ResponseWriter, err error) {
	ge := model.AsGatewayError(err)
	writeJSON(w, statusFor(ge.Kind), map[string]string{
		"error": ge.Message,
		"kind":  string(ge.Kind),
	})
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.ErrValidation, model.ErrInvocationInvalid:
		return http.StatusBadRequest
	case model.ErrUnauthorized:
		return http.StatusUnauthorized
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrPolicyDenied, model.ErrApprovalDenied:
		return http.StatusForbidden
	case model.ErrTimeout:
		return http.StatusGatewayTimeout
	case model.ErrAuthMissing, model.ErrProvider, model.ErrRuntime:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func actorID(r *http.Request) string  { return r.Header.Get("X-Actor-Id") }
func clientID(r *http.Request) string { return r.Header.Get("X-Client-Id") }
