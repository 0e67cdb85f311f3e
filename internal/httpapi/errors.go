package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"surveyhub.org/internal/audit"
	"surveyhub.org/internal/auth"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// statusFor maps the auth error taxonomy to a status code and a message that
// is safe to show to clients.
func statusFor(err error) (int, string) {
	switch auth.Kind(err) {
	case auth.ErrValidation:
		return http.StatusBadRequest, validationMessage(err)
	case auth.ErrConflict:
		return http.StatusConflict, "resource already exists"
	case auth.ErrAuthentication:
		switch {
		case errors.Is(err, auth.ErrAccountDeactivated):
			return http.StatusForbidden, "account is deactivated"
		case errors.Is(err, auth.ErrWrongPassword):
			return http.StatusBadRequest, "current password is incorrect"
		case errors.Is(err, auth.ErrAccountUnavailable):
			return http.StatusUnauthorized, "account not available"
		}
		return http.StatusUnauthorized, "invalid credentials"
	case auth.ErrToken:
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			return http.StatusUnauthorized, "token expired"
		case errors.Is(err, auth.ErrTokenRevoked):
			return http.StatusUnauthorized, "token revoked"
		}
		return http.StatusUnauthorized, "invalid token"
	case auth.ErrAuthorization:
		if errors.Is(err, auth.ErrCrossTenant) {
			return http.StatusForbidden, "resource belongs to another organization"
		}
		return http.StatusForbidden, "insufficient permissions"
	case auth.ErrNotFound:
		return http.StatusNotFound, "not found"
	}
	return http.StatusInternalServerError, "internal error"
}

// validationMessage strips the kind prefix so only the field problem is shown.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := auth.ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return "invalid request"
}

func (a *API) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, r, code, msg)
}
