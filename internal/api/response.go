package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "regdesk/internal/errors"
)

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Type: code, Message: message})
}

// statusFor maps an error code to its HTTP status
func statusFor(code string) int {
	switch code {
	case apperrors.CodeAlreadyExistingUsername,
		apperrors.CodePendingRegistrationExists,
		apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail classifies err and writes it; server-side failures are logged
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	userErr := apperrors.Classify(err)
	status := statusFor(userErr.Code)

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"error", err,
			"code", userErr.Code,
			"method", r.Method,
			"path", r.URL.Path,
		)
	}

	if userErr.Retryable {
		w.Header().Set("Retry-After", "5")
	}
	writeError(w, status, userErr.Code, userErr.UserMsg)
}

func validationMessage(err error) string {
	var verr validator.ValidationErrors
	if !errors.As(err, &verr) {
		return err.Error()
	}

	msgs := make([]string, len(verr))
	for i, ferr := range verr {
		msgs[i] = fmt.Sprintf("%s: %s", strings.ToLower(ferr.Field()), msgForTag(ferr.Tag(), ferr.Param()))
	}
	return strings.Join(msgs, "; ")
}

func msgForTag(tag string, value string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "email":
		return "invalid email address"
	case "utf8":
		return "must be valid UTF-8"
	case "min":
		return fmt.Sprintf("must be at least %v characters", value)
	case "max":
		return fmt.Sprintf("must be at most %v characters", value)
	}
	return tag
}
