package errors

import (
	"errors"

	"regdesk/internal/accounts"
	"regdesk/internal/registration"
)

// Machine-readable codes shared by every caller-facing surface
const (
	CodeAlreadyExistingUsername   = "AlreadyExistingUsername"
	CodePendingRegistrationExists = "PendingRegistrationExists"
	CodeNotFound                  = "NotFound"
	CodeValidation                = "ValidationError"
	CodeRateLimited               = "RateLimited"
	CodeUnauthorized              = "Unauthorized"
	CodeRegistration              = "RegistrationError"
	CodeApproval                  = "ApprovalError"
)

// UserError represents an error with both technical and user-friendly messages
type UserError struct {
	Err       error
	Code      string
	UserMsg   string
	Retryable bool
}

func (e *UserError) Error() string {
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// Predefined errors
var (
	ErrUsernameTaken = &UserError{
		Err:       registration.ErrDuplicateUsername,
		Code:      CodeAlreadyExistingUsername,
		UserMsg:   "This username is already taken.",
		Retryable: false,
	}

	ErrPendingExists = &UserError{
		Err:       registration.ErrDuplicatePendingRequest,
		Code:      CodePendingRegistrationExists,
		UserMsg:   "A request for this username has already been submitted and is awaiting review.",
		Retryable: false,
	}

	ErrRequestNotFound = &UserError{
		Err:       registration.ErrNotFoundOrProcessed,
		Code:      CodeNotFound,
		UserMsg:   "The request does not exist or has already been processed.",
		Retryable: false,
	}

	ErrRequestMissing = &UserError{
		Err:       registration.ErrNotFound,
		Code:      CodeNotFound,
		UserMsg:   "The registration request was not found.",
		Retryable: false,
	}

	ErrInvalidEncoding = &UserError{
		Err:       registration.ErrInvalidEncoding,
		Code:      CodeValidation,
		UserMsg:   "Username, password and email must be valid UTF-8 text.",
		Retryable: false,
	}

	ErrRateLimited = &UserError{
		Err:       errors.New("rate limit exceeded"),
		Code:      CodeRateLimited,
		UserMsg:   "Too many requests. Please wait a moment and try again.",
		Retryable: true,
	}

	ErrUnauthorized = &UserError{
		Err:       errors.New("unauthorized"),
		Code:      CodeUnauthorized,
		UserMsg:   "You are not allowed to manage registration requests.",
		Retryable: false,
	}
)

// Wrap wraps a technical error with a code and user message
func Wrap(err error, code, userMsg string, retryable bool) *UserError {
	return &UserError{
		Err:       err,
		Code:      code,
		UserMsg:   userMsg,
		Retryable: retryable,
	}
}

// Classify maps an error from the registration workflow to a UserError.
// Errors it does not recognize become a generic RegistrationError.
func Classify(err error) *UserError {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr
	}

	switch {
	case errors.Is(err, registration.ErrDuplicateUsername),
		errors.Is(err, accounts.ErrDuplicateUsername):
		return Wrap(err, ErrUsernameTaken.Code, ErrUsernameTaken.UserMsg, false)
	case errors.Is(err, registration.ErrDuplicatePendingRequest):
		return Wrap(err, ErrPendingExists.Code, ErrPendingExists.UserMsg, false)
	case errors.Is(err, registration.ErrNotFoundOrProcessed):
		return Wrap(err, ErrRequestNotFound.Code, ErrRequestNotFound.UserMsg, false)
	case errors.Is(err, registration.ErrNotFound):
		return Wrap(err, ErrRequestMissing.Code, ErrRequestMissing.UserMsg, false)
	case errors.Is(err, registration.ErrInvalidEncoding):
		return Wrap(err, ErrInvalidEncoding.Code, ErrInvalidEncoding.UserMsg, false)
	case errors.Is(err, registration.ErrMissingAdmin):
		return Wrap(err, CodeUnauthorized, ErrUnauthorized.UserMsg, false)
	case registration.IsStorageError(err):
		return Wrap(err, CodeRegistration, "The registration service is temporarily unavailable. Please try again later.", true)
	}

	return Wrap(err, CodeRegistration, "An unexpected error occurred. Please try again later.", false)
}

// GetUserMessage extracts user-friendly message from error
func GetUserMessage(err error) string {
	return Classify(err).UserMsg
}

// GetCode extracts the machine-readable code from error
func GetCode(err error) string {
	return Classify(err).Code
}

// IsRetryable checks if an error can be retried
func IsRetryable(err error) bool {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Retryable
	}
	return false
}
