package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"regdesk/internal/accounts"
	"regdesk/internal/registration"
)

func TestClassify(t *testing.T) {
	storageErr := &registration.StorageError{Op: "load", Path: "/tmp/r.json", Err: errors.New("unexpected EOF")}

	tests := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{"duplicate username", registration.ErrDuplicateUsername, CodeAlreadyExistingUsername, false},
		{"duplicate username from directory", fmt.Errorf("create account: %w", accounts.ErrDuplicateUsername), CodeAlreadyExistingUsername, false},
		{"pending exists", registration.ErrDuplicatePendingRequest, CodePendingRegistrationExists, false},
		{"not found or processed", registration.ErrNotFoundOrProcessed, CodeNotFound, false},
		{"not found", fmt.Errorf("lookup: %w", registration.ErrNotFound), CodeNotFound, false},
		{"missing admin", registration.ErrMissingAdmin, CodeUnauthorized, false},
		{"invalid encoding", fmt.Errorf("create: %w", registration.ErrInvalidEncoding), CodeValidation, false},
		{"storage", fmt.Errorf("create: %w", storageErr), CodeRegistration, true},
		{"predefined passes through", ErrRateLimited, CodeRateLimited, true},
		{"wrapped predefined", fmt.Errorf("middleware: %w", ErrUnauthorized), CodeUnauthorized, false},
		{"unknown", errors.New("boom"), CodeRegistration, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.NotEmpty(t, got.UserMsg)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestPredefinedUnwrap(t *testing.T) {
	assert.ErrorIs(t, ErrUsernameTaken, registration.ErrDuplicateUsername)
	assert.ErrorIs(t, ErrPendingExists, registration.ErrDuplicatePendingRequest)
	assert.ErrorIs(t, ErrRequestNotFound, registration.ErrNotFoundOrProcessed)
	assert.ErrorIs(t, ErrRequestMissing, registration.ErrNotFound)
	assert.ErrorIs(t, ErrInvalidEncoding, registration.ErrInvalidEncoding)
}

func TestClassify_NotFoundMessages(t *testing.T) {
	missing := Classify(fmt.Errorf("lookup: %w", registration.ErrNotFound))
	assert.Equal(t, ErrRequestMissing.UserMsg, missing.UserMsg)
	assert.NotContains(t, missing.UserMsg, "already been processed")

	processed := Classify(registration.ErrNotFoundOrProcessed)
	assert.Equal(t, ErrRequestNotFound.UserMsg, processed.UserMsg)
	assert.NotEqual(t, missing.UserMsg, processed.UserMsg)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, ErrPendingExists.UserMsg, GetUserMessage(registration.ErrDuplicatePendingRequest))
	assert.Equal(t, CodeNotFound, GetCode(registration.ErrNotFoundOrProcessed))

	assert.True(t, IsRetryable(ErrRateLimited))
	assert.False(t, IsRetryable(ErrUnauthorized))
	assert.False(t, IsRetryable(errors.New("plain")))

	wrapped := Wrap(errors.New("db down"), CodeApproval, "approval failed", true)
	assert.Equal(t, "db down", wrapped.Error())
	assert.True(t, IsRetryable(fmt.Errorf("outer: %w", wrapped)))
}
