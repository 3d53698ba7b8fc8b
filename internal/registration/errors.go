package registration

import (
	"errors"
	"fmt"
)

// Outcomes returned to callers for translation into user-facing responses
var (
	ErrDuplicateUsername       = errors.New("username already bound to an active account")
	ErrDuplicatePendingRequest = errors.New("username already has a pending registration request")
	ErrNotFound                = errors.New("registration request not found")
	ErrNotFoundOrProcessed     = errors.New("registration request not found or already processed")
	ErrMissingAdmin            = errors.New("admin id is required to process a request")
	ErrInvalidEncoding         = errors.New("registration fields must be valid UTF-8")
)

// StorageError reports a failure to load or save the requests file.
// A missing file is never a StorageError.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s registration requests %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is, or wraps, a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
