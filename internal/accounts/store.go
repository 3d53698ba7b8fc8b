package accounts

import (
	"errors"
	"time"
)

// ErrDuplicateUsername is returned when an active account already holds the username
var ErrDuplicateUsername = errors.New("username already bound to an active account")

// Account is a provisioned user account
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	RoleID       string
	StorageQuota int64
	Onboarding   bool
	CreatedBy    string
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// Active reports whether the account has not been deleted
func (a *Account) Active() bool {
	return a.DeletedAt == nil
}

// NewAccount carries what is needed to materialize an account.
// Password is plaintext; the directory hashes it before persisting.
type NewAccount struct {
	Username     string
	Password     string
	Email        string
	RoleID       string
	StorageQuota int64
	Onboarding   bool
	CreatedBy    string
}

// Directory defines the interface for the account system of record
type Directory interface {
	// FindActiveByUsername returns the active account for username, or nil if none exists
	FindActiveByUsername(username string) (*Account, error)

	// CreateAccount provisions a new account and returns its ID
	CreateAccount(acc NewAccount) (string, error)

	// Close releases resources
	Close() error
}
