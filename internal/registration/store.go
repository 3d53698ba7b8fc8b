package registration

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"regdesk/internal/accounts"
)

// AccountLookup is the part of the account directory the store consults
type AccountLookup interface {
	FindActiveByUsername(username string) (*accounts.Account, error)
}

// Store keeps registration requests in a single JSON file.
//
// Every operation, reads included, runs a full load, optional mutation and
// save under one exclusive lock owned by the Store. Only goroutines of one
// process are coordinated; pointing two processes at the same file is
// unsupported.
type Store struct {
	path     string
	accounts AccountLookup
	logger   *slog.Logger

	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewStore creates a store backed by the JSON file at path
func NewStore(path string, lookup AccountLookup, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:     path,
		accounts: lookup,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}, nil
}

// Path returns the location of the requests file
func (s *Store) Path() string {
	return s.path
}

// Create records a new pending request and returns its ID.
// It fails with ErrDuplicateUsername if an active account already holds the
// username, and with ErrDuplicatePendingRequest if another request for the
// username is still pending. Fields must be valid UTF-8; the file encoding
// would otherwise rewrite them and defeat the duplicate checks.
func (s *Store) Create(username, password, email string) (string, error) {
	if !utf8.ValidString(username) || !utf8.ValidString(password) || !utf8.ValidString(email) {
		return "", ErrInvalidEncoding
	}

	// The directory is consulted before taking the lock; it has its own
	// synchronization and must not be called while the file is held.
	if s.accounts != nil {
		acc, err := s.accounts.FindActiveByUsername(username)
		if err != nil {
			return "", fmt.Errorf("check account directory: %w", err)
		}
		if acc != nil {
			return "", ErrDuplicateUsername
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	requests, err := s.loadUnsafe()
	if err != nil {
		return "", err
	}

	for _, req := range requests {
		if req.Username == username && req.Pending() {
			return "", ErrDuplicatePendingRequest
		}
	}

	req := &Request{
		ID:         s.newID(),
		Username:   username,
		Password:   password,
		Email:      email,
		Status:     StatusPending,
		CreateDate: s.stamp(),
	}

	if err := s.saveUnsafe(append(requests, req)); err != nil {
		return "", err
	}

	s.logger.Info("registration request created", "request_id", req.ID, "username", username)
	return req.ID, nil
}

// FindPending returns pending requests in file order
func (s *Store) FindPending() ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests, err := s.loadUnsafe()
	if err != nil {
		return nil, err
	}

	pending := []Request{}
	for _, req := range requests {
		if req.Pending() {
			pending = append(pending, *req)
		}
	}
	return pending, nil
}

// GetByID returns the request with the given ID in any state
func (s *Store) GetByID(id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests, err := s.loadUnsafe()
	if err != nil {
		return nil, err
	}

	for _, req := range requests {
		if req.ID == id {
			found := *req
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// Approve moves a pending request to APPROVED.
// Unknown IDs and already processed requests both yield ErrNotFoundOrProcessed.
func (s *Store) Approve(id, adminID string) (*Request, error) {
	return s.process(id, adminID, StatusApproved)
}

// Reject moves a pending request to REJECTED.
// Unknown IDs and already processed requests both yield ErrNotFoundOrProcessed.
func (s *Store) Reject(id, adminID string) (*Request, error) {
	return s.process(id, adminID, StatusRejected)
}

func (s *Store) process(id, adminID string, to Status) (*Request, error) {
	if adminID == "" {
		return nil, ErrMissingAdmin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	requests, err := s.loadUnsafe()
	if err != nil {
		return nil, err
	}

	var updated *Request
	for _, req := range requests {
		// First match only; IDs are unique by construction
		if req.ID == id && req.Pending() {
			at := s.stamp()
			by := adminID
			req.Status = to
			req.ProcessDate = &at
			req.ProcessedBy = &by
			updated = req
			break
		}
	}

	if updated == nil {
		return nil, ErrNotFoundOrProcessed
	}

	if err := s.saveUnsafe(requests); err != nil {
		return nil, err
	}

	s.logger.Info("registration request processed",
		"request_id", id,
		"status", string(to),
		"admin_id", adminID,
	)

	result := *updated
	return &result, nil
}

// stamp returns the current time at the precision the file format keeps
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
