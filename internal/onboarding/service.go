package onboarding

import (
	"fmt"
	"log/slog"
	"time"

	"regdesk/internal/accounts"
	apperrors "regdesk/internal/errors"
	"regdesk/internal/events"
	"regdesk/internal/registration"
)

// Defaults are applied to every account materialized from an approved request
type Defaults struct {
	RoleID       string
	StorageQuota int64
	Onboarding   bool
}

// Service drives a registration request from submission to account creation
type Service struct {
	store     *registration.Store
	directory accounts.Directory
	defaults  Defaults
	publisher events.Publisher
	logger    *slog.Logger

	now func() time.Time
}

// NewService creates a new onboarding service. publisher may be nil.
func NewService(
	store *registration.Store,
	directory accounts.Directory,
	defaults Defaults,
	publisher events.Publisher,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Multi{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		directory: directory,
		defaults:  defaults,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit records a new pending request and announces it
func (s *Service) Submit(username, password, email string) (string, error) {
	id, err := s.store.Create(username, password, email)
	if err != nil {
		return "", err
	}

	s.publisher.Publish(events.Event{
		Type:      events.TypeCreated,
		RequestID: id,
		Username:  username,
		Email:     email,
		Status:    string(registration.StatusPending),
		At:        s.now().UTC(),
	})
	return id, nil
}

// Pending returns the requests awaiting review
func (s *Service) Pending() ([]registration.Request, error) {
	return s.store.FindPending()
}

// Get returns a request in any state
func (s *Service) Get(id string) (*registration.Request, error) {
	return s.store.GetByID(id)
}

// Approve approves the request and materializes its account.
// The approval is not rolled back if account creation fails; the request
// stays APPROVED and the failure is returned as an ApprovalError.
func (s *Service) Approve(id, adminID string) (*registration.Request, string, error) {
	req, err := s.store.Approve(id, adminID)
	if err != nil {
		return nil, "", err
	}

	accountID, err := s.directory.CreateAccount(accounts.NewAccount{
		Username:     req.Username,
		Password:     req.Password,
		Email:        req.Email,
		RoleID:       s.defaults.RoleID,
		StorageQuota: s.defaults.StorageQuota,
		Onboarding:   s.defaults.Onboarding,
		CreatedBy:    adminID,
	})
	if err != nil {
		s.logger.Error("account creation failed after approval",
			"error", err,
			"request_id", id,
			"username", req.Username,
			"admin_id", adminID,
		)
		return req, "", apperrors.Wrap(
			fmt.Errorf("create account for request %s: %w", id, err),
			apperrors.CodeApproval,
			"The request was approved but the account could not be created.",
			false,
		)
	}

	s.logger.Info("account created", "request_id", id, "account_id", accountID, "admin_id", adminID)

	s.publisher.Publish(s.processedEvent(events.TypeApproved, req, accountID))
	return req, accountID, nil
}

// Reject rejects the request
func (s *Service) Reject(id, adminID string) (*registration.Request, error) {
	req, err := s.store.Reject(id, adminID)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(s.processedEvent(events.TypeRejected, req, ""))
	return req, nil
}

func (s *Service) processedEvent(typ string, req *registration.Request, accountID string) events.Event {
	ev := events.Event{
		Type:      typ,
		RequestID: req.ID,
		Username:  req.Username,
		Email:     req.Email,
		Status:    string(req.Status),
		At:        s.now().UTC(),
		AccountID: accountID,
	}
	if req.ProcessDate != nil {
		ev.At = *req.ProcessDate
	}
	if req.ProcessedBy != nil {
		ev.By = *req.ProcessedBy
	}
	return ev
}
