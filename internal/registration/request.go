package registration

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a registration request
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Valid reports whether s is one of the known states
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Request is a self-registration request awaiting, or having received, an admin decision.
//
// Password is held exactly as submitted. It is hashed only when an approved
// request is materialized into an account, so the requests file holds
// plaintext credentials while a request is pending.
type Request struct {
	ID          string
	Username    string
	Password    string
	Email       string
	Status      Status
	CreateDate  time.Time
	ProcessDate *time.Time
	ProcessedBy *string
}

// Pending reports whether the request still awaits a decision
func (r *Request) Pending() bool {
	return r.Status == StatusPending
}

// record is the on-disk shape of a request. Dates are epoch millis and the
// processing fields are written as explicit nulls while pending.
type record struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Password    string  `json:"password"`
	Email       string  `json:"email"`
	Status      Status  `json:"status"`
	CreateDate  int64   `json:"createDate"`
	ProcessDate *int64  `json:"processDate"`
	ProcessedBy *string `json:"processedBy"`
}

// MarshalJSON encodes the request in the requests file format
func (r Request) MarshalJSON() ([]byte, error) {
	rec := record{
		ID:         r.ID,
		Username:   r.Username,
		Password:   r.Password,
		Email:      r.Email,
		Status:     r.Status,
		CreateDate: r.CreateDate.UnixMilli(),
	}
	if r.ProcessDate != nil {
		ms := r.ProcessDate.UnixMilli()
		rec.ProcessDate = &ms
	}
	if r.ProcessedBy != nil {
		by := *r.ProcessedBy
		rec.ProcessedBy = &by
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes a request from the requests file format
func (r *Request) UnmarshalJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("request %s: unknown status %q", rec.ID, rec.Status)
	}

	*r = Request{
		ID:         rec.ID,
		Username:   rec.Username,
		Password:   rec.Password,
		Email:      rec.Email,
		Status:     rec.Status,
		CreateDate: time.UnixMilli(rec.CreateDate).UTC(),
	}
	if rec.ProcessDate != nil {
		t := time.UnixMilli(*rec.ProcessDate).UTC()
		r.ProcessDate = &t
	}
	if rec.ProcessedBy != nil {
		by := *rec.ProcessedBy
		r.ProcessedBy = &by
	}
	return nil
}
