package events

import (
	"sync"
	"time"
)

// Event types
const (
	TypeCreated  = "registration.created"
	TypeApproved = "registration.approved"
	TypeRejected = "registration.rejected"
)

// Event describes a change in a registration request. It never carries the
// request's password.
type Event struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
	By        string    `json:"by,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
}

// Publisher receives registration events. Publish must not block.
type Publisher interface {
	Publish(ev Event)
}

// Multi fans an event out to several publishers
type Multi []Publisher

// Publish delivers ev to every non-nil publisher
func (m Multi) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records ev
func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
