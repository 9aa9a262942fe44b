package conversation

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle stage of a conversation.
type Status string

const (
	StatusReceived      Status = "received"
	StatusInitiatedForm Status = "initiated_form"
	StatusCompleted     Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusInitiatedForm, StatusCompleted:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when no record exists for a token.
	ErrNotFound = errors.New("conversation not found")
	// ErrDuplicate is returned when a record already exists for a token.
	ErrDuplicate = errors.New("conversation already exists")
)

// Record is one conversation, keyed by its correlation token.
type Record struct {
	ID          string
	Token       string
	PhoneNumber string
	MessageID   string
	// Message is the raw inbound message that opened the conversation.
	Message        json.RawMessage
	Status         Status
	BookingData    json.RawMessage
	TripPreference string
	PreferredDate  string
	PreferredTime  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Patch is a partial update. Nil fields are left unchanged; BookingData is
// shallow-merged into the stored object (top-level keys replaced).
type Patch struct {
	Status         *Status
	BookingData    json.RawMessage
	TripPreference *string
	PreferredDate  *string
	PreferredTime  *string
}

// Ptr returns a pointer to v. Handy for building a Patch.
func Ptr[T any](v T) *T { return &v }
