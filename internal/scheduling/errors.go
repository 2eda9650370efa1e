// Package scheduling defines the error taxonomy shared by the booking
// engine. Callers discriminate with errors.As; the dialogue layer converts
// recoverable errors into clarifying prompts instead of surfacing them.
package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/slotwise/studio-backend/internal/models"
)

// ValidationError reports a malformed or missing required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PastDateError reports an expression that resolved to an instant before
// reference-now.
type PastDateError struct {
	Expression string
	Resolved   time.Time
}

func (e *PastDateError) Error() string {
	return fmt.Sprintf("%q resolves to the past (%s)", e.Expression, e.Resolved.Format("2006-01-02 15:04"))
}

// OutOfHoursError reports a time outside configured business hours. The
// dialogue layer decides whether to reject or escalate.
type OutOfHoursError struct {
	Resolved  time.Time
	OpenHour  int
	CloseHour int
}

func (e *OutOfHoursError) Error() string {
	return fmt.Sprintf("%s is outside business hours (%02d:00-%02d:00)",
		e.Resolved.Format("15:04"), e.OpenHour, e.CloseHour)
}

// Candidate is one ranked interpretation of an ambiguous time expression.
type Candidate struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Label string `json:"label"`
}

// AmbiguousTimeError carries the ranked candidate interpretations plus a
// prompt the dialogue layer can send verbatim.
type AmbiguousTimeError struct {
	Expression string
	Candidates []Candidate
	Prompt     string
}

func (e *AmbiguousTimeError) Error() string {
	labels := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		labels[i] = c.Label
	}
	return fmt.Sprintf("%q is ambiguous: %s", e.Expression, strings.Join(labels, " / "))
}

// ConflictError means the requested slot is already taken. Alternatives are
// free slots on the same date so the caller can offer choices without a
// further round trip.
type ConflictError struct {
	Requested    models.TimeSlot
	Alternatives []models.TimeSlot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s %s with %s is already booked",
		e.Requested.Date, e.Requested.StartTime, e.Requested.Instructor)
}

// NotFoundError reports an unknown booking or client.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// ExternalServiceError wraps a calendar or messaging channel failure. It is
// retryable at the resolver/dispatcher boundary.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// RateLimitError tells the caller to back off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
