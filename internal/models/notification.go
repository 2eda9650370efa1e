package models

import "time"

// Notification kinds
const (
	NotificationKindConfirmation = "confirmation"
	NotificationKindCancellation = "cancellation"
	NotificationKindReminder     = "reminder"
)

// Notification statuses
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// NotificationTask is an outbound client message owed for a booking state
// transition. Delivery is retried with backoff; a task that exhausts its
// attempts is marked failed and surfaced for manual follow-up, never rolled
// back into the booking.
type NotificationTask struct {
	ID        string `json:"id" gorm:"primaryKey"`
	BookingID string `json:"booking_id" gorm:"index"`
	Recipient string `json:"recipient"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`

	IdempotencyKey string    `json:"idempotency_key" gorm:"uniqueIndex"`
	AttemptCount   int       `json:"attempt_count"`
	NextAttemptAt  time.Time `json:"next_attempt_at" gorm:"index"`
	Status         string    `json:"status"`
	LastError      string    `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
