package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/storage"
)

// NotificationChannel is the outbound message sink. TwilioService implements
// it for real WhatsApp delivery; LogChannel stands in when Twilio is not
// configured.
type NotificationChannel interface {
	SendWhatsAppMessage(to string, message string) error
}

// PermanentDeliveryError tells the dispatcher the channel rejected the
// recipient and retrying cannot help.
type PermanentDeliveryError struct {
	Reason string
}

func (e *PermanentDeliveryError) Error() string {
	return fmt.Sprintf("permanent delivery failure: %s", e.Reason)
}

// DeliveryResult reports the state of a notification task after a dispatch
// attempt.
type DeliveryResult struct {
	TaskID    string `json:"task_id"`
	Delivered bool   `json:"delivered"`
	Failed    bool   `json:"failed"`
	Attempts  int    `json:"attempts"`
}

// ConfirmationDispatcher delivers NotificationTasks with exponential backoff
// and per-idempotency-key dedupe, decoupled from booking correctness: a task
// that exhausts its attempts is marked failed, never rolled back into the
// booking.
type ConfirmationDispatcher struct {
	store       storage.Store
	channel     NotificationChannel
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time

	sentMu   sync.Mutex
	sentKeys map[string]struct{}
}

// NewConfirmationDispatcher creates a dispatcher over the given channel.
func NewConfirmationDispatcher(store storage.Store, channel NotificationChannel, maxAttempts int, baseDelay, maxDelay time.Duration) *ConfirmationDispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Minute
	}
	return &ConfirmationDispatcher{
		store:       store,
		channel:     channel,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		now:         time.Now,
		sentKeys:    make(map[string]struct{}),
	}
}

// Dispatch makes one delivery attempt for the task and persists the outcome.
// Repeat attempts for an already-delivered idempotency key never reach the
// channel again.
func (d *ConfirmationDispatcher) Dispatch(task *models.NotificationTask) (*DeliveryResult, error) {
	switch task.Status {
	case models.NotificationStatusSent:
		return &DeliveryResult{TaskID: task.ID, Delivered: true, Attempts: task.AttemptCount}, nil
	case models.NotificationStatusFailed:
		return &DeliveryResult{TaskID: task.ID, Failed: true, Attempts: task.AttemptCount}, nil
	}

	if d.alreadySent(task.IdempotencyKey) {
		task.Status = models.NotificationStatusSent
		if err := d.store.UpdateNotificationTask(task); err != nil {
			return nil, fmt.Errorf("update notification task: %w", err)
		}
		return &DeliveryResult{TaskID: task.ID, Delivered: true, Attempts: task.AttemptCount}, nil
	}

	task.AttemptCount++
	sendErr := d.channel.SendWhatsAppMessage(task.Recipient, task.Body)

	switch {
	case sendErr == nil:
		task.Status = models.NotificationStatusSent
		task.LastError = ""
		d.markSent(task.IdempotencyKey)
	case isPermanent(sendErr), task.AttemptCount >= d.maxAttempts:
		task.Status = models.NotificationStatusFailed
		task.LastError = sendErr.Error()
		log.Printf("Notification %s permanently failed after %d attempts: %v",
			task.ID, task.AttemptCount, sendErr)
	default:
		task.LastError = sendErr.Error()
		task.NextAttemptAt = d.now().Add(d.nextDelay(task.AttemptCount))
	}

	if err := d.store.UpdateNotificationTask(task); err != nil {
		return nil, fmt.Errorf("update notification task: %w", err)
	}

	return &DeliveryResult{
		TaskID:    task.ID,
		Delivered: task.Status == models.NotificationStatusSent,
		Failed:    task.Status == models.NotificationStatusFailed,
		Attempts:  task.AttemptCount,
	}, nil
}

// DrainDue dispatches every task whose retry timer has elapsed and returns
// the number of deliveries made.
func (d *ConfirmationDispatcher) DrainDue(limit int) int {
	due, err := d.store.GetDueNotificationTasks(d.now(), limit)
	if err != nil {
		log.Printf("Failed to fetch due notifications: %v", err)
		return 0
	}

	delivered := 0
	for _, task := range due {
		result, err := d.Dispatch(task)
		if err != nil {
			log.Printf("Dispatch of %s failed: %v", task.ID, err)
			continue
		}
		if result.Delivered {
			delivered++
		}
	}
	return delivered
}

// nextDelay doubles from the base per attempt up to the configured ceiling.
func (d *ConfirmationDispatcher) nextDelay(attempts int) time.Duration {
	delay := d.baseDelay * time.Duration(1<<attempts)
	if delay > d.maxDelay || delay <= 0 {
		delay = d.maxDelay
	}
	return delay
}

func (d *ConfirmationDispatcher) alreadySent(key string) bool {
	d.sentMu.Lock()
	defer d.sentMu.Unlock()
	_, ok := d.sentKeys[key]
	return ok
}

func (d *ConfirmationDispatcher) markSent(key string) {
	d.sentMu.Lock()
	d.sentKeys[key] = struct{}{}
	d.sentMu.Unlock()
}

func isPermanent(err error) bool {
	var perm *PermanentDeliveryError
	return errors.As(err, &perm)
}

// LogChannel logs outbound messages instead of sending them, for local
// development without Twilio credentials.
type LogChannel struct{}

func (LogChannel) SendWhatsAppMessage(to string, message string) error {
	log.Printf("📤 WhatsApp to %s (not sent - Twilio not configured): %s", to, message)
	return nil
}
