package jobs

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/services"
	"github.com/slotwise/studio-backend/internal/storage"
)

const drainBatchSize = 50

// NotificationJob runs the background delivery loops: draining due
// notification tasks and enqueueing next-day class reminders.
type NotificationJob struct {
	store      storage.Store
	dispatcher *services.ConfirmationDispatcher
	templates  *services.TemplateService

	drainInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewNotificationJob creates a new notification job scheduler
func NewNotificationJob(store storage.Store, dispatcher *services.ConfirmationDispatcher, templates *services.TemplateService, drainInterval time.Duration) *NotificationJob {
	if drainInterval <= 0 {
		drainInterval = 15 * time.Second
	}
	return &NotificationJob{
		store:         store,
		dispatcher:    dispatcher,
		templates:     templates,
		drainInterval: drainInterval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins all scheduled notification jobs
func (n *NotificationJob) Start() {
	log.Println("Starting scheduled notification jobs...")

	go n.drainLoop()
	go n.reminderLoop()

	log.Println("All notification jobs started successfully")
}

// Stop halts all scheduled jobs
func (n *NotificationJob) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopChan)
		log.Println("Stopping scheduled notification jobs...")
	})
}

// drainLoop delivers due notification tasks on a short interval.
func (n *NotificationJob) drainLoop() {
	ticker := time.NewTicker(n.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if sent := n.dispatcher.DrainDue(drainBatchSize); sent > 0 {
				log.Printf("Delivered %d notifications", sent)
			}
		case <-n.stopChan:
			return
		}
	}
}

// reminderLoop enqueues a reminder for every class happening tomorrow. It
// runs hourly; the reminder idempotency key guarantees each booking gets at
// most one reminder no matter how often the sweep fires.
func (n *NotificationJob) reminderLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.enqueueClassReminders()
		case <-n.stopChan:
			return
		}
	}
}

func (n *NotificationJob) enqueueClassReminders() {
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	bookings, err := n.store.GetConfirmedBookingsForDate(tomorrow)
	if err != nil {
		log.Printf("Error getting bookings for reminders: %v", err)
		return
	}

	enqueued := 0
	for _, booking := range bookings {
		key := fmt.Sprintf("notify:%s:%s", models.NotificationKindReminder, booking.ID)
		if _, err := n.store.GetNotificationTaskByIdempotencyKey(key); err == nil {
			continue
		}

		task := &models.NotificationTask{
			ID:             "NT" + strings.ToUpper(uuid.NewString()[:8]),
			BookingID:      booking.ID,
			Recipient:      booking.ClientPhone,
			Kind:           models.NotificationKindReminder,
			Body:           n.templates.RenderReminder(booking),
			IdempotencyKey: key,
			Status:         models.NotificationStatusPending,
			NextAttemptAt:  time.Now(),
		}
		if _, err := n.store.CreateNotificationTask(task); err != nil {
			log.Printf("Failed to enqueue reminder for %s: %v", booking.ID, err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		log.Printf("Class reminders enqueued: %d", enqueued)
	}
}
