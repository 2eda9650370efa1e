package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slotwise/studio-backend/internal/models"
)

// MemoryStore holds all data in memory, for tests and local development.
type MemoryStore struct {
	bookings  map[string]*models.Booking
	tasks     map[string]*models.NotificationTask
	timetable []*models.TimetableEntry

	// Mutexes for thread safety
	bookingMu   sync.RWMutex
	taskMu      sync.RWMutex
	timetableMu sync.RWMutex

	timetableCounter uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*models.Booking),
		tasks:    make(map[string]*models.NotificationTask),
	}
}

// Booking operations

func (m *MemoryStore) CreateBooking(booking *models.Booking) (*models.Booking, error) {
	m.bookingMu.Lock()
	defer m.bookingMu.Unlock()

	if _, exists := m.bookings[booking.ID]; exists {
		return nil, fmt.Errorf("booking %s already exists", booking.ID)
	}
	if booking.IdempotencyKey != "" {
		for _, b := range m.bookings {
			if b.IdempotencyKey == booking.IdempotencyKey {
				return nil, fmt.Errorf("duplicate idempotency key %s", booking.IdempotencyKey)
			}
		}
	}

	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	copied := *booking
	m.bookings[booking.ID] = &copied
	return booking, nil
}

func (m *MemoryStore) GetBooking(id string) (*models.Booking, error) {
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()

	booking, exists := m.bookings[id]
	if !exists {
		return nil, fmt.Errorf("booking not found")
	}
	copied := *booking
	return &copied, nil
}

func (m *MemoryStore) GetBookingByIdempotencyKey(key string) (*models.Booking, error) {
	if key == "" {
		return nil, fmt.Errorf("booking not found")
	}

	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()

	for _, booking := range m.bookings {
		if booking.IdempotencyKey == key {
			copied := *booking
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("booking not found")
}

func (m *MemoryStore) GetConfirmedBookingsForDate(date string) ([]*models.Booking, error) {
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()

	var result []*models.Booking
	for _, booking := range m.bookings {
		if booking.Status == models.BookingStatusConfirmed && booking.Slot.Date == date {
			copied := *booking
			result = append(result, &copied)
		}
	}
	sortBookingsByStart(result)
	return result, nil
}

func (m *MemoryStore) FindConfirmedBooking(phone, date, startTime string) (*models.Booking, error) {
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()

	for _, booking := range m.bookings {
		if booking.Status == models.BookingStatusConfirmed &&
			booking.ClientPhone == phone &&
			booking.Slot.Date == date &&
			booking.Slot.StartTime == startTime {
			copied := *booking
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("booking not found")
}

func (m *MemoryStore) GetBookingsByPhone(phone string) ([]*models.Booking, error) {
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()

	var result []*models.Booking
	for _, booking := range m.bookings {
		if booking.ClientPhone == phone {
			copied := *booking
			result = append(result, &copied)
		}
	}
	sortBookingsByStart(result)
	return result, nil
}

func (m *MemoryStore) UpdateBooking(booking *models.Booking) error {
	m.bookingMu.Lock()
	defer m.bookingMu.Unlock()

	if _, exists := m.bookings[booking.ID]; !exists {
		return fmt.Errorf("booking not found")
	}
	booking.UpdatedAt = time.Now()
	copied := *booking
	m.bookings[booking.ID] = &copied
	return nil
}

// Notification task operations

func (m *MemoryStore) CreateNotificationTask(task *models.NotificationTask) (*models.NotificationTask, error) {
	m.taskMu.Lock()
	defer m.taskMu.Unlock()

	if task.IdempotencyKey != "" {
		for _, t := range m.tasks {
			if t.IdempotencyKey == task.IdempotencyKey {
				return nil, fmt.Errorf("duplicate idempotency key %s", task.IdempotencyKey)
			}
		}
	}

	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	copied := *task
	m.tasks[task.ID] = &copied
	return task, nil
}

func (m *MemoryStore) GetNotificationTask(id string) (*models.NotificationTask, error) {
	m.taskMu.RLock()
	defer m.taskMu.RUnlock()

	task, exists := m.tasks[id]
	if !exists {
		return nil, fmt.Errorf("notification task not found")
	}
	copied := *task
	return &copied, nil
}

func (m *MemoryStore) GetNotificationTaskByIdempotencyKey(key string) (*models.NotificationTask, error) {
	if key == "" {
		return nil, fmt.Errorf("notification task not found")
	}

	m.taskMu.RLock()
	defer m.taskMu.RUnlock()

	for _, task := range m.tasks {
		if task.IdempotencyKey == key {
			copied := *task
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("notification task not found")
}

func (m *MemoryStore) GetDueNotificationTasks(now time.Time, limit int) ([]*models.NotificationTask, error) {
	m.taskMu.RLock()
	defer m.taskMu.RUnlock()

	var due []*models.NotificationTask
	for _, task := range m.tasks {
		if task.Status == models.NotificationStatusPending && !task.NextAttemptAt.After(now) {
			copied := *task
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryStore) GetFailedNotificationTasks() ([]*models.NotificationTask, error) {
	m.taskMu.RLock()
	defer m.taskMu.RUnlock()

	var failed []*models.NotificationTask
	for _, task := range m.tasks {
		if task.Status == models.NotificationStatusFailed {
			copied := *task
			failed = append(failed, &copied)
		}
	}
	return failed, nil
}

func (m *MemoryStore) UpdateNotificationTask(task *models.NotificationTask) error {
	m.taskMu.Lock()
	defer m.taskMu.Unlock()

	if _, exists := m.tasks[task.ID]; !exists {
		return fmt.Errorf("notification task not found")
	}
	task.UpdatedAt = time.Now()
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

// Timetable operations

func (m *MemoryStore) CreateTimetableEntry(entry *models.TimetableEntry) error {
	m.timetableMu.Lock()
	defer m.timetableMu.Unlock()

	m.timetableCounter++
	entry.ID = m.timetableCounter
	copied := *entry
	m.timetable = append(m.timetable, &copied)
	return nil
}

func (m *MemoryStore) GetTimetableForWeekday(weekday int) ([]*models.TimetableEntry, error) {
	m.timetableMu.RLock()
	defer m.timetableMu.RUnlock()

	var entries []*models.TimetableEntry
	for _, entry := range m.timetable {
		if entry.Weekday == weekday {
			copied := *entry
			entries = append(entries, &copied)
		}
	}
	return entries, nil
}

func (m *MemoryStore) CountTimetableEntries() (int64, error) {
	m.timetableMu.RLock()
	defer m.timetableMu.RUnlock()

	return int64(len(m.timetable)), nil
}

func sortBookingsByStart(bookings []*models.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].Slot.Date != bookings[j].Slot.Date {
			return bookings[i].Slot.Date < bookings[j].Slot.Date
		}
		if bookings[i].Slot.StartTime != bookings[j].Slot.StartTime {
			return bookings[i].Slot.StartTime < bookings[j].Slot.StartTime
		}
		return bookings[i].Slot.Instructor < bookings[j].Slot.Instructor
	})
}
