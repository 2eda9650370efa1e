package storage

import (
	"time"

	"github.com/slotwise/studio-backend/internal/models"
)

// Store defines the interface for storage operations
type Store interface {
	// Booking operations
	CreateBooking(booking *models.Booking) (*models.Booking, error)
	GetBooking(id string) (*models.Booking, error)
	GetBookingByIdempotencyKey(key string) (*models.Booking, error)
	GetConfirmedBookingsForDate(date string) ([]*models.Booking, error)
	FindConfirmedBooking(phone, date, startTime string) (*models.Booking, error)
	GetBookingsByPhone(phone string) ([]*models.Booking, error)
	UpdateBooking(booking *models.Booking) error

	// Notification task operations
	CreateNotificationTask(task *models.NotificationTask) (*models.NotificationTask, error)
	GetNotificationTask(id string) (*models.NotificationTask, error)
	GetNotificationTaskByIdempotencyKey(key string) (*models.NotificationTask, error)
	GetDueNotificationTasks(now time.Time, limit int) ([]*models.NotificationTask, error)
	GetFailedNotificationTasks() ([]*models.NotificationTask, error)
	UpdateNotificationTask(task *models.NotificationTask) error

	// Timetable operations
	CreateTimetableEntry(entry *models.TimetableEntry) error
	GetTimetableForWeekday(weekday int) ([]*models.TimetableEntry, error)
	CountTimetableEntries() (int64, error)
}
