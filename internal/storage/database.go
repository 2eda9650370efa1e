package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/slotwise/studio-backend/internal/models"
)

// DatabaseStore is the PostgreSQL-backed store implementation.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by the given gorm connection.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Booking operations

func (d *DatabaseStore) CreateBooking(booking *models.Booking) (*models.Booking, error) {
	if err := d.db.Create(booking).Error; err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return booking, nil
}

func (d *DatabaseStore) GetBooking(id string) (*models.Booking, error) {
	var booking models.Booking
	if err := d.db.First(&booking, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("booking not found")
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &booking, nil
}

func (d *DatabaseStore) GetBookingByIdempotencyKey(key string) (*models.Booking, error) {
	if key == "" {
		return nil, fmt.Errorf("booking not found")
	}
	var booking models.Booking
	if err := d.db.First(&booking, "idempotency_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("booking not found")
		}
		return nil, fmt.Errorf("get booking by key: %w", err)
	}
	return &booking, nil
}

func (d *DatabaseStore) GetConfirmedBookingsForDate(date string) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := d.db.
		Where("status = ? AND date = ?", models.BookingStatusConfirmed, date).
		Order("start_time asc, instructor asc").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("bookings for date: %w", err)
	}
	return bookings, nil
}

func (d *DatabaseStore) FindConfirmedBooking(phone, date, startTime string) (*models.Booking, error) {
	var booking models.Booking
	err := d.db.First(&booking,
		"status = ? AND client_phone = ? AND date = ? AND start_time = ?",
		models.BookingStatusConfirmed, phone, date, startTime).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("booking not found")
		}
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return &booking, nil
}

func (d *DatabaseStore) GetBookingsByPhone(phone string) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := d.db.
		Where("client_phone = ?", phone).
		Order("date asc, start_time asc, instructor asc").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("bookings by phone: %w", err)
	}
	return bookings, nil
}

func (d *DatabaseStore) UpdateBooking(booking *models.Booking) error {
	if err := d.db.Save(booking).Error; err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return nil
}

// Notification task operations

func (d *DatabaseStore) CreateNotificationTask(task *models.NotificationTask) (*models.NotificationTask, error) {
	if err := d.db.Create(task).Error; err != nil {
		return nil, fmt.Errorf("create notification task: %w", err)
	}
	return task, nil
}

func (d *DatabaseStore) GetNotificationTask(id string) (*models.NotificationTask, error) {
	var task models.NotificationTask
	if err := d.db.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("notification task not found")
		}
		return nil, fmt.Errorf("get notification task: %w", err)
	}
	return &task, nil
}

func (d *DatabaseStore) GetNotificationTaskByIdempotencyKey(key string) (*models.NotificationTask, error) {
	if key == "" {
		return nil, fmt.Errorf("notification task not found")
	}
	var task models.NotificationTask
	if err := d.db.First(&task, "idempotency_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("notification task not found")
		}
		return nil, fmt.Errorf("get notification task by key: %w", err)
	}
	return &task, nil
}

func (d *DatabaseStore) GetDueNotificationTasks(now time.Time, limit int) ([]*models.NotificationTask, error) {
	var tasks []*models.NotificationTask
	q := d.db.
		Where("status = ? AND next_attempt_at <= ?", models.NotificationStatusPending, now).
		Order("next_attempt_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("due notification tasks: %w", err)
	}
	return tasks, nil
}

func (d *DatabaseStore) GetFailedNotificationTasks() ([]*models.NotificationTask, error) {
	var tasks []*models.NotificationTask
	err := d.db.
		Where("status = ?", models.NotificationStatusFailed).
		Order("updated_at desc").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed notification tasks: %w", err)
	}
	return tasks, nil
}

func (d *DatabaseStore) UpdateNotificationTask(task *models.NotificationTask) error {
	if err := d.db.Save(task).Error; err != nil {
		return fmt.Errorf("update notification task: %w", err)
	}
	return nil
}

// Timetable operations

func (d *DatabaseStore) CreateTimetableEntry(entry *models.TimetableEntry) error {
	if err := d.db.Create(entry).Error; err != nil {
		return fmt.Errorf("create timetable entry: %w", err)
	}
	return nil
}

func (d *DatabaseStore) GetTimetableForWeekday(weekday int) ([]*models.TimetableEntry, error) {
	var entries []*models.TimetableEntry
	err := d.db.
		Where("weekday = ?", weekday).
		Order("start_time asc, instructor asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("timetable for weekday: %w", err)
	}
	return entries, nil
}

func (d *DatabaseStore) CountTimetableEntries() (int64, error) {
	var count int64
	if err := d.db.Model(&models.TimetableEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count timetable entries: %w", err)
	}
	return count, nil
}
