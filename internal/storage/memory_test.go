package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/studio-backend/internal/models"
)

func sampleBooking(id, phone, date, start string) *models.Booking {
	return &models.Booking{
		ID:             id,
		ClientName:     "Ana",
		ClientPhone:    phone,
		Status:         models.BookingStatusConfirmed,
		IdempotencyKey: "key-" + id,
		Slot: models.TimeSlot{
			Date:       date,
			StartTime:  start,
			EndTime:    "10:00",
			Instructor: "Maria",
			ClassType:  "Yoga",
		},
	}
}

func TestMemoryStoreBookingRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	created, err := store.CreateBooking(sampleBooking("BK1", "+57300", "2030-06-04", "09:00"))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.GetBooking("BK1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.ClientName)

	_, err = store.GetBooking("BK9")
	assert.Error(t, err)
}

func TestMemoryStoreRejectsDuplicateIdempotencyKey(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.CreateBooking(sampleBooking("BK1", "+57300", "2030-06-04", "09:00"))
	require.NoError(t, err)

	dup := sampleBooking("BK2", "+57300", "2030-06-04", "10:00")
	dup.IdempotencyKey = "key-BK1"
	_, err = store.CreateBooking(dup)
	assert.Error(t, err)

	found, err := store.GetBookingByIdempotencyKey("key-BK1")
	require.NoError(t, err)
	assert.Equal(t, "BK1", found.ID)
}

func TestMemoryStoreReadsReturnCopies(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.CreateBooking(sampleBooking("BK1", "+57300", "2030-06-04", "09:00"))
	require.NoError(t, err)

	got, err := store.GetBooking("BK1")
	require.NoError(t, err)
	got.ClientName = "Mallory"

	again, err := store.GetBooking("BK1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.ClientName)
}

func TestMemoryStoreConfirmedBookingsForDateSorted(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.CreateBooking(sampleBooking("BK1", "+57300", "2030-06-04", "15:00"))
	require.NoError(t, err)
	_, err = store.CreateBooking(sampleBooking("BK2", "+57301", "2030-06-04", "09:00"))
	require.NoError(t, err)

	cancelled := sampleBooking("BK3", "+57302", "2030-06-04", "11:00")
	cancelled.Status = models.BookingStatusCancelled
	_, err = store.CreateBooking(cancelled)
	require.NoError(t, err)

	bookings, err := store.GetConfirmedBookingsForDate("2030-06-04")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "09:00", bookings[0].Slot.StartTime)
	assert.Equal(t, "15:00", bookings[1].Slot.StartTime)
}

func TestMemoryStoreFindConfirmedBooking(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.CreateBooking(sampleBooking("BK1", "+57300", "2030-06-04", "09:00"))
	require.NoError(t, err)

	found, err := store.FindConfirmedBooking("+57300", "2030-06-04", "09:00")
	require.NoError(t, err)
	assert.Equal(t, "BK1", found.ID)

	_, err = store.FindConfirmedBooking("+57999", "2030-06-04", "09:00")
	assert.Error(t, err)
}

func TestMemoryStoreDueNotificationTasks(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2030, time.June, 3, 10, 0, 0, 0, time.UTC)

	mk := func(id string, at time.Time, status string) {
		_, err := store.CreateNotificationTask(&models.NotificationTask{
			ID: id, IdempotencyKey: "key-" + id,
			Status: status, NextAttemptAt: at,
		})
		require.NoError(t, err)
	}
	mk("NT1", now.Add(-time.Minute), models.NotificationStatusPending)
	mk("NT2", now.Add(-time.Hour), models.NotificationStatusPending)
	mk("NT3", now.Add(time.Hour), models.NotificationStatusPending)
	mk("NT4", now.Add(-time.Hour), models.NotificationStatusSent)

	due, err := store.GetDueNotificationTasks(now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "NT2", due[0].ID) // oldest first
	assert.Equal(t, "NT1", due[1].ID)

	limited, err := store.GetDueNotificationTasks(now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStoreTimetable(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.CreateTimetableEntry(&models.TimetableEntry{
		Weekday: 2, StartTime: "09:00", Instructor: "Maria", ClassType: "Yoga",
	}))
	require.NoError(t, store.CreateTimetableEntry(&models.TimetableEntry{
		Weekday: 3, StartTime: "10:00", Instructor: "Carlos", ClassType: "HIIT",
	}))

	count, err := store.CountTimetableEntries()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	tuesday, err := store.GetTimetableForWeekday(2)
	require.NoError(t, err)
	require.Len(t, tuesday, 1)
	assert.Equal(t, "Yoga", tuesday[0].ClassType)
}
