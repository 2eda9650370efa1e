package services

import (
	"fmt"
	"time"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/scheduling"
	"github.com/slotwise/studio-backend/internal/storage"
)

// CalendarEvent is one occupied slot on the shared calendar.
type CalendarEvent struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Slot  models.TimeSlot `json:"slot"`
}

// Calendar is the abstract query contract over the studio's shared calendar.
// The concrete backend (Google Calendar, CalDAV) is out of scope; the default
// implementation answers from the timetable and the booking store.
type Calendar interface {
	// Schedulable returns every slot the studio offers on the given date.
	Schedulable(date string) ([]models.TimeSlot, error)
	// EventsOn returns the occupied slots on the given date.
	EventsOn(date string) ([]CalendarEvent, error)
}

// StoreCalendar backs the Calendar contract with the timetable and confirmed
// bookings held in the Store.
type StoreCalendar struct {
	store storage.Store
}

// NewStoreCalendar creates a store-backed calendar.
func NewStoreCalendar(store storage.Store) *StoreCalendar {
	return &StoreCalendar{store: store}
}

// Schedulable expands the weekly timetable into concrete TimeSlots for the
// date, with end times derived from the class catalog.
func (c *StoreCalendar) Schedulable(date string) ([]models.TimeSlot, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, &scheduling.ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", date)}
	}

	entries, err := c.store.GetTimetableForWeekday(int(day.Weekday()))
	if err != nil {
		return nil, &scheduling.ExternalServiceError{Service: "calendar", Err: err}
	}

	slots := make([]models.TimeSlot, 0, len(entries))
	for _, entry := range entries {
		slots = append(slots, models.TimeSlot{
			Date:       date,
			StartTime:  entry.StartTime,
			EndTime:    addMinutes(entry.StartTime, models.ClassDuration(entry.ClassType)),
			Instructor: entry.Instructor,
			ClassType:  entry.ClassType,
		})
	}
	return slots, nil
}

// EventsOn maps confirmed bookings onto calendar events.
func (c *StoreCalendar) EventsOn(date string) ([]CalendarEvent, error) {
	bookings, err := c.store.GetConfirmedBookingsForDate(date)
	if err != nil {
		return nil, &scheduling.ExternalServiceError{Service: "calendar", Err: err}
	}

	events := make([]CalendarEvent, 0, len(bookings))
	for _, b := range bookings {
		events = append(events, CalendarEvent{
			ID:    b.ID,
			Title: fmt.Sprintf("%s with %s", b.Slot.ClassType, b.Slot.Instructor),
			Slot:  b.Slot,
		})
	}
	return events, nil
}

func addMinutes(clock string, minutes int) string {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return clock
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format("15:04")
}
