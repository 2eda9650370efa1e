package models

import (
	"fmt"
	"sort"
	"time"
)

// TimeSlot is the atomic unit of bookable capacity: one class with one
// instructor starting at a fixed time on a fixed date.
type TimeSlot struct {
	Date       string `json:"date" gorm:"index:idx_slot,priority:2"`       // YYYY-MM-DD
	StartTime  string `json:"start_time" gorm:"index:idx_slot,priority:3"` // HH:MM (24h)
	EndTime    string `json:"end_time"`
	Instructor string `json:"instructor" gorm:"index:idx_slot,priority:1"`
	ClassType  string `json:"class_type"`
}

// ConflictKeys lists the lock keys a booking must hold before check-then-commit.
// The class key is always present: a slot booked with an instructor named and
// the same slot booked instructor-free conflict per ConflictsWith, so both
// shapes have to serialize on the shared class|type|date key. Keys are sorted
// so callers acquiring several locks always do so in the same order.
func (s TimeSlot) ConflictKeys() []string {
	keys := []string{fmt.Sprintf("class|%s|%s", s.ClassType, s.Date)}
	if s.Instructor != "" {
		keys = append(keys, fmt.Sprintf("instructor|%s|%s", s.Instructor, s.Date))
	}
	sort.Strings(keys)
	return keys
}

// ConflictsWith reports whether two slots cannot both be booked: same
// instructor with overlapping times, or - when either side has no
// instructor - same class type, date and exact start time.
func (s TimeSlot) ConflictsWith(other TimeSlot) bool {
	if s.Date != other.Date {
		return false
	}
	if s.Instructor != "" && other.Instructor != "" {
		return s.Instructor == other.Instructor && s.overlaps(other)
	}
	return s.ClassType == other.ClassType && s.StartTime == other.StartTime
}

func (s TimeSlot) overlaps(other TimeSlot) bool {
	// HH:MM strings compare correctly lexicographically.
	sEnd := s.EndTime
	if sEnd == "" {
		sEnd = s.StartTime
	}
	oEnd := other.EndTime
	if oEnd == "" {
		oEnd = other.StartTime
	}
	return s.StartTime < oEnd && other.StartTime < sEnd
}

// StartsAt resolves the slot's start instant in the given location.
func (s TimeSlot) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", s.Date+" "+s.StartTime, loc)
}

// Booking is a persistent record of a confirmed (or later cancelled) class
// appointment. Cancelled bookings are kept for audit history.
type Booking struct {
	ID          string   `json:"id" gorm:"primaryKey"`
	ClientName  string   `json:"client_name"`
	ClientPhone string   `json:"client_phone" gorm:"index:idx_client_start,priority:1"`
	Slot        TimeSlot `json:"slot" gorm:"embedded"`
	Notes       string   `json:"notes"`

	Status         string `json:"status"` // "confirmed", "cancelled"
	IdempotencyKey string `json:"-" gorm:"uniqueIndex"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// BookingStatus constants
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)
