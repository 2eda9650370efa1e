package services

import (
	"sort"
	"sync"
	"time"

	"github.com/slotwise/studio-backend/internal/models"
)

// AvailabilityIndex answers "what's free" on a given date. Reads go through
// a small per-date cache bounded by a TTL; the booking commit path always
// re-checks the live calendar under the conflict lock, so a stale read can
// only cause a spurious offer, never a double booking.
type AvailabilityIndex struct {
	calendar Calendar
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedDay
}

type cachedDay struct {
	slots     []models.TimeSlot
	fetchedAt time.Time
}

// NewAvailabilityIndex creates an index over the given calendar.
func NewAvailabilityIndex(calendar Calendar, cacheTTL time.Duration) *AvailabilityIndex {
	return &AvailabilityIndex{
		calendar: calendar,
		cacheTTL: cacheTTL,
		now:      time.Now,
		cache:    make(map[string]cachedDay),
	}
}

// Query returns the free TimeSlots for a date, optionally filtered by time
// range and instructor, ordered by start time with instructor as tie-break.
func (a *AvailabilityIndex) Query(date string, timeRange *TimeRange, instructor string) ([]models.TimeSlot, error) {
	free, err := a.freeSlots(date, true)
	if err != nil {
		return nil, err
	}
	return filterSlots(free, timeRange, instructor), nil
}

// QueryLive behaves like Query but bypasses the cache. The conflict resolver
// uses it for the re-check under the slot lock and for building alternatives.
func (a *AvailabilityIndex) QueryLive(date string, timeRange *TimeRange, instructor string) ([]models.TimeSlot, error) {
	free, err := a.freeSlots(date, false)
	if err != nil {
		return nil, err
	}
	return filterSlots(free, timeRange, instructor), nil
}

// Invalidate drops the cached view of a date after a booking state change.
func (a *AvailabilityIndex) Invalidate(date string) {
	a.mu.Lock()
	delete(a.cache, date)
	a.mu.Unlock()
}

func (a *AvailabilityIndex) freeSlots(date string, useCache bool) ([]models.TimeSlot, error) {
	if useCache {
		a.mu.RLock()
		cached, ok := a.cache[date]
		a.mu.RUnlock()
		if ok && a.now().Sub(cached.fetchedAt) < a.cacheTTL {
			return cached.slots, nil
		}
	}

	schedulable, err := a.calendar.Schedulable(date)
	if err != nil {
		return nil, err
	}
	events, err := a.calendar.EventsOn(date)
	if err != nil {
		return nil, err
	}

	var free []models.TimeSlot
	for _, slot := range schedulable {
		taken := false
		for _, ev := range events {
			if slot.ConflictsWith(ev.Slot) {
				taken = true
				break
			}
		}
		if !taken {
			free = append(free, slot)
		}
	}

	sort.Slice(free, func(i, j int) bool {
		if free[i].StartTime != free[j].StartTime {
			return free[i].StartTime < free[j].StartTime
		}
		return free[i].Instructor < free[j].Instructor
	})

	if useCache {
		a.mu.Lock()
		a.cache[date] = cachedDay{slots: free, fetchedAt: a.now()}
		a.mu.Unlock()
	}
	return free, nil
}

func filterSlots(slots []models.TimeSlot, timeRange *TimeRange, instructor string) []models.TimeSlot {
	result := make([]models.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if instructor != "" && slot.Instructor != instructor {
			continue
		}
		if timeRange != nil && (slot.StartTime < timeRange.Start || slot.StartTime >= timeRange.End) {
			continue
		}
		result = append(result, slot)
	}
	return result
}
