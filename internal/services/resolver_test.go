package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/scheduling"
	"github.com/slotwise/studio-backend/internal/storage"
)

func newTestResolver(t *testing.T) (*BookingResolver, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	bookDate := testNow().AddDate(0, 0, 1)
	for _, entry := range []*models.TimetableEntry{
		{Weekday: int(bookDate.Weekday()), StartTime: "09:00", Instructor: "Maria", ClassType: "Yoga"},
		{Weekday: int(bookDate.Weekday()), StartTime: "10:00", Instructor: "Carlos", ClassType: "HIIT"},
		{Weekday: int(bookDate.Weekday()), StartTime: "15:00", Instructor: "Maria", ClassType: "Pilates"},
	} {
		require.NoError(t, store.CreateTimetableEntry(entry))
	}

	availability := NewAvailabilityIndex(NewStoreCalendar(store), 30*time.Second)
	availability.now = testNow

	resolver := NewBookingResolver(store, availability, NewTemplateService("Test Studio"), "UTC", 9, 17)
	resolver.now = testNow
	return resolver, store
}

func yogaSlot() models.TimeSlot {
	return models.TimeSlot{
		Date:       testNow().AddDate(0, 0, 1).Format("2006-01-02"),
		StartTime:  "09:00",
		Instructor: "Maria",
		ClassType:  "Yoga",
	}
}

func TestBookConfirmsAndEnqueuesNotification(t *testing.T) {
	resolver, store := newTestResolver(t)

	booking, err := resolver.Book("Ana", "+573001112233", yogaSlot(), "", "intent-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, "10:00", booking.Slot.EndTime) // Yoga runs 60 minutes

	task, err := store.GetNotificationTaskByIdempotencyKey("notify:confirmation:" + booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "+573001112233", task.Recipient)
	assert.Equal(t, models.NotificationStatusPending, task.Status)
}

func TestBookConflictCarriesAlternatives(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, err := resolver.Book("Ana", "+573001112233", yogaSlot(), "", "intent-1")
	require.NoError(t, err)

	_, err = resolver.Book("Luis", "+573009998877", yogaSlot(), "", "intent-2")

	var conflict *scheduling.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.NotEmpty(t, conflict.Alternatives)
	for _, alt := range conflict.Alternatives {
		assert.NotEqual(t, "09:00", alt.StartTime)
	}
}

func TestBookConcurrentOneWinner(t *testing.T) {
	resolver, store := newTestResolver(t)

	const callers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := resolver.Book(
				fmt.Sprintf("Client %d", i),
				fmt.Sprintf("+5730000000%02d", i),
				yogaSlot(), "", fmt.Sprintf("intent-%d", i))

			mu.Lock()
			defer mu.Unlock()
			var conflict *scheduling.ConflictError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)

	confirmed, err := store.GetConfirmedBookingsForDate(yogaSlot().Date)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)
}

// laggedReadStore delays confirmed-booking reads the way a remote database
// would, widening the window between check and commit.
type laggedReadStore struct {
	storage.Store
	delay time.Duration
}

func (s *laggedReadStore) GetConfirmedBookingsForDate(date string) ([]*models.Booking, error) {
	bookings, err := s.Store.GetConfirmedBookingsForDate(date)
	time.Sleep(s.delay)
	return bookings, err
}

func TestBookConcurrentInstructorFreeSlotStillSerialized(t *testing.T) {
	base := storage.NewMemoryStore()
	bookDate := testNow().AddDate(0, 0, 1)
	require.NoError(t, base.CreateTimetableEntry(&models.TimetableEntry{
		Weekday: int(bookDate.Weekday()), StartTime: "10:00", Instructor: "Maria", ClassType: "Yoga",
	}))

	store := &laggedReadStore{Store: base, delay: 50 * time.Millisecond}
	availability := NewAvailabilityIndex(NewStoreCalendar(store), 30*time.Second)
	availability.now = testNow
	resolver := NewBookingResolver(store, availability, NewTemplateService("Test Studio"), "UTC", 9, 17)
	resolver.now = testNow

	named := models.TimeSlot{
		Date:       bookDate.Format("2006-01-02"),
		StartTime:  "10:00",
		Instructor: "Maria",
		ClassType:  "Yoga",
	}
	anonymous := named
	anonymous.Instructor = ""

	// One names the instructor, one leaves it open. The slots conflict, so
	// exactly one may win even though their instructor lock keys differ.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = resolver.Book("Ana", "+573001112233", named, "", "intent-named")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = resolver.Book("Luis", "+573009998877", anonymous, "", "intent-open")
	}()
	wg.Wait()

	var conflict *scheduling.ConflictError
	switch {
	case errs[0] == nil:
		require.True(t, errors.As(errs[1], &conflict), "expected conflict, got %v", errs[1])
	case errs[1] == nil:
		require.True(t, errors.As(errs[0], &conflict), "expected conflict, got %v", errs[0])
	default:
		t.Fatalf("both bookings failed: %v / %v", errs[0], errs[1])
	}

	confirmed, err := base.GetConfirmedBookingsForDate(named.Date)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)
}

func TestBookIdempotentRetryReturnsSameBooking(t *testing.T) {
	resolver, store := newTestResolver(t)

	first, err := resolver.Book("Ana", "+573001112233", yogaSlot(), "", "intent-1")
	require.NoError(t, err)

	second, err := resolver.Book("Ana", "+573001112233", yogaSlot(), "", "intent-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	confirmed, err := store.GetConfirmedBookingsForDate(yogaSlot().Date)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)
}

func TestBookRejectsPastAndOutOfHours(t *testing.T) {
	resolver, _ := newTestResolver(t)

	past := yogaSlot()
	past.Date = testNow().AddDate(0, 0, -7).Format("2006-01-02")
	_, err := resolver.Book("Ana", "+573001112233", past, "", "k1")
	var pastErr *scheduling.PastDateError
	assert.True(t, errors.As(err, &pastErr))

	late := yogaSlot()
	late.StartTime = "20:00"
	_, err = resolver.Book("Ana", "+573001112233", late, "", "k2")
	var hoursErr *scheduling.OutOfHoursError
	assert.True(t, errors.As(err, &hoursErr))
}

func TestCancelFreesSlot(t *testing.T) {
	resolver, store := newTestResolver(t)

	booking, err := resolver.Book("Ana", "+573001112233", yogaSlot(), "", "intent-1")
	require.NoError(t, err)

	cancelled, err := resolver.Cancel(booking.ID, "+573001112233", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	task, err := store.GetNotificationTaskByIdempotencyKey("notify:cancellation:" + booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationKindCancellation, task.Kind)

	// The slot is bookable again.
	rebooked, err := resolver.Book("Luis", "+573009998877", yogaSlot(), "", "intent-2")
	require.NoError(t, err)
	assert.NotEqual(t, booking.ID, rebooked.ID)
}

func TestCancelIsClientScoped(t *testing.T) {
	resolver, _ := newTestResolver(t)

	booking, err := resolver.Book("Ana", "+573001112233", yogaSlot(), "", "intent-1")
	require.NoError(t, err)

	_, err = resolver.Cancel(booking.ID, "+573009998877", "", "")
	var notFound *scheduling.NotFoundError
	require.True(t, errors.As(err, &notFound))

	// Still confirmed for the rightful owner.
	upcoming, err := resolver.ListUpcoming("+573001112233", "", "")
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)
}

func TestCancelByDateAndTime(t *testing.T) {
	resolver, _ := newTestResolver(t)

	slot := yogaSlot()
	_, err := resolver.Book("Ana", "+573001112233", slot, "", "intent-1")
	require.NoError(t, err)

	cancelled, err := resolver.Cancel("", "+573001112233", slot.Date, slot.StartTime)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
}

func TestCancelTwiceFails(t *testing.T) {
	resolver, _ := newTestResolver(t)

	booking, err := resolver.Book("Ana", "+573001112233", yogaSlot(), "", "intent-1")
	require.NoError(t, err)

	_, err = resolver.Cancel(booking.ID, "+573001112233", "", "")
	require.NoError(t, err)

	_, err = resolver.Cancel(booking.ID, "+573001112233", "", "")
	var notFound *scheduling.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestListUpcomingScopesToClientAndFuture(t *testing.T) {
	resolver, _ := newTestResolver(t)

	slot := yogaSlot()
	_, err := resolver.Book("Ana", "+573001112233", slot, "", "intent-1")
	require.NoError(t, err)

	other := slot
	other.StartTime = "10:00"
	other.Instructor = "Carlos"
	other.ClassType = "HIIT"
	_, err = resolver.Book("Luis", "+573009998877", other, "", "intent-2")
	require.NoError(t, err)

	upcoming, err := resolver.ListUpcoming("+573001112233", "", "")
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "Ana", upcoming[0].ClientName)
}

func TestRescheduleMovesBooking(t *testing.T) {
	resolver, _ := newTestResolver(t)

	booking, err := resolver.Book("Ana", "+573001112233", yogaSlot(), "", "intent-1")
	require.NoError(t, err)

	newSlot := yogaSlot()
	newSlot.StartTime = "15:00"
	newSlot.ClassType = "Pilates"
	moved, err := resolver.Reschedule(booking.ID, newSlot, "intent-2")
	require.NoError(t, err)
	assert.Equal(t, "15:00", moved.Slot.StartTime)

	upcoming, err := resolver.ListUpcoming("+573001112233", "", "")
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, moved.ID, upcoming[0].ID)
}

func TestRescheduleConflictKeepsOriginal(t *testing.T) {
	resolver, _ := newTestResolver(t)

	slot := yogaSlot()
	booking, err := resolver.Book("Ana", "+573001112233", slot, "", "intent-1")
	require.NoError(t, err)

	taken := slot
	taken.StartTime = "10:00"
	taken.Instructor = "Carlos"
	taken.ClassType = "HIIT"
	_, err = resolver.Book("Luis", "+573009998877", taken, "", "intent-2")
	require.NoError(t, err)

	_, err = resolver.Reschedule(booking.ID, taken, "intent-3")
	var conflict *scheduling.ConflictError
	require.True(t, errors.As(err, &conflict))

	// The original booking survived the failed move.
	upcoming, err := resolver.ListUpcoming("+573001112233", "", "")
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, booking.ID, upcoming[0].ID)
	assert.Equal(t, "09:00", upcoming[0].Slot.StartTime)
}
