package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/scheduling"
	"github.com/slotwise/studio-backend/internal/storage"
)

// maxAlternatives caps the free slots carried inside a ConflictError.
const maxAlternatives = 5

// externalRetries bounds immediate retries of calendar reads before the
// failure surfaces to the caller.
const externalRetries = 3

// BookingResolver serializes check-then-commit booking and cancellation per
// conflict key, making "at most one confirmed booking per slot" hold under
// concurrent callers.
type BookingResolver struct {
	store        storage.Store
	availability *AvailabilityIndex
	templates    *TemplateService
	openHour     int
	closeHour    int
	loc          *time.Location
	now          func() time.Time

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewBookingResolver wires the resolver against the store and availability
// index. tz is the studio's timezone used for past-instant validation.
func NewBookingResolver(store storage.Store, availability *AvailabilityIndex, templates *TemplateService, tz string, openHour, closeHour int) *BookingResolver {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("Unknown timezone %q, using UTC", tz)
		loc = time.UTC
	}
	return &BookingResolver{
		store:        store,
		availability: availability,
		templates:    templates,
		openHour:     openHour,
		closeHour:    closeHour,
		loc:          loc,
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding a conflict key. Bookings on different
// keys proceed fully in parallel.
func (r *BookingResolver) lockFor(key string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	return mu
}

// lockSlot acquires every conflict key the slot competes on and returns the
// matching unlock. ConflictKeys is sorted, so two callers touching the same
// keys always lock in the same order and cannot deadlock.
func (r *BookingResolver) lockSlot(slot models.TimeSlot) func() {
	keys := slot.ConflictKeys()
	mus := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		mus = append(mus, r.lockFor(key))
	}
	for _, mu := range mus {
		mu.Lock()
	}
	return func() {
		for i := len(mus) - 1; i >= 0; i-- {
			mus[i].Unlock()
		}
	}
}

// Book creates a confirmed booking for the slot, or returns a
// *scheduling.ConflictError carrying up to five free alternatives on the
// same date. Re-submission with a previously successful idempotency key
// returns the original booking unchanged.
func (r *BookingResolver) Book(clientName, clientPhone string, slot models.TimeSlot, notes, idempotencyKey string) (*models.Booking, error) {
	if clientName == "" {
		return nil, &scheduling.ValidationError{Field: "client name", Reason: "required"}
	}
	if clientPhone == "" {
		return nil, &scheduling.ValidationError{Field: "client phone", Reason: "required"}
	}
	if slot.ClassType == "" {
		return nil, &scheduling.ValidationError{Field: "class type", Reason: "required"}
	}

	if existing, err := r.store.GetBookingByIdempotencyKey(idempotencyKey); err == nil {
		return existing, nil
	}

	start, err := slot.StartsAt(r.loc)
	if err != nil {
		return nil, &scheduling.ValidationError{Field: "slot", Reason: err.Error()}
	}
	if start.Before(r.now()) {
		return nil, &scheduling.PastDateError{Expression: slot.Date + " " + slot.StartTime, Resolved: start}
	}
	if start.Hour() < r.openHour || start.Hour() >= r.closeHour {
		return nil, &scheduling.OutOfHoursError{Resolved: start, OpenHour: r.openHour, CloseHour: r.closeHour}
	}

	if slot.EndTime == "" {
		slot.EndTime = addMinutes(slot.StartTime, models.ClassDuration(slot.ClassType))
	}

	unlock := r.lockSlot(slot)
	defer unlock()

	// A concurrent retry with the same key may have won the lock first.
	if existing, err := r.store.GetBookingByIdempotencyKey(idempotencyKey); err == nil {
		return existing, nil
	}

	taken, err := r.slotTaken(slot)
	if err != nil {
		return nil, err
	}
	if taken {
		alternatives, altErr := r.alternativesFor(slot)
		if altErr != nil {
			log.Printf("Could not load alternatives for %s: %v", slot.Date, altErr)
		}
		return nil, &scheduling.ConflictError{Requested: slot, Alternatives: alternatives}
	}

	key := idempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	booking := &models.Booking{
		ID:             "BK" + strings.ToUpper(uuid.NewString()[:8]),
		ClientName:     clientName,
		ClientPhone:    clientPhone,
		Slot:           slot,
		Notes:          notes,
		Status:         models.BookingStatusConfirmed,
		IdempotencyKey: key,
	}
	if _, err := r.store.CreateBooking(booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	r.enqueueNotification(booking, models.NotificationKindConfirmation, r.templates.RenderConfirmation(booking))
	r.availability.Invalidate(slot.Date)

	log.Printf("Booking %s confirmed: %s %s %s for %s", booking.ID,
		slot.Date, slot.StartTime, slot.ClassType, clientPhone)
	return booking, nil
}

// Cancel flips a confirmed booking to cancelled, frees its slot and enqueues
// the cancellation notice. Lookup is by booking ID, or by phone+date+time
// when the ID is unknown. Unknown or already-cancelled bookings return a
// *scheduling.NotFoundError.
func (r *BookingResolver) Cancel(bookingID, clientPhone, date, startTime string) (*models.Booking, error) {
	var booking *models.Booking
	var err error

	switch {
	case bookingID != "":
		booking, err = r.store.GetBooking(bookingID)
		if err != nil {
			return nil, &scheduling.NotFoundError{Resource: "booking", Key: bookingID}
		}
		// A booking ID from one client must not act on another client's record.
		if clientPhone != "" && booking.ClientPhone != clientPhone {
			return nil, &scheduling.NotFoundError{Resource: "booking", Key: bookingID}
		}
	case clientPhone != "" && date != "" && startTime != "":
		booking, err = r.store.FindConfirmedBooking(clientPhone, date, startTime)
		if err != nil {
			return nil, &scheduling.NotFoundError{Resource: "booking", Key: fmt.Sprintf("%s %s %s", clientPhone, date, startTime)}
		}
	default:
		return nil, &scheduling.ValidationError{Field: "booking reference", Reason: "booking ID or phone+date+time required"}
	}

	unlock := r.lockSlot(booking.Slot)
	defer unlock()

	// Re-read under the lock so a concurrent cancel can't double-fire.
	booking, err = r.store.GetBooking(booking.ID)
	if err != nil || booking.Status != models.BookingStatusConfirmed {
		return nil, &scheduling.NotFoundError{Resource: "booking", Key: booking.ID}
	}

	now := r.now()
	booking.Status = models.BookingStatusCancelled
	booking.CancelledAt = &now
	if err := r.store.UpdateBooking(booking); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	r.enqueueNotification(booking, models.NotificationKindCancellation, r.templates.RenderCancellation(booking))
	r.availability.Invalidate(booking.Slot.Date)

	log.Printf("Booking %s cancelled for %s", booking.ID, booking.ClientPhone)
	return booking, nil
}

// ListUpcoming returns the client's confirmed future bookings, start time
// ascending. Past bookings and other clients' bookings are never included.
func (r *BookingResolver) ListUpcoming(clientPhone, fromDate, toDate string) ([]*models.Booking, error) {
	if clientPhone == "" {
		return nil, &scheduling.ValidationError{Field: "client phone", Reason: "required"}
	}

	all, err := r.store.GetBookingsByPhone(clientPhone)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	now := r.now()
	var upcoming []*models.Booking
	for _, b := range all {
		if b.Status != models.BookingStatusConfirmed {
			continue
		}
		start, err := b.Slot.StartsAt(r.loc)
		if err != nil || start.Before(now) {
			continue
		}
		if fromDate != "" && b.Slot.Date < fromDate {
			continue
		}
		if toDate != "" && b.Slot.Date > toDate {
			continue
		}
		upcoming = append(upcoming, b)
	}
	return upcoming, nil
}

// Reschedule moves a confirmed booking to a new slot. The new slot is booked
// first; only on success is the old one cancelled, so a conflict leaves the
// original booking untouched.
func (r *BookingResolver) Reschedule(bookingID string, newSlot models.TimeSlot, idempotencyKey string) (*models.Booking, error) {
	old, err := r.store.GetBooking(bookingID)
	if err != nil || old.Status != models.BookingStatusConfirmed {
		return nil, &scheduling.NotFoundError{Resource: "booking", Key: bookingID}
	}

	if newSlot.ClassType == "" {
		newSlot.ClassType = old.Slot.ClassType
	}
	if newSlot.Instructor == "" {
		newSlot.Instructor = old.Slot.Instructor
	}

	moved, err := r.Book(old.ClientName, old.ClientPhone, newSlot, old.Notes, idempotencyKey)
	if err != nil {
		return nil, err
	}

	if _, err := r.Cancel(old.ID, old.ClientPhone, "", ""); err != nil {
		// The new booking stands; the stale one needs operator attention.
		log.Printf("Reschedule of %s: new booking %s created but old one not cancelled: %v",
			old.ID, moved.ID, err)
	}
	return moved, nil
}

// FailedNotifications surfaces permanently failed deliveries for manual
// follow-up.
func (r *BookingResolver) FailedNotifications() ([]*models.NotificationTask, error) {
	return r.store.GetFailedNotificationTasks()
}

func (r *BookingResolver) slotTaken(slot models.TimeSlot) (bool, error) {
	var bookings []*models.Booking
	var err error
	for attempt := 0; attempt < externalRetries; attempt++ {
		bookings, err = r.store.GetConfirmedBookingsForDate(slot.Date)
		if err == nil {
			break
		}
		var external *scheduling.ExternalServiceError
		if !errors.As(err, &external) {
			return false, err
		}
	}
	if err != nil {
		return false, err
	}

	for _, b := range bookings {
		if slot.ConflictsWith(b.Slot) {
			return true, nil
		}
	}
	return false, nil
}

func (r *BookingResolver) alternativesFor(slot models.TimeSlot) ([]models.TimeSlot, error) {
	free, err := r.availability.QueryLive(slot.Date, nil, "")
	if err != nil {
		return nil, err
	}
	if len(free) > maxAlternatives {
		free = free[:maxAlternatives]
	}
	return free, nil
}

// enqueueNotification creates exactly one task per booking transition; a
// retry that already produced the task is a no-op.
func (r *BookingResolver) enqueueNotification(booking *models.Booking, kind, body string) {
	key := fmt.Sprintf("notify:%s:%s", kind, booking.ID)
	if _, err := r.store.GetNotificationTaskByIdempotencyKey(key); err == nil {
		return
	}

	task := &models.NotificationTask{
		ID:             "NT" + strings.ToUpper(uuid.NewString()[:8]),
		BookingID:      booking.ID,
		Recipient:      booking.ClientPhone,
		Kind:           kind,
		Body:           body,
		IdempotencyKey: key,
		Status:         models.NotificationStatusPending,
		NextAttemptAt:  r.now(),
	}
	if _, err := r.store.CreateNotificationTask(task); err != nil {
		log.Printf("Failed to enqueue %s notification for %s: %v", kind, booking.ID, err)
	}
}
