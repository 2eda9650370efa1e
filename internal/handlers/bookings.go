package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/scheduling"
	"github.com/slotwise/studio-backend/internal/services"
)

// BookingHandler exposes the booking operations over REST, alongside the
// conversational surface.
type BookingHandler struct {
	resolver     *services.BookingResolver
	availability *services.AvailabilityIndex
	parser       *services.TimeParser
	defaultTZ    string
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(resolver *services.BookingResolver, availability *services.AvailabilityIndex, parser *services.TimeParser, defaultTZ string) *BookingHandler {
	return &BookingHandler{
		resolver:     resolver,
		availability: availability,
		parser:       parser,
		defaultTZ:    defaultTZ,
	}
}

// GetAvailability answers GET /api/availability?date=...&range=...&instructor=...
// date accepts natural language ("tomorrow") as well as YYYY-MM-DD.
func (h *BookingHandler) GetAvailability(c *fiber.Ctx) error {
	dateExpr := c.Query("date")
	if dateExpr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "date query parameter is required",
		})
	}

	date := dateExpr
	if _, err := time.Parse("2006-01-02", dateExpr); err != nil {
		normalized, perr := h.parser.Parse(dateExpr, time.Now(), h.defaultTZ)
		if perr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "could not understand date",
			})
		}
		date = normalized.Date
	}

	slots, err := h.availability.Query(date, services.ParseTimeRange(c.Query("range")), c.Query("instructor"))
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "calendar unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"date":  date,
		"slots": slots,
		"count": len(slots),
	})
}

// CreateBooking handles POST /api/bookings
func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	var req struct {
		ClientName     string `json:"client_name"`
		ClientPhone    string `json:"client_phone"`
		ClassType      string `json:"class_type"`
		Date           string `json:"date"`
		StartTime      string `json:"start_time"`
		Instructor     string `json:"instructor"`
		Notes          string `json:"notes"`
		IdempotencyKey string `json:"idempotency_key"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	slot := models.TimeSlot{
		Date:       req.Date,
		StartTime:  req.StartTime,
		Instructor: req.Instructor,
		ClassType:  req.ClassType,
	}
	booking, err := h.resolver.Book(req.ClientName, req.ClientPhone, slot, req.Notes, req.IdempotencyKey)
	if err != nil {
		return bookingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Booking confirmed",
		"booking": booking,
	})
}

// GetBooking retrieves a booking by ID for the owning client.
func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	id := c.Params("id")
	phone := c.Query("phone")

	bookings, err := h.resolver.ListUpcoming(phone, "", "")
	if err != nil {
		return bookingError(c, err)
	}
	for _, b := range bookings {
		if b.ID == id {
			return c.JSON(b)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Booking not found",
	})
}

// GetClientBookings lists a client's upcoming bookings.
func (h *BookingHandler) GetClientBookings(c *fiber.Ctx) error {
	phone := c.Params("phone")
	bookings, err := h.resolver.ListUpcoming(phone, c.Query("from"), c.Query("to"))
	if err != nil {
		return bookingError(c, err)
	}

	return c.JSON(fiber.Map{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// CancelBooking handles DELETE /api/bookings/:id
func (h *BookingHandler) CancelBooking(c *fiber.Ctx) error {
	booking, err := h.resolver.Cancel(c.Params("id"), c.Query("phone"), "", "")
	if err != nil {
		return bookingError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Booking cancelled",
		"booking": booking,
	})
}

// RescheduleBooking handles POST /api/bookings/:id/reschedule
func (h *BookingHandler) RescheduleBooking(c *fiber.Ctx) error {
	var req struct {
		Date           string `json:"date"`
		StartTime      string `json:"start_time"`
		Instructor     string `json:"instructor"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	booking, err := h.resolver.Reschedule(c.Params("id"), models.TimeSlot{
		Date:       req.Date,
		StartTime:  req.StartTime,
		Instructor: req.Instructor,
	}, req.IdempotencyKey)
	if err != nil {
		return bookingError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Booking rescheduled",
		"booking": booking,
	})
}

// bookingError maps the scheduling error taxonomy onto HTTP statuses. A
// conflict carries the free alternatives in the response body.
func bookingError(c *fiber.Ctx, err error) error {
	var conflict *scheduling.ConflictError
	if errors.As(err, &conflict) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":        "Slot already booked",
			"alternatives": conflict.Alternatives,
		})
	}
	var notFound *scheduling.NotFoundError
	if errors.As(err, &notFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFound.Error(),
		})
	}
	var validation *scheduling.ValidationError
	var past *scheduling.PastDateError
	var hours *scheduling.OutOfHoursError
	if errors.As(err, &validation) || errors.As(err, &past) || errors.As(err, &hours) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	var external *scheduling.ExternalServiceError
	if errors.As(err, &external) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Upstream service unavailable",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal error",
	})
}
