package routes

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/slotwise/studio-backend/internal/handlers"
	"github.com/slotwise/studio-backend/internal/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, health *handlers.HealthHandler, whatsapp *handlers.WhatsAppHandler, bookings *handlers.BookingHandler) {

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to SlotWise Studio Backend!",
			"version": health.Version,
			"endpoints": fiber.Map{
				"health":        "/health",
				"api":           "/api",
				"webhook":       "/webhook/whatsapp",
				"test_whatsapp": "/test/whatsapp",
			},
		})
	})

	app.Get("/health", health.Check)

	// API routes
	api := app.Group("/api")

	api.Get("/availability", bookings.GetAvailability)

	b := api.Group("/bookings")
	b.Post("/", bookings.CreateBooking)
	b.Get("/:id", bookings.GetBooking)
	b.Delete("/:id", bookings.CancelBooking)
	b.Post("/:id/reschedule", bookings.RescheduleBooking)

	api.Get("/clients/:phone/bookings", bookings.GetClientBookings)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		// Development: skip validation for ngrok
		webhooks.Post("/whatsapp", whatsapp.HandleWebhook)
		if os.Getenv("ENVIRONMENT") == "development" {
			println("⚠️  WhatsApp webhook validation DISABLED for development")
		}
	} else {
		webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(os.Getenv("TWILIO_AUTH_TOKEN")), whatsapp.HandleWebhook)
	}

	// ========== TEST ROUTES (Development Only) ==========
	app.Post("/test/whatsapp", whatsapp.HandleTestWebhook)
}
