package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/slotwise/studio-backend/internal/services"
)

// WhatsAppHandler receives Twilio WhatsApp webhooks and runs each message
// through the dialogue engine.
type WhatsAppHandler struct {
	dialogue *services.DialogueEngine
	channel  services.NotificationChannel
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(dialogue *services.DialogueEngine, channel services.NotificationChannel) *WhatsAppHandler {
	return &WhatsAppHandler{
		dialogue: dialogue,
		channel:  channel,
	}
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid string `form:"MessageSid"`
	AccountSid string `form:"AccountSid"`
	From       string `form:"From"` // WhatsApp number (whatsapp:+573001234567)
	To         string `form:"To"`   // Your Twilio number
	Body       string `form:"Body"` // Message text
	NumMedia   string `form:"NumMedia"`
}

// HandleWebhook processes incoming WhatsApp messages
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Status callbacks arrive on the same URL with no body text.
	if payload.Body == "" || payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	from := strings.TrimPrefix(payload.From, "whatsapp:")
	log.Printf("📱 WhatsApp message from %s: %s", from, payload.Body)

	result, err := h.dialogue.HandleMessage(c.Context(), from, payload.Body)
	if err != nil {
		log.Printf("Error processing message: %v", err)
		result = &services.TurnResult{Reply: "❌ Sorry, something went wrong. Please try again."}
	}

	if result.Reply != "" {
		if err := h.channel.SendWhatsAppMessage(from, result.Reply); err != nil {
			log.Printf("❌ Failed to send WhatsApp response: %v", err)
		}
	}

	// Acknowledge webhook receipt
	return c.SendStatus(fiber.StatusOK)
}

// TestWebhookPayload is the JSON shape of the development endpoint.
type TestWebhookPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// HandleTestWebhook processes test WhatsApp messages without Twilio in the
// loop; the reply comes back in the response body.
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}
	if payload.From == "" || payload.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from and message are required",
		})
	}

	log.Printf("🧪 Test webhook from %s: %s", payload.From, payload.Message)

	result, err := h.dialogue.HandleMessage(c.Context(), payload.From, payload.Message)
	if err != nil {
		log.Printf("Error processing message: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"response":     result.Reply,
		"state":        result.State,
		"booking":      result.Booking,
		"alternatives": result.Alternatives,
	})
}
