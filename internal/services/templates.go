package services

import (
	"fmt"
	"strings"

	"github.com/slotwise/studio-backend/internal/models"
)

// TemplateService renders the client-facing WhatsApp message bodies for
// booking lifecycle events.
type TemplateService struct {
	studioName string
}

// NewTemplateService creates a new template service
func NewTemplateService(studioName string) *TemplateService {
	if studioName == "" {
		studioName = "the studio"
	}
	return &TemplateService{studioName: studioName}
}

// RenderConfirmation builds the booking confirmation message.
func (t *TemplateService) RenderConfirmation(b *models.Booking) string {
	return fmt.Sprintf(`✅ *Booking confirmed!*

📅 %s class on %s at %s
👤 Instructor: %s
🎫 Booking ID: %s

See you at %s, %s! Reply "cancel %s" if your plans change.`,
		b.Slot.ClassType, b.Slot.Date, b.Slot.StartTime,
		instructorOrAny(b.Slot.Instructor), b.ID,
		t.studioName, b.ClientName, b.ID)
}

// RenderCancellation builds the cancellation notice.
func (t *TemplateService) RenderCancellation(b *models.Booking) string {
	return fmt.Sprintf(`❌ *Booking cancelled*

Your %s class on %s at %s has been cancelled.
🎫 Booking ID: %s

Hope to see you again soon at %s!`,
		b.Slot.ClassType, b.Slot.Date, b.Slot.StartTime, b.ID, t.studioName)
}

// RenderReminder builds the day-before class reminder.
func (t *TemplateService) RenderReminder(b *models.Booking) string {
	return fmt.Sprintf(`⏰ *Reminder*

Your %s class with %s is tomorrow, %s at %s.
🎫 Booking ID: %s

Reply "cancel %s" if you can't make it.`,
		b.Slot.ClassType, instructorOrAny(b.Slot.Instructor),
		b.Slot.Date, b.Slot.StartTime, b.ID, b.ID)
}

// RenderAlternatives lists free slots after a conflict, ready to send.
func (t *TemplateService) RenderAlternatives(requested models.TimeSlot, alternatives []models.TimeSlot) string {
	if len(alternatives) == 0 {
		return fmt.Sprintf("Sorry, %s at %s is already taken and nothing else is free that day. Want to try another date?",
			requested.Date, requested.StartTime)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sorry, %s at %s is already taken. Free on the same day:\n",
		requested.Date, requested.StartTime)
	for _, slot := range alternatives {
		fmt.Fprintf(&b, "• %s %s with %s\n", slot.StartTime, slot.ClassType, instructorOrAny(slot.Instructor))
	}
	b.WriteString("Which one works for you?")
	return b.String()
}

// RenderSlotList formats an availability answer.
func (t *TemplateService) RenderSlotList(date string, slots []models.TimeSlot) string {
	if len(slots) == 0 {
		return fmt.Sprintf("No free slots on %s. Want me to check another day?", date)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 Free slots on %s:\n", date)
	for _, slot := range slots {
		fmt.Fprintf(&b, "• %s %s with %s\n", slot.StartTime, slot.ClassType, instructorOrAny(slot.Instructor))
	}
	return b.String()
}

func instructorOrAny(instructor string) string {
	if instructor == "" {
		return "our staff"
	}
	return instructor
}
