package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slotwise/studio-backend/internal/models"
)

func TestExtractBookIntent(t *testing.T) {
	e := NewIntentExtractor()

	frag := e.Extract("Hi! I'd like to book a yoga class tomorrow at 3pm with Maria, my name is Ana")
	assert.Equal(t, models.IntentKindBook, frag.Kind)
	assert.Equal(t, "Yoga", frag.ClassType)
	assert.Equal(t, "tomorrow 3pm", frag.When)
	assert.Equal(t, "Maria", frag.Instructor)
	assert.Equal(t, "Ana", frag.ClientName)
}

func TestExtractCancelWithBookingID(t *testing.T) {
	e := NewIntentExtractor()

	frag := e.Extract("please cancel BK1A2B3C4D")
	assert.Equal(t, models.IntentKindCancel, frag.Kind)
	assert.Equal(t, "BK1A2B3C4D", frag.BookingID)
}

func TestExtractRescheduleBeatsCancelKeyword(t *testing.T) {
	e := NewIntentExtractor()

	frag := e.Extract("I need to reschedule my pilates class")
	assert.Equal(t, models.IntentKindReschedule, frag.Kind)
	assert.Equal(t, "Pilates", frag.ClassType)
}

func TestExtractAvailability(t *testing.T) {
	e := NewIntentExtractor()

	frag := e.Extract("what's free on friday morning?")
	assert.Equal(t, models.IntentKindAvailability, frag.Kind)
	assert.Equal(t, "friday morning", frag.When)
}

func TestExtractAbandon(t *testing.T) {
	e := NewIntentExtractor()

	assert.True(t, e.Extract("never mind").Abandon)
	assert.True(t, e.Extract("forget it, I'll call instead").Abandon)
	assert.False(t, e.Extract("book yoga").Abandon)
}

func TestExtractPhoneNumberNormalized(t *testing.T) {
	e := NewIntentExtractor()

	frag := e.Extract("my number is +57 300 111 2233")
	assert.Equal(t, "+573001112233", frag.ClientPhone)
}

func TestExtractBareTimeAndDaypart(t *testing.T) {
	e := NewIntentExtractor()

	assert.Equal(t, "3pm", e.Extract("at 3pm").When)
	assert.Equal(t, "morning", e.Extract("in the morning please").When)
}

func TestExtractEmptyMessage(t *testing.T) {
	e := NewIntentExtractor()

	frag := e.Extract("   ")
	assert.Empty(t, frag.Kind)
	assert.Empty(t, frag.When)
}
