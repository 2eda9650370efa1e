package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/storage"
)

func newTestDialogue(t *testing.T) (*DialogueEngine, *BookingResolver, *storage.MemoryStore) {
	t.Helper()

	resolver, store := newTestResolver(t)
	sessions := NewSessionManager(NewMemorySessionStore(), 24*time.Hour)
	t.Cleanup(sessions.Stop)

	parser := NewTimeParser(9, 17)
	engine := NewDialogueEngine(sessions, NewIntentExtractor(), parser, resolver,
		resolver.availability, NewTemplateService("Test Studio"), "UTC", 2, 3)
	engine.now = testNow
	return engine, resolver, store
}

const testPhone = "+573001112233"

func TestDialogueTwoTurnBooking(t *testing.T) {
	engine, _, store := newTestDialogue(t)
	ctx := context.Background()

	result, err := engine.HandleMessage(ctx, testPhone, "I want to book a yoga class")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCollecting, result.State)
	assert.Contains(t, result.Reply, "date and time")
	assert.Contains(t, result.Reply, "your name")

	result, err = engine.HandleMessage(ctx, testPhone, "tomorrow at 3pm, my name is Ana")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusResolved, result.State)
	require.NotNil(t, result.Booking)
	assert.Equal(t, "Yoga", result.Booking.Slot.ClassType)
	assert.Equal(t, "15:00", result.Booking.Slot.StartTime)

	// Exactly one booking came out of the two turns.
	confirmed, err := store.GetConfirmedBookingsForDate(result.Booking.Slot.Date)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)
}

func TestDialogueCorrectionOverwritesTime(t *testing.T) {
	engine, _, store := newTestDialogue(t)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, testPhone, "book yoga tomorrow at 10am")
	require.NoError(t, err)

	result, err := engine.HandleMessage(ctx, testPhone, "sorry, at 3pm instead")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCollecting, result.State)

	// The correction replaced the pending expression without booking anything.
	active := engine.sessions.Peek(testPhone).Active
	require.NotNil(t, active)
	assert.Equal(t, "3pm", active.When)
	confirmed, _ := store.GetConfirmedBookingsForDate(testNow().AddDate(0, 0, 1).Format("2006-01-02"))
	assert.Empty(t, confirmed)

	result, err = engine.HandleMessage(ctx, testPhone, "my name is Ana")
	require.NoError(t, err)
	require.NotNil(t, result.Booking)
	assert.Equal(t, "15:00", result.Booking.Slot.StartTime)
}

func TestDialogueAmbiguousTimeAsksForClarification(t *testing.T) {
	engine, _, _ := newTestDialogue(t)
	ctx := context.Background()

	result, err := engine.HandleMessage(ctx, testPhone, "book pilates on tuesday at 10am, my name is Ana")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCollecting, result.State)
	assert.Contains(t, result.Reply, "Did you mean")

	result, err = engine.HandleMessage(ctx, testPhone, "next tuesday at 10am")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusResolved, result.State)
	require.NotNil(t, result.Booking)
	assert.Equal(t, testNow().AddDate(0, 0, 1).Format("2006-01-02"), result.Booking.Slot.Date)
}

func TestDialogueGivesUpAfterRepeatedAmbiguity(t *testing.T) {
	engine, _, _ := newTestDialogue(t)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, testPhone, "book yoga on tuesday at 10am, my name is Ana")
	require.NoError(t, err)

	result, err := engine.HandleMessage(ctx, testPhone, "tuesday at 10am")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCollecting, result.State)

	result, err = engine.HandleMessage(ctx, testPhone, "tuesday at 10am")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusAbandoned, result.State)
	assert.Nil(t, engine.sessions.Peek(testPhone).Active)
}

func TestDialogueConflictOffersAlternativesAndKeepsIntent(t *testing.T) {
	engine, resolver, _ := newTestDialogue(t)
	ctx := context.Background()

	slot := yogaSlot()
	_, err := resolver.Book("Luis", "+573009998877", slot, "", "other-intent")
	require.NoError(t, err)

	result, err := engine.HandleMessage(ctx, testPhone,
		"book yoga tomorrow at 9am with Maria, my name is Ana")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusCollecting, result.State)
	assert.NotEmpty(t, result.Alternatives)
	assert.Nil(t, result.Booking)

	// Everything but the slot survives; only the time must be re-collected.
	active := engine.sessions.Peek(testPhone).Active
	require.NotNil(t, active)
	assert.Equal(t, "Yoga", active.ClassType)
	assert.Equal(t, "Ana", active.ClientName)
	assert.Empty(t, active.Date)
	assert.Empty(t, active.Time)

	result, err = engine.HandleMessage(ctx, testPhone, "at 3pm")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusResolved, result.State)
	require.NotNil(t, result.Booking)
	assert.Equal(t, "15:00", result.Booking.Slot.StartTime)
}

func TestDialogueAbandonDropsIntent(t *testing.T) {
	engine, _, _ := newTestDialogue(t)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, testPhone, "book a yoga class")
	require.NoError(t, err)

	result, err := engine.HandleMessage(ctx, testPhone, "never mind")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusAbandoned, result.State)
	assert.Nil(t, engine.sessions.Peek(testPhone).Active)
}

func TestDialogueQueuesSecondGoal(t *testing.T) {
	engine, _, _ := newTestDialogue(t)
	ctx := context.Background()

	_, err := engine.HandleMessage(ctx, testPhone, "book a yoga class")
	require.NoError(t, err)

	result, err := engine.HandleMessage(ctx, testPhone, "what's available tomorrow?")
	require.NoError(t, err)
	assert.Contains(t, result.Reply, "next")
	require.Len(t, engine.sessions.Peek(testPhone).Queue, 1)

	// Finishing the booking activates the queued availability query.
	result, err = engine.HandleMessage(ctx, testPhone, "tomorrow at 3pm, my name is Ana")
	require.NoError(t, err)
	require.NotNil(t, result.Booking)
	assert.Contains(t, result.Reply, "Next up:")
	assert.Empty(t, engine.sessions.Peek(testPhone).Queue)
}

func TestDialogueAvailabilityQuery(t *testing.T) {
	engine, _, _ := newTestDialogue(t)
	ctx := context.Background()

	result, err := engine.HandleMessage(ctx, testPhone, "what's free tomorrow?")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusResolved, result.State)
	assert.NotEmpty(t, result.Alternatives)
	assert.Contains(t, result.Reply, "Free slots")
}

func TestDialogueCancelByBookingID(t *testing.T) {
	engine, resolver, _ := newTestDialogue(t)
	ctx := context.Background()

	booking, err := resolver.Book("Ana", testPhone, yogaSlot(), "", "intent-1")
	require.NoError(t, err)

	result, err := engine.HandleMessage(ctx, testPhone, "cancel "+booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusResolved, result.State)
	require.NotNil(t, result.Booking)
	assert.Equal(t, models.BookingStatusCancelled, result.Booking.Status)
}

func TestDialogueGreetingWhenIdle(t *testing.T) {
	engine, _, _ := newTestDialogue(t)

	result, err := engine.HandleMessage(context.Background(), testPhone, "hello there")
	require.NoError(t, err)
	assert.Equal(t, "idle", result.State)
	assert.Contains(t, result.Reply, "book")
}
