package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/scheduling"
)

// TurnResult is what one inbound message produced: the reply to send back,
// plus the booking or alternatives when the turn resolved or collided.
type TurnResult struct {
	Reply        string            `json:"reply"`
	Booking      *models.Booking   `json:"booking,omitempty"`
	Alternatives []models.TimeSlot `json:"alternatives,omitempty"`
	State        string            `json:"state"`
}

// DialogueEngine drives the per-client conversation: it accumulates intent
// fragments across turns, asks for what is missing, normalizes the time
// expression once everything is collected, and hands the completed intent to
// the resolver. One intent is active per session; new goals queue behind it.
type DialogueEngine struct {
	sessions     *SessionManager
	extractor    *IntentExtractor
	parser       *TimeParser
	resolver     *BookingResolver
	availability *AvailabilityIndex
	templates    *TemplateService

	defaultTZ  string
	maxClarify int
	maxQueued  int
	now        func() time.Time
}

// NewDialogueEngine wires the engine against its collaborators.
func NewDialogueEngine(
	sessions *SessionManager,
	extractor *IntentExtractor,
	parser *TimeParser,
	resolver *BookingResolver,
	availability *AvailabilityIndex,
	templates *TemplateService,
	defaultTZ string,
	maxClarify, maxQueued int,
) *DialogueEngine {
	if maxClarify <= 0 {
		maxClarify = 2
	}
	if maxQueued <= 0 {
		maxQueued = 3
	}
	return &DialogueEngine{
		sessions:     sessions,
		extractor:    extractor,
		parser:       parser,
		resolver:     resolver,
		availability: availability,
		templates:    templates,
		defaultTZ:    defaultTZ,
		maxClarify:   maxClarify,
		maxQueued:    maxQueued,
		now:          time.Now,
	}
}

// HandleMessage processes one raw inbound WhatsApp message.
func (d *DialogueEngine) HandleMessage(ctx context.Context, phone, message string) (*TurnResult, error) {
	return d.HandleFragment(ctx, phone, d.extractor.Extract(message))
}

// HandleFragment processes one already-structured intent fragment. The whole
// turn runs under the session's turn lock, so two messages from the same
// client can never interleave their state updates.
func (d *DialogueEngine) HandleFragment(ctx context.Context, phone string, frag models.IntentFragment) (*TurnResult, error) {
	var result *TurnResult

	err := d.sessions.WithTurn(ctx, phone, func(session *models.Session) error {
		if session.Timezone == "" {
			session.Timezone = d.defaultTZ
		}
		if frag.ClientName != "" {
			session.ClientName = frag.ClientName
		}
		result = d.runTurn(session, frag)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DialogueEngine) runTurn(session *models.Session, frag models.IntentFragment) *TurnResult {
	if frag.Abandon {
		return d.abandonActive(session)
	}

	// A new goal while one is in flight waits its turn.
	if frag.Kind != "" && session.Active != nil && frag.Kind != session.Active.Kind {
		return d.queueIntent(session, frag)
	}

	if session.Active == nil {
		if frag.Kind == "" {
			return &TurnResult{
				Reply: "Hi! I can book, reschedule or cancel classes, or check availability. What would you like to do?",
				State: "idle",
			}
		}
		session.Active = d.newIntent(session, frag.Kind)
	}

	session.Active.Merge(frag)
	d.fillFromSession(session)

	return d.advance(session)
}

// advance pushes the active intent as far as this turn allows: ask for
// missing fields, normalize the time, then execute.
func (d *DialogueEngine) advance(session *models.Session) *TurnResult {
	intent := session.Active

	if missing := intent.MissingFields(); len(missing) > 0 {
		intent.Status = models.IntentStatusCollecting
		return &TurnResult{
			Reply: fmt.Sprintf("Almost there! I still need: %s.", strings.Join(missing, ", ")),
			State: intent.Status,
		}
	}
	intent.Status = models.IntentStatusReady

	if intent.Date == "" && intent.When != "" {
		if result := d.normalizeWhen(session); result != nil {
			return result
		}
	}

	// Cancel by booking ID needs no time at all; every other path that
	// targets a concrete slot does.
	needsClock := intent.Kind == models.IntentKindBook ||
		intent.Kind == models.IntentKindReschedule ||
		(intent.Kind == models.IntentKindCancel && intent.BookingID == "")
	if needsClock && intent.Time == "" {
		intent.ClarifyAttempts++
		if intent.ClarifyAttempts > d.maxClarify {
			return d.giveUp(session)
		}
		intent.Status = models.IntentStatusCollecting
		return &TurnResult{
			Reply: fmt.Sprintf("What time on %s?", intent.Date),
			State: intent.Status,
		}
	}

	return d.execute(session)
}

// normalizeWhen resolves the raw expression into Date/Time on the intent.
// A non-nil result means the turn ends here (clarification or rejection).
func (d *DialogueEngine) normalizeWhen(session *models.Session) *TurnResult {
	intent := session.Active

	normalized, err := d.parser.Parse(intent.When, d.now(), session.Timezone)
	if err == nil {
		intent.Date = normalized.Date
		intent.Time = normalized.Time
		intent.ClarifyAttempts = 0
		return nil
	}

	var ambiguous *scheduling.AmbiguousTimeError
	if errors.As(err, &ambiguous) {
		intent.When = ""
		intent.ClarifyAttempts++
		if intent.ClarifyAttempts > d.maxClarify {
			return d.giveUp(session)
		}
		intent.Status = models.IntentStatusCollecting
		return &TurnResult{Reply: ambiguous.Prompt, State: intent.Status}
	}

	// Past instants, out-of-hours times and unparseable expressions all ask
	// for a replacement expression.
	intent.When = ""
	intent.Status = models.IntentStatusCollecting
	return &TurnResult{
		Reply: rejectionReply(err),
		State: intent.Status,
	}
}

func (d *DialogueEngine) execute(session *models.Session) *TurnResult {
	intent := session.Active

	switch intent.Kind {
	case models.IntentKindBook:
		return d.executeBook(session)
	case models.IntentKindCancel:
		return d.executeCancel(session)
	case models.IntentKindReschedule:
		return d.executeReschedule(session)
	case models.IntentKindAvailability:
		return d.executeAvailability(session)
	default:
		log.Printf("Unknown intent kind %q for %s", intent.Kind, session.Phone)
		return d.giveUp(session)
	}
}

func (d *DialogueEngine) executeBook(session *models.Session) *TurnResult {
	intent := session.Active
	slot := models.TimeSlot{
		Date:       intent.Date,
		StartTime:  intent.Time,
		Instructor: intent.Instructor,
		ClassType:  intent.ClassType,
	}

	booking, err := d.resolver.Book(intent.ClientName, intent.ClientPhone, slot, intent.Notes, intent.ID)
	if err == nil {
		intent.BookingID = booking.ID
		reply := fmt.Sprintf("🎉 You're in, %s! %s on %s at %s. Booking ID: %s. Confirmation is on its way.",
			intent.ClientName, slot.ClassType, slot.Date, slot.StartTime, booking.ID)
		return d.resolveActive(session, reply, booking, nil)
	}

	var conflict *scheduling.ConflictError
	if errors.As(err, &conflict) {
		// The slot is gone but everything else still holds; only the time
		// needs re-collecting.
		intent.When = ""
		intent.Date = ""
		intent.Time = ""
		intent.Status = models.IntentStatusCollecting
		return &TurnResult{
			Reply:        d.templates.RenderAlternatives(conflict.Requested, conflict.Alternatives),
			Alternatives: conflict.Alternatives,
			State:        intent.Status,
		}
	}

	intent.When = ""
	intent.Date = ""
	intent.Time = ""
	intent.Status = models.IntentStatusCollecting
	return &TurnResult{Reply: rejectionReply(err), State: intent.Status}
}

func (d *DialogueEngine) executeCancel(session *models.Session) *TurnResult {
	intent := session.Active

	booking, err := d.resolver.Cancel(intent.BookingID, intent.ClientPhone, intent.Date, intent.Time)
	if err != nil {
		var notFound *scheduling.NotFoundError
		if errors.As(err, &notFound) {
			intent.BookingID = ""
			intent.When = ""
			intent.Date = ""
			intent.Time = ""
			intent.Status = models.IntentStatusCollecting
			return &TurnResult{
				Reply: "I couldn't find that booking. Can you give me the booking ID, or the date and time it was for?",
				State: intent.Status,
			}
		}
		return &TurnResult{Reply: rejectionReply(err), State: intent.Status}
	}

	reply := fmt.Sprintf("Done! Your %s class on %s at %s is cancelled.",
		booking.Slot.ClassType, booking.Slot.Date, booking.Slot.StartTime)
	return d.resolveActive(session, reply, booking, nil)
}

func (d *DialogueEngine) executeReschedule(session *models.Session) *TurnResult {
	intent := session.Active

	if intent.BookingID == "" {
		upcoming, err := d.resolver.ListUpcoming(intent.ClientPhone, "", "")
		if err != nil || len(upcoming) == 0 {
			return d.resolveActive(session, "I don't see any upcoming bookings for you to move.", nil, nil)
		}
		if len(upcoming) > 1 {
			var b strings.Builder
			b.WriteString("Which booking should I move?\n")
			for _, bk := range upcoming {
				fmt.Fprintf(&b, "• %s: %s %s at %s\n", bk.ID, bk.Slot.ClassType, bk.Slot.Date, bk.Slot.StartTime)
			}
			intent.Status = models.IntentStatusCollecting
			return &TurnResult{Reply: b.String(), State: intent.Status}
		}
		intent.BookingID = upcoming[0].ID
	}

	newSlot := models.TimeSlot{
		Date:       intent.Date,
		StartTime:  intent.Time,
		Instructor: intent.Instructor,
		ClassType:  intent.ClassType,
	}
	booking, err := d.resolver.Reschedule(intent.BookingID, newSlot, intent.ID)
	if err != nil {
		var conflict *scheduling.ConflictError
		if errors.As(err, &conflict) {
			intent.When = ""
			intent.Date = ""
			intent.Time = ""
			intent.Status = models.IntentStatusCollecting
			return &TurnResult{
				Reply:        d.templates.RenderAlternatives(conflict.Requested, conflict.Alternatives),
				Alternatives: conflict.Alternatives,
				State:        intent.Status,
			}
		}
		return &TurnResult{Reply: rejectionReply(err), State: intent.Status}
	}

	reply := fmt.Sprintf("Moved! Your %s class is now on %s at %s. New booking ID: %s.",
		booking.Slot.ClassType, booking.Slot.Date, booking.Slot.StartTime, booking.ID)
	return d.resolveActive(session, reply, booking, nil)
}

func (d *DialogueEngine) executeAvailability(session *models.Session) *TurnResult {
	intent := session.Active

	timeRange := ParseTimeRange(intent.When)
	slots, err := d.availability.Query(intent.Date, timeRange, intent.Instructor)
	if err != nil {
		return &TurnResult{
			Reply: "I couldn't reach the calendar just now. Please try again in a moment.",
			State: intent.Status,
		}
	}
	return d.resolveActive(session, d.templates.RenderSlotList(intent.Date, slots), nil, slots)
}

// resolveActive retires the active intent as resolved and pulls the next
// queued one into play.
func (d *DialogueEngine) resolveActive(session *models.Session, reply string, booking *models.Booking, slots []models.TimeSlot) *TurnResult {
	session.Active.Status = models.IntentStatusResolved
	session.History = append(session.History, session.Active)
	session.Active = nil

	result := &TurnResult{Reply: reply, Booking: booking, Alternatives: slots, State: models.IntentStatusResolved}
	d.activateQueued(session, result)
	return result
}

// giveUp abandons the active intent after repeated failed clarifications.
func (d *DialogueEngine) giveUp(session *models.Session) *TurnResult {
	session.Active.Status = models.IntentStatusAbandoned
	session.History = append(session.History, session.Active)
	session.Active = nil

	result := &TurnResult{
		Reply: "Let's start over. Tell me the class and an exact date and time, like \"Yoga tomorrow at 10am\".",
		State: models.IntentStatusAbandoned,
	}
	d.activateQueued(session, result)
	return result
}

func (d *DialogueEngine) abandonActive(session *models.Session) *TurnResult {
	if session.Active == nil {
		return &TurnResult{Reply: "No problem. Anything else I can help with?", State: "idle"}
	}
	session.Active.Status = models.IntentStatusAbandoned
	session.History = append(session.History, session.Active)
	session.Active = nil

	result := &TurnResult{Reply: "No problem, I've dropped that request.", State: models.IntentStatusAbandoned}
	d.activateQueued(session, result)
	return result
}

func (d *DialogueEngine) queueIntent(session *models.Session, frag models.IntentFragment) *TurnResult {
	if len(session.Queue) >= d.maxQueued {
		return &TurnResult{
			Reply: "One thing at a time! Let's finish your current request first.",
			State: session.Active.Status,
		}
	}

	queued := d.newIntent(session, frag.Kind)
	queued.Merge(frag)
	session.Queue = append(session.Queue, queued)

	return &TurnResult{
		Reply: fmt.Sprintf("Got it, I'll handle that next. First, back to your %s request: %s.",
			session.Active.Kind, strings.Join(session.Active.MissingFields(), ", ")),
		State: session.Active.Status,
	}
}

// activateQueued promotes the next queued intent, appending its opening
// prompt to the reply.
func (d *DialogueEngine) activateQueued(session *models.Session, result *TurnResult) {
	if len(session.Queue) == 0 {
		return
	}
	session.Active = session.Queue[0]
	session.Queue = session.Queue[1:]
	d.fillFromSession(session)

	next := d.advance(session)
	result.Reply += "\n\nNext up: " + next.Reply
	result.State = next.State
	if next.Booking != nil {
		result.Booking = next.Booking
	}
	if len(next.Alternatives) > 0 {
		result.Alternatives = next.Alternatives
	}
}

func (d *DialogueEngine) newIntent(session *models.Session, kind string) *models.Intent {
	now := d.now()
	return &models.Intent{
		ID:          "IN" + strings.ToUpper(uuid.NewString()[:8]),
		Kind:        kind,
		ClientPhone: session.Phone,
		ClientName:  session.ClientName,
		Status:      models.IntentStatusCollecting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// fillFromSession backfills identity fields the client shouldn't have to
// repeat every conversation.
func (d *DialogueEngine) fillFromSession(session *models.Session) {
	if session.Active.ClientPhone == "" {
		session.Active.ClientPhone = session.Phone
	}
	if session.Active.ClientName == "" {
		session.Active.ClientName = session.ClientName
	}
	if session.Active.ClientName != "" && session.ClientName == "" {
		session.ClientName = session.Active.ClientName
	}
}

// rejectionReply maps scheduling errors onto client-facing wording.
func rejectionReply(err error) string {
	var past *scheduling.PastDateError
	if errors.As(err, &past) {
		return "That time is already in the past. When should I look instead?"
	}
	var hours *scheduling.OutOfHoursError
	if errors.As(err, &hours) {
		return fmt.Sprintf("We're open %d:00 to %d:00. What time in that window works for you?",
			hours.OpenHour, hours.CloseHour)
	}
	var validation *scheduling.ValidationError
	if errors.As(err, &validation) {
		return fmt.Sprintf("I didn't catch the %s. Could you rephrase?", validation.Field)
	}
	var external *scheduling.ExternalServiceError
	if errors.As(err, &external) {
		return "Something went wrong on our side. Please try again in a moment."
	}
	return "Sorry, I couldn't do that. Could you try again?"
}
