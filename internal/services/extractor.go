package services

import (
	"regexp"
	"strings"

	"github.com/slotwise/studio-backend/internal/models"
)

// IntentExtractor turns a raw WhatsApp message into an IntentFragment by
// keyword and pattern matching. It is deliberately forgiving: anything it
// cannot place stays empty and the dialogue engine asks a follow-up.
type IntentExtractor struct{}

// NewIntentExtractor creates a new extractor
func NewIntentExtractor() *IntentExtractor {
	return &IntentExtractor{}
}

var (
	bookingIDRe = regexp.MustCompile(`\bBK[A-Z0-9]{8}\b`)
	phoneRe     = regexp.MustCompile(`\+?\d[\d\s-]{7,14}\d`)
	nameRe      = regexp.MustCompile(`(?i)\b(?:my name is|i am|i'm|this is)\s+([A-Za-zÀ-ÿ]+(?:\s+[A-Za-zÀ-ÿ]+)?)`)
	whenRe      = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|day after tomorrow|` +
		`(?:next |this |coming )?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)|` +
		`in \d+ (?:minutes?|hours?|days?)|` +
		`\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b` +
		`(?:\s*,?\s*(?:at\s+)?(\d{1,2}(?::\d{2})?\s*(?:am|pm)?|morning|afternoon|evening|noon|midday))?`)
	clockOnlyRe = regexp.MustCompile(`(?i)\bat\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\b`)
	daypartRe   = regexp.MustCompile(`(?i)\b(morning|afternoon|evening)\b`)
	withRe      = regexp.MustCompile(`(?i)\bwith\s+([A-Za-zÀ-ÿ]+)\b`)
)

// Extract parses one inbound message into a fragment. Uppercase message text
// is never significant; matching is case-insensitive throughout.
func (e *IntentExtractor) Extract(message string) models.IntentFragment {
	frag := models.IntentFragment{}
	lower := strings.ToLower(strings.TrimSpace(message))
	if lower == "" {
		return frag
	}

	switch {
	case containsAny(lower, "never mind", "nevermind", "forget it", "stop", "cancel that request", "don't bother"):
		frag.Abandon = true
		return frag
	case containsAny(lower, "reschedule", "move my", "change my booking", "change it to"):
		frag.Kind = models.IntentKindReschedule
	case containsAny(lower, "cancel"):
		frag.Kind = models.IntentKindCancel
	case containsAny(lower, "book", "reserve", "sign me up", "schedule me", "i want to join", "can i come"):
		frag.Kind = models.IntentKindBook
	case containsAny(lower, "available", "availability", "free slots", "what's free", "whats free", "any spots", "open slots"):
		frag.Kind = models.IntentKindAvailability
	}

	frag.ClassType = matchClassType(lower)
	frag.When = matchWhen(message)

	if m := bookingIDRe.FindString(strings.ToUpper(message)); m != "" {
		frag.BookingID = m
	}
	if m := withRe.FindStringSubmatch(message); m != nil {
		frag.Instructor = capitalize(m[1])
	}
	if m := nameRe.FindStringSubmatch(message); m != nil {
		frag.ClientName = strings.TrimSpace(m[1])
	}
	if m := phoneRe.FindString(message); m != "" {
		frag.ClientPhone = normalizePhone(m)
	}

	return frag
}

func matchClassType(lower string) string {
	switch {
	case strings.Contains(lower, "yoga"):
		return "Yoga"
	case strings.Contains(lower, "pilates"):
		return "Pilates"
	case strings.Contains(lower, "hiit"):
		return "HIIT"
	case strings.Contains(lower, "personal training"), strings.Contains(lower, "personal session"), strings.Contains(lower, " pt "):
		return "Personal Training"
	case strings.Contains(lower, "group fitness"), strings.Contains(lower, "group class"):
		return "Group Fitness"
	}
	return ""
}

// matchWhen collects the date expression plus any trailing or standalone time
// token, so "tomorrow at 3pm" and "Friday morning" come back as one string.
func matchWhen(message string) string {
	m := whenRe.FindStringSubmatch(message)
	if m == nil {
		// A bare time still counts: "at 3pm" against an already-known date.
		if c := clockOnlyRe.FindStringSubmatch(message); c != nil {
			return c[1]
		}
		if d := daypartRe.FindString(message); d != "" {
			return strings.ToLower(d)
		}
		return ""
	}

	when := m[1]
	timePart := m[2]
	if timePart == "" {
		if c := clockOnlyRe.FindStringSubmatch(message); c != nil {
			timePart = c[1]
		} else if d := daypartRe.FindString(message); d != "" {
			timePart = d
		}
	}
	if timePart != "" {
		when += " " + strings.ToLower(timePart)
	}
	return strings.ToLower(when)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
